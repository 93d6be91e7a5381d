package gateway

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// HubConfig WebSocket 參數
type HubConfig struct {
	ReadBufferSize  int
	WriteBufferSize int
	SendBuffer      int   // 每條連線的發送緩衝
	MaxMessageSize  int64 // 超過時關閉連線
	PongWait        time.Duration
	PingPeriod      time.Duration
	WriteWait       time.Duration
}

// DefaultHubConfig 預設參數
//
// 54 秒送一次 Ping，60 秒內沒有收到任何訊息（包括 Pong）就關閉連線。
func DefaultHubConfig() HubConfig {
	return HubConfig{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		SendBuffer:      256,
		MaxMessageSize:  512,
		PongWait:        60 * time.Second,
		PingPeriod:      54 * time.Second,
		WriteWait:       10 * time.Second,
	}
}

// Hub 管理所有 WebSocket 連線
//
// Hub 只負責傳輸：連線上的訊息交給 Gateway，
// Gateway 透過 Connection.Send 把訊息排入寫入緩衝。
type Hub struct {
	gateway  *Gateway
	logger   *slog.Logger
	upgrader websocket.Upgrader
	cfg      HubConfig

	mu          sync.Mutex
	connections map[*Connection]struct{}
	wg          sync.WaitGroup
}

// NewHub 創建 WebSocket Hub
func NewHub(g *Gateway, logger *slog.Logger, cfg HubConfig) *Hub {
	return &Hub{
		gateway: g,
		logger:  logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// 在生產環境應該檢查來源
				return true
			},
			ReadBufferSize:  cfg.ReadBufferSize,
			WriteBufferSize: cfg.WriteBufferSize,
		},
		cfg:         cfg,
		connections: make(map[*Connection]struct{}),
	}
}

// Connection 一條 WebSocket 連線
type Connection struct {
	conn *websocket.Conn
	hub  *Hub
	send chan []byte

	mu     sync.Mutex
	closed bool
}

// Send 非阻塞地排入一個訊息框
func (c *Connection) Send(frame []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return false
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

// Close 關閉發送緩衝，writePump 送出 Close 幀後關閉連線
func (c *Connection) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// ServeWS 升級為 WebSocket 並註冊到 Gateway
func (hub *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("升級 WebSocket 失敗", "error", err)
		return
	}

	c := &Connection{
		conn: conn,
		hub:  hub,
		send: make(chan []byte, hub.cfg.SendBuffer),
	}

	session, err := hub.gateway.Connect(r.Context(), c, remoteIP(r))
	if err != nil {
		hub.logger.Warn("註冊連線失敗", "error", err)
		_ = conn.Close()
		return
	}

	hub.register(c)

	hub.wg.Add(2)
	go c.writePump()
	go c.readPump(session)
}

func (hub *Hub) register(c *Connection) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	hub.connections[c] = struct{}{}
}

func (hub *Hub) unregister(c *Connection) {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	delete(hub.connections, c)
}

// Count 目前的連線數
func (hub *Hub) Count() int {
	hub.mu.Lock()
	defer hub.mu.Unlock()
	return len(hub.connections)
}

// Close 關閉所有連線並等待讀寫 goroutine 結束
func (hub *Hub) Close() {
	hub.mu.Lock()
	for c := range hub.connections {
		c.Close()
		_ = c.conn.Close()
	}
	hub.mu.Unlock()

	hub.wg.Wait()
	hub.logger.Info("WebSocket Hub 已停止")
}

// readPump 讀取客戶端消息
//
// 讀取失敗（包括逾時、超過大小上限、客戶端關閉）都視為斷線。
func (c *Connection) readPump(session *Session) {
	defer func() {
		c.hub.gateway.Disconnect(session)
		c.hub.unregister(c)
		c.Close()
		_ = c.conn.Close()
		c.hub.wg.Done()
	}()

	cfg := c.hub.cfg
	c.conn.SetReadLimit(cfg.MaxMessageSize)

	if err := c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait)); err != nil {
		c.hub.logger.Error("設置讀取期限失敗", "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait))
	})

	ctx := context.Background()
	for {
		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("WebSocket 讀取錯誤", "error", err, "session_id", session.ID)
			}
			return
		}

		if err := c.conn.SetReadDeadline(time.Now().Add(cfg.PongWait)); err != nil {
			c.hub.logger.Error("設置讀取期限失敗", "error", err)
		}

		if messageType == websocket.TextMessage {
			c.hub.gateway.Handle(ctx, session, message)
		}
	}
}

// writePump 寫入消息到客戶端，並定期發送 Ping
func (c *Connection) writePump() {
	cfg := c.hub.cfg
	ticker := time.NewTicker(cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
		c.hub.wg.Done()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if err := c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait)); err != nil {
				c.hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if !ok {
				// 發送端已關閉，優雅關閉連接
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			// 批量發送隊列中的消息，每一幀仍是獨立的 WebSocket 訊息
			n := len(c.send)
			for i := 0; i < n; i++ {
				next, ok := <-c.send
				if !ok {
					break
				}
				if err := c.conn.WriteMessage(websocket.TextMessage, next); err != nil {
					return
				}
			}

		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteWait)); err != nil {
				c.hub.logger.Error("設置寫入期限失敗", "error", err)
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// remoteIP 取出客戶端 IP 作為限流 key
func remoteIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
