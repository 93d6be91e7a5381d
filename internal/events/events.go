// Package events 發布房間生命週期事件
//
// 使用 Core NATS（fire-and-forget）而非 JetStream：
// 事件只是給外部觀察者的通知，遺失不影響對戰本身，
// 而 Core NATS 的 Publish 只寫入本地緩衝，不會阻塞事件迴圈。
//
// Subject 格式：{prefix}.room.created、{prefix}.room.started、
// {prefix}.room.closed、{prefix}.goal
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultPrefix 預設 subject 前綴
const DefaultPrefix = "pong"

// 事件類型
const (
	TypeRoomCreated = "room.created"
	TypeRoomStarted = "room.started"
	TypeRoomClosed  = "room.closed"
	TypeGoal        = "goal"
)

// Event 房間事件
type Event struct {
	Type      string         `json:"type"`
	RoomID    string         `json:"room_id"`
	Data      map[string]any `json:"data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// New 建立事件
func New(eventType, roomID string, data map[string]any) Event {
	return Event{
		Type:      eventType,
		RoomID:    roomID,
		Data:      data,
		Timestamp: time.Now(),
	}
}

// Publisher 事件發布者
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}

// conn 是 NATSPublisher 需要的 *nats.Conn 方法
type conn interface {
	Publish(subject string, data []byte) error
	Drain() error
}

// NATSPublisher 發布到 NATS
type NATSPublisher struct {
	conn   conn
	prefix string
	logger *slog.Logger
}

// Connect 連接 NATS 並建立發布者
//
// 連線中斷時無限重連；重連期間的訊息由 nats.go 緩衝。
func Connect(url, prefix string, logger *slog.Logger) (*NATSPublisher, error) {
	nc, err := nats.Connect(url,
		nats.Name("pong-server"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.PingInterval(20*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS 連線中斷", "error", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS 已重新連線", "url", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("連接 NATS 失敗: %w", err)
	}

	return newNATSPublisher(nc, prefix, logger), nil
}

func newNATSPublisher(c conn, prefix string, logger *slog.Logger) *NATSPublisher {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &NATSPublisher{
		conn:   c,
		prefix: prefix,
		logger: logger,
	}
}

// Subject 返回事件類型對應的 subject
func (p *NATSPublisher) Subject(eventType string) string {
	return p.prefix + "." + eventType
}

// Publish 序列化並發布事件
func (p *NATSPublisher) Publish(ctx context.Context, event Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化事件失敗: %w", err)
	}

	if err := p.conn.Publish(p.Subject(event.Type), data); err != nil {
		return fmt.Errorf("發布事件失敗: %w", err)
	}

	p.logger.Debug("事件已發布", "type", event.Type, "room_id", event.RoomID)
	return nil
}

// Close 送出緩衝中的訊息後關閉連線
func (p *NATSPublisher) Close() error {
	return p.conn.Drain()
}

// Nop 丟棄所有事件，NATS 未設定時使用
type Nop struct{}

// Publish 不做任何事
func (Nop) Publish(context.Context, Event) error { return nil }

// Close 不做任何事
func (Nop) Close() error { return nil }
