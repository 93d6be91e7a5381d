// Package gateway 把連線上的協議事件轉成房間操作
//
// 系統設計問題：
//
//	每個房間有自己的 60 Hz tick，又有兩名玩家隨時送來輸入，
//	如何在不加鎖的情況下保證房間狀態不會被並發修改？
//
// 設計方案：
//   - 單一事件迴圈（Gateway.Run）：所有房間修改都是排入同一個 channel 的閉包，依序執行
//   - tick 驅動器只負責排入 tick 閉包，不直接碰房間
//   - 刪除房間時同步停止驅動器；已排入但尚未執行的 tick 以控制權杖比對後丟棄
//   - 廣播寫入每條連線自己的緩衝 channel，不阻塞迴圈
//
// 所有外部 I/O（限流、事件發布、對戰紀錄）都不在迴圈上阻塞。
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/koopa0/system-design/14-realtime-pong/internal/events"
	"github.com/koopa0/system-design/14-realtime-pong/internal/matches"
	"github.com/koopa0/system-design/14-realtime-pong/internal/ratelimit"
	"github.com/koopa0/system-design/14-realtime-pong/internal/room"
	"github.com/koopa0/system-design/14-realtime-pong/internal/scheduler"
	apperrors "github.com/koopa0/system-design/14-realtime-pong/pkg/errors"
	"github.com/koopa0/system-design/14-realtime-pong/pkg/logger"
)

// ErrClosed 事件迴圈已停止
var ErrClosed = errors.New("gateway closed")

// DefaultQueueSize 事件佇列大小
const DefaultQueueSize = 1024

// limitTimeout 單次限流檢查的逾時
const limitTimeout = 500 * time.Millisecond

// Recorder 接收已結束的對戰
type Recorder interface {
	Record(result matches.Result) bool
}

// Options Gateway 選項，零值欄位使用預設
type Options struct {
	TickInterval time.Duration
	QueueSize    int
	PublicURL    string // 分享連結的基底

	Limiter   ratelimit.Limiter
	Publisher events.Publisher
	Recorder  Recorder
	Rand      *rand.Rand
}

// Gateway 單一事件迴圈
type Gateway struct {
	registry *room.Registry
	logger   *slog.Logger
	queue    chan func()
	done     chan struct{}

	// 以下欄位只在迴圈上存取
	sessions map[string]*Session
	rng      *rand.Rand

	interval  time.Duration
	publicURL string
	limiter   ratelimit.Limiter
	publisher events.Publisher
	recorder  Recorder
}

// New 建立 Gateway，呼叫 Run 後才開始處理事件
func New(registry *room.Registry, logger *slog.Logger, opts Options) *Gateway {
	if opts.TickInterval <= 0 {
		opts.TickInterval = scheduler.Interval(scheduler.DefaultRate)
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.Limiter == nil {
		opts.Limiter = ratelimit.AllowAll{}
	}
	if opts.Publisher == nil {
		opts.Publisher = events.Nop{}
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	return &Gateway{
		registry:  registry,
		logger:    logger,
		queue:     make(chan func(), opts.QueueSize),
		done:      make(chan struct{}),
		sessions:  make(map[string]*Session),
		rng:       opts.Rand,
		interval:  opts.TickInterval,
		publicURL: opts.PublicURL,
		limiter:   opts.Limiter,
		publisher: opts.Publisher,
		recorder:  opts.Recorder,
	}
}

// Run 執行事件迴圈直到 ctx 取消
//
// 返回前停止所有房間的 tick 並關閉所有連線的發送端。
func (g *Gateway) Run(ctx context.Context) error {
	defer close(g.done)

	g.logger.Info("事件迴圈已啟動", "tick_interval", g.interval)

	for {
		select {
		case <-ctx.Done():
			g.shutdown()
			return nil
		case fn := <-g.queue:
			fn()
		}
	}
}

// Done 事件迴圈結束後關閉
func (g *Gateway) Done() <-chan struct{} {
	return g.done
}

// enqueue 排入閉包；ctx 取消或迴圈已停止時返回 false
func (g *Gateway) enqueue(ctx context.Context, fn func()) bool {
	select {
	case g.queue <- fn:
		return true
	case <-ctx.Done():
		return false
	case <-g.done:
		return false
	}
}

// call 在迴圈上執行 fn 並等待完成
func (g *Gateway) call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !g.enqueue(ctx, func() {
		fn()
		close(finished)
	}) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return ErrClosed
	}

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-g.done:
		// 迴圈可能在結束前剛好執行完 fn
		select {
		case <-finished:
			return nil
		default:
			return ErrClosed
		}
	}
}

// Connect 註冊新連線
func (g *Gateway) Connect(ctx context.Context, out Outbox, remoteAddr string) (*Session, error) {
	s := NewSession(out, remoteAddr)
	err := g.call(ctx, func() {
		g.sessions[s.ID] = s
	})
	if err != nil {
		return nil, err
	}

	g.logger.InfoContext(logger.WithSessionID(ctx, s.ID), "連線已建立", "remote_addr", remoteAddr)
	return s, nil
}

// Disconnect 連線關閉；所在房間立即結束
func (g *Gateway) Disconnect(s *Session) {
	g.enqueue(context.Background(), func() {
		g.disconnect(s)
	})
}

// Handle 處理一則客戶端訊息，在連線的讀取 goroutine 上呼叫
func (g *Gateway) Handle(ctx context.Context, s *Session, raw []byte) {
	ctx = logger.WithSessionID(ctx, s.ID)

	var msg Inbound
	if err := json.Unmarshal(raw, &msg); err != nil {
		g.logger.WarnContext(ctx, "解析客戶端消息失敗", "error", err)
		return
	}

	switch msg.Event {
	case EventCreateGame:
		// 已綁定的連線不消耗限流額度
		bound, err := g.bound(ctx, s)
		if err != nil {
			return
		}
		if bound {
			s.Send(ackFrame(msg.ID, errorAck(apperrors.ErrAlreadyInRoom.Message)))
			return
		}
		if !g.allowCreate(ctx, s) {
			s.Send(ackFrame(msg.ID, errorAck(apperrors.ErrRateLimited.Message)))
			return
		}
		g.enqueue(ctx, func() { g.createGame(ctx, s, msg.ID) })

	case EventJoinGame:
		var input string
		if err := json.Unmarshal(msg.Data, &input); err != nil {
			g.logger.InfoContext(ctx, "joinGame 參數不是字串", "error", err)
			s.Send(ackFrame(msg.ID, errorAck(apperrors.ErrInvalidMessage.Message)))
			return
		}
		roomID := ParseRoomID(input)
		g.enqueue(ctx, func() { g.joinGame(ctx, s, msg.ID, roomID) })

	case EventPaddleMove:
		var y float64
		if err := json.Unmarshal(msg.Data, &y); err != nil {
			return
		}
		g.enqueue(ctx, func() { g.paddleMove(s, y) })

	default:
		g.logger.DebugContext(ctx, "收到未知消息類型", "event", msg.Event)
	}
}

// bound 在迴圈上讀取連線的綁定狀態
func (g *Gateway) bound(ctx context.Context, s *Session) (bool, error) {
	var bound bool
	err := g.call(ctx, func() {
		_, _, bound = s.Room()
	})
	return bound, err
}

// allowCreate 限流檢查；Redis 錯誤時降級為允許
func (g *Gateway) allowCreate(ctx context.Context, s *Session) bool {
	ctx, cancel := context.WithTimeout(ctx, limitTimeout)
	defer cancel()

	ok, err := g.limiter.Allow(ctx, s.RemoteAddr)
	if err != nil {
		g.logger.WarnContext(ctx, "限流檢查失敗", "error", err)
	}
	return ok
}

// createGame 建立房間，建立者是 0 號玩家
func (g *Gateway) createGame(ctx context.Context, s *Session, id *int64) {
	if _, _, bound := s.Room(); bound {
		s.Send(ackFrame(id, errorAck(apperrors.ErrAlreadyInRoom.Message)))
		return
	}

	rm, err := g.registry.Create(s.ID)
	if err != nil {
		g.logger.WarnContext(ctx, "創建房間失敗", "error", err)
		s.Send(ackFrame(id, errorAck(apperrors.Message(err))))
		return
	}

	_ = s.Bind(rm.ID, 0)
	s.Send(ackFrame(id, okAck(rm.ID, 0, ShareURL(g.publicURL, rm.ID))))

	g.logger.InfoContext(logger.WithRoomID(ctx, rm.ID), "房間已創建")
	g.publish(events.New(events.TypeRoomCreated, rm.ID, nil))
}

// joinGame 加入房間，成功後啟動 tick
func (g *Gateway) joinGame(ctx context.Context, s *Session, id *int64, roomID string) {
	if _, _, bound := s.Room(); bound {
		s.Send(ackFrame(id, errorAck(apperrors.ErrAlreadyInRoom.Message)))
		return
	}

	ctx = logger.WithRoomID(ctx, roomID)

	rm, index, err := g.registry.Join(roomID, s.ID)
	if err != nil {
		g.logger.InfoContext(ctx, "加入房間失敗", "error", err)
		s.Send(ackFrame(id, errorAck(apperrors.Message(err))))
		return
	}

	_ = s.Bind(rm.ID, index)
	s.Send(ackFrame(id, okAck(rm.ID, index, ShareURL(g.publicURL, rm.ID))))
	g.logger.InfoContext(ctx, "玩家加入房間", "player_index", index)

	if rm.Full() {
		g.startLoop(ctx, rm)
	}
}

// startLoop 掛上 tick 驅動器，已在執行時為 no-op
func (g *Gateway) startLoop(ctx context.Context, rm *room.Room) {
	roomID := rm.ID

	var ticker *scheduler.Ticker
	ticker = scheduler.New(g.interval, func(tctx context.Context) {
		g.enqueue(tctx, func() { g.tick(roomID, ticker) })
	})

	if !rm.StartLoop(ticker) {
		return
	}

	g.logger.InfoContext(ctx, "遊戲迴圈已啟動")
	g.publish(events.New(events.TypeRoomStarted, roomID, map[string]any{
		"players": len(rm.Players),
	}))
}

// tick 推進一步並廣播；房間已刪除或驅動器已更換時丟棄
func (g *Gateway) tick(roomID string, handle *scheduler.Ticker) {
	rm, ok := g.registry.Get(roomID)
	if !ok || rm.Loop() != handle {
		return
	}

	before := rm.State.Score
	snap := rm.Step(g.rng)

	if snap.Score != before {
		g.logger.Debug("得分", "room_id", roomID, "score", snap.Score)
		g.publish(events.New(events.TypeGoal, roomID, map[string]any{
			"score": snap.Score,
			"tick":  rm.Ticks,
		}))
	}

	g.broadcast(rm, stateFrame(snap))
}

// broadcast 發送到房間內所有連線；緩衝滿時丟棄該連線的這一幀
func (g *Gateway) broadcast(rm *room.Room, frame []byte) {
	for _, player := range rm.Players {
		s, ok := g.sessions[player]
		if !ok {
			continue
		}
		if !s.Send(frame) {
			g.logger.Warn("連接緩衝區滿", "room_id", rm.ID, "session_id", s.ID)
		}
	}
}

// paddleMove 未綁定房間時為 no-op
func (g *Gateway) paddleMove(s *Session, y float64) {
	roomID, index, bound := s.Room()
	if !bound {
		return
	}
	rm, ok := g.registry.Get(roomID)
	if !ok {
		return
	}
	rm.SetPaddle(index, y)
}

// disconnect 移除連線並結束所在房間，通知另一名玩家
func (g *Gateway) disconnect(s *Session) {
	delete(g.sessions, s.ID)

	ctx := logger.WithSessionID(context.Background(), s.ID)
	g.logger.InfoContext(ctx, "連線已關閉")

	roomID, _, bound := s.Room()
	if !bound {
		return
	}
	rm, ok := g.registry.Get(roomID)
	if !ok {
		return
	}

	g.closeRoom(rm, matches.ReasonDisconnect)

	if other, ok := rm.Opponent(s.ID); ok {
		if peer, ok := g.sessions[other]; ok {
			peer.Send(playerLeftFrame)
		}
	}
}

// closeRoom 同步停止 tick 並刪除房間
func (g *Gateway) closeRoom(rm *room.Room, reason string) {
	g.registry.Delete(rm.ID)

	result := matches.Result{
		RoomID:    rm.ID,
		Score:     rm.State.Score,
		Ticks:     rm.Ticks,
		StartedAt: rm.StartedAt,
		EndedAt:   time.Now(),
		Reason:    reason,
	}

	g.logger.Info("房間已移除",
		"room_id", rm.ID,
		"reason", reason,
		"score", result.Score,
		"ticks", result.Ticks,
		"duration", result.Duration())

	// 沒有開始過的房間不算一場對戰
	if g.recorder != nil && !rm.StartedAt.IsZero() {
		g.recorder.Record(result)
	}

	g.publish(events.New(events.TypeRoomClosed, rm.ID, map[string]any{
		"reason": reason,
		"score":  result.Score,
		"ticks":  result.Ticks,
	}))
}

// shutdown 迴圈結束前清理所有房間與連線
func (g *Gateway) shutdown() {
	for _, id := range g.registry.IDs() {
		if rm, ok := g.registry.Get(id); ok {
			g.closeRoom(rm, matches.ReasonShutdown)
		}
	}

	for id, s := range g.sessions {
		s.out.Close()
		delete(g.sessions, id)
	}

	g.logger.Info("事件迴圈已停止")
}

func (g *Gateway) publish(event events.Event) {
	if err := g.publisher.Publish(context.Background(), event); err != nil {
		g.logger.Warn("發布事件失敗", "type", event.Type, "room_id", event.RoomID, "error", err)
	}
}

// Stats 統計資訊
type Stats struct {
	room.Stats
	Sessions int `json:"sessions"`
}

// Stats 在迴圈上計算統計
func (g *Gateway) Stats(ctx context.Context) (Stats, error) {
	var stats Stats
	err := g.call(ctx, func() {
		stats = Stats{
			Stats:    g.registry.Stats(),
			Sessions: len(g.sessions),
		}
	})
	return stats, err
}

// RoomInfo 房間摘要，供加入前檢查分享連結
type RoomInfo struct {
	RoomID   string `json:"room_id"`
	Players  int    `json:"players"`
	Running  bool   `json:"running"`
	Joinable bool   `json:"joinable"`
}

// Lookup 查詢房間摘要，不存在時返回 ErrRoomNotFound
func (g *Gateway) Lookup(ctx context.Context, roomID string) (RoomInfo, error) {
	var (
		info  RoomInfo
		found bool
	)
	err := g.call(ctx, func() {
		rm, ok := g.registry.Get(roomID)
		if !ok {
			return
		}
		found = true
		info = RoomInfo{
			RoomID:   rm.ID,
			Players:  len(rm.Players),
			Running:  rm.State.Running,
			Joinable: !rm.Full(),
		}
	})
	if err != nil {
		return RoomInfo{}, err
	}
	if !found {
		return RoomInfo{}, apperrors.ErrRoomNotFound
	}
	return info, nil
}
