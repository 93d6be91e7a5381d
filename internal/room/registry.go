// Package room 實現房間與房間登錄表
//
// 系統設計問題：
//
//	房間 ID 既是登錄表的鍵，也是分享連結的一部分，
//	如何保證唯一、夠短，並且在斷線時立刻釋放所有資源？
//
// 設計：
//   - Registry 由呼叫方建立並注入，不是全域狀態
//   - 所有操作在單一事件迴圈上執行，因此沒有鎖
//   - ID 碰撞時重新產生，絕不覆蓋既有房間
//   - Delete 同步停止 tick 迴圈，可重複呼叫
package room

import (
	"encoding/hex"
	"math/rand/v2"

	"github.com/google/uuid"

	"github.com/koopa0/system-design/14-realtime-pong/internal/physics"
	apperrors "github.com/koopa0/system-design/14-realtime-pong/pkg/errors"
)

// maxIDAttempts 產生房間 ID 的最大嘗試次數
const maxIDAttempts = 8

// NewRoomID 產生 6 個十六進位字元的房間 ID（3 個隨機位元組）
//
// 只取 UUIDv4 的前 3 個位元組，這幾個位元組不含版本位元。
func NewRoomID() string {
	u := uuid.New()
	return hex.EncodeToString(u[:3])
}

// Registry 房間登錄表
type Registry struct {
	rooms    map[string]*Room
	newID    func() string
	maxRooms int

	width, height, paddleHeight float64
	rng                         *rand.Rand
}

// Option 登錄表選項
type Option func(*Registry)

// WithIDGenerator 替換房間 ID 產生器
func WithIDGenerator(fn func() string) Option {
	return func(r *Registry) {
		r.newID = fn
	}
}

// WithMaxRooms 限制同時存在的房間數，0 表示不限制
func WithMaxRooms(n int) Option {
	return func(r *Registry) {
		r.maxRooms = n
	}
}

// WithField 設定場地大小與球拍高度
func WithField(width, height, paddleHeight float64) Option {
	return func(r *Registry) {
		r.width = width
		r.height = height
		r.paddleHeight = paddleHeight
	}
}

// WithRand 設定初始發球方向使用的隨機數來源
func WithRand(rng *rand.Rand) Option {
	return func(r *Registry) {
		r.rng = rng
	}
}

// NewRegistry 建立房間登錄表
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		rooms:        make(map[string]*Room),
		newID:        NewRoomID,
		width:        physics.DefaultWidth,
		height:       physics.DefaultHeight,
		paddleHeight: physics.DefaultPaddleHeight,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.rng == nil {
		r.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return r
}

// Create 建立房間，建立者佔據 0 號座位
func (r *Registry) Create(creator string) (*Room, error) {
	if r.maxRooms > 0 && len(r.rooms) >= r.maxRooms {
		return nil, apperrors.ErrTooManyRooms
	}

	for range maxIDAttempts {
		id := r.newID()
		if _, exists := r.rooms[id]; exists {
			continue
		}

		state := physics.NewState(r.width, r.height, r.paddleHeight, r.rng)
		room := newRoom(id, creator, state)
		r.rooms[id] = room
		return room, nil
	}

	return nil, apperrors.ErrIDExhausted
}

// Join 加入房間，成功時返回 1 號座位
//
// 失敗時房間的玩家列表保持不變。呼叫方在成功後負責啟動 tick 迴圈。
func (r *Registry) Join(roomID, player string) (*Room, int, error) {
	room, ok := r.rooms[roomID]
	if !ok {
		return nil, -1, apperrors.ErrRoomNotFound.WithDetails("room_id=" + roomID)
	}
	if room.Full() {
		return nil, -1, apperrors.ErrRoomFull.WithDetails("room_id=" + roomID)
	}

	room.Players = append(room.Players, player)
	return room, len(room.Players) - 1, nil
}

// Get 查詢房間
func (r *Registry) Get(roomID string) (*Room, bool) {
	room, ok := r.rooms[roomID]
	return room, ok
}

// Delete 停止迴圈並移除房間；房間不存在時為 no-op
func (r *Registry) Delete(roomID string) (*Room, bool) {
	room, ok := r.rooms[roomID]
	if !ok {
		return nil, false
	}

	room.StopLoop()
	delete(r.rooms, roomID)
	return room, true
}

// IDs 返回所有房間 ID
func (r *Registry) IDs() []string {
	ids := make([]string, 0, len(r.rooms))
	for id := range r.rooms {
		ids = append(ids, id)
	}
	return ids
}

// Len 房間數
func (r *Registry) Len() int {
	return len(r.rooms)
}

// Stats 房間統計
type Stats struct {
	TotalRooms   int `json:"total_rooms"`
	ActiveRooms  int `json:"active_rooms"`
	WaitingRooms int `json:"waiting_rooms"`
}

// Stats 計算統計資訊
func (r *Registry) Stats() Stats {
	s := Stats{TotalRooms: len(r.rooms)}
	for _, room := range r.rooms {
		if room.Status() == StatusPlaying {
			s.ActiveRooms++
		} else {
			s.WaitingRooms++
		}
	}
	return s
}
