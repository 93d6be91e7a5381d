package room

import (
	"math/rand/v2"
	"time"

	"github.com/koopa0/system-design/14-realtime-pong/internal/physics"
	"github.com/koopa0/system-design/14-realtime-pong/internal/scheduler"
)

// MaxPlayers 每個房間的座位數
const MaxPlayers = 2

// Status 房間狀態
type Status string

const (
	// StatusWaiting 等待第二名玩家
	StatusWaiting Status = "waiting"
	// StatusPlaying 兩名玩家就位，tick 迴圈執行中
	StatusPlaying Status = "playing"
)

// Room 一場兩人對戰
//
// Room 沒有鎖：所有方法只能在事件迴圈上呼叫。
type Room struct {
	ID        string
	Players   []string // 連線 ID，索引即球拍編號（0 = 左，1 = 右）
	State     physics.State
	CreatedAt time.Time
	StartedAt time.Time
	Ticks     int64

	loop *scheduler.Ticker
}

func newRoom(id, creator string, state physics.State) *Room {
	return &Room{
		ID:        id,
		Players:   []string{creator},
		State:     state,
		CreatedAt: time.Now(),
	}
}

// Full 是否已有兩名玩家
func (r *Room) Full() bool {
	return len(r.Players) >= MaxPlayers
}

// Status 返回房間狀態
func (r *Room) Status() Status {
	if r.loop != nil {
		return StatusPlaying
	}
	return StatusWaiting
}

// PlayerIndex 返回玩家的球拍編號，不在房間內返回 -1
func (r *Room) PlayerIndex(player string) int {
	for i, p := range r.Players {
		if p == player {
			return i
		}
	}
	return -1
}

// Opponent 返回另一名玩家
func (r *Room) Opponent(player string) (string, bool) {
	for _, p := range r.Players {
		if p != player {
			return p, true
		}
	}
	return "", false
}

// StartLoop 掛上並啟動 tick 迴圈
//
// 只有滿員且尚未有迴圈時才會啟動；其餘情況為 no-op 並返回 false。
func (r *Room) StartLoop(t *scheduler.Ticker) bool {
	if r.loop != nil || !r.Full() || t == nil {
		return false
	}
	if !t.Start() {
		return false
	}

	r.loop = t
	r.State.Running = true
	r.StartedAt = time.Now()
	return true
}

// StopLoop 同步停止 tick 迴圈，返回後不會再有新的 tick 被排入
func (r *Room) StopLoop() bool {
	if r.loop == nil {
		return false
	}

	r.loop.Stop()
	r.loop = nil
	r.State.Running = false
	return true
}

// Loop 返回目前的迴圈控制權杖，沒有迴圈時為 nil
func (r *Room) Loop() *scheduler.Ticker {
	return r.loop
}

// SetPaddle 以球拍中心 Y 設定球拍
//
// 不做夾限：下一次 tick 會把球拍拉回場內。
func (r *Room) SetPaddle(index int, centerY float64) {
	if index < 0 || index >= MaxPlayers {
		return
	}
	r.State.Paddles[index] = centerY - r.State.PaddleHeight/2
}

// Step 推進一個 tick 並返回要廣播的快照
func (r *Room) Step(rng *rand.Rand) physics.Snapshot {
	r.State = physics.Advance(r.State, rng)
	r.Ticks++
	return r.State.Snapshot()
}
