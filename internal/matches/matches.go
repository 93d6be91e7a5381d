// Package matches 保存已結束的對戰紀錄
//
// 房間本身不會持久化（重啟後所有房間消失）；
// 這裡記錄的只是對戰結束後的結果，供查詢歷史使用。
//
// 寫入流程：
//
//	事件迴圈 → Recorder.Record（非阻塞）→ 背景 goroutine → Store.Save
package matches

import (
	"context"
	"time"
)

// 結束原因
const (
	ReasonDisconnect = "disconnect"
	ReasonShutdown   = "shutdown"
)

// Result 一場對戰的結果
type Result struct {
	RoomID    string    `json:"room_id"`
	Score     [2]int    `json:"score"`
	Ticks     int64     `json:"ticks"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
	Reason    string    `json:"reason"`
}

// Duration 對戰時長，未開始的房間為 0
func (r Result) Duration() time.Duration {
	if r.StartedAt.IsZero() {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// Store 對戰紀錄儲存
type Store interface {
	Save(ctx context.Context, result Result) error
	Recent(ctx context.Context, limit int) ([]Result, error)
}

// Nop 不保存任何紀錄，PostgreSQL 未設定時使用
type Nop struct{}

// Save 丟棄紀錄
func (Nop) Save(context.Context, Result) error { return nil }

// Recent 永遠返回空列表
func (Nop) Recent(context.Context, int) ([]Result, error) { return []Result{}, nil }
