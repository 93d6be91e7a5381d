// Package scheduler 提供每個房間的固定頻率 tick 迴圈
//
// Ticker 只負責「何時」觸發：回調在 Ticker 自己的 goroutine 中執行，
// 呼叫方應把真正的狀態修改排入自己的事件迴圈，避免與其他處理器並發。
//
// 生命週期：
//
//	New → Start → (tick, tick, ...) → Stop
//
// Stop 會等待 goroutine 結束，返回後不會再有任何回調。
package scheduler

import (
	"context"
	"sync"
	"time"
)

// DefaultRate 預設每秒 tick 數
const DefaultRate = 60

// Interval 由每秒次數換算 tick 間隔
func Interval(rate int) time.Duration {
	if rate <= 0 {
		rate = DefaultRate
	}
	return time.Second / time.Duration(rate)
}

// Ticker 固定間隔觸發回調
type Ticker struct {
	interval time.Duration
	fn       func(ctx context.Context)

	mu      sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	running bool
	stopped bool
}

// New 建立 Ticker
//
// fn 收到的 ctx 在 Stop 時取消；fn 內若有阻塞的發送應同時 select ctx.Done()。
func New(interval time.Duration, fn func(ctx context.Context)) *Ticker {
	return &Ticker{
		interval: interval,
		fn:       fn,
	}
}

// Start 啟動迴圈，已啟動或已停止時返回 false
func (t *Ticker) Start() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running || t.stopped {
		return false
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	t.running = true

	t.wg.Add(1)
	go t.run(ctx)

	return true
}

// run 主循環
func (t *Ticker) run(ctx context.Context) {
	defer t.wg.Done()

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			// ticker 與 ctx 同時就緒時 select 隨機選擇，這裡再確認一次
			if ctx.Err() != nil {
				return
			}
			t.fn(ctx)
		}
	}
}

// Stop 停止迴圈並等待 goroutine 退出，可重複呼叫
func (t *Ticker) Stop() {
	t.mu.Lock()
	if t.stopped {
		t.mu.Unlock()
		return
	}
	t.stopped = true
	t.running = false
	cancel := t.cancel
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	t.wg.Wait()
}

// Running 是否正在執行
func (t *Ticker) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.running
}

// Interval 返回 tick 間隔
func (t *Ticker) Interval() time.Duration {
	return t.interval
}
