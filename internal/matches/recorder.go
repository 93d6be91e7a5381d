package matches

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultRecorderBuffer 預設緩衝大小
const DefaultRecorderBuffer = 128

// saveTimeout 單筆寫入的逾時
const saveTimeout = 5 * time.Second

// Recorder 在背景 goroutine 寫入對戰紀錄
//
// Record 永遠不阻塞：緩衝滿或已關閉時丟棄紀錄並記錄警告。
type Recorder struct {
	store  Store
	logger *slog.Logger
	queue  chan Result

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewRecorder 建立並啟動 Recorder
func NewRecorder(store Store, logger *slog.Logger, buffer int) *Recorder {
	if buffer <= 0 {
		buffer = DefaultRecorderBuffer
	}

	r := &Recorder{
		store:  store,
		logger: logger,
		queue:  make(chan Result, buffer),
	}

	r.wg.Add(1)
	go r.run()

	return r
}

// Record 排入一筆紀錄
func (r *Recorder) Record(result Result) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.logger.Warn("紀錄器已關閉，丟棄對戰紀錄", "room_id", result.RoomID)
		return false
	}

	select {
	case r.queue <- result:
		return true
	default:
		r.logger.Warn("紀錄緩衝已滿，丟棄對戰紀錄", "room_id", result.RoomID)
		return false
	}
}

// run 主循環
func (r *Recorder) run() {
	defer r.wg.Done()

	for result := range r.queue {
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		if err := r.store.Save(ctx, result); err != nil {
			r.logger.Error("保存對戰紀錄失敗", "room_id", result.RoomID, "error", err)
		} else {
			r.logger.Debug("對戰紀錄已保存", "room_id", result.RoomID, "score", result.Score)
		}
		cancel()
	}
}

// Close 停止接收新紀錄，等待緩衝中的紀錄寫完
func (r *Recorder) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	close(r.queue)
	r.mu.Unlock()

	r.wg.Wait()
}
