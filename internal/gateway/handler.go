package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/koopa0/system-design/14-realtime-pong/internal/matches"
	apperrors "github.com/koopa0/system-design/14-realtime-pong/pkg/errors"
)

// 對戰紀錄查詢的分頁限制
const (
	defaultMatchLimit = 20
	maxMatchLimit     = 100
)

// queryTimeout HTTP 查詢等待事件迴圈或資料庫的上限
const queryTimeout = 3 * time.Second

// Handler HTTP 請求處理器
type Handler struct {
	gateway *Gateway
	hub     *Hub
	matches matches.Store
	logger  *slog.Logger
}

// NewHandler 創建 HTTP 處理器；store 為 nil 時對戰紀錄永遠為空
func NewHandler(g *Gateway, hub *Hub, store matches.Store, logger *slog.Logger) *Handler {
	if store == nil {
		store = matches.Nop{}
	}
	return &Handler{
		gateway: g,
		hub:     hub,
		matches: store,
		logger:  logger,
	}
}

// Routes 設定路由
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	// 中間件鏈
	wrap := func(handler http.HandlerFunc) http.HandlerFunc {
		return h.recoverer(h.loggerMiddleware(handler))
	}

	// WebSocket 升級不經過 responseWriter 包裝（需要 http.Hijacker）
	mux.HandleFunc("GET /ws", h.recoverer(h.hub.ServeWS))

	mux.HandleFunc("GET /api/v1/rooms/{room_id}", wrap(h.getRoom))
	mux.HandleFunc("GET /api/v1/matches", wrap(h.listMatches))

	// 健康檢查
	mux.HandleFunc("GET /health", wrap(h.health))
	mux.HandleFunc("GET /stats", wrap(h.stats))

	return mux
}

// getRoom 查詢房間是否存在、是否還能加入
func (h *Handler) getRoom(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	roomID := ParseRoomID(r.PathValue("room_id"))
	info, err := h.gateway.Lookup(ctx, roomID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			h.errorResponse(w, apperrors.Message(err), http.StatusNotFound)
			return
		}
		h.unavailable(w, err)
		return
	}

	h.jsonResponse(w, info, http.StatusOK)
}

// listMatches 最近結束的對戰
func (h *Handler) listMatches(w http.ResponseWriter, r *http.Request) {
	limit := defaultMatchLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		if val, err := strconv.Atoi(l); err == nil && val > 0 && val <= maxMatchLimit {
			limit = val
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	results, err := h.matches.Recent(ctx, limit)
	if err != nil {
		h.logger.Error("查詢對戰紀錄失敗", "error", err)
		h.errorResponse(w, "查詢對戰紀錄失敗", http.StatusInternalServerError)
		return
	}

	h.jsonResponse(w, map[string]any{
		"matches": results,
		"count":   len(results),
	}, http.StatusOK)
}

// health 健康檢查
func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	h.jsonResponse(w, map[string]any{
		"status": "healthy",
		"time":   time.Now().Unix(),
	}, http.StatusOK)
}

// stats 統計資訊
func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), queryTimeout)
	defer cancel()

	stats, err := h.gateway.Stats(ctx)
	if err != nil {
		h.unavailable(w, err)
		return
	}
	h.jsonResponse(w, stats, http.StatusOK)
}

func (h *Handler) unavailable(w http.ResponseWriter, err error) {
	if errors.Is(err, ErrClosed) || errors.Is(err, context.DeadlineExceeded) {
		h.errorResponse(w, "服務不可用", http.StatusServiceUnavailable)
		return
	}
	h.errorResponse(w, "內部伺服器錯誤", http.StatusInternalServerError)
}

// jsonResponse 返回 JSON 響應
func (h *Handler) jsonResponse(w http.ResponseWriter, data any, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("編碼 JSON 失敗", "error", err)
	}
}

// errorResponse 返回錯誤響應
func (h *Handler) errorResponse(w http.ResponseWriter, message string, status int) {
	h.jsonResponse(w, map[string]any{
		"error": message,
	}, status)
}

// loggerMiddleware 日誌中間件
func (h *Handler) loggerMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next(ww, r)

		h.logger.Info("HTTP 請求",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.statusCode,
			"duration", time.Since(start))
	}
}

// recoverer panic 恢復中間件
func (h *Handler) recoverer(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				h.logger.Error("處理請求時發生 panic",
					"error", err,
					"method", r.Method,
					"path", r.URL.Path)

				h.errorResponse(w, "內部伺服器錯誤", http.StatusInternalServerError)
			}
		}()

		next(w, r)
	}
}

// responseWriter 包裝 ResponseWriter 以獲取狀態碼
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}
