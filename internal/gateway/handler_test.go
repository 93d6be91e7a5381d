package gateway_test

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand/v2"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/system-design/14-realtime-pong/internal/gateway"
	"github.com/koopa0/system-design/14-realtime-pong/internal/matches"
	"github.com/koopa0/system-design/14-realtime-pong/internal/physics"
	"github.com/koopa0/system-design/14-realtime-pong/internal/room"
	"github.com/koopa0/system-design/14-realtime-pong/pkg/logger"
)

// stubStore 固定回傳的對戰紀錄
type stubStore struct {
	mu        sync.Mutex
	results   []matches.Result
	err       error
	lastLimit int
}

func (s *stubStore) Save(context.Context, matches.Result) error { return nil }

func (s *stubStore) Recent(_ context.Context, limit int) ([]matches.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastLimit = limit
	return s.results, s.err
}

func (s *stubStore) limit() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastLimit
}

func (s *stubStore) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

type testServer struct {
	server  *httptest.Server
	gateway *gateway.Gateway
	hub     *gateway.Hub
}

func newTestServer(t *testing.T, store matches.Store) *testServer {
	t.Helper()

	reg := room.NewRegistry(room.WithRand(rand.New(rand.NewPCG(1, 2))))
	gw := gateway.New(reg, logger.Discard(), gateway.Options{
		TickInterval: 5 * time.Millisecond,
		Rand:         rand.New(rand.NewPCG(3, 4)),
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() { _ = gw.Run(ctx) }()

	hub := gateway.NewHub(gw, logger.Discard(), gateway.DefaultHubConfig())
	handler := gateway.NewHandler(gw, hub, store, logger.Discard())
	server := httptest.NewServer(handler.Routes())

	t.Cleanup(func() {
		server.Close()
		cancel()
		<-gw.Done()
		hub.Close()
	})

	return &testServer{server: server, gateway: gw, hub: hub}
}

func (ts *testServer) get(t *testing.T, path string) (int, map[string]any) {
	t.Helper()

	resp, err := http.Get(ts.server.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return resp.StatusCode, body
}

func (ts *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()

	wsURL := "ws" + strings.TrimPrefix(ts.server.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// readUntil 讀取訊息直到 match 返回 true
func readUntil(t *testing.T, conn *websocket.Conn, match func(frame) bool) frame {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitFor)))
	for {
		var fr frame
		require.NoError(t, conn.ReadJSON(&fr))
		if match(fr) {
			return fr
		}
	}
}

func readAck(t *testing.T, conn *websocket.Conn, id int64) gateway.Ack {
	t.Helper()

	fr := readUntil(t, conn, func(fr frame) bool {
		return fr.Event == gateway.EventAck && fr.ID != nil && *fr.ID == id
	})
	var ack gateway.Ack
	require.NoError(t, json.Unmarshal(fr.Data, &ack))
	return ack
}

func writeEvent(t *testing.T, conn *websocket.Conn, event string, id int64, data any) {
	t.Helper()

	msg := map[string]any{"event": event}
	if id > 0 {
		msg["id"] = id
	}
	if data != nil {
		msg["data"] = data
	}
	require.NoError(t, conn.WriteJSON(msg))
}

// TestWebSocket_CompleteGameFlow 測試完整流程：建立、加入、移動球拍、斷線
func TestWebSocket_CompleteGameFlow(t *testing.T) {
	ts := newTestServer(t, nil)

	alice := ts.dial(t)
	bob := ts.dial(t)

	// 1. 建立房間
	writeEvent(t, alice, gateway.EventCreateGame, 1, nil)
	created := readAck(t, alice, 1)
	require.True(t, created.OK)
	require.NotNil(t, created.PlayerIndex)
	assert.Equal(t, 0, *created.PlayerIndex)

	// 2. 加入房間
	writeEvent(t, bob, gateway.EventJoinGame, 1, created.RoomID)
	joined := readAck(t, bob, 1)
	require.True(t, joined.OK)
	require.NotNil(t, joined.PlayerIndex)
	assert.Equal(t, 1, *joined.PlayerIndex)

	// 3. 兩邊都收到 gameState
	readUntil(t, alice, func(fr frame) bool { return fr.Event == gateway.EventGameState })
	readUntil(t, bob, func(fr frame) bool { return fr.Event == gateway.EventGameState })

	// 4. 移動球拍：中心 250 → 上緣 200
	writeEvent(t, alice, gateway.EventPaddleMove, 0, 250)
	readUntil(t, bob, func(fr frame) bool {
		if fr.Event != gateway.EventGameState {
			return false
		}
		var s physics.Snapshot
		require.NoError(t, json.Unmarshal(fr.Data, &s))
		return s.Paddles[0] == 200
	})

	// 5. alice 斷線，bob 收到 playerLeft
	require.NoError(t, alice.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	_ = alice.Close()

	readUntil(t, bob, func(fr frame) bool { return fr.Event == gateway.EventPlayerLeft })

	status, body := ts.get(t, "/api/v1/rooms/"+created.RoomID)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, "Room not found", body["error"])
}

// TestWebSocket_OversizedMessage 超過大小上限的訊息會關閉連線
func TestWebSocket_OversizedMessage(t *testing.T) {
	ts := newTestServer(t, nil)
	conn := ts.dial(t)

	writeEvent(t, conn, gateway.EventCreateGame, 1, nil)
	created := readAck(t, conn, 1)
	require.True(t, created.OK)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(strings.Repeat("x", 4096))))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitFor)))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	// 斷線等同離開：房間被移除
	require.Eventually(t, func() bool {
		stats, err := ts.gateway.Stats(context.Background())
		return err == nil && stats.TotalRooms == 0 && stats.Sessions == 0
	}, waitFor, 5*time.Millisecond)
	assert.Eventually(t, func() bool { return ts.hub.Count() == 0 }, waitFor, 5*time.Millisecond)
}

// TestHandler_GetRoom 測試房間查詢
func TestHandler_GetRoom(t *testing.T) {
	ts := newTestServer(t, nil)
	conn := ts.dial(t)

	writeEvent(t, conn, gateway.EventCreateGame, 1, nil)
	created := readAck(t, conn, 1)

	tests := []struct {
		name           string
		path           string
		expectedStatus int
		validate       func(t *testing.T, body map[string]any)
	}{
		{
			name:           "existing room",
			path:           "/api/v1/rooms/" + created.RoomID,
			expectedStatus: http.StatusOK,
			validate: func(t *testing.T, body map[string]any) {
				assert.Equal(t, created.RoomID, body["room_id"])
				assert.Equal(t, 1.0, body["players"])
				assert.Equal(t, true, body["joinable"])
				assert.Equal(t, false, body["running"])
			},
		},
		{
			name:           "unknown room",
			path:           "/api/v1/rooms/000000",
			expectedStatus: http.StatusNotFound,
			validate: func(t *testing.T, body map[string]any) {
				assert.Equal(t, "Room not found", body["error"])
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := ts.get(t, tt.path)
			assert.Equal(t, tt.expectedStatus, status)
			tt.validate(t, body)
		})
	}
}

func TestHandler_Health(t *testing.T) {
	ts := newTestServer(t, nil)

	status, body := ts.get(t, "/health")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])
	assert.NotZero(t, body["time"])
}

func TestHandler_Stats(t *testing.T) {
	ts := newTestServer(t, nil)
	a := ts.dial(t)
	b := ts.dial(t)

	writeEvent(t, a, gateway.EventCreateGame, 1, nil)
	created := readAck(t, a, 1)
	writeEvent(t, b, gateway.EventJoinGame, 1, created.RoomID)
	require.True(t, readAck(t, b, 1).OK)

	status, body := ts.get(t, "/stats")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1.0, body["total_rooms"])
	assert.Equal(t, 1.0, body["active_rooms"])
	assert.Equal(t, 0.0, body["waiting_rooms"])
	assert.Equal(t, 2.0, body["sessions"])
}

func TestHandler_ListMatches(t *testing.T) {
	ended := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	store := &stubStore{results: []matches.Result{{
		RoomID:    "a1b2c3",
		Score:     [2]int{2, 1},
		Ticks:     600,
		StartedAt: ended.Add(-10 * time.Second),
		EndedAt:   ended,
		Reason:    matches.ReasonDisconnect,
	}}}
	ts := newTestServer(t, store)

	status, body := ts.get(t, "/api/v1/matches?limit=5")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 5, store.limit())
	assert.Equal(t, 1.0, body["count"])

	list := body["matches"].([]any)
	first := list[0].(map[string]any)
	assert.Equal(t, "a1b2c3", first["room_id"])
	assert.Equal(t, []any{2.0, 1.0}, first["score"])

	// 無效或過大的 limit 使用預設值
	ts.get(t, "/api/v1/matches?limit=1000")
	assert.Equal(t, 20, store.limit())
	ts.get(t, "/api/v1/matches?limit=abc")
	assert.Equal(t, 20, store.limit())

	store.fail(errors.New("db down"))
	status, _ = ts.get(t, "/api/v1/matches")
	assert.Equal(t, http.StatusInternalServerError, status)
}

func TestHandler_ListMatchesWithoutStore(t *testing.T) {
	ts := newTestServer(t, nil)

	status, body := ts.get(t, "/api/v1/matches")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 0.0, body["count"])
	assert.Empty(t, body["matches"])
}
