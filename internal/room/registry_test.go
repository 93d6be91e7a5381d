package room_test

import (
	"context"
	"fmt"
	"math/rand/v2"
	"regexp"
	"testing"
	"time"

	"github.com/koopa0/system-design/14-realtime-pong/internal/room"
	"github.com/koopa0/system-design/14-realtime-pong/internal/scheduler"
	apperrors "github.com/koopa0/system-design/14-realtime-pong/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRegistry(opts ...room.Option) *room.Registry {
	opts = append([]room.Option{room.WithRand(rand.New(rand.NewPCG(1, 2)))}, opts...)
	return room.NewRegistry(opts...)
}

func TestNewRoomID(t *testing.T) {
	pattern := regexp.MustCompile(`^[0-9a-f]{6}$`)
	seen := make(map[string]bool)

	for i := 0; i < 100; i++ {
		id := room.NewRoomID()
		assert.Regexp(t, pattern, id)
		seen[id] = true
	}

	// 100 個 24 位元隨機值幾乎不可能大量重複
	assert.Greater(t, len(seen), 95)
}

// TestRegistry_Create 測試創建房間
func TestRegistry_Create(t *testing.T) {
	reg := newTestRegistry()

	rm, err := reg.Create("alice")
	require.NoError(t, err)

	assert.Len(t, rm.ID, 6)
	assert.Equal(t, []string{"alice"}, rm.Players)
	assert.Equal(t, 0, rm.PlayerIndex("alice"))
	assert.Equal(t, room.StatusWaiting, rm.Status())
	assert.False(t, rm.State.Running)
	assert.Equal(t, 400.0, rm.State.Ball.X)
	assert.Equal(t, [2]float64{250, 250}, rm.State.Paddles)

	got, ok := reg.Get(rm.ID)
	require.True(t, ok)
	assert.Same(t, rm, got)
}

// TestRegistry_CreateRetriesOnCollision ID 碰撞時重新產生，不覆蓋既有房間
func TestRegistry_CreateRetriesOnCollision(t *testing.T) {
	ids := []string{"aaaaaa", "aaaaaa", "aaaaaa", "bbbbbb"}
	next := 0
	reg := newTestRegistry(room.WithIDGenerator(func() string {
		id := ids[next]
		next++
		return id
	}))

	first, err := reg.Create("alice")
	require.NoError(t, err)
	assert.Equal(t, "aaaaaa", first.ID)

	second, err := reg.Create("bob")
	require.NoError(t, err)
	assert.Equal(t, "bbbbbb", second.ID)

	got, _ := reg.Get("aaaaaa")
	assert.Equal(t, []string{"alice"}, got.Players)
}

func TestRegistry_CreateIDExhausted(t *testing.T) {
	reg := newTestRegistry(room.WithIDGenerator(func() string { return "ffffff" }))

	_, err := reg.Create("alice")
	require.NoError(t, err)

	_, err = reg.Create("bob")
	assert.ErrorIs(t, err, apperrors.ErrIDExhausted)
	assert.Equal(t, 1, reg.Len())
}

func TestRegistry_MaxRooms(t *testing.T) {
	reg := newTestRegistry(room.WithMaxRooms(2))

	for i := 0; i < 2; i++ {
		_, err := reg.Create(fmt.Sprintf("p%d", i))
		require.NoError(t, err)
	}

	_, err := reg.Create("p3")
	assert.ErrorIs(t, err, apperrors.ErrTooManyRooms)
}

// TestRegistry_Join 測試加入房間
func TestRegistry_Join(t *testing.T) {
	tests := []struct {
		name    string
		setup   func(reg *room.Registry) string
		wantIdx int
		wantErr error
	}{
		{
			name: "second player takes index 1",
			setup: func(reg *room.Registry) string {
				rm, _ := reg.Create("alice")
				return rm.ID
			},
			wantIdx: 1,
		},
		{
			name: "unknown room",
			setup: func(reg *room.Registry) string {
				return "000000"
			},
			wantIdx: -1,
			wantErr: apperrors.ErrRoomNotFound,
		},
		{
			name: "full room",
			setup: func(reg *room.Registry) string {
				rm, _ := reg.Create("alice")
				_, _, _ = reg.Join(rm.ID, "bob")
				return rm.ID
			},
			wantIdx: -1,
			wantErr: apperrors.ErrRoomFull,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := newTestRegistry()
			roomID := tt.setup(reg)
			before := reg.Len()

			rm, idx, err := reg.Join(roomID, "carol")

			assert.Equal(t, tt.wantIdx, idx)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, rm)
				assert.Equal(t, before, reg.Len())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "carol", rm.Players[idx])
		})
	}
}

// TestRegistry_ThirdJoinLeavesPlayersUnchanged 滿員房間拒絕第三名玩家
func TestRegistry_ThirdJoinLeavesPlayersUnchanged(t *testing.T) {
	reg := newTestRegistry()
	rm, _ := reg.Create("alice")
	_, _, err := reg.Join(rm.ID, "bob")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		_, _, err = reg.Join(rm.ID, fmt.Sprintf("extra-%d", i))
		assert.ErrorIs(t, err, apperrors.ErrRoomFull)
	}

	assert.Equal(t, []string{"alice", "bob"}, rm.Players)
	assert.Equal(t, "Room full", apperrors.Message(err))
}

// TestRegistry_Delete 刪除房間會停止迴圈且可重複呼叫
func TestRegistry_Delete(t *testing.T) {
	reg := newTestRegistry()
	rm, _ := reg.Create("alice")
	_, _, _ = reg.Join(rm.ID, "bob")

	ticker := scheduler.New(time.Millisecond, func(ctx context.Context) {})
	require.True(t, rm.StartLoop(ticker))
	assert.True(t, ticker.Running())

	deleted, ok := reg.Delete(rm.ID)
	require.True(t, ok)
	assert.Same(t, rm, deleted)
	assert.False(t, ticker.Running())
	assert.Nil(t, rm.Loop())
	assert.False(t, rm.State.Running)

	_, ok = reg.Delete(rm.ID)
	assert.False(t, ok)

	_, _, err := reg.Join(rm.ID, "carol")
	assert.ErrorIs(t, err, apperrors.ErrRoomNotFound)
}

// TestRegistry_JoinErrorDetails 錯誤帶有房間 ID，但訊息與共用錯誤相同
func TestRegistry_JoinErrorDetails(t *testing.T) {
	reg := newTestRegistry()

	_, _, err := reg.Join("abcdef", "bob")
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "room_id=abcdef", appErr.Details)
	assert.Equal(t, "Room not found", apperrors.Message(err))
	assert.Empty(t, apperrors.ErrRoomNotFound.Details)
}

func TestRegistry_Stats(t *testing.T) {
	reg := newTestRegistry()

	waiting, _ := reg.Create("a")
	active, _ := reg.Create("b")
	_, _, _ = reg.Join(active.ID, "c")
	ticker := scheduler.New(time.Hour, func(ctx context.Context) {})
	require.True(t, active.StartLoop(ticker))
	defer ticker.Stop()

	stats := reg.Stats()
	assert.Equal(t, 2, stats.TotalRooms)
	assert.Equal(t, 1, stats.ActiveRooms)
	assert.Equal(t, 1, stats.WaitingRooms)
	assert.ElementsMatch(t, []string{waiting.ID, active.ID}, reg.IDs())
}
