package room_test

import (
	"context"
	"math/rand/v2"
	"testing"
	"time"

	"github.com/koopa0/system-design/14-realtime-pong/internal/room"
	"github.com/koopa0/system-design/14-realtime-pong/internal/scheduler"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFullRoom(t *testing.T) *room.Room {
	t.Helper()
	reg := newTestRegistry()
	rm, err := reg.Create("alice")
	require.NoError(t, err)
	_, _, err = reg.Join(rm.ID, "bob")
	require.NoError(t, err)
	return rm
}

// TestRoom_StartLoopIsIdempotent 重複啟動不會掛上第二個迴圈
func TestRoom_StartLoopIsIdempotent(t *testing.T) {
	rm := newFullRoom(t)

	first := scheduler.New(time.Hour, func(ctx context.Context) {})
	second := scheduler.New(time.Hour, func(ctx context.Context) {})
	defer first.Stop()
	defer second.Stop()

	assert.True(t, rm.StartLoop(first))
	assert.False(t, rm.StartLoop(second))

	assert.Same(t, first, rm.Loop())
	assert.False(t, second.Running())
	assert.True(t, rm.State.Running)
	assert.Equal(t, room.StatusPlaying, rm.Status())
	assert.False(t, rm.StartedAt.IsZero())
}

func TestRoom_StartLoopRequiresTwoPlayers(t *testing.T) {
	reg := newTestRegistry()
	rm, _ := reg.Create("alice")

	ticker := scheduler.New(time.Hour, func(ctx context.Context) {})
	assert.False(t, rm.StartLoop(ticker))
	assert.False(t, ticker.Running())
	assert.Nil(t, rm.Loop())
}

func TestRoom_StopLoop(t *testing.T) {
	rm := newFullRoom(t)
	ticker := scheduler.New(time.Hour, func(ctx context.Context) {})
	require.True(t, rm.StartLoop(ticker))

	assert.True(t, rm.StopLoop())
	assert.False(t, rm.StopLoop())
	assert.False(t, ticker.Running())
	assert.Equal(t, room.StatusWaiting, rm.Status())
}

// TestRoom_SetPaddle 輸入是球拍中心，存的是上緣
func TestRoom_SetPaddle(t *testing.T) {
	rm := newFullRoom(t)

	rm.SetPaddle(0, 250)
	assert.Equal(t, 200.0, rm.State.Paddles[0])

	// 超出場地的值暫時保留，下一個 tick 夾限
	rm.SetPaddle(1, 1000)
	assert.Equal(t, 950.0, rm.State.Paddles[1])

	rm.Step(rand.New(rand.NewPCG(1, 2)))
	assert.Equal(t, 500.0, rm.State.Paddles[1])

	// 無效索引被忽略
	rm.SetPaddle(2, 10)
	rm.SetPaddle(-1, 10)
	assert.Equal(t, 200.0, rm.State.Paddles[0])
}

func TestRoom_Step(t *testing.T) {
	rm := newFullRoom(t)
	rng := rand.New(rand.NewPCG(1, 2))
	x := rm.State.Ball.X

	snap := rm.Step(rng)

	assert.Equal(t, int64(1), rm.Ticks)
	assert.Equal(t, x+rm.State.Ball.VX, snap.Ball.X)
	assert.Equal(t, rm.State.Score, snap.Score)
}

func TestRoom_Opponent(t *testing.T) {
	rm := newFullRoom(t)

	other, ok := rm.Opponent("alice")
	assert.True(t, ok)
	assert.Equal(t, "bob", other)

	assert.Equal(t, 1, rm.PlayerIndex("bob"))
	assert.Equal(t, -1, rm.PlayerIndex("mallory"))
}
