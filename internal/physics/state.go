// Package physics 實現單一房間的固定步長模擬
//
// Advance 是純函數：輸入一份狀態，返回推進一個 tick 之後的新狀態，
// 唯一的外部輸入是發球角度使用的隨機數來源。
package physics

import (
	"math"
	"math/rand/v2"
)

// 場地與球拍常數
const (
	DefaultWidth        = 800.0
	DefaultHeight       = 600.0
	DefaultPaddleHeight = 100.0

	PaddleInset = 20.0 // 球拍距離左右邊界
	PaddleWidth = 10.0
	BallRadius  = 5.0 // 球的前緣，用於球拍碰撞帶

	InitialVX   = 6.0
	InitialVY   = 3.0
	LaunchSpeed = 6.0

	SpeedUp    = 1.05 // 每次擊球的水平加速倍率
	Deflection = 2.0  // 擊球點偏離中心時的最大垂直速度增量

	MaxLaunchAngle = math.Pi / 6 // ±30°
)

// Ball 球的位置與速度
type Ball struct {
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
	VX float64 `json:"vx"`
	VY float64 `json:"vy"`
}

// State 房間的模擬狀態
//
// Paddles 是兩名玩家球拍的上緣 Y 座標（0 = 左，1 = 右）。
type State struct {
	Width        float64
	Height       float64
	PaddleHeight float64
	Paddles      [2]float64
	Ball         Ball
	Score        [2]int
	Running      bool
}

// Snapshot 廣播給客戶端的唯讀副本
type Snapshot struct {
	Width        float64    `json:"width"`
	Height       float64    `json:"height"`
	PaddleHeight float64    `json:"paddleHeight"`
	Paddles      [2]float64 `json:"paddles"`
	Ball         Ball       `json:"ball"`
	Score        [2]int     `json:"score"`
}

// NewState 建立初始狀態：球拍置中，球在中心，速度 (±6, ±3)
func NewState(width, height, paddleHeight float64, rng *rand.Rand) State {
	center := height/2 - paddleHeight/2
	return State{
		Width:        width,
		Height:       height,
		PaddleHeight: paddleHeight,
		Paddles:      [2]float64{center, center},
		Ball: Ball{
			X:  width / 2,
			Y:  height / 2,
			VX: InitialVX * randomSign(rng),
			VY: InitialVY * randomSign(rng),
		},
	}
}

// NewDefaultState 建立 800×600、球拍高 100 的初始狀態
func NewDefaultState(rng *rand.Rand) State {
	return NewState(DefaultWidth, DefaultHeight, DefaultPaddleHeight, rng)
}

// Snapshot 返回可安全序列化的副本
func (s State) Snapshot() Snapshot {
	return Snapshot{
		Width:        s.Width,
		Height:       s.Height,
		PaddleHeight: s.PaddleHeight,
		Paddles:      s.Paddles,
		Ball:         s.Ball,
		Score:        s.Score,
	}
}

// MaxPaddleY 球拍上緣允許的最大值
func (s State) MaxPaddleY() float64 {
	return s.Height - s.PaddleHeight
}

func randomSign(rng *rand.Rand) float64 {
	if rng.Float64() > 0.5 {
		return 1
	}
	return -1
}
