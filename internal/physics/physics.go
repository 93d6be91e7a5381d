package physics

import (
	"math"
	"math/rand/v2"
)

// Side 得分方向
type Side int

const (
	Left  Side = 0
	Right Side = 1
)

// Advance 推進一個 tick
//
// 順序：積分 → 上下牆反彈 → 球拍碰撞 → 得分判定 → 球拍夾限。
// 碰撞使用固定 ±5px 的軸對齊帶測試，不做連續碰撞偵測；
// 球速過高時可能穿過球拍。
func Advance(s State, rng *rand.Rand) State {
	integrate(&s)
	reflectWalls(&s)
	collidePaddles(&s)
	checkGoals(&s, rng)
	ClampPaddles(&s)
	return s
}

func integrate(s *State) {
	s.Ball.X += s.Ball.VX
	s.Ball.Y += s.Ball.VY
}

// reflectWalls 完全彈性碰撞，無阻尼
func reflectWalls(s *State) {
	if s.Ball.Y <= 0 {
		s.Ball.Y = 0
		s.Ball.VY *= -1
	}
	if s.Ball.Y >= s.Height {
		s.Ball.Y = s.Height
		s.Ball.VY *= -1
	}
}

func collidePaddles(s *State) {
	leftFace := PaddleInset + PaddleWidth
	if s.Ball.X-BallRadius <= leftFace && s.withinPaddle(Left) {
		s.Ball.X = leftFace + BallRadius
		s.bounce(Left)
	}

	rightFace := s.Width - PaddleInset
	if s.Ball.X+BallRadius >= rightFace && s.withinPaddle(Right) {
		s.Ball.X = rightFace - BallRadius
		s.bounce(Right)
	}
}

func (s *State) withinPaddle(side Side) bool {
	top := s.Paddles[side]
	return s.Ball.Y >= top && s.Ball.Y <= top+s.PaddleHeight
}

// bounce 反轉並放大水平速度，依擊球點加上垂直偏轉
func (s *State) bounce(side Side) {
	half := s.PaddleHeight / 2
	center := s.Paddles[side] + half

	s.Ball.VX *= -SpeedUp
	s.Ball.VY += (s.Ball.Y - center) / half * Deflection
}

func checkGoals(s *State, rng *rand.Rand) {
	if s.Ball.X < 0 {
		s.Score[Right]++
		ResetBall(s, Right, rng)
	}
	if s.Ball.X > s.Width {
		s.Score[Left]++
		ResetBall(s, Left, rng)
	}
}

// ResetBall 球回到中心，以速度 6、±30° 內的隨機角度發向 toward 那一側
func ResetBall(s *State, toward Side, rng *rand.Rand) {
	s.Ball.X = s.Width / 2
	s.Ball.Y = s.Height / 2

	angle := rng.Float64()*(2*MaxLaunchAngle) - MaxLaunchAngle

	dir := -1.0
	if toward == Right {
		dir = 1
	}

	s.Ball.VX = LaunchSpeed * math.Cos(angle) * dir
	s.Ball.VY = LaunchSpeed * math.Sin(angle) * randomSign(rng)
}

// ClampPaddles 將球拍上緣夾在 [0, height-paddleHeight]
func ClampPaddles(s *State) {
	limit := s.MaxPaddleY()
	for i := range s.Paddles {
		if s.Paddles[i] < 0 {
			s.Paddles[i] = 0
		}
		if s.Paddles[i] > limit {
			s.Paddles[i] = limit
		}
	}
}
