package gateway

import (
	"github.com/google/uuid"

	apperrors "github.com/koopa0/system-design/14-realtime-pong/pkg/errors"
)

// Outbox 連線的發送端
//
// Send 不阻塞：緩衝滿或已關閉時返回 false。
type Outbox interface {
	Send(frame []byte) bool
	Close()
}

// Session 一條連線在伺服器端的紀錄
//
// roomID 與 playerIndex 只會被設定一次。
// 除了 ID、RemoteAddr 與 Send 之外，其餘方法只能在事件迴圈上呼叫。
type Session struct {
	ID         string
	RemoteAddr string

	out         Outbox
	roomID      string
	playerIndex int
	bound       bool
}

// NewSession 建立未綁定房間的 Session
func NewSession(out Outbox, remoteAddr string) *Session {
	return &Session{
		ID:          uuid.NewString(),
		RemoteAddr:  remoteAddr,
		out:         out,
		playerIndex: -1,
	}
}

// Bind 綁定房間與球拍編號，已綁定時返回 ErrAlreadyInRoom
func (s *Session) Bind(roomID string, playerIndex int) error {
	if s.bound {
		return apperrors.ErrAlreadyInRoom
	}
	s.roomID = roomID
	s.playerIndex = playerIndex
	s.bound = true
	return nil
}

// Room 返回綁定的房間與球拍編號
func (s *Session) Room() (string, int, bool) {
	return s.roomID, s.playerIndex, s.bound
}

// Send 送出一個訊息框
func (s *Session) Send(frame []byte) bool {
	return s.out.Send(frame)
}
