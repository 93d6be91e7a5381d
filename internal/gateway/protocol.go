package gateway

import (
	"encoding/json"
	"net/url"
	"strings"

	"github.com/koopa0/system-design/14-realtime-pong/internal/physics"
)

// 事件名稱
const (
	EventCreateGame = "createGame"
	EventJoinGame   = "joinGame"
	EventPaddleMove = "paddleMove"

	EventAck        = "ack"
	EventGameState  = "gameState"
	EventPlayerLeft = "playerLeft"
)

// Inbound 客戶端訊息
//
//	{"event": "joinGame", "id": 2, "data": "a1b2c3"}
//
// 帶有 id 的請求會收到一個 id 相同的 ack。
type Inbound struct {
	Event string          `json:"event"`
	ID    *int64          `json:"id,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Outbound 伺服器訊息
type Outbound struct {
	Event string `json:"event"`
	ID    *int64 `json:"id,omitempty"`
	Data  any    `json:"data,omitempty"`
}

// Ack createGame / joinGame 的回應
type Ack struct {
	OK          bool   `json:"ok"`
	RoomID      string `json:"roomId,omitempty"`
	PlayerIndex *int   `json:"playerIndex,omitempty"`
	ShareURL    string `json:"shareUrl,omitempty"`
	Error       string `json:"error,omitempty"`
}

func okAck(roomID string, playerIndex int, shareURL string) Ack {
	return Ack{
		OK:          true,
		RoomID:      roomID,
		PlayerIndex: &playerIndex,
		ShareURL:    shareURL,
	}
}

func errorAck(message string) Ack {
	return Ack{OK: false, Error: message}
}

func encode(msg Outbound) []byte {
	// Outbound 只包含可序列化的型別
	data, _ := json.Marshal(msg)
	return data
}

func ackFrame(id *int64, ack Ack) []byte {
	return encode(Outbound{Event: EventAck, ID: id, Data: ack})
}

func stateFrame(snap physics.Snapshot) []byte {
	return encode(Outbound{Event: EventGameState, Data: snap})
}

var playerLeftFrame = encode(Outbound{Event: EventPlayerLeft})

// ParseRoomID 接受房間 ID 或包含 ?room=<id> 的分享連結
func ParseRoomID(input string) string {
	s := strings.TrimSpace(input)
	if !strings.ContainsAny(s, "?/=") {
		return s
	}

	u, err := url.Parse(s)
	if err != nil {
		return s
	}
	if id := u.Query().Get("room"); id != "" {
		return id
	}
	return s
}

// ShareURL 產生分享連結 <base>?room=<id>，base 為空時返回空字串
func ShareURL(base, roomID string) string {
	if base == "" {
		return ""
	}

	u, err := url.Parse(base)
	if err != nil {
		return ""
	}
	q := u.Query()
	q.Set("room", roomID)
	u.RawQuery = q.Encode()
	return u.String()
}
