package ws

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/Kjeonghyun5142/bap-pool/internal/domain"
)

// Client -> server events.
const (
	TypeJoinRoom    = "join_room"
	TypeSendMessage = "send_message"
)

// Server -> client events.
const (
	TypeRoomJoined   = "room_joined"
	TypeRoomError    = "room_error"
	TypeNewMessage   = "new_message"
	TypeMessageError = "message_error"
	TypeServerError  = "server_error"
	TypeRoomCreated  = "room_created" // sent to the peer's private group
)

// Message is the envelope of every outbound frame.
type Message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type inbound struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

var errInvalidRoomID = errors.New("room_id must be a positive integer")

// RoomID accepts a JSON number or a numeric string. Null, "" and a missing
// field all decode to 0, which callers treat as "missing".
type RoomID int64

func (r *RoomID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*r = 0
		return nil
	}
	s := string(b)
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*r = 0
			return nil
		}
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return errInvalidRoomID
	}
	*r = RoomID(n)
	return nil
}

type JoinRoomPayload struct {
	RoomID RoomID `json:"room_id"`
}

type SendMessagePayload struct {
	RoomID  RoomID `json:"room_id"`
	Content string `json:"content"`
}

type RoomJoinedPayload struct {
	RoomID  int64  `json:"room_id"`
	Message string `json:"message"`
}

type RoomCreatedPayload struct {
	RoomID    int64          `json:"room_id"`
	CreatedBy int64          `json:"created_by"`
	Creator   *SenderPayload `json:"creator,omitempty"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type SenderPayload struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

type NewMessagePayload struct {
	ID        int64         `json:"id"`
	RoomID    int64         `json:"room_id"`
	SenderID  int64         `json:"sender_id"`
	Content   string        `json:"content"`
	CreatedAt time.Time     `json:"created_at"`
	Sender    SenderPayload `json:"sender"`
}

func newMessagePayload(m *domain.MessageWithSender) NewMessagePayload {
	return NewMessagePayload{
		ID:        m.ID,
		RoomID:    m.RoomID,
		SenderID:  m.SenderID,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
		Sender: SenderPayload{
			ID:          m.Sender.ID,
			DisplayName: m.Sender.DisplayName,
			Email:       m.Sender.Email,
		},
	}
}

func errorMessage(typ, msg string) Message {
	return Message{Type: typ, Payload: ErrorPayload{Message: msg}}
}
