package domain

import (
	"strings"
	"time"
	"unicode/utf8"
)

const MaxContentRunes = 4000

type ChatMessage struct {
	ID        int64     `db:"id"`
	RoomID    int64     `db:"room_id"`
	SenderID  int64     `db:"sender_id"`
	Content   string    `db:"content"`
	CreatedAt time.Time `db:"created_at"`
}

// MessageWithSender is a persisted message hydrated with the sender's profile,
// the shape handed to the transports.
type MessageWithSender struct {
	ChatMessage
	Sender Profile
}

// NormalizeContent trims the content and checks it is postable.
func NormalizeContent(content string) (string, error) {
	text := strings.TrimSpace(content)
	if text == "" {
		return "", ErrEmptyContent
	}
	if utf8.RuneCountInString(text) > MaxContentRunes {
		return "", ErrContentTooLong
	}
	return text, nil
}
