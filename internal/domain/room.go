package domain

import "time"

type RoomKind string

const RoomKindDirect RoomKind = "direct"

// ChatRoom is a direct conversation between exactly two users.
// ParticipantLow is always the smaller user id.
type ChatRoom struct {
	ID              int64     `db:"id"`
	ParticipantLow  int64     `db:"participant_low"`
	ParticipantHigh int64     `db:"participant_high"`
	Kind            RoomKind  `db:"kind"`
	CreatedAt       time.Time `db:"created_at"`
	LastActivityAt  time.Time `db:"last_activity_at"`
}

// NormalizePair orders two user ids so that any unordered pair maps to one key.
func NormalizePair(a, b int64) (low, high int64, err error) {
	if a <= 0 || b <= 0 {
		return 0, 0, ErrMissingTarget
	}
	if a == b {
		return 0, 0, ErrSelfChat
	}
	if a < b {
		return a, b, nil
	}
	return b, a, nil
}

func NewDirectRoom(a, b int64, now time.Time) (*ChatRoom, error) {
	low, high, err := NormalizePair(a, b)
	if err != nil {
		return nil, err
	}
	return &ChatRoom{
		ParticipantLow:  low,
		ParticipantHigh: high,
		Kind:            RoomKindDirect,
		CreatedAt:       now,
		LastActivityAt:  now,
	}, nil
}

func (r *ChatRoom) HasParticipant(userID int64) bool {
	return userID != 0 && (r.ParticipantLow == userID || r.ParticipantHigh == userID)
}

// Peer returns the other participant, or 0 if userID is not in the room.
func (r *ChatRoom) Peer(userID int64) int64 {
	switch userID {
	case r.ParticipantLow:
		return r.ParticipantHigh
	case r.ParticipantHigh:
		return r.ParticipantLow
	}
	return 0
}

// RoomSummary is a room as listed for one of its participants.
type RoomSummary struct {
	ChatRoom
	Low  Profile
	High Profile
}
