package http

import (
	"time"

	"github.com/Kjeonghyun5142/bap-pool/internal/domain"
)

type CreateRoomRequest struct {
	TargetUserID int64 `json:"target_user_id"`
}

type ProfileItem struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"display_name"`
	Email       string `json:"email"`
}

type RoomItem struct {
	ID              int64         `json:"id"`
	Kind            string        `json:"kind"`
	ParticipantLow  int64         `json:"participant_low"`
	ParticipantHigh int64         `json:"participant_high"`
	CreatedAt       time.Time     `json:"created_at"`
	LastActivityAt  time.Time     `json:"last_activity_at"`
	Participants    []ProfileItem `json:"participants,omitempty"`
}

type CreateRoomResponse struct {
	Created bool     `json:"created"`
	Room    RoomItem `json:"room"`
}

type ListRoomsResponse struct {
	Rooms []RoomItem `json:"rooms"`
}

type MessageItem struct {
	ID        int64       `json:"id"`
	RoomID    int64       `json:"room_id"`
	SenderID  int64       `json:"sender_id"`
	Content   string      `json:"content"`
	CreatedAt time.Time   `json:"created_at"`
	Sender    ProfileItem `json:"sender"`
}

type ListMessagesResponse struct {
	Messages   []MessageItem `json:"messages"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

func profileItem(p domain.Profile) ProfileItem {
	return ProfileItem{ID: p.ID, DisplayName: p.DisplayName, Email: p.Email}
}

func roomItem(r *domain.ChatRoom) RoomItem {
	return RoomItem{
		ID:              r.ID,
		Kind:            string(r.Kind),
		ParticipantLow:  r.ParticipantLow,
		ParticipantHigh: r.ParticipantHigh,
		CreatedAt:       r.CreatedAt,
		LastActivityAt:  r.LastActivityAt,
	}
}

func summaryItem(s domain.RoomSummary) RoomItem {
	it := roomItem(&s.ChatRoom)
	it.Participants = []ProfileItem{profileItem(s.Low), profileItem(s.High)}
	return it
}

func messageItem(m domain.MessageWithSender) MessageItem {
	return MessageItem{
		ID:        m.ID,
		RoomID:    m.RoomID,
		SenderID:  m.SenderID,
		Content:   m.Content,
		CreatedAt: m.CreatedAt,
		Sender:    profileItem(m.Sender),
	}
}
