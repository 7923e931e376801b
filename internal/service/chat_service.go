package service

import (
	"context"
	"fmt"

	"github.com/Kjeonghyun5142/bap-pool/internal/domain"
)

type ChatService struct {
	rooms *RoomService
	chats ChatRepository
}

func NewChatService(rooms *RoomService, chats ChatRepository) *ChatService {
	return &ChatService{rooms: rooms, chats: chats}
}

// Send validates and stores a message from senderID. Content is checked
// before the room id, then membership is re-validated against storage.
func (s *ChatService) Send(ctx context.Context, roomID, senderID int64, content string) (*domain.MessageWithSender, error) {
	text, err := domain.NormalizeContent(content)
	if err != nil {
		return nil, err
	}
	if roomID <= 0 {
		return nil, domain.ErrMissingRoomID
	}
	if _, err := s.rooms.Authorize(ctx, roomID, senderID); err != nil {
		return nil, err
	}

	msg, err := s.chats.Save(ctx, roomID, senderID, text)
	if err != nil {
		return nil, fmt.Errorf("chats.Save: %w", err)
	}
	return msg, nil
}

// History returns one page of the room's messages for a participant.
func (s *ChatService) History(ctx context.Context, roomID, userID int64, after string, limit int) ([]domain.MessageWithSender, string, error) {
	if _, err := s.rooms.Authorize(ctx, roomID, userID); err != nil {
		return nil, "", err
	}
	msgs, next, err := s.chats.History(ctx, roomID, after, limit)
	if err != nil {
		return nil, "", fmt.Errorf("chats.History: %w", err)
	}
	return msgs, next, nil
}
