package service

import (
	"context"

	"github.com/Kjeonghyun5142/bap-pool/internal/domain"
)

type RoomRepository interface {
	GetByID(ctx context.Context, id int64) (*domain.ChatRoom, error)
	GetByPair(ctx context.Context, low, high int64) (*domain.ChatRoom, error)
	Create(ctx context.Context, room *domain.ChatRoom) (*domain.ChatRoom, bool, error)
	ListForUser(ctx context.Context, userID int64) ([]domain.RoomSummary, error)
}

type ChatRepository interface {
	Save(ctx context.Context, roomID, senderID int64, content string) (*domain.MessageWithSender, error)
	History(ctx context.Context, roomID int64, after string, limit int) ([]domain.MessageWithSender, string, error)
}

type UserRepository interface {
	Exists(ctx context.Context, id int64) (bool, error)
}
