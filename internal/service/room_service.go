package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Kjeonghyun5142/bap-pool/internal/domain"
)

type RoomService struct {
	rooms RoomRepository
	users UserRepository
	now   func() time.Time
}

func NewRoomService(rooms RoomRepository, users UserRepository) *RoomService {
	return &RoomService{rooms: rooms, users: users, now: time.Now}
}

// CreateOrGet returns the direct room between userID and targetID, creating it
// on first use. created reports whether this call inserted it.
func (s *RoomService) CreateOrGet(ctx context.Context, userID, targetID int64) (*domain.ChatRoom, bool, error) {
	room, err := domain.NewDirectRoom(userID, targetID, s.now().UTC())
	if err != nil {
		return nil, false, err
	}

	ok, err := s.users.Exists(ctx, targetID)
	if err != nil {
		return nil, false, fmt.Errorf("users.Exists: %w", err)
	}
	if !ok {
		return nil, false, domain.ErrUserNotFound
	}

	existing, err := s.rooms.GetByPair(ctx, room.ParticipantLow, room.ParticipantHigh)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, domain.ErrRoomNotFound) {
		return nil, false, fmt.Errorf("rooms.GetByPair: %w", err)
	}

	saved, created, err := s.rooms.Create(ctx, room)
	if err != nil {
		return nil, false, fmt.Errorf("rooms.Create: %w", err)
	}
	return saved, created, nil
}

// List returns the user's rooms ordered by last activity, newest first.
func (s *RoomService) List(ctx context.Context, userID int64) ([]domain.RoomSummary, error) {
	rooms, err := s.rooms.ListForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("rooms.ListForUser: %w", err)
	}
	return rooms, nil
}

// Authorize loads the room and checks that userID is one of its participants.
// It always reads the persisted row; nothing is cached between calls.
func (s *RoomService) Authorize(ctx context.Context, roomID, userID int64) (*domain.ChatRoom, error) {
	if roomID <= 0 {
		return nil, domain.ErrMissingRoomID
	}
	room, err := s.rooms.GetByID(ctx, roomID)
	if err != nil {
		if errors.Is(err, domain.ErrRoomNotFound) {
			return nil, domain.ErrRoomNotFound
		}
		return nil, fmt.Errorf("rooms.GetByID: %w", err)
	}
	if !room.HasParticipant(userID) {
		return nil, domain.ErrNotParticipant
	}
	return room, nil
}
