package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Kjeonghyun5142/bap-pool/internal/domain"
)

type fakeUsers struct {
	profiles map[int64]domain.Profile
	err      error
}

func (f *fakeUsers) GetProfile(_ context.Context, id int64) (*domain.Profile, error) {
	if f.err != nil {
		return nil, f.err
	}
	p, ok := f.profiles[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &p, nil
}

func (f *fakeUsers) Exists(_ context.Context, id int64) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	_, ok := f.profiles[id]
	return ok, nil
}

type fakeRooms struct {
	mu     sync.Mutex
	byID   map[int64]*domain.ChatRoom
	nextID int64
	gets   int
	err    error
}

func newFakeRooms(rooms ...domain.ChatRoom) *fakeRooms {
	f := &fakeRooms{byID: map[int64]*domain.ChatRoom{}, nextID: 100}
	for i := range rooms {
		r := rooms[i]
		f.byID[r.ID] = &r
	}
	return f
}

func (f *fakeRooms) GetByID(_ context.Context, id int64) (*domain.ChatRoom, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.err != nil {
		return nil, f.err
	}
	r, ok := f.byID[id]
	if !ok {
		return nil, domain.ErrRoomNotFound
	}
	cp := *r
	return &cp, nil
}

func (f *fakeRooms) GetByPair(_ context.Context, low, high int64) (*domain.ChatRoom, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	for _, r := range f.byID {
		if r.ParticipantLow == low && r.ParticipantHigh == high {
			cp := *r
			return &cp, nil
		}
	}
	return nil, domain.ErrRoomNotFound
}

func (f *fakeRooms) Create(_ context.Context, room *domain.ChatRoom) (*domain.ChatRoom, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.byID {
		if r.ParticipantLow == room.ParticipantLow && r.ParticipantHigh == room.ParticipantHigh {
			cp := *r
			return &cp, false, nil
		}
	}
	f.nextID++
	cp := *room
	cp.ID = f.nextID
	f.byID[cp.ID] = &cp
	out := cp
	return &out, true, nil
}

func (f *fakeRooms) ListForUser(_ context.Context, userID int64) ([]domain.RoomSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.RoomSummary
	for _, r := range f.byID {
		if r.HasParticipant(userID) {
			out = append(out, domain.RoomSummary{ChatRoom: *r})
		}
	}
	return out, nil
}

type fakeChats struct {
	mu     sync.Mutex
	saved  []domain.MessageWithSender
	users  *fakeUsers
	err    error
	nextID int64
}

func (f *fakeChats) Save(ctx context.Context, roomID, senderID int64, content string) (*domain.MessageWithSender, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	sender, err := f.users.GetProfile(ctx, senderID)
	if err != nil {
		return nil, err
	}
	f.nextID++
	m := domain.MessageWithSender{
		ChatMessage: domain.ChatMessage{
			ID: f.nextID, RoomID: roomID, SenderID: senderID, Content: content, CreatedAt: time.Now(),
		},
		Sender: *sender,
	}
	f.saved = append(f.saved, m)
	return &m, nil
}

func (f *fakeChats) History(_ context.Context, roomID int64, after string, limit int) ([]domain.MessageWithSender, string, error) {
	if after == "bad" {
		return nil, "", domain.ErrInvalidCursor
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.MessageWithSender
	for _, m := range f.saved {
		if m.RoomID == roomID {
			out = append(out, m)
		}
	}
	return out, "", nil
}

var errStorage = errors.New("storage is down")
