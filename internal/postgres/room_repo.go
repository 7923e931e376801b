package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Kjeonghyun5142/bap-pool/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type RoomRepository struct {
	q querier
}

func NewRoomRepository(db *pgxpool.Pool) *RoomRepository {
	return &RoomRepository{q: db}
}

func scanRoom(row pgx.Row, rm *domain.ChatRoom) error {
	return row.Scan(&rm.ID, &rm.ParticipantLow, &rm.ParticipantHigh, &rm.Kind, &rm.CreatedAt, &rm.LastActivityAt)
}

func (r *RoomRepository) GetByID(ctx context.Context, id int64) (*domain.ChatRoom, error) {
	var rm domain.ChatRoom
	if err := scanRoom(r.q.QueryRow(ctx, queryRoomByID, id), &rm); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRoomNotFound
		}
		return nil, mapPgError(err)
	}
	return &rm, nil
}

// GetByPair expects an already normalized pair.
func (r *RoomRepository) GetByPair(ctx context.Context, low, high int64) (*domain.ChatRoom, error) {
	var rm domain.ChatRoom
	if err := scanRoom(r.q.QueryRow(ctx, queryRoomByPair, low, high), &rm); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrRoomNotFound
		}
		return nil, mapPgError(err)
	}
	return &rm, nil
}

// Create inserts room unless the pair already has one. When another writer won
// the race the existing row is returned with created=false.
func (r *RoomRepository) Create(ctx context.Context, room *domain.ChatRoom) (*domain.ChatRoom, bool, error) {
	var rm domain.ChatRoom
	row := r.q.QueryRow(ctx, queryInsertRoom,
		room.ParticipantLow, room.ParticipantHigh, room.Kind, room.CreatedAt)
	err := scanRoom(row, &rm)
	switch {
	case err == nil:
		return &rm, true, nil
	case errors.Is(err, pgx.ErrNoRows):
		existing, err := r.GetByPair(ctx, room.ParticipantLow, room.ParticipantHigh)
		if err != nil {
			return nil, false, fmt.Errorf("re-read room after conflict: %w", err)
		}
		return existing, false, nil
	default:
		return nil, false, mapPgError(err)
	}
}

// ListForUser returns the user's rooms with both participants' profiles,
// most recently active first.
func (r *RoomRepository) ListForUser(ctx context.Context, userID int64) ([]domain.RoomSummary, error) {
	rows, err := r.q.Query(ctx, queryRoomsForUser, userID)
	if err != nil {
		return nil, mapPgError(err)
	}
	defer rows.Close()

	out := make([]domain.RoomSummary, 0)
	for rows.Next() {
		var s domain.RoomSummary
		if err := rows.Scan(
			&s.ID, &s.ParticipantLow, &s.ParticipantHigh, &s.Kind, &s.CreatedAt, &s.LastActivityAt,
			&s.Low.ID, &s.Low.DisplayName, &s.Low.Email,
			&s.High.ID, &s.High.DisplayName, &s.High.Email,
		); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
