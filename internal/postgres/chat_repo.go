package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Kjeonghyun5142/bap-pool/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	DefaultHistoryLimit = 100
	MaxHistoryLimit     = 500
)

type ChatRepository struct {
	db *pgxpool.Pool
}

func NewChatRepository(db *pgxpool.Pool) *ChatRepository {
	return &ChatRepository{db: db}
}

func scanMessageWithSender(row pgx.Row, m *domain.MessageWithSender) error {
	return row.Scan(
		&m.ID, &m.RoomID, &m.SenderID, &m.Content, &m.CreatedAt,
		&m.Sender.ID, &m.Sender.DisplayName, &m.Sender.Email,
	)
}

// Save stores the message, bumps the room's last activity and reads the
// message back with its sender profile, all in one transaction.
func (r *ChatRepository) Save(ctx context.Context, roomID, senderID int64, content string) (*domain.MessageWithSender, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	var m domain.MessageWithSender
	if err := tx.QueryRow(ctx, queryInsertMessage, roomID, senderID, content).Scan(&m.ID, &m.CreatedAt); err != nil {
		return nil, fmt.Errorf("insert message: %w", mapPgError(err))
	}

	cmd, err := tx.Exec(ctx, queryTouchRoom, roomID, m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("touch room: %w", mapPgError(err))
	}
	if cmd.RowsAffected() == 0 {
		return nil, domain.ErrRoomNotFound
	}

	if err := scanMessageWithSender(tx.QueryRow(ctx, queryMessageWithSender, m.ID), &m); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("hydrate message %d: %w", m.ID, domain.ErrUserNotFound)
		}
		return nil, fmt.Errorf("hydrate message %d: %w", m.ID, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &m, nil
}

// History returns messages of a room in (created_at, id) ascending order,
// starting after the cursor. next is empty on the last page.
func (r *ChatRepository) History(ctx context.Context, roomID int64, after string, limit int) ([]domain.MessageWithSender, string, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	cur, err := DecodeCursor(after)
	if err != nil {
		return nil, "", err
	}

	var createdAt any
	var id any
	if cur != nil {
		createdAt = cur.CreatedAt
		id = cur.ID
	}

	rows, err := r.db.Query(ctx, queryHistory, roomID, createdAt, id, limit)
	if err != nil {
		return nil, "", mapPgError(err)
	}
	defer rows.Close()

	out := make([]domain.MessageWithSender, 0, limit)
	for rows.Next() {
		var m domain.MessageWithSender
		if err := scanMessageWithSender(rows, &m); err != nil {
			return nil, "", err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	var next string
	if len(out) == limit {
		last := out[len(out)-1]
		if c, e := EncodeCursor(Cursor{CreatedAt: last.CreatedAt, ID: last.ID}); e == nil {
			next = c
		}
	}
	return out, next, nil
}
