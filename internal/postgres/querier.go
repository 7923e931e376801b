package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/Kjeonghyun5142/bap-pool/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

var errConflict = errors.New("unique constraint violated")

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return fmt.Errorf("%w: %s", errConflict, pgErr.ConstraintName)
		case codeForeignKeyViolation:
			if pgErr.ConstraintName == "chat_messages_room_id_fkey" {
				return domain.ErrRoomNotFound
			}
			return domain.ErrUserNotFound
		}
	}
	return err
}
