package postgres

import (
	"context"
	"errors"

	"github.com/Kjeonghyun5142/bap-pool/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// UserRepository reads public profiles. Password hashes are never selected.
type UserRepository struct {
	q querier
}

func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{q: db}
}

func (r *UserRepository) GetProfile(ctx context.Context, id int64) (*domain.Profile, error) {
	var p domain.Profile
	err := r.q.QueryRow(ctx, queryUserProfile, id).Scan(&p.ID, &p.DisplayName, &p.Email)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUserNotFound
		}
		return nil, mapPgError(err)
	}
	return &p, nil
}

func (r *UserRepository) Exists(ctx context.Context, id int64) (bool, error) {
	var ok bool
	if err := r.q.QueryRow(ctx, queryUserExists, id).Scan(&ok); err != nil {
		return false, mapPgError(err)
	}
	return ok, nil
}
