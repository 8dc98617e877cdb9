package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vaxsched/vaccine-scheduler/internal/scheduler"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

func (r *PgRepository) Create(ctx context.Context, a Account) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO accounts (role, username, salt, hash, created_at)
		VALUES ($1, $2, $3, $4, now())
	`, string(a.Role), a.Username, a.Salt, a.Hash)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrUsernameTaken
		}
		return fmt.Errorf("create account: %w", err)
	}
	return nil
}

func (r *PgRepository) Find(ctx context.Context, role scheduler.Role, username string) (*Account, error) {
	var a Account
	var roleStr string

	err := r.pool.QueryRow(ctx, `
		SELECT role, username, salt, hash, created_at
		FROM accounts
		WHERE role = $1 AND username = $2
	`, string(role), username).Scan(&roleStr, &a.Username, &a.Salt, &a.Hash, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("find account: %w", err)
	}

	a.Role = scheduler.Role(roleStr)
	return &a, nil
}
