// internal/repository/postgres/user_repo.go
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"subwatch-service/internal/domain/user"
	xerrors "subwatch-service/internal/pkg/errors"
)

// UserRepository stores chat users keyed by Telegram id.
type UserRepository struct {
	db *pgxpool.Pool
}

func NewUserRepository(db *pgxpool.Pool) *UserRepository {
	return &UserRepository{db: db}
}

// GetOrCreate returns the user, creating the row on first contact. An
// existing user's username is refreshed when it changed on Telegram's side.
func (r *UserRepository) GetOrCreate(ctx context.Context, telegramID int64, username, defaultTZ string) (*user.User, error) {
	query := `
		INSERT INTO users (telegram_id, username, timezone)
		VALUES ($1, $2, $3)
		ON CONFLICT (telegram_id) DO UPDATE
		SET username = EXCLUDED.username, updated_at = now()
		RETURNING telegram_id, username, timezone, created_at, updated_at
	`
	var u user.User
	uname := sql.NullString{String: username, Valid: username != ""}
	err := r.db.QueryRow(ctx, query, telegramID, uname, defaultTZ).Scan(
		&u.TelegramID, &u.Username, &u.Timezone, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	return &u, nil
}

// FindByTelegramID looks up an existing user.
func (r *UserRepository) FindByTelegramID(ctx context.Context, telegramID int64) (*user.User, error) {
	query := `SELECT telegram_id, username, timezone, created_at, updated_at FROM users WHERE telegram_id = $1`

	var u user.User
	err := r.db.QueryRow(ctx, query, telegramID).Scan(
		&u.TelegramID, &u.Username, &u.Timezone, &u.CreatedAt, &u.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, xerrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return &u, nil
}
