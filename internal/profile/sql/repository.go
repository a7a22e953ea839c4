// Package profilesql stores profiles in PostgreSQL. The upsert keys on the
// identity's user id, so bootstrapping the same identity twice updates the
// single existing row; a username collision with a different user surfaces
// as a conflict.
package profilesql

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/fableink/credential-manager/internal/profile"
	"github.com/fableink/credential-manager/internal/serviceerr"
)

type Repository struct {
	db *pgxpool.Pool
}

var _ = profile.Repository(&Repository{})

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{
		db: db,
	}
}

func (r *Repository) Upsert(ctx context.Context, p profile.Profile) error {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx,
		`INSERT INTO profiles (user_id, username, display_name, avatar_url, bio, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (user_id)
	DO UPDATE SET (username, display_name, avatar_url, bio, updated_at) =
		(EXCLUDED.username, EXCLUDED.display_name, EXCLUDED.avatar_url, EXCLUDED.bio, EXCLUDED.updated_at);`,
		p.UserID, p.Username, p.DisplayName, p.AvatarURL, p.Bio, p.CreatedAt, p.UpdatedAt,
	); err != nil {
		if err, ok := handlePgError(err); ok {
			return err
		}

		return fmt.Errorf("inserting into profiles: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

func (r *Repository) GetByUserID(ctx context.Context, userID string) (profile.Profile, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return profile.Profile{}, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx,
		`SELECT user_id, username, display_name, avatar_url, bio, created_at, updated_at
FROM profiles
WHERE user_id = $1;`, userID)

	return r.get(ctx, tx, row)
}

func (r *Repository) GetByUsername(ctx context.Context, username string) (profile.Profile, error) {
	tx, err := r.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return profile.Profile{}, fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	row := tx.QueryRow(ctx,
		`SELECT user_id, username, display_name, avatar_url, bio, created_at, updated_at
FROM profiles
WHERE username = $1;`, username)

	return r.get(ctx, tx, row)
}

func (r *Repository) get(ctx context.Context, tx pgx.Tx, row pgx.Row) (profile.Profile, error) {
	var p profile.Profile
	if err := row.Scan(&p.UserID, &p.Username, &p.DisplayName, &p.AvatarURL, &p.Bio, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return profile.Profile{}, serviceerr.ErrNotFound
		}

		return profile.Profile{}, fmt.Errorf("scanning rows: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return profile.Profile{}, fmt.Errorf("committing tx: %w", err)
	}

	return p, nil
}

func (r *Repository) UsernameExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	if err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM profiles WHERE username = $1);`, username,
	).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking username: %w", err)
	}

	return exists, nil
}
