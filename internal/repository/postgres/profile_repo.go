package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/libris/internal/errs"
	"github.com/and161185/libris/internal/model"
)

// ProfileRepo implements ProfileRepository using PostgreSQL.
type ProfileRepo struct{ db *DB }

// NewProfileRepo constructs a profile repository.
func NewProfileRepo(db *DB) *ProfileRepo { return &ProfileRepo{db: db} }

// GetProfile selects a profile by user.
func (r *ProfileRepo) GetProfile(ctx context.Context, userID uuid.UUID) (*model.Profile, error) {
	const q = `
SELECT user_id, full_name, phone_number, photo_key, created_at, updated_at
FROM profiles WHERE user_id=$1`
	var p model.Profile
	err := r.db.Pool.QueryRow(ctx, q, userID).
		Scan(&p.UserID, &p.FullName, &p.PhoneNumber, &p.PhotoKey, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &p, nil
}

// UpsertProfile inserts or updates name and phone. p.UpdatedAt is the write time.
func (r *ProfileRepo) UpsertProfile(ctx context.Context, p *model.Profile) error {
	const q = `
INSERT INTO profiles (user_id, full_name, phone_number, created_at, updated_at)
VALUES ($1,$2,$3,$4,$4)
ON CONFLICT (user_id) DO UPDATE
SET full_name=EXCLUDED.full_name, phone_number=EXCLUDED.phone_number, updated_at=EXCLUDED.updated_at
RETURNING photo_key, created_at, updated_at`
	err := r.db.Pool.QueryRow(ctx, q, p.UserID, p.FullName, p.PhoneNumber, p.UpdatedAt).
		Scan(&p.PhotoKey, &p.CreatedAt, &p.UpdatedAt)
	if isForeignKeyViolation(err) {
		return fmt.Errorf("user: %w", errs.ErrNotFound)
	}
	return err
}

// SetPhotoKey swaps the photo key under the profile row lock.
func (r *ProfileRepo) SetPhotoKey(ctx context.Context, userID uuid.UUID, key string, at time.Time) (prev string, err error) {
	const ensure = `
INSERT INTO profiles (user_id, created_at, updated_at) VALUES ($1,$2,$2)
ON CONFLICT (user_id) DO NOTHING`
	const sel = `SELECT photo_key FROM profiles WHERE user_id=$1 FOR UPDATE`
	const upd = `UPDATE profiles SET photo_key=$2, updated_at=$3 WHERE user_id=$1`

	err = r.db.inTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, ensure, userID, at); err != nil {
			if isForeignKeyViolation(err) {
				return fmt.Errorf("user: %w", errs.ErrNotFound)
			}
			return err
		}
		if err := tx.QueryRow(ctx, sel, userID).Scan(&prev); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, upd, userID, key, at)
		return err
	})
	if err != nil {
		return "", err
	}
	return prev, nil
}
