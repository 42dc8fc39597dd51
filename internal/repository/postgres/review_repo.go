package postgres

import (
	"context"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/libris/internal/errs"
	"github.com/and161185/libris/internal/model"
)

// ReviewRepo implements ReviewRepository using PostgreSQL.
type ReviewRepo struct{ db *DB }

// NewReviewRepo constructs a review repository.
func NewReviewRepo(db *DB) *ReviewRepo { return &ReviewRepo{db: db} }

const hasReturned = `
SELECT EXISTS (
  SELECT 1 FROM borrow_records WHERE user_id=$1 AND book_id=$2 AND returned_at IS NOT NULL
)`

// CanReview reports whether the user returned the book and has not reviewed it yet.
// Returned records never change, so no lock is taken.
func (r *ReviewRepo) CanReview(ctx context.Context, userID, bookID uuid.UUID) (bool, error) {
	const q = `
SELECT EXISTS (
  SELECT 1 FROM borrow_records WHERE user_id=$1 AND book_id=$2 AND returned_at IS NOT NULL
) AND NOT EXISTS (
  SELECT 1 FROM reviews WHERE user_id=$1 AND book_id=$2
)`
	var ok bool
	if err := r.db.Pool.QueryRow(ctx, q, userID, bookID).Scan(&ok); err != nil {
		return false, err
	}
	return ok, nil
}

// UpsertReview re-checks eligibility and writes the review in one transaction.
// A second submission for the same (user, book) updates stars and comment in place.
func (r *ReviewRepo) UpsertReview(ctx context.Context, rv *model.Review) (created bool, err error) {
	const ups = `
INSERT INTO reviews (id, user_id, book_id, stars, comment, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$6)
ON CONFLICT (user_id, book_id) DO UPDATE
SET stars=EXCLUDED.stars, comment=EXCLUDED.comment, updated_at=EXCLUDED.updated_at
RETURNING id, created_at, updated_at, (xmax = 0) AS inserted`

	err = r.db.inTx(ctx, func(tx pgx.Tx) error {
		var eligible bool
		if err := tx.QueryRow(ctx, hasReturned, rv.UserID, rv.BookID).Scan(&eligible); err != nil {
			return err
		}
		if !eligible {
			return errs.ErrNotEligible
		}
		return tx.QueryRow(ctx, ups, rv.ID, rv.UserID, rv.BookID, rv.Stars, rv.Comment, rv.CreatedAt).
			Scan(&rv.ID, &rv.CreatedAt, &rv.UpdatedAt, &created)
	})
	if err != nil {
		return false, err
	}
	return created, nil
}

// ListByBook returns reviews of a book with reviewer names, newest first.
func (r *ReviewRepo) ListByBook(ctx context.Context, bookID uuid.UUID) ([]model.Review, error) {
	const q = `
SELECT rv.id, rv.user_id, rv.book_id, rv.stars, rv.comment, rv.created_at, rv.updated_at, u.username
FROM reviews rv
JOIN users u ON u.id = rv.user_id
WHERE rv.book_id=$1
ORDER BY rv.created_at DESC`
	rows, err := r.db.Pool.Query(ctx, q, bookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Review
	for rows.Next() {
		var rv model.Review
		if err = rows.Scan(&rv.ID, &rv.UserID, &rv.BookID, &rv.Stars, &rv.Comment,
			&rv.CreatedAt, &rv.UpdatedAt, &rv.Username); err != nil {
			return nil, err
		}
		out = append(out, rv)
	}
	return out, rows.Err()
}

// Summary returns review count and mean stars (0 when unreviewed).
func (r *ReviewRepo) Summary(ctx context.Context, bookID uuid.UUID) (model.RatingSummary, error) {
	const q = `SELECT COUNT(*), COALESCE(AVG(stars), 0)::float8 FROM reviews WHERE book_id=$1`
	s := model.RatingSummary{BookID: bookID}
	if err := r.db.Pool.QueryRow(ctx, q, bookID).Scan(&s.Count, &s.Average); err != nil {
		return model.RatingSummary{}, err
	}
	return s, nil
}
