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

// LedgerRepo implements LedgerRepository using PostgreSQL.
//
// Lock order is user row, then record row, then book row. Borrow takes
// user -> book and Return takes record -> book, so the two never wait on
// each other in a cycle.
type LedgerRepo struct{ db *DB }

// NewLedgerRepo constructs a ledger repository.
func NewLedgerRepo(db *DB) *LedgerRepo { return &LedgerRepo{db: db} }

// Borrow validates quota and duplicates under the user lock, reserves a copy under
// the book lock and inserts rec, all in one transaction.
func (r *LedgerRepo) Borrow(ctx context.Context, rec *model.BorrowRecord, quota int) error {
	const lockUser = `SELECT id FROM users WHERE id=$1 FOR UPDATE`
	const countActive = `SELECT COUNT(*) FROM borrow_records WHERE user_id=$1 AND returned_at IS NULL`
	const hasActive = `
SELECT EXISTS (
  SELECT 1 FROM borrow_records WHERE user_id=$1 AND book_id=$2 AND returned_at IS NULL
)`
	const ins = `
INSERT INTO borrow_records (id, user_id, book_id, borrowed_at, due_at)
VALUES ($1,$2,$3,$4,$5)`

	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		var uid uuid.UUID
		if err := tx.QueryRow(ctx, lockUser, rec.UserID).Scan(&uid); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("user: %w", errs.ErrNotFound)
			}
			return err
		}

		var active int
		if err := tx.QueryRow(ctx, countActive, rec.UserID).Scan(&active); err != nil {
			return err
		}
		if active >= quota {
			return errs.ErrQuotaExceeded
		}

		var dup bool
		if err := tx.QueryRow(ctx, hasActive, rec.UserID, rec.BookID).Scan(&dup); err != nil {
			return err
		}
		if dup {
			return errs.ErrDuplicateActiveBorrow
		}

		if err := reserveCopy(ctx, tx, rec.BookID); err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, ins, rec.ID, rec.UserID, rec.BookID, rec.BorrowedAt, rec.DueAt); err != nil {
			if isUniqueViolation(err) {
				return errs.ErrDuplicateActiveBorrow
			}
			return err
		}
		return nil
	})
}

// Return closes the record and releases its copy. Closing is done at most once:
// a record that already has returned_at is reported back untouched.
func (r *LedgerRepo) Return(
	ctx context.Context, userID, recordID uuid.UUID, at time.Time,
) (rec *model.BorrowRecord, alreadyReturned bool, err error) {
	const sel = recordSelect + `
WHERE r.id=$1
FOR UPDATE OF r`
	const upd = `UPDATE borrow_records SET returned_at=$2 WHERE id=$1 AND returned_at IS NULL`

	err = r.db.inTx(ctx, func(tx pgx.Tx) error {
		cur, err := scanRecord(tx.QueryRow(ctx, sel, recordID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return errs.ErrNotFound
			}
			return err
		}
		if cur.UserID != userID {
			return errs.ErrForbidden
		}
		if cur.ReturnedAt != nil {
			rec, alreadyReturned = cur, true
			return nil
		}

		tag, err := tx.Exec(ctx, upd, recordID, at)
		if err != nil {
			return err
		}
		if tag.RowsAffected() != 1 {
			return fmt.Errorf("return %s: unexpected rows affected %d", recordID, tag.RowsAffected())
		}
		if err := releaseCopy(ctx, tx, cur.BookID); err != nil {
			return err
		}

		cur.ReturnedAt = &at
		rec = cur
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	return rec, alreadyReturned, nil
}

const recordSelect = `
SELECT r.id, r.user_id, r.book_id, r.borrowed_at, r.due_at, r.returned_at, b.title
FROM borrow_records r
JOIN books b ON b.id = r.book_id`

// GetRecord loads a record by id with its book title.
func (r *LedgerRepo) GetRecord(ctx context.Context, id uuid.UUID) (*model.BorrowRecord, error) {
	rec, err := scanRecord(r.db.Pool.QueryRow(ctx, recordSelect+` WHERE r.id=$1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return rec, nil
}

// ListActive returns the user's open records, soonest due first.
func (r *LedgerRepo) ListActive(ctx context.Context, userID uuid.UUID) ([]model.BorrowRecord, error) {
	return r.list(ctx, recordSelect+`
WHERE r.user_id=$1 AND r.returned_at IS NULL
ORDER BY r.due_at ASC`, userID)
}

// ListHistory returns every record of the user, newest first.
func (r *LedgerRepo) ListHistory(ctx context.Context, userID uuid.UUID) ([]model.BorrowRecord, error) {
	return r.list(ctx, recordSelect+`
WHERE r.user_id=$1
ORDER BY r.borrowed_at DESC`, userID)
}

func (r *LedgerRepo) list(ctx context.Context, q string, userID uuid.UUID) ([]model.BorrowRecord, error) {
	rows, err := r.db.Pool.Query(ctx, q, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.BorrowRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func scanRecord(row pgx.Row) (*model.BorrowRecord, error) {
	var rec model.BorrowRecord
	if err := row.Scan(
		&rec.ID, &rec.UserID, &rec.BookID, &rec.BorrowedAt, &rec.DueAt, &rec.ReturnedAt, &rec.BookTitle,
	); err != nil {
		return nil, err
	}
	return &rec, nil
}
