package repository

import (
	"context"
	"time"

	"github.com/and161185/libris/internal/model"
	"github.com/gofrs/uuid/v5"
)

// LedgerRepository stores borrow records and applies borrow/return atomically
// together with the book's copy counter.
type LedgerRepository interface {
	// Borrow checks quota and duplicates, reserves a copy and inserts rec in one transaction.
	Borrow(ctx context.Context, rec *model.BorrowRecord, quota int) error
	// Return closes the record at the given time and releases its copy.
	// A record that is already closed is returned unchanged with alreadyReturned=true.
	Return(ctx context.Context, userID, recordID uuid.UUID, at time.Time) (rec *model.BorrowRecord, alreadyReturned bool, err error)
	// GetRecord loads a record by ID.
	GetRecord(ctx context.Context, id uuid.UUID) (*model.BorrowRecord, error)
	// ListActive returns the user's open records ordered by due date.
	ListActive(ctx context.Context, userID uuid.UUID) ([]model.BorrowRecord, error)
	// ListHistory returns all of the user's records, newest first.
	ListHistory(ctx context.Context, userID uuid.UUID) ([]model.BorrowRecord, error)
}
