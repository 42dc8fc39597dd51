package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/libris/internal/errs"
	"github.com/and161185/libris/internal/model"
	"github.com/and161185/libris/internal/repository"
)

// Lending defaults.
const (
	DefaultLoanPeriod  = 14 * 24 * time.Hour
	DefaultBorrowQuota = 5
)

// LedgerService borrows and returns copies and lists a user's records.
type LedgerService interface {
	// Borrow checks out one copy of the book for the user.
	Borrow(ctx context.Context, userID, bookID uuid.UUID) (*model.BorrowRecord, error)
	// Return closes the record. Returning twice is not an error: the second call
	// reports alreadyReturned and changes nothing.
	Return(ctx context.Context, userID, recordID uuid.UUID) (rec *model.BorrowRecord, alreadyReturned bool, err error)
	// Record loads one of the user's records. Records of other users are ErrForbidden.
	Record(ctx context.Context, userID, recordID uuid.UUID) (*model.BorrowRecord, error)
	// Active lists the user's open records, soonest due first.
	Active(ctx context.Context, userID uuid.UUID) ([]model.BorrowRecord, error)
	// History lists all of the user's records, newest first.
	History(ctx context.Context, userID uuid.UUID) ([]model.BorrowRecord, error)
	// Now is the ledger clock, used to derive status and remaining days.
	Now() time.Time
}

type LedgerServiceImpl struct {
	repo       repository.LedgerRepository
	loanPeriod time.Duration
	quota      int
	now        func() time.Time
}

// LedgerOption configures LedgerServiceImpl.
type LedgerOption func(*LedgerServiceImpl) error

// WithLoanPeriod sets the time between borrowed_at and due_at.
func WithLoanPeriod(d time.Duration) LedgerOption {
	return func(s *LedgerServiceImpl) error {
		if d <= 0 {
			return fmt.Errorf("%w: loan period must be positive", errs.ErrInvalidInput)
		}
		s.loanPeriod = d
		return nil
	}
}

// WithBorrowQuota sets the maximum number of active borrows per user.
func WithBorrowQuota(n int) LedgerOption {
	return func(s *LedgerServiceImpl) error {
		if n <= 0 {
			return fmt.Errorf("%w: borrow quota must be positive", errs.ErrInvalidInput)
		}
		s.quota = n
		return nil
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) LedgerOption {
	return func(s *LedgerServiceImpl) error {
		if now == nil {
			return errors.New("nil clock")
		}
		s.now = now
		return nil
	}
}

// NewLedgerService constructs a LedgerService with a 14 day loan and a quota of 5
// unless overridden.
func NewLedgerService(repo repository.LedgerRepository, opts ...LedgerOption) (*LedgerServiceImpl, error) {
	s := &LedgerServiceImpl{
		repo:       repo,
		loanPeriod: DefaultLoanPeriod,
		quota:      DefaultBorrowQuota,
		now:        time.Now,
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Now returns the current ledger time in UTC.
func (s *LedgerServiceImpl) Now() time.Time { return s.now().UTC() }

// Borrow stamps borrowed_at and due_at and hands the record to the repository,
// which applies quota, duplicate and stock checks atomically.
func (s *LedgerServiceImpl) Borrow(ctx context.Context, userID, bookID uuid.UUID) (*model.BorrowRecord, error) {
	if userID == uuid.Nil || bookID == uuid.Nil {
		return nil, fmt.Errorf("%w: empty user/book id", errs.ErrInvalidInput)
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	now := s.Now()
	rec := &model.BorrowRecord{
		ID:         id,
		UserID:     userID,
		BookID:     bookID,
		BorrowedAt: now,
		DueAt:      now.Add(s.loanPeriod),
	}
	if err := s.repo.Borrow(ctx, rec, s.quota); err != nil {
		return nil, err
	}
	return rec, nil
}

// Return closes the record at the current time.
func (s *LedgerServiceImpl) Return(ctx context.Context, userID, recordID uuid.UUID) (*model.BorrowRecord, bool, error) {
	if userID == uuid.Nil || recordID == uuid.Nil {
		return nil, false, fmt.Errorf("%w: empty user/record id", errs.ErrInvalidInput)
	}
	return s.repo.Return(ctx, userID, recordID, s.Now())
}

// Record loads a record owned by userID.
func (s *LedgerServiceImpl) Record(ctx context.Context, userID, recordID uuid.UUID) (*model.BorrowRecord, error) {
	rec, err := s.repo.GetRecord(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if rec.UserID != userID {
		return nil, errs.ErrForbidden
	}
	return rec, nil
}

// Active lists open records.
func (s *LedgerServiceImpl) Active(ctx context.Context, userID uuid.UUID) ([]model.BorrowRecord, error) {
	return s.repo.ListActive(ctx, userID)
}

// History lists every record.
func (s *LedgerServiceImpl) History(ctx context.Context, userID uuid.UUID) ([]model.BorrowRecord, error) {
	return s.repo.ListHistory(ctx, userID)
}
