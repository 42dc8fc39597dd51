package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/libris/internal/errs"
	"github.com/and161185/libris/internal/model"
)

// Borrow applies the quota and duplicate checks under the user lock, then takes
// a copy under the book lock and stores rec.
func (s *Store) Borrow(_ context.Context, rec *model.BorrowRecord, quota int) error {
	ul := s.userLock(rec.UserID)
	if ul == nil {
		return fmt.Errorf("user: %w", errs.ErrNotFound)
	}
	ul.Lock()
	defer ul.Unlock()

	s.mu.RLock()
	active, dup := 0, false
	for _, r := range s.records {
		if r.UserID != rec.UserID || !r.IsActive() {
			continue
		}
		active++
		if r.BookID == rec.BookID {
			dup = true
		}
	}
	s.mu.RUnlock()

	if active >= quota {
		return errs.ErrQuotaExceeded
	}
	if dup {
		return errs.ErrDuplicateActiveBorrow
	}

	e := s.book(rec.BookID)
	if e == nil {
		return fmt.Errorf("book: %w", errs.ErrNotFound)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.b.AvailableCopies <= 0 {
		return errs.ErrOutOfStock
	}

	cp := *rec
	cp.ReturnedAt = nil
	s.mu.Lock()
	s.records[rec.ID] = &cp
	s.mu.Unlock()
	e.b.AvailableCopies--
	return nil
}

// Return closes the record once and puts its copy back.
func (s *Store) Return(
	_ context.Context, userID, recordID uuid.UUID, at time.Time,
) (*model.BorrowRecord, bool, error) {
	s.mu.RLock()
	r, ok := s.records[recordID]
	var owner, bookID uuid.UUID
	if ok {
		owner, bookID = r.UserID, r.BookID
	}
	s.mu.RUnlock()

	if !ok {
		return nil, false, errs.ErrNotFound
	}
	if owner != userID {
		return nil, false, errs.ErrForbidden
	}

	ul := s.userLock(userID)
	ul.Lock()
	defer ul.Unlock()

	if cur := s.record(recordID); !cur.IsActive() {
		return cur, true, nil
	}

	e := s.book(bookID)
	if e == nil {
		return nil, false, fmt.Errorf("book: %w", errs.ErrNotFound)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.b.AvailableCopies+1 > e.b.TotalCopies {
		return nil, false, fmt.Errorf("release beyond total: %w", errs.ErrInvalidCopies)
	}

	s.mu.Lock()
	ts := at
	r.ReturnedAt = &ts
	out := *r
	s.mu.Unlock()
	out.BookTitle = e.title
	e.b.AvailableCopies++
	return &out, false, nil
}

func (s *Store) record(id uuid.UUID) *model.BorrowRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return nil
	}
	cp := *r
	if e, ok := s.books[r.BookID]; ok {
		cp.BookTitle = e.title
	}
	return &cp
}

// GetRecord loads a record by ID.
func (s *Store) GetRecord(_ context.Context, id uuid.UUID) (*model.BorrowRecord, error) {
	if r := s.record(id); r != nil {
		return r, nil
	}
	return nil, errs.ErrNotFound
}

// ListActive returns the user's open records, soonest due first.
func (s *Store) ListActive(_ context.Context, userID uuid.UUID) ([]model.BorrowRecord, error) {
	out := s.userRecords(userID, true)
	sort.Slice(out, func(i, j int) bool { return out[i].DueAt.Before(out[j].DueAt) })
	return out, nil
}

// ListHistory returns all of the user's records, newest first.
func (s *Store) ListHistory(_ context.Context, userID uuid.UUID) ([]model.BorrowRecord, error) {
	out := s.userRecords(userID, false)
	sort.Slice(out, func(i, j int) bool { return out[i].BorrowedAt.After(out[j].BorrowedAt) })
	return out, nil
}

func (s *Store) userRecords(userID uuid.UUID, activeOnly bool) []model.BorrowRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []model.BorrowRecord
	for _, r := range s.records {
		if r.UserID != userID || (activeOnly && !r.IsActive()) {
			continue
		}
		cp := *r
		if e, ok := s.books[r.BookID]; ok {
			cp.BookTitle = e.title
		}
		out = append(out, cp)
	}
	return out
}
