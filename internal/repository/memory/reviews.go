package memory

import (
	"context"
	"sort"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/libris/internal/errs"
	"github.com/and161185/libris/internal/model"
)

// hasReturned reports whether the user closed a borrow of the book. Caller holds s.mu.
func (s *Store) hasReturned(userID, bookID uuid.UUID) bool {
	for _, r := range s.records {
		if r.UserID == userID && r.BookID == bookID && !r.IsActive() {
			return true
		}
	}
	return false
}

// CanReview reports whether a returned borrow exists and no review exists yet.
func (s *Store) CanReview(_ context.Context, userID, bookID uuid.UUID) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.reviews[reviewKey{userID, bookID}]; ok {
		return false, nil
	}
	return s.hasReturned(userID, bookID), nil
}

// UpsertReview writes the review if the user is eligible, updating in place on
// a repeat submission.
func (s *Store) UpsertReview(_ context.Context, rv *model.Review) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.hasReturned(rv.UserID, rv.BookID) {
		return false, errs.ErrNotEligible
	}
	k := reviewKey{rv.UserID, rv.BookID}
	if cur, ok := s.reviews[k]; ok {
		cur.Stars = rv.Stars
		cur.Comment = rv.Comment
		cur.UpdatedAt = rv.CreatedAt
		rv.ID, rv.CreatedAt, rv.UpdatedAt = cur.ID, cur.CreatedAt, cur.UpdatedAt
		return false, nil
	}
	rv.UpdatedAt = rv.CreatedAt
	cp := *rv
	cp.Username = ""
	s.reviews[k] = &cp
	return true, nil
}

// ListByBook returns reviews of a book with reviewer names, newest first.
func (s *Store) ListByBook(_ context.Context, bookID uuid.UUID) ([]model.Review, error) {
	s.mu.RLock()
	var out []model.Review
	for k, rv := range s.reviews {
		if k.book != bookID {
			continue
		}
		cp := *rv
		if u, ok := s.users[rv.UserID]; ok {
			cp.Username = u.Username
		}
		out = append(out, cp)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Summary returns review count and mean stars (0 when unreviewed).
func (s *Store) Summary(_ context.Context, bookID uuid.UUID) (model.RatingSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sum := model.RatingSummary{BookID: bookID}
	total := 0
	for k, rv := range s.reviews {
		if k.book == bookID {
			sum.Count++
			total += rv.Stars
		}
	}
	if sum.Count > 0 {
		sum.Average = float64(total) / float64(sum.Count)
	}
	return sum, nil
}
