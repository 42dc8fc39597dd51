package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/libris/internal/errs"
	"github.com/and161185/libris/internal/model"
)

// GetProfile returns a copy of the stored profile.
func (s *Store) GetProfile(_ context.Context, userID uuid.UUID) (*model.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[userID]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &p, nil
}

// UpsertProfile writes name and phone and keeps the photo key.
func (s *Store) UpsertProfile(_ context.Context, p *model.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[p.UserID]; !ok {
		return fmt.Errorf("user: %w", errs.ErrNotFound)
	}
	cur, ok := s.profiles[p.UserID]
	if !ok {
		cur = model.Profile{UserID: p.UserID, CreatedAt: p.UpdatedAt}
	}
	cur.FullName = p.FullName
	cur.PhoneNumber = p.PhoneNumber
	cur.UpdatedAt = p.UpdatedAt
	s.profiles[p.UserID] = cur
	*p = cur
	return nil
}

// SetPhotoKey swaps the photo key and returns the one it replaced.
func (s *Store) SetPhotoKey(_ context.Context, userID uuid.UUID, key string, at time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.users[userID]; !ok {
		return "", fmt.Errorf("user: %w", errs.ErrNotFound)
	}
	cur, ok := s.profiles[userID]
	if !ok {
		cur = model.Profile{UserID: userID, CreatedAt: at}
	}
	prev := cur.PhotoKey
	cur.PhotoKey = key
	cur.UpdatedAt = at
	s.profiles[userID] = cur
	return prev, nil
}

// CreateMessage appends m.
func (s *Store) CreateMessage(_ context.Context, m *model.ContactMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.contacts = append(s.contacts, *m)
	return nil
}

// ListMessages pages through messages, newest first.
func (s *Store) ListMessages(_ context.Context, limit, offset int) ([]model.ContactMessage, error) {
	s.mu.RLock()
	out := slices.Clone(s.contacts)
	s.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b model.ContactMessage) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID.String(), b.ID.String())
	})
	return window(out, pageSize(limit), offset), nil
}

// RecordVisits appends the batch, numbering visits in arrival order.
func (s *Store) RecordVisits(_ context.Context, vs []model.PageVisit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, v := range vs {
		s.nextVisitID++
		v.ID = s.nextVisitID
		s.visits = append(s.visits, v)
	}
	return nil
}

// RecentVisits returns the latest visits, newest first.
func (s *Store) RecentVisits(_ context.Context, limit int) ([]model.PageVisit, error) {
	s.mu.RLock()
	out := slices.Clone(s.visits)
	s.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b model.PageVisit) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return int(b.ID - a.ID)
	})
	return window(out, pageSize(limit), 0), nil
}

// VisitCounts counts visits per path since the given time, busiest first.
func (s *Store) VisitCounts(_ context.Context, since time.Time, limit int) ([]model.PathCount, error) {
	counts := make(map[string]int)
	s.mu.RLock()
	for _, v := range s.visits {
		if !v.CreatedAt.Before(since) {
			counts[v.Path]++
		}
	}
	s.mu.RUnlock()

	out := make([]model.PathCount, 0, len(counts))
	for p, n := range counts {
		out = append(out, model.PathCount{Path: p, Visits: n})
	}
	slices.SortFunc(out, func(a, b model.PathCount) int {
		if a.Visits != b.Visits {
			return b.Visits - a.Visits
		}
		return strings.Compare(a.Path, b.Path)
	})
	return window(out, pageSize(limit), 0), nil
}

func window[T any](items []T, limit, offset int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	return items[offset:min(offset+limit, len(items))]
}
