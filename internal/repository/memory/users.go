package memory

import (
	"context"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/libris/internal/errs"
	"github.com/and161185/libris/internal/model"
)

// Create inserts a user; usernames are unique.
func (s *Store) Create(_ context.Context, u *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byUsername[u.Username]; ok {
		return errs.ErrAlreadyExists
	}
	if _, ok := s.users[u.ID]; ok {
		return errs.ErrAlreadyExists
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	cp := *u
	s.users[u.ID] = &cp
	s.byUsername[u.Username] = u.ID
	s.userLocks[u.ID] = &sync.Mutex{}
	return nil
}

// GetByID loads a user by ID.
func (s *Store) GetByID(_ context.Context, id uuid.UUID) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

// GetByUsername loads a user by username.
func (s *Store) GetByUsername(_ context.Context, username string) (*model.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byUsername[username]
	if !ok {
		return nil, errs.ErrNotFound
	}
	cp := *s.users[id]
	return &cp, nil
}
