package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/libris/internal/errs"
	"github.com/and161185/libris/internal/model"
	"github.com/and161185/libris/internal/slug"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// CreateCategory inserts a category, suffixing a taken slug.
func (s *Store) CreateCategory(_ context.Context, c *model.Category) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	taken := make([]string, 0, len(s.categories))
	for _, cur := range s.categories {
		if strings.EqualFold(cur.Name, c.Name) {
			return errs.ErrAlreadyExists
		}
		taken = append(taken, cur.Slug)
	}
	c.Slug = slug.Unique(c.Slug, taken)
	s.categories[c.ID] = *c
	return nil
}

// ListCategories returns all categories ordered by name.
func (s *Store) ListCategories(_ context.Context) ([]model.Category, error) {
	s.mu.RLock()
	out := make([]model.Category, 0, len(s.categories))
	for _, c := range s.categories {
		out = append(out, c)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// CreateAuthor inserts an author.
func (s *Store) CreateAuthor(_ context.Context, a *model.Author) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	s.authors[a.ID] = *a
	return nil
}

// ListAuthors returns all authors ordered by full name.
func (s *Store) ListAuthors(_ context.Context) ([]model.Author, error) {
	s.mu.RLock()
	out := make([]model.Author, 0, len(s.authors))
	for _, a := range s.authors {
		out = append(out, a)
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].FullName < out[j].FullName })
	return out, nil
}

// CreateBook inserts a book after checking its author, category and counters.
func (s *Store) CreateBook(_ context.Context, b *model.Book) error {
	if !b.CopiesValid() || b.TotalCopies < 0 {
		return errs.ErrInvalidCopies
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.authors[b.AuthorID]; !ok {
		return fmt.Errorf("author: %w", errs.ErrNotFound)
	}
	if _, ok := s.categories[b.CategoryID]; !ok {
		return fmt.Errorf("category: %w", errs.ErrNotFound)
	}
	if _, ok := s.books[b.ID]; ok {
		return errs.ErrAlreadyExists
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	s.books[b.ID] = &bookEntry{title: b.Title, b: *b}
	return nil
}

// GetBook loads a book with its author name and category slug.
func (s *Store) GetBook(_ context.Context, id uuid.UUID) (*model.Book, error) {
	e := s.book(id)
	if e == nil {
		return nil, errs.ErrNotFound
	}
	b := s.snapshot(e)
	return &b, nil
}

// snapshot copies the book under its lock and fills the joined fields.
func (s *Store) snapshot(e *bookEntry) model.Book {
	e.mu.Lock()
	b := e.b
	e.mu.Unlock()

	s.mu.RLock()
	b.AuthorName = s.authors[b.AuthorID].FullName
	b.CategorySlug = s.categories[b.CategoryID].Slug
	s.mu.RUnlock()
	return b
}

// ListBooks filters, orders and pages the catalog like the SQL backend.
func (s *Store) ListBooks(_ context.Context, f model.BookFilter) ([]model.Book, error) {
	s.mu.RLock()
	entries := make([]*bookEntry, 0, len(s.books))
	for _, e := range s.books {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	q := strings.ToLower(strings.TrimSpace(f.Query))
	out := make([]model.Book, 0, len(entries))
	for _, e := range entries {
		b := s.snapshot(e)
		if q != "" && !strings.Contains(strings.ToLower(b.Title), q) {
			continue
		}
		if f.CategorySlug != "" && b.CategorySlug != f.CategorySlug {
			continue
		}
		if f.AuthorID != uuid.Nil && b.AuthorID != f.AuthorID {
			continue
		}
		if f.AvailableOnly && b.AvailableCopies <= 0 {
			continue
		}
		out = append(out, b)
	}
	sort.Slice(out, bookLess(out, f.Sort))

	off := max(f.Offset, 0)
	if off >= len(out) {
		return nil, nil
	}
	out = out[off:]
	if n := pageSize(f.Limit); len(out) > n {
		out = out[:n]
	}
	return out, nil
}

func bookLess(bs []model.Book, order string) func(i, j int) bool {
	byID := func(i, j int) bool { return bs[i].ID.String() < bs[j].ID.String() }
	switch order {
	case "-created_at":
		return func(i, j int) bool {
			if !bs[i].CreatedAt.Equal(bs[j].CreatedAt) {
				return bs[i].CreatedAt.After(bs[j].CreatedAt)
			}
			return byID(i, j)
		}
	case "year":
		return func(i, j int) bool {
			yi, yj := bs[i].PublicationYear, bs[j].PublicationYear
			switch {
			case yi != nil && yj == nil:
				return true
			case yi == nil && yj != nil:
				return false
			case yi != nil && *yi != *yj:
				return *yi > *yj
			case bs[i].Title != bs[j].Title:
				return bs[i].Title < bs[j].Title
			}
			return byID(i, j)
		}
	default:
		return func(i, j int) bool {
			if bs[i].Title != bs[j].Title {
				return bs[i].Title < bs[j].Title
			}
			if bs[i].AuthorName != bs[j].AuthorName {
				return bs[i].AuthorName < bs[j].AuthorName
			}
			return byID(i, j)
		}
	}
}

func pageSize(limit int) int {
	switch {
	case limit <= 0:
		return defaultPageSize
	case limit > maxPageSize:
		return maxPageSize
	default:
		return limit
	}
}

// SetTotalCopies resizes the copy pool under the book lock.
func (s *Store) SetTotalCopies(ctx context.Context, id uuid.UUID, total int) (*model.Book, error) {
	if total < 0 {
		return nil, errs.ErrInvalidCopies
	}
	e := s.book(id)
	if e == nil {
		return nil, errs.ErrNotFound
	}

	e.mu.Lock()
	checkedOut := e.b.TotalCopies - e.b.AvailableCopies
	if total < checkedOut {
		e.mu.Unlock()
		return nil, fmt.Errorf("%d copies checked out: %w", checkedOut, errs.ErrInvalidCopies)
	}
	e.b.TotalCopies = total
	e.b.AvailableCopies = total - checkedOut
	e.mu.Unlock()

	return s.GetBook(ctx, id)
}

// SetCoverKey replaces the cover key and returns the previous one.
func (s *Store) SetCoverKey(_ context.Context, id uuid.UUID, key string) (string, error) {
	e := s.book(id)
	if e == nil {
		return "", errs.ErrNotFound
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	prev := e.b.CoverKey
	e.b.CoverKey = key
	return prev, nil
}
