package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/libris/internal/errs"
	"github.com/and161185/libris/internal/model"
	"github.com/and161185/libris/internal/repository"
	"github.com/and161185/libris/internal/slug"
)

// CatalogService manages categories, authors and books.
type CatalogService interface {
	CreateCategory(ctx context.Context, name, icon string) (*model.Category, error)
	ListCategories(ctx context.Context) ([]model.Category, error)
	CreateAuthor(ctx context.Context, fullName, bio string) (*model.Author, error)
	ListAuthors(ctx context.Context) ([]model.Author, error)
	// CreateBook stores a new book with every copy available.
	CreateBook(ctx context.Context, b model.Book) (*model.Book, error)
	GetBook(ctx context.Context, id uuid.UUID) (*model.Book, error)
	SearchBooks(ctx context.Context, f model.BookFilter) ([]model.Book, error)
	// SetTotalCopies resizes a book's copy pool; checked-out copies are kept.
	SetTotalCopies(ctx context.Context, id uuid.UUID, total int) (*model.Book, error)
	// SetCover uploads a new cover and drops the previous object.
	SetCover(ctx context.Context, id uuid.UUID, contentType string, body []byte) (*model.Book, error)
	// CoverURL returns a short-lived download link for the book's cover.
	CoverURL(ctx context.Context, id uuid.UUID) (string, error)
}

type CatalogServiceImpl struct {
	repo   repository.CatalogRepository
	covers ObjectStore
}

// NewCatalogService constructs CatalogService. covers may be nil.
func NewCatalogService(repo repository.CatalogRepository, covers ObjectStore) *CatalogServiceImpl {
	return &CatalogServiceImpl{repo: repo, covers: covers}
}

// CreateCategory derives the slug from name; the repository resolves collisions.
func (s *CatalogServiceImpl) CreateCategory(ctx context.Context, name, icon string) (*model.Category, error) {
	name = slug.Text(name)
	base := slug.Make(name)
	if name == "" || base == "" {
		return nil, fmt.Errorf("%w: category name", errs.ErrInvalidInput)
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	c := &model.Category{ID: id, Name: name, Icon: strings.TrimSpace(icon), Slug: base}
	if err := s.repo.CreateCategory(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// ListCategories returns all categories.
func (s *CatalogServiceImpl) ListCategories(ctx context.Context) ([]model.Category, error) {
	return s.repo.ListCategories(ctx)
}

// CreateAuthor stores a new author.
func (s *CatalogServiceImpl) CreateAuthor(ctx context.Context, fullName, bio string) (*model.Author, error) {
	fullName = slug.Text(fullName)
	if fullName == "" {
		return nil, fmt.Errorf("%w: author name", errs.ErrInvalidInput)
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	a := &model.Author{ID: id, FullName: fullName, Bio: slug.Text(bio)}
	if err := s.repo.CreateAuthor(ctx, a); err != nil {
		return nil, err
	}
	return a, nil
}

// ListAuthors returns all authors.
func (s *CatalogServiceImpl) ListAuthors(ctx context.Context) ([]model.Author, error) {
	return s.repo.ListAuthors(ctx)
}

// CreateBook validates input and starts the book with available == total.
func (s *CatalogServiceImpl) CreateBook(ctx context.Context, b model.Book) (*model.Book, error) {
	b.Title = slug.Text(b.Title)
	if b.Title == "" {
		return nil, fmt.Errorf("%w: title", errs.ErrInvalidInput)
	}
	if b.AuthorID == uuid.Nil || b.CategoryID == uuid.Nil {
		return nil, fmt.Errorf("%w: author/category", errs.ErrInvalidInput)
	}
	if b.TotalCopies < 0 {
		return nil, errs.ErrInvalidCopies
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	b.ID = id
	b.AvailableCopies = b.TotalCopies
	b.CoverKey = ""
	if err := s.repo.CreateBook(ctx, &b); err != nil {
		return nil, err
	}
	return s.repo.GetBook(ctx, b.ID)
}

// GetBook loads one book.
func (s *CatalogServiceImpl) GetBook(ctx context.Context, id uuid.UUID) (*model.Book, error) {
	return s.repo.GetBook(ctx, id)
}

// SearchBooks lists books matching f.
func (s *CatalogServiceImpl) SearchBooks(ctx context.Context, f model.BookFilter) ([]model.Book, error) {
	switch f.Sort {
	case "", "title", "-created_at", "year":
	default:
		return nil, fmt.Errorf("%w: unknown sort %q", errs.ErrInvalidInput, f.Sort)
	}
	return s.repo.ListBooks(ctx, f)
}

// SetTotalCopies delegates to the repository, which holds the book lock.
func (s *CatalogServiceImpl) SetTotalCopies(ctx context.Context, id uuid.UUID, total int) (*model.Book, error) {
	if total < 0 {
		return nil, errs.ErrInvalidCopies
	}
	return s.repo.SetTotalCopies(ctx, id, total)
}

// SetCover uploads first, then swaps the key; the old object is removed best-effort.
func (s *CatalogServiceImpl) SetCover(ctx context.Context, id uuid.UUID, contentType string, body []byte) (*model.Book, error) {
	if s.covers == nil {
		return nil, ErrImagesDisabled
	}
	if _, err := s.repo.GetBook(ctx, id); err != nil {
		return nil, err
	}
	key, err := putImage(ctx, s.covers, "books/"+id.String(), contentType, body)
	if err != nil {
		return nil, err
	}
	prev, err := s.repo.SetCoverKey(ctx, id, key)
	if err != nil {
		_ = s.covers.Delete(ctx, key)
		return nil, err
	}
	if prev != "" {
		_ = s.covers.Delete(ctx, prev)
	}
	return s.repo.GetBook(ctx, id)
}

// CoverURL presigns the current cover; ErrNotFound when the book has none.
func (s *CatalogServiceImpl) CoverURL(ctx context.Context, id uuid.UUID) (string, error) {
	if s.covers == nil {
		return "", ErrImagesDisabled
	}
	b, err := s.repo.GetBook(ctx, id)
	if err != nil {
		return "", err
	}
	if b.CoverKey == "" {
		return "", fmt.Errorf("cover: %w", errs.ErrNotFound)
	}
	return s.covers.PresignGet(ctx, b.CoverKey, ImageURLTTL)
}
