package repository

import (
	"context"

	"github.com/and161185/libris/internal/model"
	"github.com/gofrs/uuid/v5"
)

// CatalogRepository owns books, authors and categories and the availability invariant.
type CatalogRepository interface {
	// CreateCategory inserts a category, resolving slug collisions with a "-N" suffix.
	CreateCategory(ctx context.Context, c *model.Category) error
	// ListCategories returns all categories ordered by name.
	ListCategories(ctx context.Context) ([]model.Category, error)

	// CreateAuthor inserts an author.
	CreateAuthor(ctx context.Context, a *model.Author) error
	// ListAuthors returns all authors ordered by full name.
	ListAuthors(ctx context.Context) ([]model.Author, error)

	// CreateBook inserts a book; AvailableCopies must equal TotalCopies.
	CreateBook(ctx context.Context, b *model.Book) error
	// GetBook loads a book by ID.
	GetBook(ctx context.Context, id uuid.UUID) (*model.Book, error)
	// ListBooks searches the catalog.
	ListBooks(ctx context.Context, f model.BookFilter) ([]model.Book, error)

	// SetTotalCopies changes the copy pool under the book lock, keeping checked-out copies.
	SetTotalCopies(ctx context.Context, id uuid.UUID, total int) (*model.Book, error)
	// SetCoverKey stores a new cover key and returns the previous one.
	SetCoverKey(ctx context.Context, id uuid.UUID, key string) (prev string, err error)
}
