package repository

import (
	"context"

	"github.com/and161185/libris/internal/model"
	"github.com/gofrs/uuid/v5"
)

// ReviewRepository stores reviews gated on returned borrows.
type ReviewRepository interface {
	// CanReview reports whether a returned borrow exists and no review exists yet.
	CanReview(ctx context.Context, userID, bookID uuid.UUID) (bool, error)
	// UpsertReview re-checks eligibility and inserts or updates the (user, book) review
	// in one transaction. created is false when an existing review was updated.
	UpsertReview(ctx context.Context, r *model.Review) (created bool, err error)
	// ListByBook returns reviews of a book, newest first.
	ListByBook(ctx context.Context, bookID uuid.UUID) ([]model.Review, error)
	// Summary returns count and average stars for a book.
	Summary(ctx context.Context, bookID uuid.UUID) (model.RatingSummary, error)
}
