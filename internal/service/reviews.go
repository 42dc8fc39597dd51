package service

import (
	"context"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/libris/internal/errs"
	"github.com/and161185/libris/internal/model"
	"github.com/and161185/libris/internal/repository"
	"github.com/and161185/libris/internal/slug"
)

// Review limits.
const (
	MinStars         = 1
	MaxStars         = 5
	MaxCommentLength = 2000
)

// ReviewService gates and stores book reviews.
type ReviewService interface {
	// CanReview reports whether the user returned the book and has not reviewed it.
	CanReview(ctx context.Context, userID, bookID uuid.UUID) (bool, error)
	// Submit creates the user's review of the book or updates it in place.
	Submit(ctx context.Context, userID, bookID uuid.UUID, stars int, comment string) (rv *model.Review, created bool, err error)
	// List returns the book's reviews, newest first.
	List(ctx context.Context, bookID uuid.UUID) ([]model.Review, error)
	// Summary returns review count and average stars.
	Summary(ctx context.Context, bookID uuid.UUID) (model.RatingSummary, error)
}

type ReviewServiceImpl struct {
	reviews repository.ReviewRepository
	books   repository.CatalogRepository
	now     func() time.Time
}

// NewReviewService constructs ReviewService.
func NewReviewService(reviews repository.ReviewRepository, books repository.CatalogRepository) *ReviewServiceImpl {
	return &ReviewServiceImpl{reviews: reviews, books: books, now: time.Now}
}

// CanReview delegates to the repository.
func (s *ReviewServiceImpl) CanReview(ctx context.Context, userID, bookID uuid.UUID) (bool, error) {
	return s.reviews.CanReview(ctx, userID, bookID)
}

// Submit validates stars before any storage access, normalises the comment and
// lets the repository re-check eligibility inside the write transaction.
func (s *ReviewServiceImpl) Submit(
	ctx context.Context, userID, bookID uuid.UUID, stars int, comment string,
) (*model.Review, bool, error) {
	if stars < MinStars || stars > MaxStars {
		return nil, false, errs.ErrInvalidRating
	}
	comment = slug.Text(comment)
	if utf8.RuneCountInString(comment) > MaxCommentLength {
		return nil, false, fmt.Errorf("%w: comment longer than %d characters", errs.ErrInvalidInput, MaxCommentLength)
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, false, err
	}
	rv := &model.Review{
		ID:        id,
		UserID:    userID,
		BookID:    bookID,
		Stars:     stars,
		Comment:   comment,
		CreatedAt: s.now().UTC(),
	}
	created, err := s.reviews.UpsertReview(ctx, rv)
	if err != nil {
		return nil, false, err
	}
	return rv, created, nil
}

// List returns reviews of an existing book.
func (s *ReviewServiceImpl) List(ctx context.Context, bookID uuid.UUID) ([]model.Review, error) {
	if _, err := s.books.GetBook(ctx, bookID); err != nil {
		return nil, err
	}
	return s.reviews.ListByBook(ctx, bookID)
}

// Summary returns the rating summary of an existing book.
func (s *ReviewServiceImpl) Summary(ctx context.Context, bookID uuid.UUID) (model.RatingSummary, error) {
	if _, err := s.books.GetBook(ctx, bookID); err != nil {
		return model.RatingSummary{}, err
	}
	return s.reviews.Summary(ctx, bookID)
}
