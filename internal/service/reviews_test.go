package service

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/stretchr/testify/require"

	"github.com/and161185/libris/internal/errs"
	"github.com/and161185/libris/internal/model"
	"github.com/and161185/libris/internal/repository"
)

// panicReviews fails the test if storage is touched.
type panicReviews struct{ t *testing.T }

var _ repository.ReviewRepository = panicReviews{}

func (p panicReviews) CanReview(context.Context, uuid.UUID, uuid.UUID) (bool, error) {
	p.t.Fatal("storage touched")
	return false, nil
}
func (p panicReviews) UpsertReview(context.Context, *model.Review) (bool, error) {
	p.t.Fatal("storage touched")
	return false, nil
}
func (p panicReviews) ListByBook(context.Context, uuid.UUID) ([]model.Review, error) {
	p.t.Fatal("storage touched")
	return nil, nil
}
func (p panicReviews) Summary(context.Context, uuid.UUID) (model.RatingSummary, error) {
	p.t.Fatal("storage touched")
	return model.RatingSummary{}, nil
}

func TestReviews_RatingBoundsCheckedFirst(t *testing.T) {
	t.Parallel()
	s := NewReviewService(panicReviews{t: t}, nil)

	for _, stars := range []int{-1, 0, 6, 100} {
		_, _, err := s.Submit(context.Background(), uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4()), stars, "x")
		require.ErrorIs(t, err, errs.ErrInvalidRating, "stars=%d", stars)
	}
}

func TestReviews_CommentTooLong(t *testing.T) {
	t.Parallel()
	s := NewReviewService(panicReviews{t: t}, nil)

	_, _, err := s.Submit(context.Background(), uuid.Must(uuid.NewV4()), uuid.Must(uuid.NewV4()), 3,
		strings.Repeat("é", MaxCommentLength+1))
	require.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestReviews_EligibilityAndUpdateInPlace(t *testing.T) {
	t.Parallel()
	l := newLibrary(t)
	ctx := context.Background()
	b := l.book(t, "Lilith's Brood", 2)
	u := l.user(t)

	_, _, err := l.reviews.Submit(ctx, u, b.ID, 5, "never read it")
	require.ErrorIs(t, err, errs.ErrNotEligible)

	rec, err := l.ledger.Borrow(ctx, u, b.ID)
	require.NoError(t, err)
	ok, err := l.reviews.CanReview(ctx, u, b.ID)
	require.NoError(t, err)
	require.False(t, ok)
	_, _, err = l.reviews.Submit(ctx, u, b.ID, 5, "reading now")
	require.ErrorIs(t, err, errs.ErrNotEligible)

	_, _, err = l.ledger.Return(ctx, u, rec.ID)
	require.NoError(t, err)
	ok, err = l.reviews.CanReview(ctx, u, b.ID)
	require.NoError(t, err)
	require.True(t, ok)

	first, created, err := l.reviews.Submit(ctx, u, b.ID, 4, "  strong start \n")
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, "strong start", first.Comment)

	l.clock.Advance(time.Hour)
	second, created, err := l.reviews.Submit(ctx, u, b.ID, 2, "changed my mind")
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, first.CreatedAt, second.CreatedAt)
	require.True(t, second.UpdatedAt.After(second.CreatedAt))

	list, err := l.reviews.List(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, 2, list[0].Stars)

	sum, err := l.reviews.Summary(ctx, b.ID)
	require.NoError(t, err)
	require.Equal(t, 1, sum.Count)
	require.InDelta(t, 2.0, sum.Average, 1e-9)

	ok, err = l.reviews.CanReview(ctx, u, b.ID)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = l.reviews.List(ctx, uuid.Must(uuid.NewV4()))
	require.ErrorIs(t, err, errs.ErrNotFound)
}

func TestReviews_ConcurrentSubmitsCollapse(t *testing.T) {
	t.Parallel()
	l := newLibrary(t)
	ctx := context.Background()
	b := l.book(t, "Mind of My Mind", 1)
	u := l.user(t)
	rec, err := l.ledger.Borrow(ctx, u, b.ID)
	require.NoError(t, err)
	_, _, err = l.ledger.Return(ctx, u, rec.ID)
	require.NoError(t, err)

	var createdN atomic.Int32
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func(stars int) {
			defer wg.Done()
			_, created, err := l.reviews.Submit(ctx, u, b.ID, stars, "")
			if err != nil {
				t.Errorf("submit: %v", err)
				return
			}
			if created {
				createdN.Add(1)
			}
		}(i%5 + 1)
	}
	wg.Wait()

	require.Equal(t, int32(1), createdN.Load())
	list, err := l.reviews.List(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
}
