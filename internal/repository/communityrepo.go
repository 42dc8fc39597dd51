package repository

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/libris/internal/model"
)

// ProfileRepository stores user profiles.
type ProfileRepository interface {
	// GetProfile loads the user's profile; ErrNotFound when none was saved yet.
	GetProfile(ctx context.Context, userID uuid.UUID) (*model.Profile, error)
	// UpsertProfile writes name and phone, keeping the photo. Timestamps are filled on return.
	UpsertProfile(ctx context.Context, p *model.Profile) error
	// SetPhotoKey replaces the photo key, creating the profile if needed, and returns the previous key.
	SetPhotoKey(ctx context.Context, userID uuid.UUID, key string, at time.Time) (prev string, err error)
}

// ContactRepository stores contact form messages.
type ContactRepository interface {
	CreateMessage(ctx context.Context, m *model.ContactMessage) error
	// ListMessages returns messages newest first.
	ListMessages(ctx context.Context, limit, offset int) ([]model.ContactMessage, error)
}

// VisitRepository stores the request visit log.
type VisitRepository interface {
	// RecordVisits appends a batch of visits.
	RecordVisits(ctx context.Context, vs []model.PageVisit) error
	// RecentVisits returns the latest visits, newest first.
	RecentVisits(ctx context.Context, limit int) ([]model.PageVisit, error)
	// VisitCounts returns per-path visit counts since the given time, busiest first.
	VisitCounts(ctx context.Context, since time.Time, limit int) ([]model.PathCount, error)
}
