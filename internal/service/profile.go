package service

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/libris/internal/errs"
	"github.com/and161185/libris/internal/model"
	"github.com/and161185/libris/internal/repository"
	"github.com/and161185/libris/internal/slug"
)

// Profile field limits.
const (
	MaxFullNameLength = 150
	MaxPhoneLength    = 30
)

// ProfileService manages the caller's own profile and photo.
type ProfileService interface {
	// Get returns the profile; users who never saved one get an empty profile.
	Get(ctx context.Context, userID uuid.UUID) (*model.Profile, error)
	Update(ctx context.Context, userID uuid.UUID, fullName, phone string) (*model.Profile, error)
	// SetPhoto uploads a new photo and drops the previous object.
	SetPhoto(ctx context.Context, userID uuid.UUID, contentType string, body []byte) (*model.Profile, error)
	// PhotoURL returns a short-lived download link for the photo.
	PhotoURL(ctx context.Context, userID uuid.UUID) (string, error)
}

type ProfileServiceImpl struct {
	repo   repository.ProfileRepository
	photos ObjectStore
	now    func() time.Time
}

// NewProfileService constructs ProfileService. photos may be nil.
func NewProfileService(repo repository.ProfileRepository, photos ObjectStore) *ProfileServiceImpl {
	return &ProfileServiceImpl{repo: repo, photos: photos, now: time.Now}
}

func (s *ProfileServiceImpl) Get(ctx context.Context, userID uuid.UUID) (*model.Profile, error) {
	p, err := s.repo.GetProfile(ctx, userID)
	if errors.Is(err, errs.ErrNotFound) {
		return &model.Profile{UserID: userID}, nil
	}
	return p, err
}

// Update normalises and checks both fields; empty values clear them.
func (s *ProfileServiceImpl) Update(ctx context.Context, userID uuid.UUID, fullName, phone string) (*model.Profile, error) {
	fullName = slug.Text(fullName)
	phone = slug.Text(phone)
	if utf8.RuneCountInString(fullName) > MaxFullNameLength {
		return nil, fmt.Errorf("%w: full name longer than %d characters", errs.ErrInvalidInput, MaxFullNameLength)
	}
	if len(phone) > MaxPhoneLength || !validPhone(phone) {
		return nil, fmt.Errorf("%w: phone number", errs.ErrInvalidInput)
	}
	p := &model.Profile{UserID: userID, FullName: fullName, PhoneNumber: phone, UpdatedAt: s.now().UTC()}
	if err := s.repo.UpsertProfile(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// validPhone allows digits, spaces and the usual separators, with an optional leading plus.
func validPhone(s string) bool {
	for i, r := range s {
		switch {
		case r >= '0' && r <= '9', r == ' ', r == '-', r == '(', r == ')':
		case r == '+' && i == 0:
		default:
			return false
		}
	}
	return true
}

// SetPhoto uploads first, then swaps the key; the old object is removed best-effort.
func (s *ProfileServiceImpl) SetPhoto(ctx context.Context, userID uuid.UUID, contentType string, body []byte) (*model.Profile, error) {
	if s.photos == nil {
		return nil, ErrImagesDisabled
	}
	key, err := putImage(ctx, s.photos, "users/"+userID.String()+"/photos", contentType, body)
	if err != nil {
		return nil, err
	}
	prev, err := s.repo.SetPhotoKey(ctx, userID, key, s.now().UTC())
	if err != nil {
		_ = s.photos.Delete(ctx, key)
		return nil, err
	}
	if prev != "" {
		_ = s.photos.Delete(ctx, prev)
	}
	return s.repo.GetProfile(ctx, userID)
}

func (s *ProfileServiceImpl) PhotoURL(ctx context.Context, userID uuid.UUID) (string, error) {
	if s.photos == nil {
		return "", ErrImagesDisabled
	}
	p, err := s.repo.GetProfile(ctx, userID)
	if err != nil {
		return "", err
	}
	if p.PhotoKey == "" {
		return "", fmt.Errorf("photo: %w", errs.ErrNotFound)
	}
	return s.photos.PresignGet(ctx, p.PhotoKey, ImageURLTTL)
}
