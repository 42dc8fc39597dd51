package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid/v5"

	"github.com/and161185/libris/internal/errs"
	"github.com/and161185/libris/internal/model"
	"github.com/and161185/libris/internal/repository"
	"github.com/and161185/libris/internal/slug"
)

// Contact form limits.
const (
	MaxContactNameLength    = 150
	MaxContactSubjectLength = 200
	MaxContactMessageLength = 5000
)

// ContactService accepts public contact form messages.
type ContactService interface {
	Submit(ctx context.Context, name, email, subject, message string) (*model.ContactMessage, error)
	// List returns messages newest first.
	List(ctx context.Context, limit, offset int) ([]model.ContactMessage, error)
}

type ContactServiceImpl struct {
	repo     repository.ContactRepository
	validate *validator.Validate
	now      func() time.Time
}

// NewContactService constructs ContactService.
func NewContactService(repo repository.ContactRepository) *ContactServiceImpl {
	return &ContactServiceImpl{repo: repo, validate: validator.New(), now: time.Now}
}

func (s *ContactServiceImpl) Submit(ctx context.Context, name, email, subject, message string) (*model.ContactMessage, error) {
	name, subject, message = slug.Text(name), slug.Text(subject), slug.Text(message)
	email = strings.TrimSpace(email)
	if err := checkLen("name", name, MaxContactNameLength); err != nil {
		return nil, err
	}
	if err := checkLen("subject", subject, MaxContactSubjectLength); err != nil {
		return nil, err
	}
	if err := checkLen("message", message, MaxContactMessageLength); err != nil {
		return nil, err
	}
	if err := s.validate.Var(email, "required,email"); err != nil {
		return nil, fmt.Errorf("%w: email", errs.ErrInvalidInput)
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	m := &model.ContactMessage{
		ID: id, Name: name, Email: email, Subject: subject, Message: message,
		CreatedAt: s.now().UTC(),
	}
	if err := s.repo.CreateMessage(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

func checkLen(field, v string, maxLen int) error {
	if v == "" {
		return fmt.Errorf("%w: %s is required", errs.ErrInvalidInput, field)
	}
	if utf8.RuneCountInString(v) > maxLen {
		return fmt.Errorf("%w: %s longer than %d characters", errs.ErrInvalidInput, field, maxLen)
	}
	return nil
}

func (s *ContactServiceImpl) List(ctx context.Context, limit, offset int) ([]model.ContactMessage, error) {
	return s.repo.ListMessages(ctx, limit, offset)
}
