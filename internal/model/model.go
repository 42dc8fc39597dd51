// Package model defines domain entities used by services and repositories.
package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Tokens collects issued access tokens.
type Tokens struct {
	AccessToken string
	ExpiresAt   time.Time // access token expiry (for diagnostics)
}

// Principal is the authenticated caller extracted from an access token.
type Principal struct {
	UserID   uuid.UUID
	Username string
	Admin    bool
}

// User represents an account stored on the server.
type User struct {
	ID        uuid.UUID // PK
	Username  string    // unique
	PwdHash   []byte    // Argon2id(password, SaltAuth)
	SaltAuth  []byte    // per-user auth salt
	CreatedAt time.Time
}

// Category groups books; Slug is derived from Name once and never edited.
type Category struct {
	ID   uuid.UUID
	Name string
	Icon string
	Slug string
}

// Author of one or more books.
type Author struct {
	ID        uuid.UUID
	FullName  string
	Bio       string
	CreatedAt time.Time
}

// Book is a catalog title with a pool of physical copies.
// Invariant: 0 <= AvailableCopies <= TotalCopies.
type Book struct {
	ID              uuid.UUID
	Title           string
	AuthorID        uuid.UUID
	CategoryID      uuid.UUID
	Description     string
	Language        string
	PublicationYear *int
	Pages           *int
	TotalCopies     int
	AvailableCopies int
	CoverKey        string // object storage key, empty if no cover
	CreatedAt       time.Time

	// Filled by read queries only.
	AuthorName   string
	CategorySlug string
}

// CopiesValid reports whether the copy counters satisfy the availability invariant.
func (b Book) CopiesValid() bool {
	return b.AvailableCopies >= 0 && b.AvailableCopies <= b.TotalCopies
}

// BookFilter narrows catalog searches. Zero values disable a criterion.
type BookFilter struct {
	Query         string // case-insensitive title substring
	CategorySlug  string
	AuthorID      uuid.UUID
	AvailableOnly bool
	Sort          string // "title" (default), "-created_at", "year"
	Limit         int
	Offset        int
}

// Review is a user's rating of a returned book. One per (UserID, BookID).
type Review struct {
	ID        uuid.UUID
	UserID    uuid.UUID
	BookID    uuid.UUID
	Stars     int
	Comment   string
	CreatedAt time.Time
	UpdatedAt time.Time

	Username string // filled by list queries
}

// RatingSummary aggregates the reviews of a book.
type RatingSummary struct {
	BookID  uuid.UUID
	Count   int
	Average float64
}

// Profile holds the optional personal details of a user. Every user has at most one.
type Profile struct {
	UserID      uuid.UUID
	FullName    string
	PhoneNumber string
	PhotoKey    string // object storage key, empty if no photo
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ContactMessage is a message left through the public contact form.
type ContactMessage struct {
	ID        uuid.UUID
	Name      string
	Email     string
	Subject   string
	Message   string
	CreatedAt time.Time
}

// PageVisit is one logged API request. UserID is nil for anonymous callers.
type PageVisit struct {
	ID        int64
	Path      string
	Method    string
	UserID    *uuid.UUID
	IP        string
	UserAgent string
	CreatedAt time.Time
}

// PathCount is the number of visits of one path.
type PathCount struct {
	Path   string
	Visits int
}
