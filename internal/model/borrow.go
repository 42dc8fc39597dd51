package model

import (
	"time"

	"github.com/gofrs/uuid/v5"
)

// Borrow record statuses.
const (
	StatusActive   = "active"
	StatusOverdue  = "overdue"
	StatusReturned = "returned"
)

// BorrowRecord is one checkout of one copy. BorrowedAt and DueAt are set on
// creation and never change; ReturnedAt is set exactly once.
type BorrowRecord struct {
	ID         uuid.UUID
	UserID     uuid.UUID
	BookID     uuid.UUID
	BorrowedAt time.Time
	DueAt      time.Time
	ReturnedAt *time.Time

	BookTitle string // filled by list queries
}

// IsActive reports whether the copy is still checked out.
func (r BorrowRecord) IsActive() bool { return r.ReturnedAt == nil }

// IsOverdue reports whether the record is active past its due date.
func (r BorrowRecord) IsOverdue(now time.Time) bool {
	return r.IsActive() && now.After(r.DueAt)
}

// Status derives active/overdue/returned at the given instant.
func (r BorrowRecord) Status(now time.Time) string {
	switch {
	case !r.IsActive():
		return StatusReturned
	case r.IsOverdue(now):
		return StatusOverdue
	default:
		return StatusActive
	}
}

// RemainingDays returns whole days left until DueAt; 0 once returned or overdue.
func (r BorrowRecord) RemainingDays(now time.Time) int {
	if !r.IsActive() {
		return 0
	}
	days := int(r.DueAt.Sub(now) / (24 * time.Hour))
	if days < 0 {
		return 0
	}
	return days
}
