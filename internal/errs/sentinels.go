// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Common sentinels across repo/service layers.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden indicates the entity exists but belongs to another user.
	ErrForbidden = errors.New("forbidden")

	// ErrUnauthorized indicates failed authentication/authorization.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrRateLimited indicates temporary login lock due to rate limiting.
	ErrRateLimited = errors.New("rate limited")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., username taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates a request failed validation before reaching storage.
	ErrInvalidInput = errors.New("invalid input")

	// ErrTimeout indicates a row lock could not be acquired within the configured lock timeout.
	ErrTimeout = errors.New("lock timeout")
)

// Lending rules. All of them are expected business outcomes, not faults.
var (
	// ErrOutOfStock indicates no copy of the book is currently available.
	ErrOutOfStock = errors.New("no copies available")

	// ErrQuotaExceeded indicates the user already holds the maximum number of active borrows.
	ErrQuotaExceeded = errors.New("borrow quota exceeded")

	// ErrDuplicateActiveBorrow indicates the user already has an active borrow for this book.
	ErrDuplicateActiveBorrow = errors.New("book already borrowed by user")

	// ErrNotEligible indicates the user has not returned the book and may not review it.
	ErrNotEligible = errors.New("not eligible to review")

	// ErrInvalidRating indicates stars outside of [1,5].
	ErrInvalidRating = errors.New("rating must be between 1 and 5")

	// ErrInvalidCopies indicates a write that would break 0 <= available <= total.
	ErrInvalidCopies = errors.New("invalid copy counts")
)
