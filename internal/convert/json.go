// Package convert maps domain models to the JSON wire types of the HTTP API
// and request bodies back to domain values.
package convert

import (
	"fmt"
	"time"

	u "github.com/gofrs/uuid/v5"

	model "github.com/and161185/libris/internal/model"
)

// --- responses ---

// Error is the body of every non-2xx response.
type Error struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

type Token struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
}

type Registered struct {
	UserID string `json:"user_id"`
}

type Category struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Icon string `json:"icon,omitempty"`
	Slug string `json:"slug"`
}

type Author struct {
	ID        string    `json:"id"`
	FullName  string    `json:"full_name"`
	Bio       string    `json:"bio,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Book struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	AuthorID        string    `json:"author_id"`
	AuthorName      string    `json:"author_name"`
	CategoryID      string    `json:"category_id"`
	CategorySlug    string    `json:"category_slug"`
	Description     string    `json:"description,omitempty"`
	Language        string    `json:"language,omitempty"`
	PublicationYear *int      `json:"publication_year,omitempty"`
	Pages           *int      `json:"pages,omitempty"`
	TotalCopies     int       `json:"total_copies"`
	AvailableCopies int       `json:"available_copies"`
	HasCover        bool      `json:"has_cover"`
	CreatedAt       time.Time `json:"created_at"`
}

// BorrowRecord carries the derived status and remaining days at render time.
type BorrowRecord struct {
	ID            string     `json:"id"`
	BookID        string     `json:"book_id"`
	BookTitle     string     `json:"book_title,omitempty"`
	BorrowedAt    time.Time  `json:"borrowed_at"`
	DueAt         time.Time  `json:"due_at"`
	ReturnedAt    *time.Time `json:"returned_at,omitempty"`
	Status        string     `json:"status"`
	RemainingDays int        `json:"remaining_days"`
}

type ReturnResult struct {
	Record          BorrowRecord `json:"record"`
	AlreadyReturned bool         `json:"already_returned"`
}

type Review struct {
	ID        string    `json:"id"`
	BookID    string    `json:"book_id"`
	UserID    string    `json:"user_id"`
	Username  string    `json:"username,omitempty"`
	Stars     int       `json:"stars"`
	Comment   string    `json:"comment,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ReviewResult struct {
	Review  Review `json:"review"`
	Created bool   `json:"created"`
}

type RatingSummary struct {
	BookID  string  `json:"book_id"`
	Count   int     `json:"count"`
	Average float64 `json:"average"`
}

type Eligibility struct {
	BookID    string `json:"book_id"`
	CanReview bool   `json:"can_review"`
}

// --- requests ---

type Credentials struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Password string `json:"password" validate:"required,min=6,max=256"`
}

type BorrowRequest struct {
	BookID string `json:"book_id" validate:"required,uuid"`
}

// ReviewRequest leaves star bounds to the review service.
type ReviewRequest struct {
	Stars   int    `json:"stars"`
	Comment string `json:"comment"`
}

type CategoryRequest struct {
	Name string `json:"name" validate:"required,max=100"`
	Icon string `json:"icon" validate:"max=64"`
}

type AuthorRequest struct {
	FullName string `json:"full_name" validate:"required,max=200"`
	Bio      string `json:"bio" validate:"max=5000"`
}

type BookRequest struct {
	Title           string `json:"title" validate:"required,max=300"`
	AuthorID        string `json:"author_id" validate:"required,uuid"`
	CategoryID      string `json:"category_id" validate:"required,uuid"`
	Description     string `json:"description" validate:"max=10000"`
	Language        string `json:"language" validate:"max=16"`
	PublicationYear *int   `json:"publication_year" validate:"omitempty,gte=0,lte=3000"`
	Pages           *int   `json:"pages" validate:"omitempty,gt=0"`
	TotalCopies     int    `json:"total_copies" validate:"gte=0,lte=100000"`
}

type CopiesRequest struct {
	TotalCopies *int `json:"total_copies" validate:"required,gte=0,lte=100000"`
}

// --- mapping ---

func ToCategory(c model.Category) Category {
	return Category{ID: c.ID.String(), Name: c.Name, Icon: c.Icon, Slug: c.Slug}
}

func ToCategories(cs []model.Category) []Category {
	out := make([]Category, 0, len(cs))
	for _, c := range cs {
		out = append(out, ToCategory(c))
	}
	return out
}

func ToAuthor(a model.Author) Author {
	return Author{ID: a.ID.String(), FullName: a.FullName, Bio: a.Bio, CreatedAt: a.CreatedAt}
}

func ToAuthors(as []model.Author) []Author {
	out := make([]Author, 0, len(as))
	for _, a := range as {
		out = append(out, ToAuthor(a))
	}
	return out
}

func ToBook(b model.Book) Book {
	return Book{
		ID:              b.ID.String(),
		Title:           b.Title,
		AuthorID:        b.AuthorID.String(),
		AuthorName:      b.AuthorName,
		CategoryID:      b.CategoryID.String(),
		CategorySlug:    b.CategorySlug,
		Description:     b.Description,
		Language:        b.Language,
		PublicationYear: b.PublicationYear,
		Pages:           b.Pages,
		TotalCopies:     b.TotalCopies,
		AvailableCopies: b.AvailableCopies,
		HasCover:        b.CoverKey != "",
		CreatedAt:       b.CreatedAt,
	}
}

func ToBooks(bs []model.Book) []Book {
	out := make([]Book, 0, len(bs))
	for _, b := range bs {
		out = append(out, ToBook(b))
	}
	return out
}

// ToRecord renders status and remaining days as of now.
func ToRecord(r model.BorrowRecord, now time.Time) BorrowRecord {
	return BorrowRecord{
		ID:            r.ID.String(),
		BookID:        r.BookID.String(),
		BookTitle:     r.BookTitle,
		BorrowedAt:    r.BorrowedAt,
		DueAt:         r.DueAt,
		ReturnedAt:    r.ReturnedAt,
		Status:        r.Status(now),
		RemainingDays: r.RemainingDays(now),
	}
}

func ToRecords(rs []model.BorrowRecord, now time.Time) []BorrowRecord {
	out := make([]BorrowRecord, 0, len(rs))
	for _, r := range rs {
		out = append(out, ToRecord(r, now))
	}
	return out
}

func ToReview(r model.Review) Review {
	return Review{
		ID:        r.ID.String(),
		BookID:    r.BookID.String(),
		UserID:    r.UserID.String(),
		Username:  r.Username,
		Stars:     r.Stars,
		Comment:   r.Comment,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}
}

func ToReviews(rs []model.Review) []Review {
	out := make([]Review, 0, len(rs))
	for _, r := range rs {
		out = append(out, ToReview(r))
	}
	return out
}

func ToSummary(s model.RatingSummary) RatingSummary {
	return RatingSummary{BookID: s.BookID.String(), Count: s.Count, Average: s.Average}
}

// FromBookRequest parses ids of a validated BookRequest.
func FromBookRequest(in BookRequest) (model.Book, error) {
	author, err := u.FromString(in.AuthorID)
	if err != nil {
		return model.Book{}, fmt.Errorf("invalid author_id: %w", err)
	}
	category, err := u.FromString(in.CategoryID)
	if err != nil {
		return model.Book{}, fmt.Errorf("invalid category_id: %w", err)
	}
	return model.Book{
		Title:           in.Title,
		AuthorID:        author,
		CategoryID:      category,
		Description:     in.Description,
		Language:        in.Language,
		PublicationYear: in.PublicationYear,
		Pages:           in.Pages,
		TotalCopies:     in.TotalCopies,
	}, nil
}
