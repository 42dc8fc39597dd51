package convert

import (
	"time"

	"github.com/and161185/libris/internal/model"
)

// Profile omits timestamps for users who never saved one.
type Profile struct {
	UserID      string     `json:"user_id"`
	FullName    string     `json:"full_name"`
	PhoneNumber string     `json:"phone_number"`
	HasPhoto    bool       `json:"has_photo"`
	CreatedAt   *time.Time `json:"created_at,omitempty"`
	UpdatedAt   *time.Time `json:"updated_at,omitempty"`
}

type ContactMessage struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Subject   string    `json:"subject"`
	Message   string    `json:"message"`
	CreatedAt time.Time `json:"created_at"`
}

type PageVisit struct {
	ID        int64     `json:"id"`
	Path      string    `json:"path"`
	Method    string    `json:"method"`
	UserID    string    `json:"user_id,omitempty"`
	IP        string    `json:"ip_address,omitempty"`
	UserAgent string    `json:"user_agent,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type PathCount struct {
	Path   string `json:"path"`
	Visits int    `json:"visits"`
}

// --- requests ---

type ProfileRequest struct {
	FullName    string `json:"full_name" validate:"max=150"`
	PhoneNumber string `json:"phone_number" validate:"max=30"`
}

// ContactRequest leaves field rules to the contact service.
type ContactRequest struct {
	Name    string `json:"name"`
	Email   string `json:"email"`
	Subject string `json:"subject"`
	Message string `json:"message"`
}

// --- mapping ---

func ToProfile(p model.Profile) Profile {
	out := Profile{
		UserID:      p.UserID.String(),
		FullName:    p.FullName,
		PhoneNumber: p.PhoneNumber,
		HasPhoto:    p.PhotoKey != "",
	}
	if !p.CreatedAt.IsZero() {
		out.CreatedAt, out.UpdatedAt = &p.CreatedAt, &p.UpdatedAt
	}
	return out
}

func ToContactMessage(m model.ContactMessage) ContactMessage {
	return ContactMessage{
		ID:        m.ID.String(),
		Name:      m.Name,
		Email:     m.Email,
		Subject:   m.Subject,
		Message:   m.Message,
		CreatedAt: m.CreatedAt,
	}
}

func ToContactMessages(ms []model.ContactMessage) []ContactMessage {
	out := make([]ContactMessage, 0, len(ms))
	for _, m := range ms {
		out = append(out, ToContactMessage(m))
	}
	return out
}

func ToVisits(vs []model.PageVisit) []PageVisit {
	out := make([]PageVisit, 0, len(vs))
	for _, v := range vs {
		pv := PageVisit{
			ID: v.ID, Path: v.Path, Method: v.Method,
			IP: v.IP, UserAgent: v.UserAgent, CreatedAt: v.CreatedAt,
		}
		if v.UserID != nil {
			pv.UserID = v.UserID.String()
		}
		out = append(out, pv)
	}
	return out
}

func ToPathCounts(cs []model.PathCount) []PathCount {
	out := make([]PathCount, 0, len(cs))
	for _, c := range cs {
		out = append(out, PathCount{Path: c.Path, Visits: c.Visits})
	}
	return out
}
