// Package httpapi exposes the libris HTTP API: catalog browsing, borrowing,
// returns and reviews, user profiles and the contact form, plus admin catalog
// management and the visit log.
package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/and161185/libris/internal/limiter"
	"github.com/and161185/libris/internal/service"
)

// DefaultImageMaxBytes bounds image uploads when Deps.ImageMaxBytes is zero.
const DefaultImageMaxBytes = 5 << 20

// Pinger reports storage readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services and settings the API is built from.
type Deps struct {
	Auth     service.AuthService
	Catalog  service.CatalogService
	Ledger   service.LedgerService
	Reviews  service.ReviewService
	Profiles service.ProfileService
	Contact  service.ContactService
	Visits   *service.VisitLog // nil disables visit tracking

	Log           *zap.Logger
	RateLimiter   *limiter.IPRateLimiter // nil disables per-IP limiting
	Ready         Pinger                 // nil reports always ready
	ImageMaxBytes int64
}

// API holds handler dependencies.
type API struct {
	auth     service.AuthService
	catalog  service.CatalogService
	ledger   service.LedgerService
	reviews  service.ReviewService
	profiles service.ProfileService
	contact  service.ContactService
	visits   *service.VisitLog
	log      *zap.Logger
	validate *validator.Validate
	ready    Pinger
	imageMax int64
}

// New wires services into handlers.
func New(d Deps) *API {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	imageMax := d.ImageMaxBytes
	if imageMax <= 0 {
		imageMax = DefaultImageMaxBytes
	}
	return &API{
		auth:     d.Auth,
		catalog:  d.Catalog,
		ledger:   d.Ledger,
		reviews:  d.Reviews,
		profiles: d.Profiles,
		contact:  d.Contact,
		visits:   d.Visits,
		log:      log,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		ready:    d.Ready,
		imageMax: imageMax,
	}
}

// NewRouter builds the full handler tree.
func NewRouter(d Deps) http.Handler {
	a := New(d)

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(Logging(a.log))
	r.Use(Recover(a.log))
	r.Use(RateLimit(d.RateLimiter))
	if a.visits != nil {
		r.Use(a.trackVisits)
	}

	r.Get("/healthz", a.health)

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", a.register)
		r.Post("/auth/login", a.login)

		r.Get("/categories", a.listCategories)
		r.Get("/authors", a.listAuthors)
		r.Get("/books", a.searchBooks)
		r.Get("/books/{id}", a.getBook)
		r.Get("/books/{id}/cover", a.cover)
		r.Get("/books/{id}/reviews", a.listReviews)
		r.Get("/books/{id}/rating", a.rating)
		r.Post("/contact", a.submitContact)

		r.Group(func(r chi.Router) {
			r.Use(a.authn)

			r.Get("/books/{id}/can-review", a.canReview)
			r.Post("/books/{id}/reviews", a.submitReview)

			r.Post("/borrows", a.borrow)
			r.Get("/borrows/{id}", a.getRecord)
			r.Post("/borrows/{id}/return", a.returnBook)
			r.Get("/me/borrows", a.myBorrows)
			r.Get("/me/history", a.myHistory)
			r.Get("/me/profile", a.getProfile)
			r.Put("/me/profile", a.updateProfile)
			r.Get("/me/profile/photo", a.photo)
			r.Put("/me/profile/photo", a.uploadPhoto)

			r.Route("/admin", func(r chi.Router) {
				r.Use(a.adminOnly)
				r.Post("/categories", a.createCategory)
				r.Post("/authors", a.createAuthor)
				r.Post("/books", a.createBook)
				r.Put("/books/{id}/copies", a.setCopies)
				r.Put("/books/{id}/cover", a.uploadCover)
				r.Get("/contact", a.listContact)
				if a.visits != nil {
					r.Get("/visits", a.recentVisits)
					r.Get("/visits/paths", a.visitCounts)
				}
			})
		})
	})
	return r
}

func (a *API) health(w http.ResponseWriter, r *http.Request) {
	if a.ready != nil {
		if err := a.ready.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
