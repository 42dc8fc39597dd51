package httpapi

import (
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/and161185/libris/internal/convert"
	"github.com/and161185/libris/internal/errs"
	"github.com/and161185/libris/internal/limiter"
	"github.com/and161185/libris/internal/model"
)

// Logging logs one line per request with metadata only.
func Logging(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := r.URL.Path
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			log.Info("http",
				zap.String("method", r.Method),
				zap.String("route", route),
				zap.Int("status", status),
				zap.Duration("dur", time.Since(start)),
				zap.String("remote", r.RemoteAddr),
			)
		})
	}
}

// Recover turns a handler panic into a 500 and logs the stack.
func Recover(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rv := recover(); rv != nil {
					if rv == http.ErrAbortHandler {
						panic(rv)
					}
					log.Error("panic",
						zap.Any("reason", rv),
						zap.ByteString("stack", debug.Stack()),
						zap.String("path", r.URL.Path),
					)
					writeJSON(w, http.StatusInternalServerError, convert.Error{Error: "internal error", Code: "internal"})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// RateLimit rejects clients that exceed their per-IP token bucket with 429.
// A nil limiter disables the check.
func RateLimit(l *limiter.IPRateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if l == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(clientIP(r)) {
				w.Header().Set("Retry-After", "1")
				writeJSON(w, http.StatusTooManyRequests, convert.Error{Error: "too many requests", Code: "rate_limited"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// maxVisitField caps stored path and user agent lengths.
const maxVisitField = 500

// trackVisits queues one visit per request before handling it. Admin and
// health endpoints are not tracked. A valid bearer token attributes the visit
// to its user.
func (a *API) trackVisits(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if path != "/healthz" && !strings.HasPrefix(path, "/api/admin/") {
			v := model.PageVisit{
				Path:      truncate(path, maxVisitField),
				Method:    r.Method,
				IP:        clientIP(r),
				UserAgent: truncate(r.UserAgent(), maxVisitField),
				CreatedAt: time.Now().UTC(),
			}
			if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
				if p, err := a.auth.Authenticate(strings.TrimSpace(token)); err == nil {
					v.UserID = &p.UserID
				}
			}
			if !a.visits.Record(v) {
				a.log.Debug("visit log full, visit dropped", zap.String("path", path))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence.
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// clientIP strips the port from RemoteAddr; RealIP has already applied proxy headers.
func clientIP(r *http.Request) string {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}

// authn requires a valid bearer token and stores the principal in context.
func (a *API) authn(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(h, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			a.fail(w, r, errs.ErrUnauthorized)
			return
		}
		p, err := a.auth.Authenticate(strings.TrimSpace(token))
		if err != nil {
			a.fail(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithPrincipal(r.Context(), p)))
	})
}

// adminOnly must run after authn.
func (a *API) adminOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := PrincipalFromCtx(r.Context())
		if !ok {
			a.fail(w, r, errs.ErrUnauthorized)
			return
		}
		if !p.Admin {
			a.fail(w, r, errs.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}
