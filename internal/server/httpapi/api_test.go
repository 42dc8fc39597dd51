package httpapi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/time/rate"

	"github.com/and161185/libris/internal/convert"
	"github.com/and161185/libris/internal/limiter"
	"github.com/and161185/libris/internal/repository/memory"
	"github.com/and161185/libris/internal/service"
)

type testEnv struct {
	t   *testing.T
	srv *httptest.Server

	// stopVisits flushes the visit log and stops it; no-op when disabled.
	stopVisits func()
}

type fakeCovers struct {
	mu   sync.Mutex
	objs map[string][]byte
}

func (f *fakeCovers) Put(_ context.Context, key, _ string, body []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objs[key] = body
	return nil
}
func (f *fakeCovers) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objs, key)
	return nil
}
func (f *fakeCovers) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://covers.example/" + key, nil
}

type envOpts struct {
	covers service.ObjectStore
	rl     *limiter.IPRateLimiter
	ready  Pinger
	visits bool
}

func newEnv(t *testing.T, o envOpts) *testEnv {
	t.Helper()
	store := memory.New()
	auth := service.NewAuthService(store, []byte("test-key"), time.Hour,
		limiter.NewMemory(15*time.Minute, 5, 15*time.Minute), []string{"root"})
	ledger, err := service.NewLedgerService(store)
	require.NoError(t, err)
	covers := o.covers
	e := &testEnv{t: t, stopVisits: func() {}}
	var visits *service.VisitLog
	if o.visits {
		visits = service.NewVisitLog(store, zaptest.NewLogger(t), 0)
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			visits.Run(ctx, time.Hour)
			close(done)
		}()
		e.stopVisits = func() {
			cancel()
			<-done
		}
		t.Cleanup(e.stopVisits)
	}
	h := NewRouter(Deps{
		Auth:        auth,
		Catalog:     service.NewCatalogService(store, covers),
		Ledger:      ledger,
		Reviews:     service.NewReviewService(store, store),
		Profiles:    service.NewProfileService(store, covers),
		Contact:     service.NewContactService(store),
		Visits:      visits,
		Log:         zaptest.NewLogger(t),
		RateLimiter: o.rl,
		Ready:       o.ready,
	})
	e.srv = httptest.NewServer(h)
	t.Cleanup(e.srv.Close)
	return e
}

func (e *testEnv) do(token, method, path string, in any, out any) int {
	e.t.Helper()
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		require.NoError(e.t, err)
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, body)
	require.NoError(e.t, err)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	res, err := noRedirect.Do(req)
	require.NoError(e.t, err)
	defer res.Body.Close()
	raw, err := io.ReadAll(res.Body)
	require.NoError(e.t, err)
	if out != nil && len(raw) > 0 {
		require.NoError(e.t, json.Unmarshal(raw, out), string(raw))
	}
	return res.StatusCode
}

var noRedirect = &http.Client{
	CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
}

// user registers and logs in, returning the access token.
func (e *testEnv) user(name string) string {
	e.t.Helper()
	creds := convert.Credentials{Username: name, Password: "secret-pass"}
	require.Equal(e.t, http.StatusCreated, e.do("", http.MethodPost, "/api/auth/register", creds, nil))
	var tok convert.Token
	require.Equal(e.t, http.StatusOK, e.do("", http.MethodPost, "/api/auth/login", creds, &tok))
	require.NotEmpty(e.t, tok.AccessToken)
	return tok.AccessToken
}

// book creates a category, an author and a book with the given number of copies.
func (e *testEnv) book(admin string, copies int) convert.Book {
	e.t.Helper()
	var c convert.Category
	require.Equal(e.t, http.StatusCreated,
		e.do(admin, http.MethodPost, "/api/admin/categories", convert.CategoryRequest{Name: fmt.Sprintf("Fantasy %d", copies)}, &c))
	var a convert.Author
	require.Equal(e.t, http.StatusCreated,
		e.do(admin, http.MethodPost, "/api/admin/authors", convert.AuthorRequest{FullName: "Ursula K. Le Guin"}, &a))
	var b convert.Book
	require.Equal(e.t, http.StatusCreated, e.do(admin, http.MethodPost, "/api/admin/books", convert.BookRequest{
		Title: "A Wizard of Earthsea", AuthorID: a.ID, CategoryID: c.ID, TotalCopies: copies,
	}, &b))
	return b
}

func TestAPI_BorrowReturnReview(t *testing.T) {
	t.Parallel()
	e := newEnv(t, envOpts{})
	root := e.user("root")
	alice := e.user("alice")
	b := e.book(root, 2)
	require.Equal(t, 2, b.AvailableCopies)

	var rec convert.BorrowRecord
	require.Equal(t, http.StatusCreated, e.do(alice, http.MethodPost, "/api/borrows", convert.BorrowRequest{BookID: b.ID}, &rec))
	require.Equal(t, "active", rec.Status)
	// rendered a moment after borrowing, so the last day is already partial
	require.Contains(t, []int{13, 14}, rec.RemainingDays)
	require.Equal(t, 14*24*time.Hour, rec.DueAt.Sub(rec.BorrowedAt))

	var errBody convert.Error
	require.Equal(t, http.StatusConflict, e.do(alice, http.MethodPost, "/api/borrows", convert.BorrowRequest{BookID: b.ID}, &errBody))
	require.Equal(t, "duplicate_active_borrow", errBody.Code)

	var got convert.Book
	require.Equal(t, http.StatusOK, e.do("", http.MethodGet, "/api/books/"+b.ID, nil, &got))
	require.Equal(t, 1, got.AvailableCopies)

	var active []convert.BorrowRecord
	require.Equal(t, http.StatusOK, e.do(alice, http.MethodGet, "/api/me/borrows", nil, &active))
	require.Len(t, active, 1)
	require.Equal(t, "A Wizard of Earthsea", active[0].BookTitle)

	var elig convert.Eligibility
	require.Equal(t, http.StatusOK, e.do(alice, http.MethodGet, "/api/books/"+b.ID+"/can-review", nil, &elig))
	require.False(t, elig.CanReview)
	require.Equal(t, http.StatusConflict,
		e.do(alice, http.MethodPost, "/api/books/"+b.ID+"/reviews", convert.ReviewRequest{Stars: 5}, &errBody))
	require.Equal(t, "not_eligible", errBody.Code)

	var ret convert.ReturnResult
	require.Equal(t, http.StatusOK, e.do(alice, http.MethodPost, "/api/borrows/"+rec.ID+"/return", nil, &ret))
	require.False(t, ret.AlreadyReturned)
	require.Equal(t, "returned", ret.Record.Status)
	require.Equal(t, http.StatusOK, e.do(alice, http.MethodPost, "/api/borrows/"+rec.ID+"/return", nil, &ret))
	require.True(t, ret.AlreadyReturned)
	require.Equal(t, "A Wizard of Earthsea", ret.Record.BookTitle)

	var one convert.BorrowRecord
	require.Equal(t, http.StatusOK, e.do(alice, http.MethodGet, "/api/borrows/"+rec.ID, nil, &one))
	require.Equal(t, rec.ID, one.ID)
	require.Equal(t, "returned", one.Status)
	require.Equal(t, "A Wizard of Earthsea", one.BookTitle)

	require.Equal(t, http.StatusOK, e.do("", http.MethodGet, "/api/books/"+b.ID, nil, &got))
	require.Equal(t, 2, got.AvailableCopies)

	require.Equal(t, http.StatusOK, e.do(alice, http.MethodGet, "/api/books/"+b.ID+"/can-review", nil, &elig))
	require.True(t, elig.CanReview)

	require.Equal(t, http.StatusUnprocessableEntity,
		e.do(alice, http.MethodPost, "/api/books/"+b.ID+"/reviews", convert.ReviewRequest{Stars: 6}, &errBody))
	require.Equal(t, "invalid_rating", errBody.Code)

	var rr convert.ReviewResult
	require.Equal(t, http.StatusCreated,
		e.do(alice, http.MethodPost, "/api/books/"+b.ID+"/reviews", convert.ReviewRequest{Stars: 5, Comment: "classic"}, &rr))
	require.True(t, rr.Created)
	require.Equal(t, http.StatusOK,
		e.do(alice, http.MethodPost, "/api/books/"+b.ID+"/reviews", convert.ReviewRequest{Stars: 4, Comment: "still good"}, &rr))
	require.False(t, rr.Created)

	var reviews []convert.Review
	require.Equal(t, http.StatusOK, e.do("", http.MethodGet, "/api/books/"+b.ID+"/reviews", nil, &reviews))
	require.Len(t, reviews, 1)
	require.Equal(t, "alice", reviews[0].Username)
	require.Equal(t, "still good", reviews[0].Comment)

	var sum convert.RatingSummary
	require.Equal(t, http.StatusOK, e.do("", http.MethodGet, "/api/books/"+b.ID+"/rating", nil, &sum))
	require.Equal(t, 1, sum.Count)
	require.InDelta(t, 4.0, sum.Average, 1e-9)

	var hist []convert.BorrowRecord
	require.Equal(t, http.StatusOK, e.do(alice, http.MethodGet, "/api/me/history", nil, &hist))
	require.Len(t, hist, 1)
	require.Equal(t, "returned", hist[0].Status)
}

func TestAPI_LendingConflicts(t *testing.T) {
	t.Parallel()
	e := newEnv(t, envOpts{})
	root := e.user("root")
	alice, bob := e.user("alice"), e.user("bob")
	b := e.book(root, 1)

	var rec convert.BorrowRecord
	require.Equal(t, http.StatusCreated, e.do(alice, http.MethodPost, "/api/borrows", convert.BorrowRequest{BookID: b.ID}, &rec))

	var errBody convert.Error
	require.Equal(t, http.StatusConflict, e.do(bob, http.MethodPost, "/api/borrows", convert.BorrowRequest{BookID: b.ID}, &errBody))
	require.Equal(t, "out_of_stock", errBody.Code)

	require.Equal(t, http.StatusForbidden, e.do(bob, http.MethodPost, "/api/borrows/"+rec.ID+"/return", nil, &errBody))
	require.Equal(t, "forbidden", errBody.Code)
	require.Equal(t, http.StatusForbidden, e.do(bob, http.MethodGet, "/api/borrows/"+rec.ID, nil, &errBody))
	require.Equal(t, http.StatusNotFound,
		e.do(bob, http.MethodGet, "/api/borrows/6ba7b810-9dad-11d1-80b4-00c04fd430c8", nil, &errBody))

	require.Equal(t, http.StatusNotFound,
		e.do(bob, http.MethodPost, "/api/borrows", convert.BorrowRequest{BookID: "6ba7b810-9dad-11d1-80b4-00c04fd430c8"}, &errBody))
	require.Equal(t, "not_found", errBody.Code)

	require.Equal(t, http.StatusBadRequest, e.do(bob, http.MethodPost, "/api/borrows", convert.BorrowRequest{BookID: "nope"}, &errBody))
	require.Equal(t, "invalid_input", errBody.Code)

	require.Equal(t, http.StatusUnprocessableEntity,
		e.do(root, http.MethodPut, "/api/admin/books/"+b.ID+"/copies", map[string]int{"total_copies": 0}, &errBody))
	require.Equal(t, "invalid_copies", errBody.Code)

	var grown convert.Book
	require.Equal(t, http.StatusOK,
		e.do(root, http.MethodPut, "/api/admin/books/"+b.ID+"/copies", map[string]int{"total_copies": 3}, &grown))
	require.Equal(t, 3, grown.TotalCopies)
	require.Equal(t, 2, grown.AvailableCopies)
}

func TestAPI_QuotaOverHTTP(t *testing.T) {
	t.Parallel()
	e := newEnv(t, envOpts{})
	root := e.user("root")
	alice := e.user("alice")

	var ids []string
	for i := 1; i <= 6; i++ {
		ids = append(ids, e.book(root, i).ID)
	}
	for _, id := range ids[:5] {
		require.Equal(t, http.StatusCreated, e.do(alice, http.MethodPost, "/api/borrows", convert.BorrowRequest{BookID: id}, nil))
	}
	var errBody convert.Error
	require.Equal(t, http.StatusConflict, e.do(alice, http.MethodPost, "/api/borrows", convert.BorrowRequest{BookID: ids[5]}, &errBody))
	require.Equal(t, "quota_exceeded", errBody.Code)
}

func TestAPI_AuthAndAdmin(t *testing.T) {
	t.Parallel()
	e := newEnv(t, envOpts{})
	alice := e.user("alice")

	var errBody convert.Error
	require.Equal(t, http.StatusUnauthorized, e.do("", http.MethodGet, "/api/me/borrows", nil, &errBody))
	require.Equal(t, "unauthorized", errBody.Code)
	require.Equal(t, http.StatusUnauthorized, e.do("garbage", http.MethodGet, "/api/me/borrows", nil, &errBody))

	require.Equal(t, http.StatusForbidden,
		e.do(alice, http.MethodPost, "/api/admin/categories", convert.CategoryRequest{Name: "Poetry"}, &errBody))

	require.Equal(t, http.StatusConflict, e.do("", http.MethodPost, "/api/auth/register",
		convert.Credentials{Username: "alice", Password: "another-pass"}, &errBody))
	require.Equal(t, "already_exists", errBody.Code)

	require.Equal(t, http.StatusBadRequest, e.do("", http.MethodPost, "/api/auth/register",
		convert.Credentials{Username: "al", Password: "secret-pass"}, &errBody))
	require.Equal(t, "invalid_input", errBody.Code)

	require.Equal(t, http.StatusUnauthorized, e.do("", http.MethodPost, "/api/auth/login",
		convert.Credentials{Username: "alice", Password: "wrong-pass"}, &errBody))
}

func TestAPI_SearchBooks(t *testing.T) {
	t.Parallel()
	e := newEnv(t, envOpts{})
	root := e.user("root")
	alice := e.user("alice")
	none := e.book(root, 1)
	e.book(root, 2)
	require.Equal(t, http.StatusCreated, e.do(alice, http.MethodPost, "/api/borrows", convert.BorrowRequest{BookID: none.ID}, nil))

	var all, avail []convert.Book
	require.Equal(t, http.StatusOK, e.do("", http.MethodGet, "/api/books?q=earthsea", nil, &all))
	require.Len(t, all, 2)
	require.Equal(t, http.StatusOK, e.do("", http.MethodGet, "/api/books?available=true", nil, &avail))
	require.Len(t, avail, 1)
	require.NotEqual(t, none.ID, avail[0].ID)

	var errBody convert.Error
	require.Equal(t, http.StatusBadRequest, e.do("", http.MethodGet, "/api/books?sort=price", nil, &errBody))
	require.Equal(t, http.StatusBadRequest, e.do("", http.MethodGet, "/api/books?limit=-1", nil, &errBody))

	var cats []convert.Category
	require.Equal(t, http.StatusOK, e.do("", http.MethodGet, "/api/categories", nil, &cats))
	require.Len(t, cats, 2)
}

func TestAPI_Covers(t *testing.T) {
	t.Parallel()

	e := newEnv(t, envOpts{})
	root := e.user("root")
	b := e.book(root, 1)
	var errBody convert.Error
	require.Equal(t, http.StatusServiceUnavailable, e.do("", http.MethodGet, "/api/books/"+b.ID+"/cover", nil, &errBody))
	require.Equal(t, "images_disabled", errBody.Code)

	covers := &fakeCovers{objs: map[string][]byte{}}
	e = newEnv(t, envOpts{covers: covers})
	root = e.user("root")
	b = e.book(root, 1)
	require.Equal(t, http.StatusNotFound, e.do("", http.MethodGet, "/api/books/"+b.ID+"/cover", nil, &errBody))

	req, err := http.NewRequest(http.MethodPut, e.srv.URL+"/api/admin/books/"+b.ID+"/cover", bytes.NewReader([]byte("\x89PNG")))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "image/png")
	req.Header.Set("Authorization", "Bearer "+root)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	var got convert.Book
	require.NoError(t, json.NewDecoder(res.Body).Decode(&got))
	res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.True(t, got.HasCover)

	req, err = http.NewRequest(http.MethodGet, e.srv.URL+"/api/books/"+b.ID+"/cover", nil)
	require.NoError(t, err)
	res, err = noRedirect.Do(req)
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusFound, res.StatusCode)
	require.Contains(t, res.Header.Get("Location"), "https://covers.example/books/"+b.ID+"/")
}

func TestAPI_ProfileAndPhoto(t *testing.T) {
	t.Parallel()
	covers := &fakeCovers{objs: map[string][]byte{}}
	e := newEnv(t, envOpts{covers: covers})
	ann := e.user("ann")

	require.Equal(t, http.StatusUnauthorized, e.do("", http.MethodGet, "/api/me/profile", nil, nil))

	var prof convert.Profile
	require.Equal(t, http.StatusOK, e.do(ann, http.MethodGet, "/api/me/profile", nil, &prof))
	require.Empty(t, prof.FullName)
	require.Nil(t, prof.CreatedAt)

	require.Equal(t, http.StatusOK, e.do(ann, http.MethodPut, "/api/me/profile",
		convert.ProfileRequest{FullName: "Ann Lee", PhoneNumber: "+1 555 0100"}, &prof))
	require.Equal(t, "Ann Lee", prof.FullName)
	require.NotNil(t, prof.CreatedAt)

	var errBody convert.Error
	require.Equal(t, http.StatusBadRequest, e.do(ann, http.MethodPut, "/api/me/profile",
		convert.ProfileRequest{FullName: "Ann", PhoneNumber: "call me"}, &errBody))
	require.Equal(t, "invalid_input", errBody.Code)

	require.Equal(t, http.StatusNotFound, e.do(ann, http.MethodGet, "/api/me/profile/photo", nil, &errBody))

	req, err := http.NewRequest(http.MethodPut, e.srv.URL+"/api/me/profile/photo", bytes.NewReader([]byte("\xff\xd8\xff")))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "image/jpeg")
	req.Header.Set("Authorization", "Bearer "+ann)
	res, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.NoError(t, json.NewDecoder(res.Body).Decode(&prof))
	res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	require.True(t, prof.HasPhoto)
	require.Equal(t, "Ann Lee", prof.FullName)

	req, err = http.NewRequest(http.MethodGet, e.srv.URL+"/api/me/profile/photo", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+ann)
	res, err = noRedirect.Do(req)
	require.NoError(t, err)
	res.Body.Close()
	require.Equal(t, http.StatusFound, res.StatusCode)
	require.Contains(t, res.Header.Get("Location"), "https://covers.example/users/"+prof.UserID+"/photos/")
}

func TestAPI_ContactForm(t *testing.T) {
	t.Parallel()
	e := newEnv(t, envOpts{})
	root := e.user("root")
	ann := e.user("ann")

	var m convert.ContactMessage
	require.Equal(t, http.StatusCreated, e.do("", http.MethodPost, "/api/contact", convert.ContactRequest{
		Name: "Visitor", Email: "visitor@example.com", Subject: "Hours", Message: "Open on Sunday?",
	}, &m))
	require.NotEmpty(t, m.ID)

	var errBody convert.Error
	require.Equal(t, http.StatusBadRequest, e.do("", http.MethodPost, "/api/contact", convert.ContactRequest{
		Name: "Visitor", Email: "nope", Subject: "Hours", Message: "Open on Sunday?",
	}, &errBody))

	require.Equal(t, http.StatusForbidden, e.do(ann, http.MethodGet, "/api/admin/contact", nil, &errBody))

	var list []convert.ContactMessage
	require.Equal(t, http.StatusOK, e.do(root, http.MethodGet, "/api/admin/contact?limit=10", nil, &list))
	require.Len(t, list, 1)
	require.Equal(t, "visitor@example.com", list[0].Email)
}

func TestAPI_VisitLog(t *testing.T) {
	t.Parallel()
	e := newEnv(t, envOpts{visits: true})
	root := e.user("root")
	ann := e.user("ann")

	require.Equal(t, http.StatusOK, e.do("", http.MethodGet, "/api/categories", nil, nil))
	require.Equal(t, http.StatusOK, e.do(ann, http.MethodGet, "/api/categories", nil, nil))
	require.Equal(t, http.StatusOK, e.do(ann, http.MethodGet, "/api/me/borrows", nil, nil))
	require.Equal(t, http.StatusOK, e.do("", http.MethodGet, "/healthz", nil, nil))
	require.Equal(t, http.StatusOK, e.do(root, http.MethodGet, "/api/admin/contact", nil, nil))
	e.stopVisits()

	var counts []convert.PathCount
	require.Equal(t, http.StatusOK, e.do(root, http.MethodGet, "/api/admin/visits/paths", nil, &counts))
	require.Equal(t, []convert.PathCount{
		{Path: "/api/auth/login", Visits: 2},
		{Path: "/api/auth/register", Visits: 2},
		{Path: "/api/categories", Visits: 2},
		{Path: "/api/me/borrows", Visits: 1},
	}, counts)

	var recent []convert.PageVisit
	require.Equal(t, http.StatusOK, e.do(root, http.MethodGet, "/api/admin/visits?limit=1", nil, &recent))
	require.Len(t, recent, 1)
	require.Equal(t, "/api/me/borrows", recent[0].Path)
	require.NotEmpty(t, recent[0].UserID)
	require.Equal(t, "127.0.0.1", recent[0].IP)

	var errBody convert.Error
	require.Equal(t, http.StatusBadRequest, e.do(root, http.MethodGet, "/api/admin/visits/paths?since=yesterday", nil, &errBody))
	require.Equal(t, http.StatusForbidden, e.do(ann, http.MethodGet, "/api/admin/visits", nil, &errBody))
}

func TestAPI_RateLimitAndHealth(t *testing.T) {
	t.Parallel()
	e := newEnv(t, envOpts{rl: limiter.NewIPRateLimiter(rate.Limit(0), 1), ready: failingPinger{}})

	var body map[string]string
	require.Equal(t, http.StatusServiceUnavailable, e.do("", http.MethodGet, "/healthz", nil, &body))
	require.Equal(t, "unavailable", body["status"])

	var errBody convert.Error
	require.Equal(t, http.StatusTooManyRequests, e.do("", http.MethodGet, "/healthz", nil, &errBody))
	require.Equal(t, "rate_limited", errBody.Code)
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("db down") }

func TestRecover_Returns500(t *testing.T) {
	t.Parallel()
	h := Recover(zaptest.NewLogger(t))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("oh no")
	}))
	rw := httptest.NewRecorder()
	h.ServeHTTP(rw, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rw.Code)
	require.JSONEq(t, `{"error":"internal error","code":"internal"}`, rw.Body.String())
}

func TestClassify(t *testing.T) {
	t.Parallel()
	m, ok := classify(fmt.Errorf("wrap: %w", service.ErrImagesDisabled))
	require.True(t, ok)
	require.Equal(t, http.StatusServiceUnavailable, m.status)

	m, ok = classify(errors.New("disk on fire"))
	require.False(t, ok)
	require.Equal(t, http.StatusInternalServerError, m.status)
}
