package main

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/and161185/libris/internal/convert"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// apiError is a non-2xx answer from the server.
type apiError struct {
	Status int
	Code   string
	Msg    string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("http %d: %s (%s)", e.Status, e.Msg, e.Code)
}

// apiClient talks JSON to the libris HTTP API.
type apiClient struct {
	base  string
	http  *http.Client
	token string
}

func loadTLS(caPath string, insecure bool) (*tls.Config, error) {
	if insecure {
		return &tls.Config{InsecureSkipVerify: true}, nil //nolint:gosec // dev flag
	}
	if caPath == "" {
		return nil, nil
	}
	pem, err := os.ReadFile(caPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, errors.New("bad CA cert")
	}
	return &tls.Config{RootCAs: pool}, nil
}

func newClient(base, caPath string, insecure bool, token string) (*apiClient, error) {
	tc, err := loadTLS(caPath, insecure)
	if err != nil {
		return nil, err
	}
	tr := http.DefaultTransport.(*http.Transport).Clone()
	if tc != nil {
		tr.TLSClientConfig = tc
	}
	return &apiClient{
		base:  strings.TrimRight(base, "/"),
		http:  &http.Client{Transport: tr, Timeout: 30 * time.Second},
		token: token,
	}, nil
}

// do sends in as JSON (when non-nil) and decodes the answer into out (when non-nil).
func (c *apiClient) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return err
	}
	if res.StatusCode >= 300 {
		var e convert.Error
		if json.Unmarshal(raw, &e) != nil || e.Code == "" {
			return &apiError{Status: res.StatusCode, Code: "unknown", Msg: strings.TrimSpace(string(raw))}
		}
		return &apiError{Status: res.StatusCode, Code: e.Code, Msg: e.Error}
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, out)
}

// --- endpoints ---

func (c *apiClient) register(ctx context.Context, user, pass string) (convert.Registered, error) {
	var out convert.Registered
	err := c.do(ctx, http.MethodPost, "/api/auth/register", convert.Credentials{Username: user, Password: pass}, &out)
	return out, err
}

func (c *apiClient) login(ctx context.Context, user, pass string) (convert.Token, error) {
	var out convert.Token
	err := c.do(ctx, http.MethodPost, "/api/auth/login", convert.Credentials{Username: user, Password: pass}, &out)
	return out, err
}

func (c *apiClient) books(ctx context.Context, q url.Values) ([]convert.Book, error) {
	path := "/api/books"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out []convert.Book
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out, err
}

func (c *apiClient) book(ctx context.Context, id string) (convert.Book, error) {
	var out convert.Book
	err := c.do(ctx, http.MethodGet, "/api/books/"+url.PathEscape(id), nil, &out)
	return out, err
}

func (c *apiClient) borrow(ctx context.Context, bookID string) (convert.BorrowRecord, error) {
	var out convert.BorrowRecord
	err := c.do(ctx, http.MethodPost, "/api/borrows", convert.BorrowRequest{BookID: bookID}, &out)
	return out, err
}

func (c *apiClient) giveBack(ctx context.Context, recordID string) (convert.ReturnResult, error) {
	var out convert.ReturnResult
	err := c.do(ctx, http.MethodPost, "/api/borrows/"+url.PathEscape(recordID)+"/return", nil, &out)
	return out, err
}

func (c *apiClient) record(ctx context.Context, recordID string) (convert.BorrowRecord, error) {
	var out convert.BorrowRecord
	err := c.do(ctx, http.MethodGet, "/api/borrows/"+url.PathEscape(recordID), nil, &out)
	return out, err
}

func (c *apiClient) mine(ctx context.Context) ([]convert.BorrowRecord, error) {
	var out []convert.BorrowRecord
	err := c.do(ctx, http.MethodGet, "/api/me/borrows", nil, &out)
	return out, err
}

func (c *apiClient) history(ctx context.Context) ([]convert.BorrowRecord, error) {
	var out []convert.BorrowRecord
	err := c.do(ctx, http.MethodGet, "/api/me/history", nil, &out)
	return out, err
}

func (c *apiClient) canReview(ctx context.Context, bookID string) (convert.Eligibility, error) {
	var out convert.Eligibility
	err := c.do(ctx, http.MethodGet, "/api/books/"+url.PathEscape(bookID)+"/can-review", nil, &out)
	return out, err
}

func (c *apiClient) review(ctx context.Context, bookID string, stars int, comment string) (convert.ReviewResult, error) {
	var out convert.ReviewResult
	err := c.do(ctx, http.MethodPost, "/api/books/"+url.PathEscape(bookID)+"/reviews",
		convert.ReviewRequest{Stars: stars, Comment: comment}, &out)
	return out, err
}

func (c *apiClient) reviews(ctx context.Context, bookID string) ([]convert.Review, convert.RatingSummary, error) {
	var rs []convert.Review
	if err := c.do(ctx, http.MethodGet, "/api/books/"+url.PathEscape(bookID)+"/reviews", nil, &rs); err != nil {
		return nil, convert.RatingSummary{}, err
	}
	var sum convert.RatingSummary
	err := c.do(ctx, http.MethodGet, "/api/books/"+url.PathEscape(bookID)+"/rating", nil, &sum)
	return rs, sum, err
}

func (c *apiClient) profile(ctx context.Context) (convert.Profile, error) {
	var out convert.Profile
	err := c.do(ctx, http.MethodGet, "/api/me/profile", nil, &out)
	return out, err
}

func (c *apiClient) updateProfile(ctx context.Context, in convert.ProfileRequest) (convert.Profile, error) {
	var out convert.Profile
	err := c.do(ctx, http.MethodPut, "/api/me/profile", in, &out)
	return out, err
}

func (c *apiClient) contact(ctx context.Context, in convert.ContactRequest) (convert.ContactMessage, error) {
	var out convert.ContactMessage
	err := c.do(ctx, http.MethodPost, "/api/contact", in, &out)
	return out, err
}
