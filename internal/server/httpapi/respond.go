package httpapi

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/go-playground/validator/v10"
	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/and161185/libris/internal/convert"
	"github.com/and161185/libris/internal/errs"
	"github.com/and161185/libris/internal/service"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// maxJSONBody caps request bodies of JSON endpoints.
const maxJSONBody = 1 << 20

// errTooLarge marks a body over its size limit.
var errTooLarge = errors.New("request body too large")

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// decode reads a JSON body into dst and runs struct validation on it.
func (a *API) decode(w http.ResponseWriter, r *http.Request, dst any) error {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return errTooLarge
		}
		return fmt.Errorf("%w: read body: %v", errs.ErrInvalidInput, err)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("%w: malformed json", errs.ErrInvalidInput)
	}
	if err := a.validate.Struct(dst); err != nil {
		var ve validator.ValidationErrors
		if errors.As(err, &ve) && len(ve) > 0 {
			return fmt.Errorf("%w: %s failed %q", errs.ErrInvalidInput, ve[0].Field(), ve[0].Tag())
		}
		return fmt.Errorf("%w: %v", errs.ErrInvalidInput, err)
	}
	return nil
}

// readImage reads a raw image upload bounded by the configured size.
func (a *API) readImage(w http.ResponseWriter, r *http.Request) (string, []byte, error) {
	ct, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return "", nil, fmt.Errorf("%w: content type", errs.ErrInvalidInput)
	}
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, a.imageMax))
	if err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			return "", nil, errTooLarge
		}
		return "", nil, fmt.Errorf("%w: read image: %v", errs.ErrInvalidInput, err)
	}
	return ct, body, nil
}

type mapping struct {
	status int
	code   string
}

// errorTable is checked in order; the first matching sentinel wins.
var errorTable = []struct {
	err error
	mapping
}{
	{errs.ErrNotFound, mapping{http.StatusNotFound, "not_found"}},
	{errs.ErrForbidden, mapping{http.StatusForbidden, "forbidden"}},
	{errs.ErrUnauthorized, mapping{http.StatusUnauthorized, "unauthorized"}},
	{errs.ErrOutOfStock, mapping{http.StatusConflict, "out_of_stock"}},
	{errs.ErrQuotaExceeded, mapping{http.StatusConflict, "quota_exceeded"}},
	{errs.ErrDuplicateActiveBorrow, mapping{http.StatusConflict, "duplicate_active_borrow"}},
	{errs.ErrNotEligible, mapping{http.StatusConflict, "not_eligible"}},
	{errs.ErrAlreadyExists, mapping{http.StatusConflict, "already_exists"}},
	{errs.ErrInvalidRating, mapping{http.StatusUnprocessableEntity, "invalid_rating"}},
	{errs.ErrInvalidCopies, mapping{http.StatusUnprocessableEntity, "invalid_copies"}},
	{errs.ErrInvalidInput, mapping{http.StatusBadRequest, "invalid_input"}},
	{errs.ErrRateLimited, mapping{http.StatusTooManyRequests, "rate_limited"}},
	{errs.ErrTimeout, mapping{http.StatusServiceUnavailable, "timeout"}},
	{service.ErrImagesDisabled, mapping{http.StatusServiceUnavailable, "images_disabled"}},
	{errTooLarge, mapping{http.StatusRequestEntityTooLarge, "too_large"}},
}

func classify(err error) (mapping, bool) {
	for _, e := range errorTable {
		if errors.Is(err, e.err) {
			return e.mapping, true
		}
	}
	return mapping{http.StatusInternalServerError, "internal"}, false
}

// fail writes the error body. Unknown errors are logged and hidden behind 500.
func (a *API) fail(w http.ResponseWriter, r *http.Request, err error) {
	m, known := classify(err)
	msg := err.Error()
	if !known {
		a.log.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		msg = "internal error"
	}
	writeJSON(w, m.status, convert.Error{Error: msg, Code: m.code})
}
