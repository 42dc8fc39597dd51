package httpapi

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/and161185/libris/internal/convert"
	"github.com/and161185/libris/internal/errs"
)

func (a *API) getProfile(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	prof, err := a.profiles.Get(r.Context(), p.UserID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.ToProfile(*prof))
}

func (a *API) updateProfile(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var in convert.ProfileRequest
	if err := a.decode(w, r, &in); err != nil {
		a.fail(w, r, err)
		return
	}
	prof, err := a.profiles.Update(r.Context(), p.UserID, in.FullName, in.PhoneNumber)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.ToProfile(*prof))
}

// uploadPhoto takes the raw image as the body, like cover uploads.
func (a *API) uploadPhoto(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	ct, body, err := a.readImage(w, r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	prof, err := a.profiles.SetPhoto(r.Context(), p.UserID, ct, body)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.ToProfile(*prof))
}

func (a *API) photo(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	url, err := a.profiles.PhotoURL(r.Context(), p.UserID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

func (a *API) submitContact(w http.ResponseWriter, r *http.Request) {
	var in convert.ContactRequest
	if err := a.decode(w, r, &in); err != nil {
		a.fail(w, r, err)
		return
	}
	m, err := a.contact.Submit(r.Context(), in.Name, in.Email, in.Subject, in.Message)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, convert.ToContactMessage(*m))
}

// --- admin ---

func (a *API) listContact(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	ms, err := a.contact.List(r.Context(), limit, offset)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.ToContactMessages(ms))
}

func (a *API) recentVisits(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	vs, err := a.visits.Recent(r.Context(), limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.ToVisits(vs))
}

// visitCounts takes since as RFC 3339 and defaults to the last 24 hours.
func (a *API) visitCounts(w http.ResponseWriter, r *http.Request) {
	since := time.Now().Add(-24 * time.Hour)
	if s := r.URL.Query().Get("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			a.fail(w, r, fmt.Errorf("%w: bad since", errs.ErrInvalidInput))
			return
		}
		since = t
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	cs, err := a.visits.Counts(r.Context(), since, limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.ToPathCounts(cs))
}

// queryInt reads a non-negative integer query parameter; absent means zero.
func queryInt(r *http.Request, name string) (int, error) {
	s := r.URL.Query().Get(name)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: bad %s", errs.ErrInvalidInput, name)
	}
	return v, nil
}
