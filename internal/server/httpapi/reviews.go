package httpapi

import (
	"net/http"

	"github.com/and161185/libris/internal/convert"
)

func (a *API) canReview(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	bookID, err := pathID(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	ok, err := a.reviews.CanReview(r.Context(), p.UserID, bookID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.Eligibility{BookID: bookID.String(), CanReview: ok})
}

// submitReview answers 201 on the first review and 200 when it was updated.
func (a *API) submitReview(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	bookID, err := pathID(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var in convert.ReviewRequest
	if err := a.decode(w, r, &in); err != nil {
		a.fail(w, r, err)
		return
	}
	rv, created, err := a.reviews.Submit(r.Context(), p.UserID, bookID, in.Stars, in.Comment)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, convert.ReviewResult{Review: convert.ToReview(*rv), Created: created})
}

func (a *API) listReviews(w http.ResponseWriter, r *http.Request) {
	bookID, err := pathID(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	rs, err := a.reviews.List(r.Context(), bookID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.ToReviews(rs))
}

func (a *API) rating(w http.ResponseWriter, r *http.Request) {
	bookID, err := pathID(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	s, err := a.reviews.Summary(r.Context(), bookID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.ToSummary(s))
}
