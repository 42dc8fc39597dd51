package httpapi

import (
	"fmt"
	"net/http"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/libris/internal/convert"
	"github.com/and161185/libris/internal/errs"
	"github.com/and161185/libris/internal/model"
)

// principal returns the caller set by authn.
func principal(r *http.Request) (model.Principal, error) {
	p, ok := PrincipalFromCtx(r.Context())
	if !ok {
		return model.Principal{}, errs.ErrUnauthorized
	}
	return p, nil
}

func (a *API) borrow(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var in convert.BorrowRequest
	if err := a.decode(w, r, &in); err != nil {
		a.fail(w, r, err)
		return
	}
	bookID, err := uuid.FromString(in.BookID)
	if err != nil {
		a.fail(w, r, fmt.Errorf("%w: bad book_id", errs.ErrInvalidInput))
		return
	}
	rec, err := a.ledger.Borrow(r.Context(), p.UserID, bookID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, convert.ToRecord(*rec, a.ledger.Now()))
}

// returnBook answers 200 for both a fresh return and a repeated one.
func (a *API) returnBook(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	rec, already, err := a.ledger.Return(r.Context(), p.UserID, id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.ReturnResult{
		Record:          convert.ToRecord(*rec, a.ledger.Now()),
		AlreadyReturned: already,
	})
}

func (a *API) getRecord(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	id, err := pathID(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	rec, err := a.ledger.Record(r.Context(), p.UserID, id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.ToRecord(*rec, a.ledger.Now()))
}

func (a *API) myBorrows(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	recs, err := a.ledger.Active(r.Context(), p.UserID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.ToRecords(recs, a.ledger.Now()))
}

func (a *API) myHistory(w http.ResponseWriter, r *http.Request) {
	p, err := principal(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	recs, err := a.ledger.History(r.Context(), p.UserID)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.ToRecords(recs, a.ledger.Now()))
}
