package httpapi

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid/v5"

	"github.com/and161185/libris/internal/convert"
	"github.com/and161185/libris/internal/errs"
	"github.com/and161185/libris/internal/model"
)

// pathID parses the {id} URL parameter.
func pathID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: bad id", errs.ErrInvalidInput)
	}
	return id, nil
}

func (a *API) listCategories(w http.ResponseWriter, r *http.Request) {
	cs, err := a.catalog.ListCategories(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.ToCategories(cs))
}

func (a *API) listAuthors(w http.ResponseWriter, r *http.Request) {
	as, err := a.catalog.ListAuthors(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.ToAuthors(as))
}

// bookFilter reads q, category, author, available, sort, limit and offset.
func bookFilter(r *http.Request) (model.BookFilter, error) {
	q := r.URL.Query()
	f := model.BookFilter{
		Query:        q.Get("q"),
		CategorySlug: q.Get("category"),
		Sort:         q.Get("sort"),
	}
	if s := q.Get("author"); s != "" {
		id, err := uuid.FromString(s)
		if err != nil {
			return f, fmt.Errorf("%w: bad author", errs.ErrInvalidInput)
		}
		f.AuthorID = id
	}
	if s := q.Get("available"); s != "" {
		v, err := strconv.ParseBool(s)
		if err != nil {
			return f, fmt.Errorf("%w: bad available", errs.ErrInvalidInput)
		}
		f.AvailableOnly = v
	}
	for name, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
		if s := q.Get(name); s != "" {
			v, err := strconv.Atoi(s)
			if err != nil || v < 0 {
				return f, fmt.Errorf("%w: bad %s", errs.ErrInvalidInput, name)
			}
			*dst = v
		}
	}
	return f, nil
}

func (a *API) searchBooks(w http.ResponseWriter, r *http.Request) {
	f, err := bookFilter(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	bs, err := a.catalog.SearchBooks(r.Context(), f)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.ToBooks(bs))
}

func (a *API) getBook(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	b, err := a.catalog.GetBook(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.ToBook(*b))
}

// cover redirects to a presigned download link.
func (a *API) cover(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	url, err := a.catalog.CoverURL(r.Context(), id)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

// --- admin ---

func (a *API) createCategory(w http.ResponseWriter, r *http.Request) {
	var in convert.CategoryRequest
	if err := a.decode(w, r, &in); err != nil {
		a.fail(w, r, err)
		return
	}
	c, err := a.catalog.CreateCategory(r.Context(), in.Name, in.Icon)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, convert.ToCategory(*c))
}

func (a *API) createAuthor(w http.ResponseWriter, r *http.Request) {
	var in convert.AuthorRequest
	if err := a.decode(w, r, &in); err != nil {
		a.fail(w, r, err)
		return
	}
	au, err := a.catalog.CreateAuthor(r.Context(), in.FullName, in.Bio)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, convert.ToAuthor(*au))
}

func (a *API) createBook(w http.ResponseWriter, r *http.Request) {
	var in convert.BookRequest
	if err := a.decode(w, r, &in); err != nil {
		a.fail(w, r, err)
		return
	}
	b, err := convert.FromBookRequest(in)
	if err != nil {
		a.fail(w, r, fmt.Errorf("%w: %v", errs.ErrInvalidInput, err))
		return
	}
	created, err := a.catalog.CreateBook(r.Context(), b)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, convert.ToBook(*created))
}

func (a *API) setCopies(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var in convert.CopiesRequest
	if err := a.decode(w, r, &in); err != nil {
		a.fail(w, r, err)
		return
	}
	b, err := a.catalog.SetTotalCopies(r.Context(), id, *in.TotalCopies)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.ToBook(*b))
}

// uploadCover takes the raw image as the body; Content-Type names its format.
func (a *API) uploadCover(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	ct, body, err := a.readImage(w, r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	b, err := a.catalog.SetCover(r.Context(), id, ct, body)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.ToBook(*b))
}
