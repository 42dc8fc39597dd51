package httpapi

import (
	"net/http"
	"strings"

	"github.com/and161185/libris/internal/convert"
)

func (a *API) register(w http.ResponseWriter, r *http.Request) {
	var in convert.Credentials
	if err := a.decode(w, r, &in); err != nil {
		a.fail(w, r, err)
		return
	}
	id, err := a.auth.Register(r.Context(), strings.TrimSpace(in.Username), in.Password)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, convert.Registered{UserID: id})
}

func (a *API) login(w http.ResponseWriter, r *http.Request) {
	var in convert.Credentials
	if err := a.decode(w, r, &in); err != nil {
		a.fail(w, r, err)
		return
	}
	tok, u, err := a.auth.LoginWithIP(r.Context(), strings.TrimSpace(in.Username), in.Password, clientIP(r))
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, convert.Token{
		AccessToken: tok.AccessToken,
		ExpiresAt:   tok.ExpiresAt,
		UserID:      u.ID.String(),
		Username:    u.Username,
	})
}
