package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/tripshield/inquiry-desk/internal/auth"
	"github.com/tripshield/inquiry-desk/internal/http/middleware"
	"github.com/tripshield/inquiry-desk/internal/repository"
)

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (a *API) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid_payload", "invalid login payload")
		return
	}

	username := strings.ToLower(strings.TrimSpace(req.Username))
	if username == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "invalid_payload", "username and password are required")
		return
	}

	user, err := a.users.GetUserByUsername(r.Context(), username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Same response as a bad password, so login probing cannot
			// tell which accounts exist.
			writeError(w, r, http.StatusUnauthorized, "invalid_credentials", "invalid username or password")
			return
		}
		a.logf("login lookup failed username=%s error=%v", username, err)
		writeError(w, r, http.StatusInternalServerError, "internal_error", "login failed")
		return
	}
	if !auth.CheckPassword(user.PasswordHash, req.Password) {
		writeError(w, r, http.StatusUnauthorized, "invalid_credentials", "invalid username or password")
		return
	}

	token, err := a.sessions.Create(r.Context(), user.Username)
	if err != nil {
		a.logf("session create failed username=%s error=%v", username, err)
		writeError(w, r, http.StatusInternalServerError, "internal_error", "login failed")
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(a.sessionTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	a.logf("login succeeded username=%s", user.Username)
	writeJSON(w, http.StatusOK, map[string]any{"username": user.Username})
}

func (a *API) Logout(w http.ResponseWriter, r *http.Request) {
	if token := middleware.SessionToken(r); token != "" {
		if err := a.sessions.Delete(r.Context(), token); err != nil {
			a.logf("session delete failed error=%v", err)
		}
	}

	http.SetCookie(w, &http.Cookie{
		Name:     auth.SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusOK, map[string]any{"status": "logged_out"})
}

func (a *API) Me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"username": middleware.GetSessionUser(r.Context())})
}
