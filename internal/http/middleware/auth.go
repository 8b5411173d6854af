package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/tripshield/inquiry-desk/internal/auth"
)

const sessionUserContextKey contextKey = "session_user"

// SessionAuth guards the dashboard API. The session token travels in the
// browser cookie; a Bearer header works too for scripted clients.
func SessionAuth(sessions auth.SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := SessionToken(r)
			if token == "" {
				writeUnauthorized(w, r)
				return
			}

			username, err := sessions.Get(r.Context(), token)
			if err != nil {
				if errors.Is(err, auth.ErrSessionNotFound) {
					writeUnauthorized(w, r)
					return
				}
				writeSessionError(w, r)
				return
			}

			ctx := context.WithValue(r.Context(), sessionUserContextKey, username)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetSessionUser returns the username the session middleware resolved, or
// an empty string outside an authenticated request.
func GetSessionUser(ctx context.Context) string {
	value, _ := ctx.Value(sessionUserContextKey).(string)
	return value
}

// SessionToken extracts the session token from the cookie or, failing
// that, the Authorization header.
func SessionToken(r *http.Request) string {
	if cookie, err := r.Cookie(auth.SessionCookieName); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	authorization := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if strings.HasPrefix(authorization, prefix) {
		return strings.TrimSpace(strings.TrimPrefix(authorization, prefix))
	}
	return ""
}

func writeUnauthorized(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":{"code":"unauthorized","message":"authentication required"},"request_id":"` + GetRequestID(r.Context()) + `"}`))
}

func writeSessionError(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_, _ = w.Write([]byte(`{"error":{"code":"internal_error","message":"session lookup failed"},"request_id":"` + GetRequestID(r.Context()) + `"}`))
}
