package api

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"

	"github.com/meheroob/stremlit-agentic-ai/internal/session"
)

type ctxKey int

const sessionKey ctxKey = iota

// SessionResolver maps a bearer token to a live session.
type SessionResolver interface {
	Resolve(token string) (*session.Session, error)
}

func BearerAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t, ok := bearerToken(r)
			if !ok || subtle.ConstantTimeCompare([]byte(t), []byte(token)) != 1 {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SessionAuth resolves the bearer token to a chat session and stores it in
// the request context.
func SessionAuth(sessions SessionResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t, ok := bearerToken(r)
			if !ok {
				httpError(w, http.StatusUnauthorized, "authentication_error", "invalid or missing bearer token")
				return
			}
			s, err := sessions.Resolve(t)
			switch {
			case errors.Is(err, session.ErrSessionExpired):
				httpError(w, http.StatusUnauthorized, "session_expired", "session expired, please enter your CustomerID again")
				return
			case err != nil:
				httpError(w, http.StatusUnauthorized, "authentication_error", "%v", err)
				return
			}
			next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey, s)))
		})
	}
}

func sessionFrom(ctx context.Context) *session.Session {
	s, _ := ctx.Value(sessionKey).(*session.Session)
	return s
}

func bearerToken(r *http.Request) (string, bool) {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return "", false
	}
	return auth[len(prefix):], true
}
