package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const (
	sessionCookieName = "session_id"
	sessionMaxAge     = 30 * 24 * 60 * 60
	minSessionIDLen   = 16
)

type sessionKey struct{}

// Sessions attaches the client session id to the request context,
// issuing a new cookie when the client has none or an implausibly short
// one.
func Sessions(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := ""
		if c, err := r.Cookie(sessionCookieName); err == nil && len(c.Value) >= minSessionIDLen {
			id = c.Value
		}

		if id == "" {
			id = newSessionID()
			http.SetCookie(w, &http.Cookie{
				Name:     sessionCookieName,
				Value:    id,
				Path:     "/",
				MaxAge:   sessionMaxAge,
				HttpOnly: true,
				Secure:   r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https",
				SameSite: http.SameSiteLaxMode,
			})
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), sessionKey{}, id)))
	})
}

// SessionID returns the session attached by Sessions.
func SessionID(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}

func newSessionID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
