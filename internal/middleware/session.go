package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/converse/chat-server-go/internal/audit"
	"github.com/converse/chat-server-go/internal/auth"
)

const SessionCookie = "sessionId"

type contextKey string

const userIDContextKey contextKey = "userId"

// GetUserID returns the authenticated user id, or "" when the request did
// not pass the session middleware.
func GetUserID(ctx context.Context) string {
	if userID, ok := ctx.Value(userIDContextKey).(string); ok {
		return userID
	}
	return ""
}

// WithUserID is used by tests to build pre-authenticated request contexts.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}

type SessionMiddleware struct {
	authenticator *auth.Authenticator
}

func NewSessionMiddleware(authenticator *auth.Authenticator) *SessionMiddleware {
	return &SessionMiddleware{authenticator: authenticator}
}

func (m *SessionMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		result := m.authenticator.Authenticate(r.Context(), SessionTokenFromRequest(r))

		switch result.State {
		case auth.StateUnauthenticated:
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "Unauthorized: No session found",
			})
			return
		case auth.StateInvalid:
			// A token was presented but resolves to nothing; unlike the
			// no-cookie case this is worth an audit trail.
			audit.Log(audit.Event{
				Type:      audit.EventAuthFailure,
				IP:        r.RemoteAddr,
				UserAgent: r.UserAgent(),
			})
			writeJSON(w, http.StatusUnauthorized, map[string]string{
				"error": "Unauthorized: Invalid or expired session",
			})
			return
		}

		ctx := context.WithValue(r.Context(), userIDContextKey, result.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SessionTokenFromRequest extracts the session token from the request
// cookie. The websocket handshake reuses this so both transports accept
// exactly the same credential.
func SessionTokenFromRequest(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func SetSessionCookie(w http.ResponseWriter, token string, maxAge time.Duration, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:   SessionCookie,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
}
