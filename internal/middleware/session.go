package middleware

import (
	"context"
	"net/http"
	"strings"

	"cyris/internal/auth"
	"cyris/internal/models"
	"cyris/internal/utils"
)

// ContextKey defines the type for context keys to avoid conflicts
type ContextKey string

const (
	// SessionKey is the context key for the caller's Session
	SessionKey ContextKey = "session"

	// GuestSessionHeader carries the guest session token of anonymous callers
	GuestSessionHeader = "X-Guest-Session"
)

// Session identifies the caller: a signed-in user or an anonymous guest.
type Session struct {
	UserID     string
	Email      string
	GuestToken string
}

// IsUser reports whether the caller is signed in
func (s *Session) IsUser() bool {
	return s != nil && s.UserID != ""
}

// IsGuest reports whether the caller is an anonymous guest
func (s *Session) IsGuest() bool {
	return s != nil && s.UserID == "" && s.GuestToken != ""
}

// Kind returns models.OwnerKindUser or models.OwnerKindGuest
func (s *Session) Kind() string {
	if s.IsUser() {
		return models.OwnerKindUser
	}
	return models.OwnerKindGuest
}

// SessionMiddleware resolves the caller from a bearer session token or a
// guest session header. Requests with neither pass through without a
// Session; malformed credentials are rejected.
func SessionMiddleware(secret []byte) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			session := &Session{}

			if header := r.Header.Get("Authorization"); header != "" {
				token, ok := strings.CutPrefix(header, "Bearer ")
				if !ok || strings.TrimSpace(token) == "" {
					utils.RespondWithError(w, http.StatusUnauthorized, "Invalid authorization header")
					return
				}
				claims, err := auth.ParseSessionToken(strings.TrimSpace(token), secret)
				if err != nil {
					utils.RespondWithError(w, http.StatusUnauthorized, "Invalid or expired token")
					return
				}
				session.UserID = claims.UserID()
				session.Email = claims.Email
			}

			if guest := r.Header.Get(GuestSessionHeader); guest != "" {
				if !auth.ValidGuestToken(guest) {
					utils.RespondWithError(w, http.StatusUnauthorized, "Invalid guest session")
					return
				}
				session.GuestToken = guest
			}

			if !session.IsUser() && session.GuestToken == "" {
				next.ServeHTTP(w, r)
				return
			}

			noteOwnerKind(r.Context(), session.Kind())
			ctx := context.WithValue(r.Context(), SessionKey, session)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetSession retrieves the caller's Session from the request context
func GetSession(ctx context.Context) (*Session, bool) {
	session, ok := ctx.Value(SessionKey).(*Session)
	return session, ok && session != nil
}

// RequireSession rejects requests that carry neither a user nor a guest session
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := GetSession(r.Context()); !ok {
			utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireUser rejects requests from callers who are not signed in
func RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		session, ok := GetSession(r.Context())
		if !ok || !session.IsUser() {
			utils.RespondWithError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}
