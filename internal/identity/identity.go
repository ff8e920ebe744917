// Package identity resolves the calling user from a trusted request header.
//
// Authentication is handled upstream; this package only maps the forwarded
// user ID onto a stored user and carries it in the request context.
package identity

import (
	"context"
	"log/slog"
	"net"
	"net/http"
	"regexp"
	"strings"

	"github.com/ashureev/pairroom/internal/domain"
)

const (
	HeaderName = "X-User-ID"
	QueryParam = "userId"
)

type contextKey int

const userKey contextKey = iota

var userIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// UserFinder looks users up by ID. It returns (nil, nil) when none exists.
type UserFinder interface {
	FindUser(ctx context.Context, userID string) (*domain.User, error)
}

// WithUser returns a copy of ctx carrying user.
func WithUser(ctx context.Context, user *domain.User) context.Context {
	return context.WithValue(ctx, userKey, user)
}

// UserFromContext returns the resolved user, or nil for anonymous requests.
func UserFromContext(ctx context.Context) *domain.User {
	if u, ok := ctx.Value(userKey).(*domain.User); ok {
		return u
	}
	return nil
}

// UserIDFromContext extracts the user ID from the request context.
func UserIDFromContext(ctx context.Context) string {
	if u := UserFromContext(ctx); u != nil {
		return u.ID
	}
	return ""
}

func userIDFromRequest(r *http.Request) string {
	id := r.Header.Get(HeaderName)
	if id == "" {
		id = r.URL.Query().Get(QueryParam)
	}
	return strings.TrimSpace(id)
}

// Middleware resolves the user named by the X-User-ID header (or the userId
// query parameter). Requests without an ID pass through anonymously; an ID
// that is malformed or unknown is rejected with 401.
func Middleware(users UserFinder) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID := userIDFromRequest(r)
			if userID == "" {
				next.ServeHTTP(w, r)
				return
			}
			if !userIDPattern.MatchString(userID) {
				writeError(w, http.StatusUnauthorized, "invalid user id")
				return
			}

			user, err := users.FindUser(r.Context(), userID)
			if err != nil {
				slog.Error("Failed to resolve user", "error", err, "user_id", userID, "remote_ip", IPFromRequest(r))
				writeError(w, http.StatusInternalServerError, "failed to resolve user")
				return
			}
			if user == nil {
				writeError(w, http.StatusUnauthorized, "user not found")
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
		})
	}
}

// Require rejects requests that Middleware did not resolve to a user.
func Require(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if UserFromContext(r.Context()) == nil {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(`{"error":"` + message + `"}`))
}

// IPFromRequest returns a normalized remote IP for optional request tracing.
func IPFromRequest(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
