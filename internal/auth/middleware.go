package auth

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dreamstone/dreamstone/internal/models"
)

// Context key for storing the authenticated username
type contextKey string

const usernameContextKey contextKey = "username"

// UsernameFromContext retrieves the authenticated username from the context.
func UsernameFromContext(ctx context.Context) (string, bool) {
	username, ok := ctx.Value(usernameContextKey).(string)
	return username, ok && username != ""
}

// withUsername returns a copy of ctx carrying the authenticated username.
func withUsername(ctx context.Context, username string) context.Context {
	return context.WithValue(ctx, usernameContextKey, username)
}

// Middleware wraps a handler so it only runs for requests carrying a valid
// bearer token. The username from the token is placed on the request context.
func (s *Service) Middleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			slog.Warn("auth.Middleware: missing Authorization header", "path", r.URL.Path)
			writeUnauthorized(w, "missing authentication token")
			return
		}
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		username, err := s.VerifyToken(tokenString)
		if err != nil {
			slog.Warn("auth.Middleware: token verification failed", "path", r.URL.Path, "error", err)
			writeUnauthorized(w, "invalid authentication token")
			return
		}
		slog.Debug("auth.Middleware: request authenticated", "path", r.URL.Path, "username", username)
		next(w, r.WithContext(withUsername(r.Context(), username)))
	}
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	if err := json.NewEncoder(w).Encode(models.Error(message)); err != nil {
		slog.Error("auth.writeUnauthorized: failed to encode response", "error", err)
	}
}
