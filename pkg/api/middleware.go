package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/minucst/portal/pkg/auth"
)

type contextKey string

const (
	userContextKey  contextKey = "user"
	tokenContextKey contextKey = "token"

	dashboardTokenHeader = "X-Dashboard-Token"
)

// requestLogger logs incoming HTTP requests.
func (s *server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)

		s.log.WithField("method", r.Method).
			WithField("path", r.URL.Path).
			WithField("remote", r.RemoteAddr).
			WithField("duration", time.Since(start)).
			Debug("Request handled")
	})
}

// bearerToken returns the Bearer credential from the Authorization header.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}

	return strings.TrimSpace(header[7:])
}

// requirePrimary validates the Bearer primary token and injects the user
// into the request context.
func (s *server) requirePrimary(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := bearerToken(r)
		if tok == "" {
			writeJSON(w, http.StatusUnauthorized,
				errorResponse{"authentication required"})

			return
		}

		user, _, err := s.auth.ValidateToken(r.Context(), tok)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized,
				errorResponse{"invalid or expired session"})

			return
		}

		ctx := context.WithValue(r.Context(), userContextKey, user)
		ctx = context.WithValue(ctx, tokenContextKey, tok)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireDashboard checks the primary token and the dashboard token
// together.
func (s *server) requireDashboard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := bearerToken(r)
		dashboard := r.Header.Get(dashboardTokenHeader)

		if tok == "" || dashboard == "" ||
			!s.auth.ValidateDashboardAccess(r.Context(), tok, dashboard) {
			writeJSON(w, http.StatusForbidden,
				errorResponse{auth.ReasonUnauthorized.Message()})

			return
		}

		ctx := context.WithValue(r.Context(), tokenContextKey, tok)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// userFromContext extracts the authenticated user from the request context.
func userFromContext(ctx context.Context) *auth.User {
	user, _ := ctx.Value(userContextKey).(*auth.User)

	return user
}

// tokenFromContext extracts the validated primary token.
func tokenFromContext(ctx context.Context) string {
	tok, _ := ctx.Value(tokenContextKey).(string)

	return tok
}
