package main

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/PaulBabatuyi/bhangaarWaala-api/internal/data"
	"github.com/PaulBabatuyi/bhangaarWaala-api/internal/lifecycle"
)

// context key type for storing the authenticated caller in context
type callerContextKey struct{}

// callerFromContext extracts the authenticated caller, if present.
func callerFromContext(ctx context.Context) (lifecycle.Caller, bool) {
	c, ok := ctx.Value(callerContextKey{}).(lifecycle.Caller)
	return c, ok
}

// authMiddleware enforces JWT authentication. The user is reloaded on every
// request so role changes and deactivation take effect before the token
// expires.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "missing authorization header")
			return
		}

		claims, err := s.auth.VerifyToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "invalid token")
			return
		}

		user, err := s.users.GetUserByID(r.Context(), claims.UserID)
		if errors.Is(err, data.ErrUserNotFound) {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "user not found")
			return
		}
		if err != nil {
			respondError(w, r, err)
			return
		}
		if !user.IsActive {
			writeError(w, http.StatusForbidden, "forbidden", "account is deactivated")
			return
		}

		// attach caller into context for handlers
		ctx := context.WithValue(r.Context(), callerContextKey{}, lifecycle.Caller{ID: user.ID, Role: user.Role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
