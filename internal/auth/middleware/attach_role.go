package auth

import (
	"context"
	"errors"
	"net/http"

	"github.com/mind-engage/examportal/internal/apperr"
	"github.com/mind-engage/examportal/internal/logger"
	"github.com/mind-engage/examportal/internal/rbac"
)

// RoleLookup resolves the current role of a user id.
type RoleLookup interface {
	RoleOf(ctx context.Context, userID string) (string, error)
}

// AttachRoleFromStore replaces the token's role claim with the role stored
// for the subject, so a demoted or deleted user loses access before the
// token expires. Runs after JWTMiddleware.
func AttachRoleFromStore(users RoleLookup) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			sub := SubjectFromContext(ctx)
			role, err := users.RoleOf(ctx, sub)
			switch {
			case err == nil && role != "":
				next.ServeHTTP(w, r.WithContext(rbac.WithRole(ctx, role)))
			case err == nil || errors.Is(err, apperr.ErrNotFound):
				unauthorized(w, "Unauthorized: unknown user")
			default:
				logger.Error().Err(err).Str("sub", sub).Msg("role lookup failed")
				writeMessage(w, http.StatusInternalServerError, "internal server error")
			}
		})
	}
}
