package http

import (
	"net/http"
	"time"

	auth "github.com/mind-engage/examportal/internal/auth/middleware"
	"github.com/mind-engage/examportal/internal/user"
)

// publicUser is the projection returned by auth endpoints.
type publicUser struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Email            string `json:"email"`
	Role             string `json:"role"`
	EnrollmentNumber string `json:"enrollmentNumber,omitempty"`
	Department       string `json:"department,omitempty"`
}

func toPublic(u user.User) publicUser {
	return publicUser{
		ID:               u.ID,
		Name:             u.Name,
		Email:            u.Email,
		Role:             u.Role,
		EnrollmentNumber: u.EnrollmentNumber,
		Department:       u.Department,
	}
}

func RegisterHandler(users *user.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in user.RegisterInput
		if err := decodeJSON(w, r, &in); err != nil {
			respondError(w, r, err)
			return
		}
		u, err := users.Register(r.Context(), in)
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusCreated, map[string]any{
			"message": "User registered successfully",
			"user":    toPublic(u),
		})
	}
}

// LoginHandler verifies credentials and issues an access token carrying
// the user's id and role.
func LoginHandler(users *user.Service, authSvc *auth.AuthService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in user.LoginInput
		if err := decodeJSON(w, r, &in); err != nil {
			respondError(w, r, err)
			return
		}
		u, err := users.Authenticate(r.Context(), in)
		if err != nil {
			respondError(w, r, err)
			return
		}
		tok, exp, err := authSvc.IssueJWT(u.ID, u.Role)
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{
			"message":      "Login successful",
			"access_token": tok,
			"token_type":   "Bearer",
			"expires_at":   exp.UTC().Format(time.RFC3339),
			"user":         toPublic(u),
		})
	}
}
