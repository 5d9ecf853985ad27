package http

import (
	"net/http"

	"github.com/mind-engage/examportal/internal/user"
)

// MeHandler returns the caller's profile without credentials.
func MeHandler(users *user.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		u, err := users.Get(r.Context(), viewerFrom(r).ID)
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, u)
	}
}

// ListUsersHandler lists users for admins, optionally ?role=student|admin.
func ListUsersHandler(users *user.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := users.List(r.Context(), r.URL.Query().Get("role"))
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, list)
	}
}
