package http

import (
	"net/http"

	"github.com/mind-engage/examportal/internal/user"
)

func ChangePasswordHandler(users *user.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in user.ChangePasswordInput
		if err := decodeJSON(w, r, &in); err != nil {
			respondError(w, r, err)
			return
		}
		if err := users.ChangePassword(r.Context(), viewerFrom(r).ID, in); err != nil {
			respondError(w, r, err)
			return
		}
		respondMessage(w, http.StatusOK, "Password updated successfully.")
	}
}
