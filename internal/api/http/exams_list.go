package http

import (
	"net/http"

	"github.com/mind-engage/examportal/internal/exam"
)

// ListExamsHandler returns all exams to admins and the currently open,
// redacted ones to students.
func ListExamsHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.ListExams(r.Context(), viewerFrom(r))
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, list)
	}
}
