package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/examportal/internal/exam"
)

// ListSubmissionsHandler lists submissions filtered by the route parameter
// named param ("studentID" or "examID").
func ListSubmissionsHandler(svc *exam.Service, param string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f := exam.SubmissionFilter{Limit: parseIntDefault(r.URL.Query().Get("limit"), 0)}
		switch param {
		case "studentID":
			f.StudentID = chi.URLParam(r, param)
		case "examID":
			f.ExamID = chi.URLParam(r, param)
		}
		list, err := svc.ListSubmissions(r.Context(), f)
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, list)
	}
}
