package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/examportal/internal/exam"
)

// AttemptsHandler reports how many attempts the caller has used and
// whether another is allowed.
func AttemptsHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		el, err := svc.Attempts(r.Context(), viewerFrom(r), chi.URLParam(r, "examID"))
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, el)
	}
}

func SubmitHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in exam.SubmitInput
		if err := decodeJSON(w, r, &in); err != nil {
			respondError(w, r, err)
			return
		}
		out, err := svc.Submit(r.Context(), viewerFrom(r), in)
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusCreated, map[string]any{
			"message":      "Exam submitted successfully",
			"submissionId": out.SubmissionID,
			"score":        out.Score,
			"totalMarks":   out.TotalMarks,
			"percentage":   out.Percentage,
			"grade":        out.Grade,
		})
	}
}

// MyResultsHandler lists the caller's published results.
func MyResultsHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list, err := svc.MyResults(r.Context(), viewerFrom(r))
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, list)
	}
}

func GetSubmissionHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, err := svc.GetSubmission(r.Context(), viewerFrom(r), chi.URLParam(r, "submissionID"))
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, sub)
	}
}
