package http

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/examportal/internal/exam"
)

// ListResultsHandler lists results for admins; ?examId= and ?studentId=
// narrow the listing.
func ListResultsHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		list, err := svc.ListResults(r.Context(), exam.ResultFilter{ExamID: q.Get("examId"), StudentID: q.Get("studentId")})
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, list)
	}
}

func PublishResultHandler(svc *exam.Service) http.HandlerFunc {
	return setResultHandler(svc.PublishResult, "Result published successfully")
}

func UnpublishResultHandler(svc *exam.Service) http.HandlerFunc {
	return setResultHandler(svc.UnpublishResult, "Result unpublished successfully")
}

func setResultHandler(op func(context.Context, string) (exam.Result, error), msg string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := op(r.Context(), chi.URLParam(r, "resultID"))
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"message": msg, "result": res})
	}
}

func DeleteResultHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := svc.DeleteResult(r.Context(), chi.URLParam(r, "resultID")); err != nil {
			respondError(w, r, err)
			return
		}
		respondMessage(w, http.StatusOK, "Result deleted successfully")
	}
}

// BulkResultsHandler applies op to every result of the exam. The status is
// 200 when all succeed, 500 when all fail and 207 otherwise; the body
// always lists per-result outcomes.
func BulkResultsHandler(op func(context.Context, string) (exam.BulkReport, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rep, err := op(r.Context(), chi.URLParam(r, "examID"))
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, bulkStatus(rep), rep)
	}
}

func bulkStatus(rep exam.BulkReport) int {
	switch {
	case len(rep.Failed) == 0:
		return http.StatusOK
	case len(rep.Succeeded) == 0:
		return http.StatusInternalServerError
	default:
		return http.StatusMultiStatus
	}
}
