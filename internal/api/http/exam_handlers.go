package http

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mind-engage/examportal/internal/exam"
	"github.com/mind-engage/examportal/internal/logger"
)

func CreateExamHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var in exam.ExamInput
		if err := decodeJSON(w, r, &in); err != nil {
			respondError(w, r, err)
			return
		}
		e, err := svc.CreateExam(r.Context(), viewerFrom(r), in)
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusCreated, map[string]any{"message": "Exam created successfully", "exam": e})
	}
}

// GetExamHandler serves one exam. Students get the redacted form and only
// for published exams.
func GetExamHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := svc.GetExam(r.Context(), viewerFrom(r), chi.URLParam(r, "examID"))
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, e)
	}
}

func PublishExamHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := svc.Publish(r.Context(), chi.URLParam(r, "examID"))
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"message": "Exam published successfully", "exam": e})
	}
}

func UnpublishExamHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		e, err := svc.Unpublish(r.Context(), chi.URLParam(r, "examID"))
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{"message": "Exam unpublished successfully", "exam": e})
	}
}

func DeleteExamHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rep, err := svc.DeleteExam(r.Context(), chi.URLParam(r, "examID"))
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{
			"message": "Exam and all associated data deleted successfully",
			"deleted": rep,
		})
	}
}

// ExamArchiveHandler streams the JSON snapshot taken before an exam was
// deleted. The key is everything after /archives/.
func ExamArchiveHandler(svc *exam.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rc, err := svc.Archive(chi.URLParam(r, "*"))
		if err != nil {
			respondError(w, r, err)
			return
		}
		defer rc.Close()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		if _, err := io.Copy(w, rc); err != nil {
			logger.Warn().Err(err).Msg("stream exam archive")
		}
	}
}
