package http

import (
	"context"
	"net/http"
	"strconv"

	"github.com/mind-engage/examportal/internal/apperr"
	"github.com/mind-engage/examportal/internal/exam"
	syncx "github.com/mind-engage/examportal/internal/sync"
	"github.com/mind-engage/examportal/internal/user"
)

// EventReader is the read side of the audit log.
type EventReader interface {
	Since(ctx context.Context, after int64, limit int) ([]syncx.Event, error)
}

// AuditEventsHandler pages through the audit log: ?after=<seq>&limit=<n>.
func AuditEventsHandler(events EventReader) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		var after int64
		if s := q.Get("after"); s != "" {
			v, err := strconv.ParseInt(s, 10, 64)
			if err != nil || v < 0 {
				respondError(w, r, apperr.Validation("after must be a non-negative integer"))
				return
			}
			after = v
		}
		list, err := events.Since(r.Context(), after, parseIntDefault(q.Get("limit"), 100))
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, list)
	}
}

const recentItems = 5

// DashboardHandler returns platform counts and the most recent exams and
// submissions.
func DashboardHandler(exams *exam.Service, users *user.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		nUsers, err := users.Count(ctx)
		if err != nil {
			respondError(w, r, err)
			return
		}
		ov, err := exams.Overview(ctx, recentItems)
		if err != nil {
			respondError(w, r, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]any{
			"stats": map[string]int{
				"users":       nUsers,
				"exams":       ov.Exams,
				"submissions": ov.Submissions,
			},
			"recentExams":       ov.RecentExams,
			"recentSubmissions": ov.RecentSubmissions,
		})
	}
}
