package exam

import (
	"time"

	"github.com/mind-engage/examportal/internal/apperr"
)

var errExamUnavailable = apperr.Forbidden("Exam not available")

// Available reports whether students may take e at now: it must be
// published and its availability window must not have closed.
func (e Exam) Available(now time.Time) bool {
	if !e.IsPublished {
		return false
	}
	return e.AvailableTo == nil || !e.AvailableTo.Before(now)
}

// checkEligibility is the attempt gate. The read-only attempts endpoint and
// the submission transaction both go through it. The error names the first
// reason the attempt is refused.
func checkEligibility(e Exam, attemptsUsed int, now time.Time) (Eligibility, error) {
	el := Eligibility{Attempts: attemptsUsed, MaxAttempts: e.MaxAttempts}
	switch {
	case !e.Available(now):
		return el, errExamUnavailable
	case attemptsUsed >= e.MaxAttempts:
		return el, errMaxAttempts
	}
	el.Allowed = true
	return el, nil
}
