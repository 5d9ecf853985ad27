package exam

import "github.com/mind-engage/examportal/internal/rbac"

// Redact returns a copy of e with every correct answer removed. The
// question slice is copied so the stored exam is never mutated.
func Redact(e Exam) Exam {
	qs := make([]Question, len(e.Questions))
	copy(qs, e.Questions)
	for i := range qs {
		qs[i].CorrectAnswer = ""
	}
	e.Questions = qs
	return e
}

// ForViewer is the projection boundary: admins see full exams, everyone
// else gets the redacted form.
func ForViewer(v Viewer, e Exam) Exam {
	if v.Role == rbac.RoleAdmin {
		return e
	}
	return Redact(e)
}

func forViewerAll(v Viewer, exams []Exam) []Exam {
	out := make([]Exam, len(exams))
	for i, e := range exams {
		out[i] = ForViewer(v, e)
	}
	return out
}
