package exam

import (
	"context"
	"time"
)

type ListOpts struct {
	// AvailableAt restricts the listing to exams that are published and
	// inside their availability window at that instant.
	AvailableAt *time.Time
	Limit       int
}

type SubmissionFilter struct {
	ExamID    string
	StudentID string
	Limit     int // newest first when set
}

type ResultFilter struct {
	ExamID        string
	StudentID     string
	PublishedOnly bool
}

// BuildFunc produces the submission and result to store, given the exam as
// read inside the recording transaction and the attempts already used.
// Returning an error aborts the transaction.
type BuildFunc func(e Exam, attemptsUsed int) (Submission, Result, error)

type Store interface {
	CreateExam(ctx context.Context, e Exam) error
	GetExam(ctx context.Context, id string) (Exam, error)
	ListExams(ctx context.Context, opts ListOpts) ([]Exam, error)
	SetExamPublished(ctx context.Context, id string, published bool, at time.Time) (Exam, error)
	// DeleteExamCascade removes the exam with its submissions and results
	// in one transaction.
	DeleteExamCascade(ctx context.Context, id string) (CascadeReport, error)

	CountAttempts(ctx context.Context, examID, studentID string) (int, error)
	RecordSubmission(ctx context.Context, examID, studentID string, build BuildFunc) (Submission, Result, error)
	GetSubmission(ctx context.Context, id string) (Submission, error)
	ListSubmissions(ctx context.Context, f SubmissionFilter) ([]Submission, error)

	GetResult(ctx context.Context, id string) (Result, error)
	ListResults(ctx context.Context, f ResultFilter) ([]Result, error)
	SetResultPublished(ctx context.Context, id string, published bool, at time.Time) (Result, error)
	// DeleteResult removes the result and the submission it was graded from.
	DeleteResult(ctx context.Context, id string) (Result, error)

	Counts(ctx context.Context) (exams, submissions int, err error)
}
