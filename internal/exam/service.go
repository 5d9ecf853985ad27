package exam

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/examportal/internal/apperr"
	"github.com/mind-engage/examportal/internal/grading"
	"github.com/mind-engage/examportal/internal/logger"
	"github.com/mind-engage/examportal/internal/rbac"
	"github.com/mind-engage/examportal/internal/storage"
	syncx "github.com/mind-engage/examportal/internal/sync"
	"github.com/mind-engage/examportal/internal/validation"
)

// EventSink receives audit events. Append failures are logged, never
// surfaced to the caller.
type EventSink interface {
	Append(ctx context.Context, typ, key string, data any) error
}

type Service struct {
	store     Store
	grader    grading.Grader
	events    EventSink
	archive   storage.BlobStore
	now       func() time.Time
	bulkLimit int
}

type Option func(*Service)

func WithGrader(g grading.Grader) Option { return func(s *Service) { s.grader = g } }
func WithEvents(e EventSink) Option      { return func(s *Service) { s.events = e } }

// WithArchive stores a JSON snapshot of each exam and its dependents
// before the exam is deleted.
func WithArchive(b storage.BlobStore) Option { return func(s *Service) { s.archive = b } }
func WithClock(now func() time.Time) Option  { return func(s *Service) { s.now = now } }
func WithBulkLimit(n int) Option             { return func(s *Service) { s.bulkLimit = n } }

func NewService(store Store, opts ...Option) *Service {
	s := &Service{
		store:     store,
		grader:    grading.NewDefaultGrader(),
		now:       time.Now,
		bulkLimit: 8,
	}
	for _, o := range opts {
		o(s)
	}
	if s.bulkLimit < 1 {
		s.bulkLimit = 1
	}
	return s
}

func (s *Service) CreateExam(ctx context.Context, v Viewer, in ExamInput) (Exam, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Subject = strings.TrimSpace(in.Subject)
	qs := make([]QuestionInput, len(in.Questions))
	for i, q := range in.Questions {
		qs[i] = normalizeQuestion(q)
	}
	in.Questions = qs
	if err := validateExamInput(in); err != nil {
		return Exam{}, err
	}

	now := s.now().UTC()
	e := Exam{
		ID:            uuid.NewString(),
		Title:         in.Title,
		Subject:       in.Subject,
		Description:   in.Description,
		TimeLimit:     in.TimeLimit,
		MaxAttempts:   in.MaxAttempts,
		AvailableFrom: now,
		AvailableTo:   in.AvailableTo,
		CreatedBy:     v.ID,
		CreatedAt:     now,
	}
	if e.MaxAttempts == 0 {
		e.MaxAttempts = 1
	}
	if in.AvailableFrom != nil {
		e.AvailableFrom = in.AvailableFrom.UTC()
	}
	e.Questions = make([]Question, 0, len(in.Questions))
	seen := make(map[string]struct{}, len(in.Questions))
	for _, q := range in.Questions {
		id := q.ID
		if _, dup := seen[id]; id == "" || dup {
			id = uuid.NewString()
		}
		seen[id] = struct{}{}
		e.Questions = append(e.Questions, Question{
			ID:            id,
			Question:      q.Question,
			Type:          q.Type,
			Options:       q.Options,
			CorrectAnswer: q.CorrectAnswer,
			Marks:         q.Marks,
		})
	}
	if err := s.store.CreateExam(ctx, e); err != nil {
		return Exam{}, err
	}
	logger.Info().Str("exam_id", e.ID).Str("created_by", v.ID).Int("questions", len(e.Questions)).Msg("exam created")
	return e, nil
}

// ListExams returns every exam to admins and only the currently available
// ones, redacted, to students.
func (s *Service) ListExams(ctx context.Context, v Viewer) ([]Exam, error) {
	opts := ListOpts{}
	if v.Role != rbac.RoleAdmin {
		now := s.now()
		opts.AvailableAt = &now
	}
	exams, err := s.store.ListExams(ctx, opts)
	if err != nil {
		return nil, err
	}
	return forViewerAll(v, exams), nil
}

func (s *Service) GetExam(ctx context.Context, v Viewer, id string) (Exam, error) {
	e, err := s.store.GetExam(ctx, id)
	if err != nil {
		return Exam{}, err
	}
	if v.Role != rbac.RoleAdmin && !e.IsPublished {
		return Exam{}, errExamUnavailable
	}
	return ForViewer(v, e), nil
}

func (s *Service) Publish(ctx context.Context, id string) (Exam, error) {
	return s.setExamPublished(ctx, id, true)
}

func (s *Service) Unpublish(ctx context.Context, id string) (Exam, error) {
	return s.setExamPublished(ctx, id, false)
}

func (s *Service) setExamPublished(ctx context.Context, id string, published bool) (Exam, error) {
	e, err := s.store.SetExamPublished(ctx, id, published, s.now().UTC())
	if err != nil {
		return Exam{}, err
	}
	typ := syncx.TypeExamUnpublished
	if published {
		typ = syncx.TypeExamPublished
	}
	s.record(ctx, typ, id, nil)
	return e, nil
}

// Attempts answers the read-only eligibility check for the calling student.
func (s *Service) Attempts(ctx context.Context, v Viewer, examID string) (Eligibility, error) {
	e, err := s.store.GetExam(ctx, examID)
	if err != nil {
		return Eligibility{}, err
	}
	used, err := s.store.CountAttempts(ctx, examID, v.ID)
	if err != nil {
		return Eligibility{}, err
	}
	el, _ := checkEligibility(e, used, s.now())
	return el, nil
}

// Submit grades the answers against the exam's key and stores the
// submission with an unpublished result. Eligibility is decided again
// inside the recording transaction.
func (s *Service) Submit(ctx context.Context, v Viewer, in SubmitInput) (SubmitOutcome, error) {
	if err := validation.Struct(in); err != nil {
		return SubmitOutcome{}, apperr.Validation("Missing required fields").WithDetails(apperr.DetailsOf(err))
	}
	answers := make([]grading.Answer, len(in.Answers))
	for i, a := range in.Answers {
		answers[i] = grading.Answer{QuestionID: a.QuestionID, SelectedOption: a.SelectedOption}
	}

	sub, res, err := s.store.RecordSubmission(ctx, in.ExamID, v.ID, func(e Exam, used int) (Submission, Result, error) {
		now := s.now()
		if _, err := checkEligibility(e, used, now); err != nil {
			return Submission{}, Result{}, err
		}
		sheet, err := grading.Score(ctx, s.grader, gradingQuestions(e.Questions), answers)
		if err != nil {
			return Submission{}, Result{}, err
		}
		lines := make([]Answer, len(sheet.Lines))
		for i, l := range sheet.Lines {
			lines[i] = Answer{
				QuestionID:     l.QuestionID,
				SelectedOption: l.SelectedOption,
				IsCorrect:      l.Correct,
				MarksObtained:  l.MarksObtained,
			}
		}
		sub := Submission{
			Answers:     lines,
			Score:       sheet.Score,
			TotalMarks:  sheet.Total,
			SubmittedAt: now.UTC(),
			TimeTaken:   *in.TimeTaken,
			IsEvaluated: true,
		}
		res := Result{
			Score:      sheet.Score,
			TotalMarks: sheet.Total,
			Percentage: sheet.Percentage,
			Grade:      sheet.Grade,
		}
		return sub, res, nil
	})
	if err != nil {
		return SubmitOutcome{}, err
	}

	s.record(ctx, syncx.TypeSubmissionRecorded, sub.ID, map[string]any{
		"examId":    sub.ExamID,
		"studentId": sub.StudentID,
		"attempt":   sub.AttemptNo,
		"score":     sub.Score,
		"total":     sub.TotalMarks,
	})
	logger.Info().Str("submission_id", sub.ID).Str("exam_id", sub.ExamID).Str("student_id", sub.StudentID).
		Int("attempt", sub.AttemptNo).Float64("score", sub.Score).Msg("submission recorded")

	return SubmitOutcome{
		SubmissionID: sub.ID,
		Score:        res.Score,
		TotalMarks:   res.TotalMarks,
		Percentage:   res.Percentage,
		Grade:        res.Grade,
	}, nil
}

func gradingQuestions(qs []Question) []grading.Q {
	out := make([]grading.Q, len(qs))
	for i, q := range qs {
		out[i] = grading.Q{ID: q.ID, Type: q.Type, Marks: q.Marks, CorrectAnswer: q.CorrectAnswer}
	}
	return out
}

// GetSubmission returns a submission to its owner or to an admin.
func (s *Service) GetSubmission(ctx context.Context, v Viewer, id string) (Submission, error) {
	sub, err := s.store.GetSubmission(ctx, id)
	if err != nil {
		return Submission{}, err
	}
	if v.Role != rbac.RoleAdmin && sub.StudentID != v.ID {
		return Submission{}, apperr.Forbidden("Unauthorized")
	}
	return sub, nil
}

func (s *Service) ListSubmissions(ctx context.Context, f SubmissionFilter) ([]Submission, error) {
	return s.store.ListSubmissions(ctx, f)
}

// DeleteExam removes the exam and everything graded against it. When an
// archive is configured the snapshot is written first and discarded again
// if the deletion fails.
func (s *Service) DeleteExam(ctx context.Context, id string) (CascadeReport, error) {
	var key string
	if s.archive != nil {
		var err error
		if key, err = s.snapshot(ctx, id); err != nil {
			return CascadeReport{}, err
		}
	}
	rep, err := s.store.DeleteExamCascade(ctx, id)
	if err != nil {
		if key != "" {
			if derr := s.archive.Delete(key); derr != nil {
				logger.Warn().Err(derr).Str("key", key).Msg("discard exam archive")
			}
		}
		return CascadeReport{}, err
	}
	rep.ArchiveKey = key
	s.record(ctx, syncx.TypeExamDeleted, id, rep)
	logger.Info().Str("exam_id", id).Int("submissions", rep.Submissions).Int("results", rep.Results).Msg("exam deleted")
	return rep, nil
}

type examArchive struct {
	Exam        Exam         `json:"exam"`
	Submissions []Submission `json:"submissions"`
	Results     []Result     `json:"results"`
	ArchivedAt  time.Time    `json:"archivedAt"`
}

func (s *Service) snapshot(ctx context.Context, id string) (string, error) {
	e, err := s.store.GetExam(ctx, id)
	if err != nil {
		return "", err
	}
	subs, err := s.store.ListSubmissions(ctx, SubmissionFilter{ExamID: id})
	if err != nil {
		return "", err
	}
	results, err := s.store.ListResults(ctx, ResultFilter{ExamID: id})
	if err != nil {
		return "", err
	}
	now := s.now().UTC()
	raw, err := json.Marshal(examArchive{Exam: e, Submissions: subs, Results: results, ArchivedAt: now})
	if err != nil {
		return "", err
	}
	key := fmt.Sprintf("exams/%s/%d.json", id, now.UnixMilli())
	if _, err := s.archive.Put(key, bytes.NewReader(raw)); err != nil {
		return "", fmt.Errorf("archive exam %s: %w", id, err)
	}
	return key, nil
}

var errArchiveNotFound = apperr.NotFound("Archive not found")

// Archive opens a snapshot written by DeleteExam. key is the archiveKey
// reported by the deletion.
func (s *Service) Archive(key string) (io.ReadCloser, error) {
	if s.archive == nil || !strings.HasPrefix(key, "exams/") {
		return nil, errArchiveNotFound
	}
	rc, err := s.archive.Get(key)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return nil, errArchiveNotFound
	case errors.Is(err, storage.ErrBadKey):
		return nil, apperr.Validation("invalid archive key")
	}
	return rc, err
}

// Overview backs the admin dashboard.
func (s *Service) Overview(ctx context.Context, recent int) (Overview, error) {
	exams, subs, err := s.store.Counts(ctx)
	if err != nil {
		return Overview{}, err
	}
	recentExams, err := s.store.ListExams(ctx, ListOpts{Limit: recent})
	if err != nil {
		return Overview{}, err
	}
	recentSubs, err := s.store.ListSubmissions(ctx, SubmissionFilter{Limit: recent})
	if err != nil {
		return Overview{}, err
	}
	return Overview{Exams: exams, Submissions: subs, RecentExams: recentExams, RecentSubmissions: recentSubs}, nil
}

func (s *Service) record(ctx context.Context, typ, key string, data any) {
	if s.events == nil {
		return
	}
	if err := s.events.Append(ctx, typ, key, data); err != nil {
		logger.Warn().Err(err).Str("type", typ).Str("key", key).Msg("append audit event")
	}
}
