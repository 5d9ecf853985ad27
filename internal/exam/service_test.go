package exam

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mind-engage/examportal/internal/apperr"
	"github.com/mind-engage/examportal/internal/db/dbtest"
	"github.com/mind-engage/examportal/internal/rbac"
	"github.com/mind-engage/examportal/internal/storage"
	syncx "github.com/mind-engage/examportal/internal/sync"
)

var (
	admin   = Viewer{ID: "admin-1", Role: rbac.RoleAdmin}
	student = Viewer{ID: "stu-1", Role: rbac.RoleStudent}
	t0      = time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC)
)

type testEnv struct {
	svc        *Service
	store      *SQLStore
	events     *syncx.EventRepo
	archiveDir string
}

func newEnv(t *testing.T, opts ...Option) *testEnv {
	t.Helper()
	dbh := dbtest.Open(t)
	store := NewSQLStore(dbh)
	events := syncx.NewEventRepo(dbh, "test")
	dir := t.TempDir()
	archive, err := storage.NewFSStore(dir)
	require.NoError(t, err)
	base := []Option{
		WithEvents(events),
		WithArchive(archive),
		WithClock(func() time.Time { return t0 }),
		WithBulkLimit(4),
	}
	return &testEnv{
		svc:        NewService(store, append(base, opts...)...),
		store:      store,
		events:     events,
		archiveDir: dir,
	}
}

func intp(v int) *int { return &v }

func sampleInput() ExamInput {
	return ExamInput{
		Title:     "Basics quiz",
		Subject:   "General",
		TimeLimit: 10,
		Questions: []QuestionInput{
			{ID: "q1", Question: "What is 2 + 2?", Options: []string{"3", "4"}, CorrectAnswer: "4", Marks: 1},
			{ID: "q2", Question: "Capital of France?", Options: []string{"Paris", "Lyon"}, CorrectAnswer: "Paris", Marks: 2},
		},
	}
}

func (e *testEnv) publishedExam(t *testing.T, in ExamInput) Exam {
	t.Helper()
	ctx := context.Background()
	ex, err := e.svc.CreateExam(ctx, admin, in)
	require.NoError(t, err)
	ex, err = e.svc.Publish(ctx, ex.ID)
	require.NoError(t, err)
	return ex
}

func submitFor(v Viewer, examID string) SubmitInput {
	return SubmitInput{
		ExamID:    examID,
		TimeTaken: intp(120),
		Answers: []AnswerInput{
			{QuestionID: "q1", SelectedOption: "4"},
			{QuestionID: "q2", SelectedOption: "Lyon"},
		},
	}
}

func TestCreateExamDefaults(t *testing.T) {
	env := newEnv(t)
	in := sampleInput()
	in.Questions = append(in.Questions, QuestionInput{Question: "Name a prime number", Type: TypeSAQ, CorrectAnswer: "2"})
	in.Questions[1].ID = "q1" // duplicate id gets replaced

	ex, err := env.svc.CreateExam(context.Background(), admin, in)
	require.NoError(t, err)
	assert.Equal(t, 1, ex.MaxAttempts)
	assert.False(t, ex.IsPublished)
	assert.Nil(t, ex.PublishedAt)
	assert.True(t, ex.AvailableFrom.Equal(t0))
	assert.Equal(t, admin.ID, ex.CreatedBy)
	require.Len(t, ex.Questions, 3)
	assert.Equal(t, "q1", ex.Questions[0].ID)
	assert.NotEqual(t, "q1", ex.Questions[1].ID)
	assert.NotEmpty(t, ex.Questions[2].ID)
	assert.Equal(t, TypeSAQ, ex.Questions[2].Type)
	assert.Equal(t, 1.0, ex.Questions[2].Marks)
	assert.Equal(t, 4.0, ex.TotalMarks())

	stored, err := env.store.GetExam(context.Background(), ex.ID)
	require.NoError(t, err)
	assert.Equal(t, ex.Questions, stored.Questions)
}

func TestCreateExamValidation(t *testing.T) {
	past := t0.Add(-time.Hour)
	tests := []struct {
		name   string
		mutate func(*ExamInput)
	}{
		{"short title", func(in *ExamInput) { in.Title = "Quiz" }},
		{"missing subject", func(in *ExamInput) { in.Subject = " " }},
		{"no questions", func(in *ExamInput) { in.Questions = nil }},
		{"short question", func(in *ExamInput) { in.Questions[0].Question = "2+2" }},
		{"missing answer", func(in *ExamInput) { in.Questions[0].CorrectAnswer = "" }},
		{"one option", func(in *ExamInput) { in.Questions[0].Options = []string{"4"} }},
		{"answer not an option", func(in *ExamInput) { in.Questions[0].CorrectAnswer = "5" }},
		{"zero time limit", func(in *ExamInput) { in.TimeLimit = 0 }},
		{"negative attempts", func(in *ExamInput) { in.MaxAttempts = -1 }},
		{"negative marks", func(in *ExamInput) { in.Questions[1].Marks = -2 }},
		{"unknown type", func(in *ExamInput) { in.Questions[0].Type = "essay" }},
		{"window inverted", func(in *ExamInput) { in.AvailableFrom = &t0; in.AvailableTo = &past }},
	}
	env := newEnv(t)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			in := sampleInput()
			tc.mutate(&in)
			_, err := env.svc.CreateExam(context.Background(), admin, in)
			assert.True(t, errors.Is(err, apperr.ErrValidation), "got %v", err)
		})
	}
}

func TestSubmitTwoQuestionScenario(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	ex := env.publishedExam(t, sampleInput())

	out, err := env.svc.Submit(ctx, student, submitFor(student, ex.ID))
	require.NoError(t, err)
	assert.Equal(t, 1.0, out.Score)
	assert.Equal(t, 3.0, out.TotalMarks)
	assert.InDelta(t, 33.33, out.Percentage, 0.01)
	assert.Equal(t, "F", out.Grade)

	sub, err := env.svc.GetSubmission(ctx, student, out.SubmissionID)
	require.NoError(t, err)
	assert.Equal(t, 1, sub.AttemptNo)
	assert.Equal(t, 120, sub.TimeTaken)
	assert.True(t, sub.IsEvaluated)
	assert.Equal(t, ex.Title, sub.ExamTitle)
	assert.Equal(t, []Answer{
		{QuestionID: "q1", SelectedOption: "4", IsCorrect: true, MarksObtained: 1},
		{QuestionID: "q2", SelectedOption: "Lyon", IsCorrect: false, MarksObtained: 0},
	}, sub.Answers)

	mine, err := env.svc.MyResults(ctx, student)
	require.NoError(t, err)
	assert.Empty(t, mine, "new results start unpublished")

	all, err := env.svc.ListResults(ctx, ResultFilter{ExamID: ex.ID})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.False(t, all[0].IsPublished)
	assert.Equal(t, out.SubmissionID, all[0].SubmissionID)

	evs, err := env.events.Since(ctx, 0, 0)
	require.NoError(t, err)
	var types []string
	for _, e := range evs {
		types = append(types, e.Type)
	}
	assert.Equal(t, []string{syncx.TypeExamPublished, syncx.TypeSubmissionRecorded}, types)
}

func TestSubmitDropsUnknownQuestions(t *testing.T) {
	env := newEnv(t)
	ex := env.publishedExam(t, sampleInput())
	in := SubmitInput{ExamID: ex.ID, TimeTaken: intp(0), Answers: []AnswerInput{
		{QuestionID: "ghost", SelectedOption: "4"},
		{QuestionID: "q2", SelectedOption: "Paris"},
	}}
	out, err := env.svc.Submit(context.Background(), student, in)
	require.NoError(t, err)
	assert.Equal(t, 2.0, out.Score)

	sub, err := env.store.GetSubmission(context.Background(), out.SubmissionID)
	require.NoError(t, err)
	require.Len(t, sub.Answers, 1)
	assert.Equal(t, "q2", sub.Answers[0].QuestionID)
}

func TestSubmitRequiresFields(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	ex := env.publishedExam(t, sampleInput())

	for name, in := range map[string]SubmitInput{
		"no exam":    {Answers: []AnswerInput{}, TimeTaken: intp(5)},
		"no answers": {ExamID: ex.ID, TimeTaken: intp(5)},
		"no time":    {ExamID: ex.ID, Answers: []AnswerInput{}},
	} {
		_, err := env.svc.Submit(ctx, student, in)
		assert.True(t, errors.Is(err, apperr.ErrValidation), name)
	}

	_, err := env.svc.Submit(ctx, student, SubmitInput{ExamID: "missing", Answers: []AnswerInput{}, TimeTaken: intp(5)})
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestSubmitRespectsAttemptLimit(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	ex := env.publishedExam(t, sampleInput())

	el, err := env.svc.Attempts(ctx, student, ex.ID)
	require.NoError(t, err)
	assert.Equal(t, Eligibility{Attempts: 0, MaxAttempts: 1, Allowed: true}, el)

	_, err = env.svc.Submit(ctx, student, submitFor(student, ex.ID))
	require.NoError(t, err)

	_, err = env.svc.Submit(ctx, student, submitFor(student, ex.ID))
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrForbidden))
	assert.Equal(t, "Maximum attempts reached", err.Error())

	el, err = env.svc.Attempts(ctx, student, ex.ID)
	require.NoError(t, err)
	assert.Equal(t, Eligibility{Attempts: 1, MaxAttempts: 1, Allowed: false}, el)

	other := Viewer{ID: "stu-2", Role: rbac.RoleStudent}
	_, err = env.svc.Submit(ctx, other, submitFor(other, ex.ID))
	assert.NoError(t, err, "limits are per student")
}

func TestConcurrentSubmissionsNeverExceedMaxAttempts(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	in := sampleInput()
	in.MaxAttempts = 2
	ex := env.publishedExam(t, in)

	const racers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		ok        int
		forbidden int
	)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := env.svc.Submit(ctx, student, submitFor(student, ex.ID))
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case errors.Is(err, apperr.ErrForbidden):
				forbidden++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 2, ok)
	assert.Equal(t, racers-2, forbidden)

	subs, err := env.svc.ListSubmissions(ctx, SubmissionFilter{ExamID: ex.ID, StudentID: student.ID})
	require.NoError(t, err)
	require.Len(t, subs, 2)
	ordinals := map[int]bool{}
	for _, s := range subs {
		ordinals[s.AttemptNo] = true
	}
	assert.Equal(t, map[int]bool{1: true, 2: true}, ordinals)
}

func TestDeletingEarlierResultFreesAnAttempt(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	in := sampleInput()
	in.MaxAttempts = 2
	ex := env.publishedExam(t, in)

	first, err := env.svc.Submit(ctx, student, submitFor(student, ex.ID))
	require.NoError(t, err)
	_, err = env.svc.Submit(ctx, student, submitFor(student, ex.ID))
	require.NoError(t, err)

	results, err := env.svc.ListResults(ctx, ResultFilter{ExamID: ex.ID, StudentID: student.ID})
	require.NoError(t, err)
	var firstResult string
	for _, r := range results {
		if r.SubmissionID == first.SubmissionID {
			firstResult = r.ID
		}
	}
	require.NotEmpty(t, firstResult)
	require.NoError(t, env.svc.DeleteResult(ctx, firstResult))

	el, err := env.svc.Attempts(ctx, student, ex.ID)
	require.NoError(t, err)
	assert.Equal(t, Eligibility{Attempts: 1, MaxAttempts: 2, Allowed: true}, el)

	third, err := env.svc.Submit(ctx, student, submitFor(student, ex.ID))
	require.NoError(t, err, "the gate and the recorder agree")
	sub, err := env.svc.GetSubmission(ctx, student, third.SubmissionID)
	require.NoError(t, err)
	assert.Equal(t, 3, sub.AttemptNo, "ordinals continue past the gap")

	_, err = env.svc.Submit(ctx, student, submitFor(student, ex.ID))
	assert.True(t, errors.Is(err, apperr.ErrForbidden))
}

func TestRecordSubmissionConflictAfterRetries(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	ex := env.publishedExam(t, sampleInput())
	taken, err := env.svc.Submit(ctx, student, submitFor(student, ex.ID))
	require.NoError(t, err)

	calls := 0
	_, _, err = env.store.RecordSubmission(ctx, ex.ID, "stu-2", func(Exam, int) (Submission, Result, error) {
		calls++
		return Submission{ID: taken.SubmissionID, SubmittedAt: t0}, Result{Grade: "F"}, nil
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrConflict))
	assert.False(t, errors.Is(err, apperr.ErrForbidden), "retries running out is not an attempt limit")
	assert.Equal(t, maxOrdinalRetries, calls)

	n, err := env.store.CountAttempts(ctx, ex.ID, "stu-2")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSubmitRejectsUnavailableExams(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	draft, err := env.svc.CreateExam(ctx, admin, sampleInput())
	require.NoError(t, err)
	_, err = env.svc.Submit(ctx, student, submitFor(student, draft.ID))
	assert.Equal(t, "Exam not available", err.Error())
	assert.True(t, errors.Is(err, apperr.ErrForbidden))

	el, err := env.svc.Attempts(ctx, student, draft.ID)
	require.NoError(t, err)
	assert.False(t, el.Allowed)

	in := sampleInput()
	closed := t0.Add(-time.Minute)
	from := t0.Add(-time.Hour)
	in.AvailableFrom, in.AvailableTo = &from, &closed
	expired := env.publishedExam(t, in)
	_, err = env.svc.Submit(ctx, student, submitFor(student, expired.ID))
	assert.True(t, errors.Is(err, apperr.ErrForbidden))
}

func TestGetExamGatesAndRedacts(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	draft, err := env.svc.CreateExam(ctx, admin, sampleInput())
	require.NoError(t, err)
	_, err = env.svc.GetExam(ctx, student, draft.ID)
	assert.True(t, errors.Is(err, apperr.ErrForbidden))

	_, err = env.svc.GetExam(ctx, student, "nope")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))

	_, err = env.svc.Publish(ctx, draft.ID)
	require.NoError(t, err)

	got, err := env.svc.GetExam(ctx, student, draft.ID)
	require.NoError(t, err)
	raw, err := json.Marshal(got)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "correctAnswer")

	full, err := env.svc.GetExam(ctx, admin, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, "4", full.Questions[0].CorrectAnswer)
}

func TestListExamsForStudents(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	mk := func(title string, from, to *time.Time, publish bool) Exam {
		in := sampleInput()
		in.Title = title
		in.AvailableFrom, in.AvailableTo = from, to
		ex, err := env.svc.CreateExam(ctx, admin, in)
		require.NoError(t, err)
		if publish {
			ex, err = env.svc.Publish(ctx, ex.ID)
			require.NoError(t, err)
		}
		return ex
	}
	past, future := t0.Add(-time.Hour), t0.Add(time.Hour)
	longAgo := t0.Add(-2 * time.Hour)
	mk("Draft exam", nil, nil, false)
	mk("Future exam", &future, nil, true)
	mk("Closed exam", &longAgo, &past, true)
	open := mk("Open exam", nil, &future, true)

	exams, err := env.svc.ListExams(ctx, student)
	require.NoError(t, err)
	require.Len(t, exams, 1)
	assert.Equal(t, open.ID, exams[0].ID)
	raw, err := json.Marshal(exams)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "correctAnswer")

	all, err := env.svc.ListExams(ctx, admin)
	require.NoError(t, err)
	assert.Len(t, all, 4)
	raw, err = json.Marshal(all)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "correctAnswer")
}

func TestUnpublishClearsPublishedAt(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	ex := env.publishedExam(t, sampleInput())
	require.NotNil(t, ex.PublishedAt)
	assert.True(t, ex.PublishedAt.Equal(t0))

	ex, err := env.svc.Unpublish(ctx, ex.ID)
	require.NoError(t, err)
	assert.False(t, ex.IsPublished)
	assert.Nil(t, ex.PublishedAt)

	_, err = env.svc.Publish(ctx, "missing")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func TestGetSubmissionOwnership(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	ex := env.publishedExam(t, sampleInput())
	out, err := env.svc.Submit(ctx, student, submitFor(student, ex.ID))
	require.NoError(t, err)

	_, err = env.svc.GetSubmission(ctx, Viewer{ID: "stu-2", Role: rbac.RoleStudent}, out.SubmissionID)
	assert.True(t, errors.Is(err, apperr.ErrForbidden))

	_, err = env.svc.GetSubmission(ctx, admin, out.SubmissionID)
	assert.NoError(t, err)

	_, err = env.svc.GetSubmission(ctx, admin, "missing")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

func submitMany(t *testing.T, env *testEnv, examID string, n int) []string {
	t.Helper()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		v := Viewer{ID: fmt.Sprintf("stu-%d", i), Role: rbac.RoleStudent}
		out, err := env.svc.Submit(context.Background(), v, submitFor(v, examID))
		require.NoError(t, err)
		ids = append(ids, out.SubmissionID)
	}
	return ids
}

func TestDeleteExamCascades(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	ex := env.publishedExam(t, sampleInput())
	submitMany(t, env, ex.ID, 3)

	rep, err := env.svc.DeleteExam(ctx, ex.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Submissions)
	assert.Equal(t, 3, rep.Results)
	require.NotEmpty(t, rep.ArchiveKey)

	_, err = env.store.GetExam(ctx, ex.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	subs, err := env.store.ListSubmissions(ctx, SubmissionFilter{ExamID: ex.ID})
	require.NoError(t, err)
	assert.Empty(t, subs)
	results, err := env.store.ListResults(ctx, ResultFilter{ExamID: ex.ID})
	require.NoError(t, err)
	assert.Empty(t, results)

	raw, err := os.ReadFile(filepath.Join(env.archiveDir, rep.ArchiveKey))
	require.NoError(t, err)
	var snap examArchive
	require.NoError(t, json.Unmarshal(raw, &snap))
	assert.Equal(t, ex.ID, snap.Exam.ID)
	assert.Len(t, snap.Submissions, 3)
	assert.Len(t, snap.Results, 3)
	assert.Equal(t, "4", snap.Exam.Questions[0].CorrectAnswer)

	rc, err := env.svc.Archive(rep.ArchiveKey)
	require.NoError(t, err)
	streamed, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, raw, streamed)

	_, err = env.svc.Archive("exams/" + ex.ID + "/0.json")
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
	_, err = env.svc.Archive("exams/../../secrets")
	assert.True(t, errors.Is(err, apperr.ErrValidation))

	_, err = env.svc.DeleteExam(ctx, ex.ID)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}

type failingCascadeStore struct {
	*SQLStore
}

func (failingCascadeStore) DeleteExamCascade(context.Context, string) (CascadeReport, error) {
	return CascadeReport{}, errors.New("disk on fire")
}

func TestDeleteExamDiscardsArchiveOnFailure(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	ex := env.publishedExam(t, sampleInput())

	archive, err := storage.NewFSStore(env.archiveDir)
	require.NoError(t, err)
	svc := NewService(failingCascadeStore{env.store}, WithArchive(archive), WithClock(func() time.Time { return t0 }))

	_, err = svc.DeleteExam(ctx, ex.ID)
	require.Error(t, err)

	left, err := filepath.Glob(filepath.Join(env.archiveDir, "exams", ex.ID, "*.json"))
	require.NoError(t, err)
	assert.Empty(t, left)

	_, err = env.store.GetExam(ctx, ex.ID)
	assert.NoError(t, err)
}

func TestOverview(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()
	for i := 0; i < 6; i++ {
		in := sampleInput()
		in.Title = fmt.Sprintf("Exam number %d", i)
		env.publishedExam(t, in)
	}
	exams, err := env.svc.ListExams(ctx, admin)
	require.NoError(t, err)
	submitMany(t, env, exams[0].ID, 2)

	ov, err := env.svc.Overview(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, 6, ov.Exams)
	assert.Equal(t, 2, ov.Submissions)
	assert.Len(t, ov.RecentExams, 5)
	assert.Len(t, ov.RecentSubmissions, 2)
}
