package exam

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mind-engage/examportal/internal/apperr"
	"github.com/mind-engage/examportal/internal/db"
	"github.com/mind-engage/examportal/internal/logger"
)

// maxOrdinalRetries bounds how often a submission is re-attempted after
// losing the race for an attempt number.
const maxOrdinalRetries = 3

var (
	errExamNotFound       = apperr.NotFound("Exam not found")
	errSubmissionNotFound = apperr.NotFound("Submission not found")
	errResultNotFound     = apperr.NotFound("Result not found")
	errMaxAttempts        = apperr.Forbidden("Maximum attempts reached")
	errAttemptConflict    = apperr.Conflict("Another submission for this exam is in progress, please retry")
)

type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore { return &SQLStore{db: db} }

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ---- exams ----

const examSelect = `SELECT e.id,e.title,e.subject,e.description,e.time_limit_min,e.questions_json,
	e.max_attempts,e.is_published,e.published_at,e.available_from,e.available_to,
	e.created_by,e.created_at,COALESCE(u.name,'')
	FROM exams e LEFT JOIN users u ON u.id = e.created_by`

func (s *SQLStore) CreateExam(ctx context.Context, e Exam) error {
	qj, err := json.Marshal(e.Questions)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO exams
		(id,title,subject,description,time_limit_min,questions_json,max_attempts,is_published,published_at,available_from,available_to,created_by,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		e.ID, e.Title, e.Subject, e.Description, e.TimeLimit, string(qj), e.MaxAttempts,
		e.IsPublished, nullMillis(e.PublishedAt), e.AvailableFrom.UnixMilli(), nullMillis(e.AvailableTo),
		e.CreatedBy, e.CreatedAt.UnixMilli())
	if db.IsUniqueViolation(err) {
		return apperr.Conflict("exam already exists")
	}
	return err
}

func (s *SQLStore) GetExam(ctx context.Context, id string) (Exam, error) {
	return getExam(ctx, s.db, id)
}

func getExam(ctx context.Context, q queryer, id string) (Exam, error) {
	e, err := scanExam(q.QueryRowContext(ctx, examSelect+` WHERE e.id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Exam{}, errExamNotFound
	}
	return e, err
}

func (s *SQLStore) ListExams(ctx context.Context, opts ListOpts) ([]Exam, error) {
	query := examSelect
	var args []any
	if opts.AvailableAt != nil {
		at := opts.AvailableAt.UnixMilli()
		query += ` WHERE e.is_published=$1 AND e.available_from <= $2 AND (e.available_to IS NULL OR e.available_to >= $3)`
		args = append(args, true, at, at)
	}
	query += ` ORDER BY e.created_at DESC, e.id`
	if opts.Limit > 0 {
		args = append(args, opts.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Exam{}
	for rows.Next() {
		e, err := scanExam(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *SQLStore) SetExamPublished(ctx context.Context, id string, published bool, at time.Time) (Exam, error) {
	var publishedAt any
	if published {
		publishedAt = at.UnixMilli()
	}
	res, err := s.db.ExecContext(ctx, `UPDATE exams SET is_published=$1, published_at=$2 WHERE id=$3`, published, publishedAt, id)
	if err != nil {
		return Exam{}, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return Exam{}, err
	} else if n == 0 {
		return Exam{}, errExamNotFound
	}
	return s.GetExam(ctx, id)
}

func (s *SQLStore) DeleteExamCascade(ctx context.Context, id string) (CascadeReport, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return CascadeReport{}, err
	}
	defer tx.Rollback()

	var one int
	if err := tx.QueryRowContext(ctx, `SELECT 1 FROM exams WHERE id=$1`, id).Scan(&one); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return CascadeReport{}, errExamNotFound
		}
		return CascadeReport{}, err
	}

	rep := CascadeReport{ExamID: id}
	if rep.Results, err = execCount(ctx, tx, `DELETE FROM results WHERE exam_id=$1`, id); err != nil {
		return CascadeReport{}, fmt.Errorf("delete results: %w", err)
	}
	if rep.Submissions, err = execCount(ctx, tx, `DELETE FROM submissions WHERE exam_id=$1`, id); err != nil {
		return CascadeReport{}, fmt.Errorf("delete submissions: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM exams WHERE id=$1`, id); err != nil {
		return CascadeReport{}, fmt.Errorf("delete exam: %w", err)
	}
	return rep, tx.Commit()
}

// ---- submissions ----

const submissionSelect = `SELECT s.id,s.exam_id,s.student_id,s.attempt_no,s.answers_json,s.score,s.total_marks,
	s.time_taken_sec,s.is_evaluated,s.submitted_at,
	COALESCE(e.title,''),COALESCE(e.subject,''),COALESCE(u.name,''),COALESCE(u.email,'')
	FROM submissions s
	LEFT JOIN exams e ON e.id = s.exam_id
	LEFT JOIN users u ON u.id = s.student_id`

func (s *SQLStore) CountAttempts(ctx context.Context, examID, studentID string) (int, error) {
	return countAttempts(ctx, s.db, examID, studentID)
}

func countAttempts(ctx context.Context, q queryer, examID, studentID string) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT COUNT(1) FROM submissions WHERE exam_id=$1 AND student_id=$2`, examID, studentID).Scan(&n)
	return n, err
}

// nextAttemptNo follows the highest stored ordinal. Deleted submissions
// leave gaps, so the count of rows cannot be used here.
func nextAttemptNo(ctx context.Context, q queryer, examID, studentID string) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT COALESCE(MAX(attempt_no),0) FROM submissions WHERE exam_id=$1 AND student_id=$2`, examID, studentID).Scan(&n)
	return n + 1, err
}

// RecordSubmission reads the exam and the attempt count, lets build decide
// and grade, then inserts the submission and its unpublished result in one
// transaction. The (exam, student, attempt number) unique index turns a lost
// race into a retry, which then sees the higher count. Running out of
// retries is a conflict, not an exhausted attempt budget.
func (s *SQLStore) RecordSubmission(ctx context.Context, examID, studentID string, build BuildFunc) (Submission, Result, error) {
	for i := 0; i < maxOrdinalRetries; i++ {
		sub, res, err := s.recordOnce(ctx, examID, studentID, build)
		if db.IsUniqueViolation(err) {
			logger.Debug().Err(err).Str("exam_id", examID).Str("student_id", studentID).Int("try", i+1).
				Msg("attempt number taken, retrying")
			continue
		}
		return sub, res, err
	}
	return Submission{}, Result{}, errAttemptConflict
}

func (s *SQLStore) recordOnce(ctx context.Context, examID, studentID string, build BuildFunc) (Submission, Result, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Submission{}, Result{}, err
	}
	defer tx.Rollback()

	e, err := getExam(ctx, tx, examID)
	if err != nil {
		return Submission{}, Result{}, err
	}
	used, err := countAttempts(ctx, tx, examID, studentID)
	if err != nil {
		return Submission{}, Result{}, err
	}
	next, err := nextAttemptNo(ctx, tx, examID, studentID)
	if err != nil {
		return Submission{}, Result{}, err
	}
	sub, res, err := build(e, used)
	if err != nil {
		return Submission{}, Result{}, err
	}

	if sub.ID == "" {
		sub.ID = uuid.NewString()
	}
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	sub.ExamID, sub.StudentID, sub.AttemptNo = examID, studentID, next
	res.ExamID, res.StudentID, res.SubmissionID = examID, studentID, sub.ID
	res.IsPublished, res.PublishedAt = false, nil

	aj, err := json.Marshal(sub.Answers)
	if err != nil {
		return Submission{}, Result{}, err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO submissions
		(id,exam_id,student_id,attempt_no,answers_json,score,total_marks,time_taken_sec,is_evaluated,submitted_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		sub.ID, sub.ExamID, sub.StudentID, sub.AttemptNo, string(aj), sub.Score, sub.TotalMarks,
		sub.TimeTaken, sub.IsEvaluated, sub.SubmittedAt.UnixMilli()); err != nil {
		return Submission{}, Result{}, err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO results
		(id,exam_id,student_id,submission_id,score,total_marks,percentage,grade,is_published,published_at,remarks)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)`,
		res.ID, res.ExamID, res.StudentID, res.SubmissionID, res.Score, res.TotalMarks, res.Percentage,
		res.Grade, false, nil, res.Remarks); err != nil {
		return Submission{}, Result{}, err
	}
	if err := tx.Commit(); err != nil {
		return Submission{}, Result{}, err
	}
	return sub, res, nil
}

func (s *SQLStore) GetSubmission(ctx context.Context, id string) (Submission, error) {
	sub, err := scanSubmission(s.db.QueryRowContext(ctx, submissionSelect+` WHERE s.id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Submission{}, errSubmissionNotFound
	}
	return sub, err
}

func (s *SQLStore) ListSubmissions(ctx context.Context, f SubmissionFilter) ([]Submission, error) {
	var w where
	if f.ExamID != "" {
		w.add("s.exam_id", f.ExamID)
	}
	if f.StudentID != "" {
		w.add("s.student_id", f.StudentID)
	}
	query := submissionSelect + w.sql() + ` ORDER BY s.submitted_at DESC, s.id`
	args := w.args
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(` LIMIT $%d`, len(args))
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Submission{}
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, rows.Err()
}

// ---- results ----

const resultSelect = `SELECT r.id,r.exam_id,r.student_id,r.submission_id,r.score,r.total_marks,r.percentage,
	r.grade,r.is_published,r.published_at,r.remarks,
	COALESCE(e.title,''),COALESCE(e.subject,''),COALESCE(u.name,''),COALESCE(u.email,'')
	FROM results r
	LEFT JOIN exams e ON e.id = r.exam_id
	LEFT JOIN users u ON u.id = r.student_id`

func (s *SQLStore) GetResult(ctx context.Context, id string) (Result, error) {
	return getResult(ctx, s.db, id)
}

func getResult(ctx context.Context, q queryer, id string) (Result, error) {
	r, err := scanResult(q.QueryRowContext(ctx, resultSelect+` WHERE r.id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Result{}, errResultNotFound
	}
	return r, err
}

func (s *SQLStore) ListResults(ctx context.Context, f ResultFilter) ([]Result, error) {
	var w where
	if f.ExamID != "" {
		w.add("r.exam_id", f.ExamID)
	}
	if f.StudentID != "" {
		w.add("r.student_id", f.StudentID)
	}
	if f.PublishedOnly {
		w.add("r.is_published", true)
	}
	rows, err := s.db.QueryContext(ctx, resultSelect+w.sql()+` ORDER BY r.id`, w.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Result{}
	for rows.Next() {
		r, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLStore) SetResultPublished(ctx context.Context, id string, published bool, at time.Time) (Result, error) {
	var publishedAt any
	if published {
		publishedAt = at.UnixMilli()
	}
	n, err := execCount(ctx, s.db, `UPDATE results SET is_published=$1, published_at=$2 WHERE id=$3`, published, publishedAt, id)
	if err != nil {
		return Result{}, err
	}
	if n == 0 {
		return Result{}, errResultNotFound
	}
	return s.GetResult(ctx, id)
}

func (s *SQLStore) DeleteResult(ctx context.Context, id string) (Result, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Result{}, err
	}
	defer tx.Rollback()

	r, err := getResult(ctx, tx, id)
	if err != nil {
		return Result{}, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM results WHERE id=$1`, id); err != nil {
		return Result{}, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM submissions WHERE id=$1`, r.SubmissionID); err != nil {
		return Result{}, err
	}
	return r, tx.Commit()
}

func (s *SQLStore) Counts(ctx context.Context) (exams, submissions int, err error) {
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM exams`).Scan(&exams); err != nil {
		return 0, 0, err
	}
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM submissions`).Scan(&submissions); err != nil {
		return 0, 0, err
	}
	return exams, submissions, nil
}

// ---- helpers ----

type scanner interface {
	Scan(dest ...any) error
}

func scanExam(sc scanner) (Exam, error) {
	var (
		e                     Exam
		qjson                 string
		published, available  sql.NullInt64
		availableFrom, create int64
	)
	if err := sc.Scan(&e.ID, &e.Title, &e.Subject, &e.Description, &e.TimeLimit, &qjson,
		&e.MaxAttempts, &e.IsPublished, &published, &availableFrom, &available,
		&e.CreatedBy, &create, &e.CreatorName); err != nil {
		return Exam{}, err
	}
	if err := json.Unmarshal([]byte(qjson), &e.Questions); err != nil {
		return Exam{}, fmt.Errorf("decode questions of exam %s: %w", e.ID, err)
	}
	e.PublishedAt = timePtr(published)
	e.AvailableFrom = fromMillis(availableFrom)
	e.AvailableTo = timePtr(available)
	e.CreatedAt = fromMillis(create)
	return e, nil
}

func scanSubmission(sc scanner) (Submission, error) {
	var (
		sub       Submission
		ajson     string
		submitted int64
	)
	if err := sc.Scan(&sub.ID, &sub.ExamID, &sub.StudentID, &sub.AttemptNo, &ajson, &sub.Score, &sub.TotalMarks,
		&sub.TimeTaken, &sub.IsEvaluated, &submitted,
		&sub.ExamTitle, &sub.ExamSubject, &sub.StudentName, &sub.StudentEmail); err != nil {
		return Submission{}, err
	}
	if err := json.Unmarshal([]byte(ajson), &sub.Answers); err != nil {
		return Submission{}, fmt.Errorf("decode answers of submission %s: %w", sub.ID, err)
	}
	if sub.Answers == nil {
		sub.Answers = []Answer{}
	}
	sub.SubmittedAt = fromMillis(submitted)
	return sub, nil
}

func scanResult(sc scanner) (Result, error) {
	var (
		r         Result
		published sql.NullInt64
	)
	if err := sc.Scan(&r.ID, &r.ExamID, &r.StudentID, &r.SubmissionID, &r.Score, &r.TotalMarks, &r.Percentage,
		&r.Grade, &r.IsPublished, &published, &r.Remarks,
		&r.ExamTitle, &r.ExamSubject, &r.StudentName, &r.StudentEmail); err != nil {
		return Result{}, err
	}
	r.PublishedAt = timePtr(published)
	return r, nil
}

// where accumulates equality predicates with numbered placeholders.
type where struct {
	clauses []string
	args    []any
}

func (w *where) add(col string, v any) {
	w.args = append(w.args, v)
	w.clauses = append(w.clauses, fmt.Sprintf("%s=$%d", col, len(w.args)))
}

func (w *where) sql() string {
	if len(w.clauses) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.clauses, " AND ")
}

func execCount(ctx context.Context, q queryer, query string, args ...any) (int, error) {
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func fromMillis(ms int64) time.Time { return time.UnixMilli(ms).UTC() }

func timePtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

func nullMillis(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixMilli()
}
