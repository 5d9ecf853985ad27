package exam

import (
	"time"

	"github.com/mind-engage/examportal/internal/grading"
)

const (
	TypeMCQ = "mcq"
	TypeSAQ = "saq"
)

type Question struct {
	ID            string   `json:"id"`
	Question      string   `json:"question"`
	Type          string   `json:"type"` // mcq|saq
	Options       []string `json:"options,omitempty"`
	CorrectAnswer string   `json:"correctAnswer,omitempty"` // cleared for non-admin readers
	Marks         float64  `json:"marks"`
}

type Exam struct {
	ID            string     `json:"id"`
	Title         string     `json:"title"`
	Subject       string     `json:"subject"`
	Description   string     `json:"description,omitempty"`
	TimeLimit     int        `json:"timeLimit"` // minutes
	Questions     []Question `json:"questions"`
	MaxAttempts   int        `json:"maxAttempts"`
	IsPublished   bool       `json:"isPublished"`
	PublishedAt   *time.Time `json:"publishedAt,omitempty"`
	AvailableFrom time.Time  `json:"availableFrom"`
	AvailableTo   *time.Time `json:"availableTo,omitempty"`
	CreatedBy     string     `json:"createdBy"`
	CreatorName   string     `json:"createdByName,omitempty"`
	CreatedAt     time.Time  `json:"createdAt"`
}

// TotalMarks is the sum of effective marks over every question.
func (e Exam) TotalMarks() float64 {
	var t float64
	for _, q := range e.Questions {
		t += grading.EffectiveMarks(q.Marks)
	}
	return t
}

// Answer is one graded line of a submission.
type Answer struct {
	QuestionID     string  `json:"questionId"`
	SelectedOption string  `json:"selectedOption"`
	IsCorrect      bool    `json:"isCorrect"`
	MarksObtained  float64 `json:"marksObtained"`
}

type Submission struct {
	ID          string    `json:"id"`
	StudentID   string    `json:"studentId"`
	ExamID      string    `json:"examId"`
	AttemptNo   int       `json:"attemptNumber"`
	Answers     []Answer  `json:"answers"`
	Score       float64   `json:"score"`
	TotalMarks  float64   `json:"totalMarks"`
	SubmittedAt time.Time `json:"submittedAt"`
	TimeTaken   int       `json:"timeTaken"` // seconds
	IsEvaluated bool      `json:"isEvaluated"`

	// Filled from joins on read.
	ExamTitle    string `json:"examTitle,omitempty"`
	ExamSubject  string `json:"examSubject,omitempty"`
	StudentName  string `json:"studentName,omitempty"`
	StudentEmail string `json:"studentEmail,omitempty"`
}

type Result struct {
	ID           string     `json:"id"`
	StudentID    string     `json:"studentId"`
	ExamID       string     `json:"examId"`
	SubmissionID string     `json:"submissionId"`
	Score        float64    `json:"score"`
	TotalMarks   float64    `json:"totalMarks"`
	Percentage   float64    `json:"percentage"`
	Grade        string     `json:"grade"`
	IsPublished  bool       `json:"isPublished"`
	PublishedAt  *time.Time `json:"publishedAt,omitempty"`
	Remarks      string     `json:"remarks,omitempty"`

	ExamTitle    string `json:"examTitle,omitempty"`
	ExamSubject  string `json:"examSubject,omitempty"`
	StudentName  string `json:"studentName,omitempty"`
	StudentEmail string `json:"studentEmail,omitempty"`
}

// Viewer is the authenticated caller.
type Viewer struct {
	ID   string
	Role string
}

// Eligibility is the attempt gate's answer for one (student, exam) pair.
type Eligibility struct {
	Attempts    int  `json:"attempts"`
	MaxAttempts int  `json:"maxAttempts"`
	Allowed     bool `json:"allowed"`
}

type QuestionInput struct {
	ID            string   `json:"id"`
	Question      string   `json:"question" validate:"required,min=5"`
	Type          string   `json:"type" validate:"omitempty,oneof=mcq saq"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer" validate:"required"`
	Marks         float64  `json:"marks" validate:"gte=0"`
}

type ExamInput struct {
	Title         string          `json:"title" validate:"required,min=5,max=200"`
	Subject       string          `json:"subject" validate:"required,max=100"`
	Description   string          `json:"description" validate:"max=2000"`
	TimeLimit     int             `json:"timeLimit" validate:"required,min=1"`
	Questions     []QuestionInput `json:"questions" validate:"required,min=1,dive"`
	MaxAttempts   int             `json:"maxAttempts" validate:"omitempty,min=1"`
	AvailableFrom *time.Time      `json:"availableFrom"`
	AvailableTo   *time.Time      `json:"availableTo"`
}

type AnswerInput struct {
	QuestionID     string `json:"questionId"`
	SelectedOption string `json:"selectedOption"`
}

type SubmitInput struct {
	ExamID    string        `json:"examId" validate:"required"`
	Answers   []AnswerInput `json:"answers" validate:"required"`
	TimeTaken *int          `json:"timeTaken" validate:"required,gte=0"`
}

// SubmitOutcome is what the student sees right after submitting.
type SubmitOutcome struct {
	SubmissionID string  `json:"submissionId"`
	Score        float64 `json:"score"`
	TotalMarks   float64 `json:"totalMarks"`
	Percentage   float64 `json:"percentage"`
	Grade        string  `json:"grade"`
}

// CascadeReport counts what an exam deletion removed.
type CascadeReport struct {
	ExamID      string `json:"examId"`
	Submissions int    `json:"submissions"`
	Results     int    `json:"results"`
	ArchiveKey  string `json:"archiveKey,omitempty"`
}

type BulkFailure struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// BulkReport lists per-result outcomes of a bulk operation.
type BulkReport struct {
	Succeeded []string      `json:"succeeded"`
	Failed    []BulkFailure `json:"failed"`
}

type Overview struct {
	Exams             int          `json:"exams"`
	Submissions       int          `json:"submissions"`
	RecentExams       []Exam       `json:"recentExams"`
	RecentSubmissions []Submission `json:"recentSubmissions"`
}
