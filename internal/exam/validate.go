package exam

import (
	"fmt"
	"slices"
	"strings"

	"github.com/mind-engage/examportal/internal/apperr"
	"github.com/mind-engage/examportal/internal/validation"
)

// validateExamInput runs the tag rules and then the cross-field ones tags
// cannot express.
func validateExamInput(in ExamInput) error {
	if err := validation.Struct(in); err != nil {
		return err
	}
	for i, q := range in.Questions {
		typ := q.Type
		if typ == "" {
			typ = TypeMCQ
		}
		if typ != TypeMCQ {
			continue
		}
		if len(q.Options) < 2 {
			return apperr.Validation(fmt.Sprintf("questions[%d]: multiple choice questions need at least 2 options", i))
		}
		if !slices.Contains(q.Options, q.CorrectAnswer) {
			return apperr.Validation(fmt.Sprintf("questions[%d]: correctAnswer must be one of the options", i))
		}
	}
	if in.AvailableFrom != nil && in.AvailableTo != nil && in.AvailableTo.Before(*in.AvailableFrom) {
		return apperr.Validation("availableTo must not be before availableFrom")
	}
	return nil
}

func normalizeQuestion(q QuestionInput) QuestionInput {
	q.Question = strings.TrimSpace(q.Question)
	if q.Type == "" {
		q.Type = TypeMCQ
	}
	if q.Marks == 0 {
		q.Marks = 1
	}
	return q
}
