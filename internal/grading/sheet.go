package grading

import (
	"context"
	"fmt"
)

// Answer is one submitted (question, option) pair.
type Answer struct {
	QuestionID     string
	SelectedOption string
}

// Line is the graded form of an Answer that referenced a known question.
type Line struct {
	QuestionID     string
	SelectedOption string
	Correct        bool
	MarksObtained  float64
}

// Sheet is the aggregate outcome of grading one attempt.
type Sheet struct {
	Lines      []Line
	Score      float64
	Total      float64
	Percentage float64
	Grade      string
}

// Score grades answers against questions.
//
// Answers naming a question that is not in questions are dropped. Only the
// first answer per question counts, so Score never exceeds Total. Total is
// the sum over all questions, answered or not.
func Score(ctx context.Context, g Grader, questions []Q, answers []Answer) (Sheet, error) {
	byID := make(map[string]Q, len(questions))
	var sheet Sheet
	for _, q := range questions {
		byID[q.ID] = q
		sheet.Total += EffectiveMarks(q.Marks)
	}

	seen := make(map[string]struct{}, len(answers))
	sheet.Lines = make([]Line, 0, len(answers))
	for _, a := range answers {
		q, ok := byID[a.QuestionID]
		if !ok {
			continue
		}
		if _, dup := seen[a.QuestionID]; dup {
			continue
		}
		seen[a.QuestionID] = struct{}{}

		res, err := g.Grade(ctx, q, a.SelectedOption)
		if err != nil {
			return Sheet{}, fmt.Errorf("grade question %s: %w", q.ID, err)
		}
		sheet.Lines = append(sheet.Lines, Line{
			QuestionID:     a.QuestionID,
			SelectedOption: a.SelectedOption,
			Correct:        res.Correct,
			MarksObtained:  res.AutoPoints,
		})
		sheet.Score += res.AutoPoints
	}

	sheet.Percentage = Percentage(sheet.Score, sheet.Total)
	sheet.Grade = Letter(sheet.Percentage)
	return sheet, nil
}

// Percentage is score/total*100, or 0 when total is 0.
func Percentage(score, total float64) float64 {
	if total == 0 {
		return 0
	}
	return score / total * 100
}

var letterBands = []struct {
	min   float64
	grade string
}{
	{90, "A+"},
	{80, "A"},
	{70, "B+"},
	{60, "B"},
	{50, "C"},
	{40, "D"},
}

// Letter maps a percentage to a letter grade. Lower bounds are inclusive.
func Letter(pct float64) string {
	for _, b := range letterBands {
		if pct >= b.min {
			return b.grade
		}
	}
	return "F"
}
