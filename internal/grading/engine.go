package grading

import (
	"context"
)

// Q is a minimal view of a question needed for grading.
type Q struct {
	ID            string
	Type          string
	Marks         float64
	CorrectAnswer string
}

// Result is the outcome of grading a single question response.
type Result struct {
	Correct    bool
	AutoPoints float64 // points awarded automatically
	MaxPoints  float64 // the question's max points
}

// Strategy grades a single question.
type Strategy interface {
	Grade(ctx context.Context, q Q, selected string) (Result, error)
}

// Grader routes by question type to the correct Strategy.
type Grader interface {
	Grade(ctx context.Context, q Q, selected string) (Result, error)
}

type defaultGrader struct {
	strategies map[string]Strategy
	fallback   Strategy
}

func (g *defaultGrader) Grade(ctx context.Context, q Q, selected string) (Result, error) {
	s, ok := g.strategies[q.Type]
	if !ok {
		s = g.fallback
	}
	return s.Grade(ctx, q, selected)
}

// Engine options

type Option func(*config)

type config struct {
	strategies map[string]Strategy
}

// WithStrategy installs or replaces the strategy for a question type.
func WithStrategy(qType string, s Strategy) Option {
	return func(c *config) { c.strategies[qType] = s }
}

// NewDefaultGrader installs built-in strategies. Unknown question types are
// graded by exact match as well.
func NewDefaultGrader(opts ...Option) Grader {
	cfg := &config{
		strategies: map[string]Strategy{
			"mcq": exactMatchStrategy{},
			"saq": exactMatchStrategy{},
		},
	}
	for _, o := range opts {
		o(cfg)
	}
	return &defaultGrader{strategies: cfg.strategies, fallback: exactMatchStrategy{}}
}

// EffectiveMarks is the point value of a question; zero means the default of 1.
func EffectiveMarks(m float64) float64 {
	if m == 0 {
		return 1
	}
	return m
}

// --- Strategies ---

// exactMatchStrategy awards full marks on byte-for-byte equality with the
// stored answer. No trimming or case folding: the options a student can
// pick are the stored strings themselves.
type exactMatchStrategy struct{}

func (exactMatchStrategy) Grade(_ context.Context, q Q, selected string) (Result, error) {
	maxPts := EffectiveMarks(q.Marks)
	res := Result{MaxPoints: maxPts}
	if selected == q.CorrectAnswer {
		res.Correct = true
		res.AutoPoints = maxPts
	}
	return res, nil
}
