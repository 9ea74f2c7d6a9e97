package grading

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/algodrill/algodrill/internal/execution"
	"github.com/algodrill/algodrill/internal/question"
)

var ErrUnknownContent = errors.New("no grading rule for content")

// Outcome is the result of grading one answer.
type Outcome struct {
	IsCorrect   bool
	TestResults []execution.TestCaseResult
	Feedback    []string
	Fallback    bool // code graded by heuristic instead of execution
}

// Grader grades a single answer against its question. A non-nil error explains why
// the answer could not be graded; the Outcome is then incorrect and still usable.
type Grader interface {
	Grade(ctx context.Context, q question.Question, answer json.RawMessage) (Outcome, error)
}

// Engine options

type Option func(*config)

type config struct {
	MaxEditDistance int // near-miss feedback for blanks
	MinCodeLength   int // heuristic threshold for code_writing
	ExecTimeLimit   time.Duration
	Runner          execution.Runner
}

func WithMaxEditDistance(n int) Option         { return func(c *config) { c.MaxEditDistance = n } }
func WithMinCodeLength(n int) Option           { return func(c *config) { c.MinCodeLength = n } }
func WithExecTimeLimit(d time.Duration) Option { return func(c *config) { c.ExecTimeLimit = d } }
func WithRunner(r execution.Runner) Option     { return func(c *config) { c.Runner = r } }

type defaultGrader struct {
	cfg config
}

// NewDefaultGrader returns a grader for all ten question types. Without WithRunner,
// code questions are graded heuristically.
func NewDefaultGrader(opts ...Option) Grader {
	cfg := config{
		MaxEditDistance: 1,
		MinCodeLength:   10,
		ExecTimeLimit:   5 * time.Second,
	}
	for _, o := range opts {
		o(&cfg)
	}
	return &defaultGrader{cfg: cfg}
}

func (g *defaultGrader) Grade(ctx context.Context, q question.Question, raw json.RawMessage) (Outcome, error) {
	if q.Content == nil {
		return Outcome{}, fmt.Errorf("question %s: %w", q.ID, ErrUnknownContent)
	}
	ans, err := question.DecodeAnswer(q.Content.Type(), raw)
	if err != nil {
		return Outcome{}, fmt.Errorf("question %s: %w", q.ID, err)
	}

	switch c := q.Content.(type) {
	case question.MultipleChoice:
		a, ok := ans.(question.ChoiceAnswer)
		return Outcome{IsCorrect: ok && gradeMultipleChoice(c, a)}, nil
	case question.MultiSelect:
		a, ok := ans.(question.SelectionAnswer)
		return Outcome{IsCorrect: ok && gradeMultiSelect(c, a)}, nil
	case question.TrueFalse:
		a, ok := ans.(question.BoolAnswer)
		return Outcome{IsCorrect: ok && bool(a) == c.IsTrue}, nil
	case question.FillBlank:
		a, _ := ans.(question.BlankAnswers)
		ok, fb := gradeFillBlank(c, a, g.cfg.MaxEditDistance)
		return Outcome{IsCorrect: ok, Feedback: fb}, nil
	case question.DragOrder:
		a, _ := ans.(question.OrderAnswer)
		return Outcome{IsCorrect: gradeDragOrder(c, a)}, nil
	case question.DragMatch:
		a, _ := ans.(question.MatchAnswer)
		return Outcome{IsCorrect: gradeDragMatch(c, a)}, nil
	case question.DragCodeBlocks:
		a, _ := ans.(question.OrderAnswer)
		return Outcome{IsCorrect: gradeCodeBlocks(c, a)}, nil
	case question.Parsons:
		a, _ := ans.(question.ParsonsAnswer)
		return Outcome{IsCorrect: gradeParsons(c, a)}, nil
	case question.CodeWriting:
		a, _ := ans.(question.CodeAnswer)
		return g.gradeCodeWriting(ctx, c, string(a)), nil
	case question.Debugging:
		a, _ := ans.(question.CodeAnswer)
		return g.gradeDebugging(ctx, c, string(a)), nil
	default:
		return Outcome{}, fmt.Errorf("question %s: %w %T", q.ID, ErrUnknownContent, q.Content)
	}
}
