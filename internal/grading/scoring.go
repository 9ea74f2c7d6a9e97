package grading

import (
	"context"
	"encoding/json"
	"log"
	"math"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/algodrill/algodrill/internal/execution"
	"github.com/algodrill/algodrill/internal/question"
)

// maxParallel bounds how many questions are graded at once. Only code questions
// block, on the execution service.
const maxParallel = 4

// Submission is the payload a learner sends when finishing a quiz.
type Submission struct {
	Answers   map[string]json.RawMessage `json:"answers"`
	HintsUsed map[string][]string        `json:"hintsUsed"`
	TimeSpent int                        `json:"timeSpent"` // seconds
	StartedAt time.Time                  `json:"startedAt"`
}

type QuestionResult struct {
	QuestionID  string                     `json:"questionId"`
	IsCorrect   bool                       `json:"isCorrect"`
	XPEarned    int                        `json:"xpEarned"`
	HintsUsed   int                        `json:"hintsUsed"`
	TestResults []execution.TestCaseResult `json:"testResults,omitempty"`
	Feedback    []string                   `json:"feedback,omitempty"`
}

// Results is the graded attempt returned to the learner.
type Results struct {
	Score           int              `json:"score"`
	CorrectCount    int              `json:"correctCount"`
	TotalCount      int              `json:"totalCount"`
	XPEarned        int              `json:"xpEarned"`
	TimeSpent       int              `json:"timeSpent"`
	Passed          bool             `json:"passed"`
	QuestionResults []QuestionResult `json:"questionResults"`
}

// Result returns the per-question result for id.
func (r Results) Result(id string) (QuestionResult, bool) {
	for _, qr := range r.QuestionResults {
		if qr.QuestionID == id {
			return qr, true
		}
	}
	return QuestionResult{}, false
}

// Delta is the change an attempt makes to the learner's XP and progress totals.
type Delta struct {
	XP        int `json:"xp"`
	Quizzes   int `json:"quizzes"`
	Questions int `json:"questions"`
	Correct   int `json:"correct"`
}

func (r Results) Delta() Delta {
	return Delta{XP: r.XPEarned, Quizzes: 1, Questions: r.TotalCount, Correct: r.CorrectCount}
}

// usedHints returns the distinct hints of q named by ids, ignoring unknown ids.
func usedHints(q question.Question, ids []string) []question.Hint {
	seen := map[string]bool{}
	var out []question.Hint
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		if h, ok := q.Hint(id); ok {
			out = append(out, h)
		}
	}
	return out
}

// HintPenalty sums the penalty of each distinct revealed hint once.
func HintPenalty(q question.Question, ids []string) int {
	total := 0
	for _, h := range usedHints(q, ids) {
		total += h.XPPenalty
	}
	return total
}

// XPFor is max(0, reward - penalty) for a correct answer and 0 otherwise.
func XPFor(q question.Question, correct bool, hintIDs []string) int {
	if !correct {
		return 0
	}
	return max(0, q.XPReward-HintPenalty(q, hintIDs))
}

// Score is round(100 * correct / total), 0 for an empty quiz.
func Score(correct, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(correct) / float64(total) * 100))
}

// GradeQuiz grades every question independently and aggregates the results in
// question order. A question that cannot be graded counts as incorrect.
func GradeQuiz(ctx context.Context, g Grader, questions []question.Question, passingScore int, sub Submission) Results {
	results := make([]QuestionResult, len(questions))
	eg := new(errgroup.Group)
	eg.SetLimit(maxParallel)
	for i, q := range questions {
		eg.Go(func() error {
			out, err := g.Grade(ctx, q, sub.Answers[q.ID])
			if err != nil {
				log.Printf("grading: %v", err)
				out = Outcome{}
			}
			hints := sub.HintsUsed[q.ID]
			results[i] = QuestionResult{
				QuestionID:  q.ID,
				IsCorrect:   out.IsCorrect,
				XPEarned:    XPFor(q, out.IsCorrect, hints),
				HintsUsed:   len(usedHints(q, hints)),
				TestResults: execution.Redact(out.TestResults),
				Feedback:    out.Feedback,
			}
			return nil
		})
	}
	_ = eg.Wait()

	r := Results{TotalCount: len(questions), TimeSpent: sub.TimeSpent, QuestionResults: results}
	for _, qr := range results {
		if qr.IsCorrect {
			r.CorrectCount++
		}
		r.XPEarned += qr.XPEarned
	}
	r.Score = Score(r.CorrectCount, r.TotalCount)
	r.Passed = r.Score >= passingScore
	return r
}
