// Package attempt stores quizzes, graded attempts and each learner's XP ledger,
// and turns a quiz submission into a persisted attempt.
package attempt

import (
	"encoding/json"

	"github.com/algodrill/algodrill/internal/execution"
	"github.com/algodrill/algodrill/internal/grading"
	"github.com/algodrill/algodrill/internal/question"
)

// LevelXP is the XP needed per level.
const LevelXP = 500

const StatusCompleted = "completed"

type Quiz struct {
	ID           string   `json:"id"`
	Title        string   `json:"title" validate:"required,max=200"`
	Description  string   `json:"description,omitempty"`
	QuestionIDs  []string `json:"questionIds" validate:"min=1,dive,required"`
	PassingScore int      `json:"passingScore" validate:"gte=0,lte=100"`
	TimeLimit    *int     `json:"timeLimit,omitempty" validate:"omitempty,gt=0"` // seconds
	IsPublic     bool     `json:"isPublic"`
	CreatedBy    string   `json:"createdBy,omitempty"`
	CreatedAt    int64    `json:"createdAt,omitempty"`
}

// AnswerSnapshot is one graded answer together with the question as it was when
// the attempt was submitted.
type AnswerSnapshot struct {
	QuestionID   string                     `json:"questionId"`
	QuestionType question.Type              `json:"questionType"`
	Answer       json.RawMessage            `json:"answer,omitempty"`
	IsCorrect    bool                       `json:"isCorrect"`
	XPEarned     int                        `json:"xpEarned"`
	HintsUsed    []string                   `json:"hintsUsed,omitempty"`
	TestResults  []execution.TestCaseResult `json:"testResults,omitempty"`
	Question     question.Question          `json:"question"`
}

type Attempt struct {
	ID           string           `json:"id"`
	QuizID       string           `json:"quizId"`
	UserID       string           `json:"userId"`
	Status       string           `json:"status"`
	Score        int              `json:"score"`
	CorrectCount int              `json:"correctCount"`
	TotalCount   int              `json:"totalCount"`
	XPEarned     int              `json:"xpEarned"`
	TimeSpent    int              `json:"timeSpent"`
	Passed       bool             `json:"passed"`
	StartedAt    int64            `json:"startedAt"`
	CompletedAt  int64            `json:"completedAt"`
	Answers      []AnswerSnapshot `json:"answers,omitempty"`
}

// Results rebuilds the grading response from a stored attempt.
func (a Attempt) Results() grading.Results {
	r := grading.Results{
		Score:           a.Score,
		CorrectCount:    a.CorrectCount,
		TotalCount:      a.TotalCount,
		XPEarned:        a.XPEarned,
		TimeSpent:       a.TimeSpent,
		Passed:          a.Passed,
		QuestionResults: make([]grading.QuestionResult, len(a.Answers)),
	}
	for i, s := range a.Answers {
		r.QuestionResults[i] = grading.QuestionResult{
			QuestionID:  s.QuestionID,
			IsCorrect:   s.IsCorrect,
			XPEarned:    s.XPEarned,
			HintsUsed:   len(s.HintsUsed),
			TestResults: s.TestResults,
		}
	}
	return r
}

// Progress is a learner's running totals.
type Progress struct {
	UserID         string `json:"userId"`
	TotalXP        int    `json:"totalXp"`
	Level          int    `json:"level"`
	TotalQuizzes   int    `json:"totalQuizzes"`
	TotalQuestions int    `json:"totalQuestions"`
	CorrectAnswers int    `json:"correctAnswers"`
	UpdatedAt      int64  `json:"updatedAt,omitempty"`
}

func LevelFor(xp int) int { return 1 + max(0, xp)/LevelXP }

// Apply adds an attempt's delta to p.
func (p Progress) Apply(d grading.Delta) Progress {
	p.TotalXP += d.XP
	p.TotalQuizzes += d.Quizzes
	p.TotalQuestions += d.Questions
	p.CorrectAnswers += d.Correct
	p.Level = LevelFor(p.TotalXP)
	return p
}

// Accuracy is the share of answered questions that were correct, in percent.
func (p Progress) Accuracy() int { return grading.Score(p.CorrectAnswers, p.TotalQuestions) }
