package attempt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/algodrill/algodrill/internal/grading"
	"github.com/algodrill/algodrill/internal/question"
	"github.com/algodrill/algodrill/internal/storage"
)

// ErrSubmissionFailed wraps any failure to persist a graded attempt. The learner
// may retry with the same attempt id.
var ErrSubmissionFailed = errors.New("submission failed")

// ErrAttemptConflict means the attempt id is already taken by another user's or
// another quiz's attempt. Retrying with the same id cannot succeed.
var ErrAttemptConflict = errors.New("attempt id already in use")

// SubmitRequest is the submission payload plus the id of the session it came from.
// Reusing an id makes the submission idempotent.
type SubmitRequest struct {
	AttemptID string `json:"attemptId,omitempty"`
	grading.Submission
}

// Submitted is what a successful Submit returns.
type Submitted struct {
	Attempt  Attempt
	Results  grading.Results
	Replayed bool // an attempt with this id had already been recorded
}

type Service struct {
	store  Store
	grader grading.Grader
	blobs  storage.BlobStore
	now    func() time.Time
}

type ServiceOption func(*Service)

// WithBlobStore archives code answers after each attempt.
func WithBlobStore(bs storage.BlobStore) ServiceOption { return func(s *Service) { s.blobs = bs } }

func WithNow(now func() time.Time) ServiceOption { return func(s *Service) { s.now = now } }

func NewService(store Store, grader grading.Grader, opts ...ServiceOption) *Service {
	s := &Service{store: store, grader: grader, now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Service) Store() Store { return s.store }

// Submit grades req against the quiz and records the attempt together with the
// user's XP and progress. Grading problems with single questions only make those
// questions incorrect; a storage failure fails the whole submission.
func (s *Service) Submit(ctx context.Context, userID, quizID string, req SubmitRequest) (Submitted, error) {
	if req.AttemptID != "" {
		prev, err := s.replay(ctx, userID, quizID, req.AttemptID)
		if err == nil || errors.Is(err, ErrAttemptConflict) {
			return prev, err
		}
	}

	quiz, err := s.store.GetQuiz(ctx, quizID)
	if err != nil {
		return Submitted{}, fmt.Errorf("quiz %s: %w", quizID, err)
	}
	questions, err := s.store.QuizQuestions(ctx, quizID)
	if err != nil {
		return Submitted{}, fmt.Errorf("quiz %s questions: %w", quizID, err)
	}

	results := grading.GradeQuiz(ctx, s.grader, questions, quiz.PassingScore, req.Submission)

	id := req.AttemptID
	if id == "" {
		id = uuid.NewString()
	}
	started := req.StartedAt
	if started.IsZero() {
		started = s.now().Add(-time.Duration(req.TimeSpent) * time.Second)
	}
	a := Attempt{
		ID:           id,
		QuizID:       quizID,
		UserID:       userID,
		Status:       StatusCompleted,
		Score:        results.Score,
		CorrectCount: results.CorrectCount,
		TotalCount:   results.TotalCount,
		XPEarned:     results.XPEarned,
		TimeSpent:    results.TimeSpent,
		Passed:       results.Passed,
		StartedAt:    started.Unix(),
		CompletedAt:  s.now().Unix(),
		Answers:      snapshots(questions, req.Submission, results),
	}

	if err := s.store.RecordAttempt(ctx, a, results.Delta()); err != nil {
		if errors.Is(err, ErrDuplicateAttempt) {
			prev, rerr := s.replay(ctx, userID, quizID, id)
			if rerr == nil || errors.Is(rerr, ErrAttemptConflict) {
				return prev, rerr
			}
		}
		return Submitted{}, fmt.Errorf("%w: %v", ErrSubmissionFailed, err)
	}

	s.archiveCode(ctx, a)
	return Submitted{Attempt: a, Results: results}, nil
}

// replay returns an attempt already recorded under id for the same user and quiz.
func (s *Service) replay(ctx context.Context, userID, quizID, id string) (Submitted, error) {
	prev, err := s.store.GetAttempt(ctx, id)
	if err != nil {
		return Submitted{}, err
	}
	if prev.UserID != userID || prev.QuizID != quizID {
		return Submitted{}, ErrAttemptConflict
	}
	return Submitted{Attempt: prev, Results: prev.Results(), Replayed: true}, nil
}

func snapshots(questions []question.Question, sub grading.Submission, results grading.Results) []AnswerSnapshot {
	out := make([]AnswerSnapshot, len(questions))
	for i, q := range questions {
		res, _ := results.Result(q.ID)
		var hints []string
		seen := map[string]bool{}
		for _, h := range sub.HintsUsed[q.ID] {
			if _, ok := q.Hint(h); ok && !seen[h] {
				seen[h] = true
				hints = append(hints, h)
			}
		}
		out[i] = AnswerSnapshot{
			QuestionID:   q.ID,
			QuestionType: q.Type,
			Answer:       sub.Answers[q.ID],
			IsCorrect:    res.IsCorrect,
			XPEarned:     res.XPEarned,
			HintsUsed:    hints,
			TestResults:  res.TestResults,
			Question:     q,
		}
	}
	return out
}

// archiveCode stores submitted source for code questions. Failures are logged.
func (s *Service) archiveCode(ctx context.Context, a Attempt) {
	if s.blobs == nil {
		return
	}
	for _, snap := range a.Answers {
		if !snap.QuestionType.IsCode() || len(snap.Answer) == 0 {
			continue
		}
		var code string
		if err := json.Unmarshal(snap.Answer, &code); err != nil || code == "" {
			continue
		}
		key := storage.CodeKey(a.ID, snap.QuestionID)
		if _, err := s.blobs.Put(ctx, key, strings.NewReader(code)); err != nil {
			log.Printf("attempt %s: archive %s: %v", a.ID, key, err)
		}
	}
}
