// Package session holds the state of one learner working through one quiz.
//
// State transitions are computed by Reduce, which is pure. A Session owns a State
// on a single goroutine and drives the countdown timer.
package session

import (
	"encoding/json"
	"maps"
	"slices"
	"time"

	"github.com/algodrill/algodrill/internal/grading"
	"github.com/algodrill/algodrill/internal/question"
)

type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusSubmitted  Status = "submitted"
	StatusReviewing  Status = "reviewing"
)

// State is a snapshot of a quiz session. Treat it as immutable; Reduce returns a
// new value and never writes to the maps of its input.
type State struct {
	ID            string                     `json:"id"` // becomes the attempt id
	QuizID        string                     `json:"quizId"`
	Questions     []question.Question        `json:"questions"`
	CurrentIndex  int                        `json:"currentIndex"`
	Answers       map[string]json.RawMessage `json:"answers"`
	HintsUsed     map[string][]string        `json:"hintsUsed"`
	TimeRemaining *int                       `json:"timeRemaining"` // seconds, nil when untimed
	Status        Status                     `json:"status"`
	StartedAt     time.Time                  `json:"startedAt"`
	Results       *grading.Results           `json:"results,omitempty"`
	Version       int                        `json:"version"` // bumped on every change
}

// NewState starts an in-progress session. A nil timeLimit means untimed.
func NewState(id, quizID string, questions []question.Question, timeLimit *int, now time.Time) State {
	s := State{
		ID:        id,
		QuizID:    quizID,
		Questions: questions,
		Answers:   map[string]json.RawMessage{},
		HintsUsed: map[string][]string{},
		Status:    StatusInProgress,
		StartedAt: now,
	}
	if timeLimit != nil {
		t := max(0, *timeLimit)
		s.TimeRemaining = &t
	}
	return s
}

// Current returns the question at CurrentIndex.
func (s State) Current() (question.Question, bool) {
	if s.CurrentIndex < 0 || s.CurrentIndex >= len(s.Questions) {
		return question.Question{}, false
	}
	return s.Questions[s.CurrentIndex], true
}

// Answered reports how many questions have a stored answer.
func (s State) Answered() int {
	n := 0
	for _, q := range s.Questions {
		if _, ok := s.Answers[q.ID]; ok {
			n++
		}
	}
	return n
}

// Event is something that happened to a session: a learner action or a timer tick.
type Event interface {
	isEvent()
}

type (
	// SetAnswer replaces the current question's answer.
	SetAnswer struct{ Answer json.RawMessage }
	// UseHint reveals a hint of the current question.
	UseHint     struct{ HintID string }
	Next        struct{}
	Prev        struct{}
	GoTo        struct{ Index int }
	Tick        struct{}
	Submit      struct{}
	ShowResults struct{ Results grading.Results }
)

func (SetAnswer) isEvent()   {}
func (UseHint) isEvent()     {}
func (Next) isEvent()        {}
func (Prev) isEvent()        {}
func (GoTo) isEvent()        {}
func (Tick) isEvent()        {}
func (Submit) isEvent()      {}
func (ShowResults) isEvent() {}

// Reduce applies e to s. Answers, hints and the timer only change while the session
// is in progress; navigation works in every status and clamps out-of-range indexes.
// Events that change nothing return s unchanged, Version included.
func Reduce(s State, e Event) State {
	switch e := e.(type) {
	case SetAnswer:
		q, ok := s.Current()
		if s.Status != StatusInProgress || !ok {
			return s
		}
		s.Answers = maps.Clone(s.Answers)
		if s.Answers == nil {
			s.Answers = map[string]json.RawMessage{}
		}
		s.Answers[q.ID] = slices.Clone(e.Answer)
	case UseHint:
		q, ok := s.Current()
		if s.Status != StatusInProgress || !ok || slices.Contains(s.HintsUsed[q.ID], e.HintID) {
			return s
		}
		s.HintsUsed = maps.Clone(s.HintsUsed)
		if s.HintsUsed == nil {
			s.HintsUsed = map[string][]string{}
		}
		s.HintsUsed[q.ID] = append(slices.Clip(s.HintsUsed[q.ID]), e.HintID)
	case Next:
		return s.goTo(s.CurrentIndex + 1)
	case Prev:
		return s.goTo(s.CurrentIndex - 1)
	case GoTo:
		return s.goTo(e.Index)
	case Tick:
		if s.Status != StatusInProgress || s.TimeRemaining == nil {
			return s
		}
		t := max(0, *s.TimeRemaining-1)
		s.TimeRemaining = &t
		if t == 0 {
			s.Status = StatusSubmitted
		}
	case Submit:
		if s.Status != StatusInProgress {
			return s
		}
		s.Status = StatusSubmitted
	case ShowResults:
		if s.Status != StatusSubmitted {
			return s
		}
		r := e.Results
		s.Results = &r
		s.Status = StatusReviewing
		s.CurrentIndex = 0
	default:
		return s
	}
	s.Version++
	return s
}

func (s State) goTo(i int) State {
	i = min(max(i, 0), max(len(s.Questions)-1, 0))
	if i == s.CurrentIndex {
		return s
	}
	s.CurrentIndex = i
	s.Version++
	return s
}

// Resume brings a saved in-progress snapshot up to date with the wall clock. The
// remaining time becomes what timeLimit leaves after now-StartedAt, never more than
// was saved. A session whose time ran out while disconnected comes back submitted.
func Resume(s State, timeLimit *int, now time.Time) State {
	if s.Status != StatusInProgress || s.TimeRemaining == nil || timeLimit == nil {
		return s
	}
	elapsed := int(now.Sub(s.StartedAt) / time.Second)
	t := min(*s.TimeRemaining, max(0, *timeLimit-elapsed))
	if t == *s.TimeRemaining && t > 0 {
		return s
	}
	s.TimeRemaining = &t
	if t == 0 {
		s.Status = StatusSubmitted
	}
	s.Version++
	return s
}

// Submission builds the grading payload. Time spent is measured from StartedAt.
func (s State) Submission(now time.Time) grading.Submission {
	hints := make(map[string][]string, len(s.HintsUsed))
	for id, h := range s.HintsUsed {
		hints[id] = slices.Clone(h)
	}
	return grading.Submission{
		Answers:   maps.Clone(s.Answers),
		HintsUsed: hints,
		TimeSpent: max(0, int(now.Sub(s.StartedAt)/time.Second)),
		StartedAt: s.StartedAt,
	}
}
