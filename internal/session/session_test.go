package session

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/algodrill/algodrill/internal/grading"
	"github.com/algodrill/algodrill/internal/question"
)

func fiveQuestions() []question.Question {
	qs := make([]question.Question, 5)
	for i := range qs {
		qs[i] = question.Question{
			ID:       string(rune('a' + i)),
			Type:     question.TypeTrueFalse,
			XPReward: 10,
			Hints:    []question.Hint{{ID: "h1", XPPenalty: 2}},
			Content:  question.TrueFalse{IsTrue: true},
		}
	}
	return qs
}

var t0 = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func intp(n int) *int { return &n }

func TestNavigationClamps(t *testing.T) {
	s := NewState("s1", "quiz", fiveQuestions(), nil, t0)
	cases := []struct {
		name string
		ev   Event
		want int
	}{
		{"goto negative", GoTo{Index: -5}, 0},
		{"goto past end", GoTo{Index: 99}, 4},
		{"next at end", Next{}, 4},
		{"goto middle", GoTo{Index: 2}, 2},
		{"prev", Prev{}, 1},
		{"prev", Prev{}, 0},
		{"prev at start", Prev{}, 0},
	}
	for _, tc := range cases {
		s = Reduce(s, tc.ev)
		if s.CurrentIndex != tc.want {
			t.Fatalf("%s: index = %d, want %d", tc.name, s.CurrentIndex, tc.want)
		}
	}

	empty := NewState("s2", "quiz", nil, nil, t0)
	if got := Reduce(empty, GoTo{Index: 3}).CurrentIndex; got != 0 {
		t.Fatalf("empty quiz index = %d", got)
	}
}

func TestSetAnswerReplacesWithoutMutatingInput(t *testing.T) {
	s0 := NewState("s1", "quiz", fiveQuestions(), nil, t0)
	s1 := Reduce(s0, SetAnswer{Answer: json.RawMessage(`true`)})
	s2 := Reduce(s1, SetAnswer{Answer: json.RawMessage(`false`)})

	if len(s0.Answers) != 0 {
		t.Fatalf("input state mutated: %v", s0.Answers)
	}
	if string(s1.Answers["a"]) != "true" {
		t.Fatalf("s1 answer = %s", s1.Answers["a"])
	}
	if string(s2.Answers["a"]) != "false" || len(s2.Answers) != 1 {
		t.Fatalf("answer not replaced: %v", s2.Answers)
	}
	if s2.Version != 2 {
		t.Fatalf("version = %d, want 2", s2.Version)
	}
}

func TestUseHintIsIdempotent(t *testing.T) {
	s := NewState("s1", "quiz", fiveQuestions(), nil, t0)
	before := s
	s = Reduce(s, UseHint{HintID: "h1"})
	again := Reduce(s, UseHint{HintID: "h1"})
	if got := again.HintsUsed["a"]; len(got) != 1 || got[0] != "h1" {
		t.Fatalf("hints = %v", got)
	}
	if again.Version != s.Version {
		t.Fatal("duplicate hint counted as a change")
	}
	if len(before.HintsUsed) != 0 {
		t.Fatal("input state mutated")
	}
}

func TestNoMutationAfterSubmit(t *testing.T) {
	s := NewState("s1", "quiz", fiveQuestions(), intp(30), t0)
	s = Reduce(s, SetAnswer{Answer: json.RawMessage(`true`)})
	s = Reduce(s, Submit{})
	if s.Status != StatusSubmitted {
		t.Fatalf("status = %s", s.Status)
	}
	after := Reduce(s, SetAnswer{Answer: json.RawMessage(`false`)})
	after = Reduce(after, UseHint{HintID: "h1"})
	after = Reduce(after, Tick{})
	after = Reduce(after, Submit{})
	if after.Version != s.Version {
		t.Fatalf("submitted state changed: %+v", after)
	}
	if string(after.Answers["a"]) != "true" || *after.TimeRemaining != 30 {
		t.Fatalf("submitted state changed: %+v", after)
	}
}

func TestTimerSubmitsExactlyOnce(t *testing.T) {
	s := NewState("s1", "quiz", fiveQuestions(), intp(3), t0)
	submits := 0
	for range 10 {
		prev := s.Status
		s = Reduce(s, Tick{})
		if *s.TimeRemaining < 0 {
			t.Fatalf("time went negative: %d", *s.TimeRemaining)
		}
		if prev == StatusInProgress && s.Status == StatusSubmitted {
			submits++
		}
	}
	if submits != 1 || *s.TimeRemaining != 0 {
		t.Fatalf("submits = %d remaining = %d", submits, *s.TimeRemaining)
	}

	untimed := NewState("s2", "quiz", fiveQuestions(), nil, t0)
	if Reduce(untimed, Tick{}).Status != StatusInProgress {
		t.Fatal("untimed session submitted by tick")
	}
}

func TestShowResultsStartsReview(t *testing.T) {
	s := NewState("s1", "quiz", fiveQuestions(), nil, t0)
	s = Reduce(s, SetAnswer{Answer: json.RawMessage(`true`)})
	s = Reduce(s, GoTo{Index: 3})

	res := grading.Results{Score: 20, QuestionResults: []grading.QuestionResult{{QuestionID: "a", IsCorrect: true, XPEarned: 10}}}
	if Reduce(s, ShowResults{Results: res}).Status != StatusInProgress {
		t.Fatal("results accepted while in progress")
	}
	if Review(s) != nil {
		t.Fatal("review available before results")
	}

	s = Reduce(s, Submit{})
	s = Reduce(s, ShowResults{Results: res})
	if s.Status != StatusReviewing || s.CurrentIndex != 0 || s.Results == nil {
		t.Fatalf("review state: %+v", s)
	}
	if Reduce(s, Submit{}).Status != StatusReviewing {
		t.Fatal("reviewing is terminal")
	}

	items := Review(s)
	if len(items) != 5 || !items[0].Result.IsCorrect || string(items[0].Answer) != "true" {
		t.Fatalf("review items: %+v", items)
	}
	if items[1].Result.QuestionID != "b" || items[1].Result.IsCorrect {
		t.Fatalf("missing result should read as incorrect: %+v", items[1])
	}
	s = Reduce(s, Next{})
	if cur, ok := CurrentReview(s); !ok || cur.Question.ID != "b" {
		t.Fatalf("current review = %+v", cur)
	}
}

func TestSubmissionPayload(t *testing.T) {
	s := NewState("s1", "quiz", fiveQuestions(), nil, t0)
	s = Reduce(s, SetAnswer{Answer: json.RawMessage(`true`)})
	s = Reduce(s, UseHint{HintID: "h1"})

	sub := s.Submission(t0.Add(95 * time.Second))
	if sub.TimeSpent != 95 || !sub.StartedAt.Equal(t0) {
		t.Fatalf("timing: %+v", sub)
	}
	if string(sub.Answers["a"]) != "true" || len(sub.HintsUsed["a"]) != 1 {
		t.Fatalf("payload: %+v", sub)
	}
	sub.HintsUsed["a"][0] = "changed"
	if s.HintsUsed["a"][0] != "h1" {
		t.Fatal("submission shares hint slices with state")
	}
}

func TestResumeCountsTimeAway(t *testing.T) {
	saved := NewState("s1", "quiz", fiveQuestions(), intp(60), t0)
	saved = Reduce(saved, Tick{}) // 59 left when the socket dropped

	cases := []struct {
		name   string
		now    time.Time
		limit  *int
		left   int
		status Status
	}{
		{"reconnect within limit", t0.Add(20 * time.Second), intp(60), 40, StatusInProgress},
		{"reconnect at once", t0.Add(500 * time.Millisecond), intp(60), 59, StatusInProgress},
		{"limit passed while away", t0.Add(time.Hour), intp(60), 0, StatusSubmitted},
		{"quiz no longer timed", t0.Add(time.Hour), nil, 59, StatusInProgress},
	}
	for _, tc := range cases {
		got := Resume(saved, tc.limit, tc.now)
		if *got.TimeRemaining != tc.left || got.Status != tc.status {
			t.Fatalf("%s: remaining = %d status = %s, want %d %s",
				tc.name, *got.TimeRemaining, got.Status, tc.left, tc.status)
		}
	}
	if *saved.TimeRemaining != 59 {
		t.Fatalf("input state mutated: %d", *saved.TimeRemaining)
	}

	submitted := Reduce(NewState("s2", "quiz", fiveQuestions(), intp(60), t0), Submit{})
	if got := Resume(submitted, intp(60), t0.Add(time.Hour)); got.Version != submitted.Version {
		t.Fatalf("resume changed a submitted session: %+v", got)
	}
}

func TestRestoreExpiredSessionIsSubmitted(t *testing.T) {
	saved := NewState("s1", "quiz", fiveQuestions(), intp(10), t0)
	saved = Reduce(saved, SetAnswer{Answer: json.RawMessage(`true`)})
	later := t0.Add(time.Hour)

	s := Restore(saved, "quiz", fiveQuestions(), intp(10), WithClock(func() time.Time { return later }))
	defer s.Close()
	st := s.Snapshot()
	if st.Status != StatusSubmitted || *st.TimeRemaining != 0 || st.ID != "s1" {
		t.Fatalf("restored state = %s remaining %d id %s", st.Status, *st.TimeRemaining, st.ID)
	}
	if string(st.Answers["a"]) != "true" {
		t.Fatalf("answers lost on restore: %v", st.Answers)
	}
	if again := s.Dispatch(Tick{}); again.Version != st.Version {
		t.Fatal("tick after expiry changed state")
	}
}

func TestSessionHandle(t *testing.T) {
	s := New("quiz", fiveQuestions(), nil, WithClock(func() time.Time { return t0 }))
	defer s.Close()

	updates := s.Subscribe()
	st := s.Dispatch(SetAnswer{Answer: json.RawMessage(`true`)})
	if string(st.Answers["a"]) != "true" {
		t.Fatalf("dispatch result: %+v", st)
	}
	select {
	case got := <-updates:
		if got.Version != st.Version {
			t.Fatalf("update version = %d, want %d", got.Version, st.Version)
		}
	case <-time.After(time.Second):
		t.Fatal("no update published")
	}
	if s.Snapshot().ID == "" || s.ID() != st.ID {
		t.Fatal("session has no id")
	}
}

func TestSessionTimerAutoSubmits(t *testing.T) {
	s := New("quiz", fiveQuestions(), intp(3), WithTickInterval(5*time.Millisecond))
	defer s.Close()
	updates := s.Subscribe()
	s.Start(context.Background())
	s.Start(context.Background()) // second call is ignored

	deadline := time.After(2 * time.Second)
	for {
		select {
		case st := <-updates:
			if st.Status != StatusSubmitted {
				continue
			}
			if *st.TimeRemaining != 0 {
				t.Fatalf("submitted with %d seconds left", *st.TimeRemaining)
			}
			time.Sleep(30 * time.Millisecond)
			if got := s.Snapshot(); got.Version != st.Version {
				t.Fatalf("ticks continued after submit: %+v", got)
			}
			return
		case <-deadline:
			t.Fatal("timer never submitted")
		}
	}
}

func TestSessionCloseStopsDispatch(t *testing.T) {
	s := New("quiz", fiveQuestions(), nil)
	updates := s.Subscribe()
	s.Dispatch(Next{})
	s.Close()
	s.Close()

	if st := s.Dispatch(Next{}); st.CurrentIndex != 1 {
		t.Fatalf("dispatch after close changed state: %d", st.CurrentIndex)
	}
	// drain the buffered update, then the channel must be closed
	for range updates {
	}
	if _, ok := <-s.Subscribe(); ok {
		t.Fatal("subscribe after close should return a closed channel")
	}
}

func TestFromContext(t *testing.T) {
	s := New("quiz", fiveQuestions(), nil)
	defer s.Close()
	if got := FromContext(WithSession(context.Background(), s)); got != s {
		t.Fatal("wrong session from context")
	}

	defer func() {
		if recover() == nil {
			t.Fatal("FromContext without a session must panic")
		}
	}()
	FromContext(context.Background())
}

func TestViewHidesAnswers(t *testing.T) {
	qs := []question.Question{{
		ID: "mc", Type: question.TypeMultipleChoice, XPReward: 5,
		Content: question.MultipleChoice{Options: []question.Option{{ID: "x", IsCorrect: true}}},
	}}
	v := NewState("s1", "quiz", qs, nil, t0).View()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(string(b), "isCorrect") {
		t.Fatalf("view leaks correctness: %s", b)
	}

	code := []question.Question{{
		ID: "cw", Type: question.TypeCodeWriting, XPReward: 10,
		Content: question.CodeWriting{
			Language:     "python",
			SolutionCode: "print(SECRET_SOLUTION)",
			TestCases: []question.TestCase{
				{ID: "t1", Input: "1", ExpectedOutput: "1"},
				{ID: "t2", Input: "HIDDEN_IN", ExpectedOutput: "HIDDEN_OUT", IsHidden: true},
			},
		},
	}}
	s := NewState("s2", "quiz", code, nil, t0)
	s = Reduce(s, Submit{})
	s = Reduce(s, ShowResults{Results: grading.Results{QuestionResults: []grading.QuestionResult{{QuestionID: "cw"}}}})
	if s.Status != StatusReviewing || len(s.View().Review) != 1 {
		t.Fatalf("not reviewing: %+v", s.View())
	}
	b, err = json.Marshal(s.View())
	if err != nil {
		t.Fatal(err)
	}
	for _, leak := range []string{"HIDDEN_IN", "HIDDEN_OUT", "SECRET_SOLUTION"} {
		if strings.Contains(string(b), leak) {
			t.Fatalf("review leaks %s: %s", leak, b)
		}
	}
}
