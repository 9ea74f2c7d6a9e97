package question

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

const mcJSON = `{
  "id": "q1",
  "type": "multiple_choice",
  "title": "Big-O of binary search",
  "difficulty": "easy",
  "topics": ["searching"],
  "xpReward": 10,
  "hints": [
    {"id": "h2", "text": "halves", "xpPenalty": 3, "order": 2},
    {"id": "h1", "text": "sorted", "xpPenalty": 2, "order": 1}
  ],
  "content": {"options": [
    {"id": "a", "text": "O(n)"},
    {"id": "b", "text": "O(log n)", "isCorrect": true}
  ]}
}`

func TestUnmarshalDecodesContentByType(t *testing.T) {
	var q Question
	if err := json.Unmarshal([]byte(mcJSON), &q); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	mc, ok := q.Content.(MultipleChoice)
	if !ok {
		t.Fatalf("content is %T, want MultipleChoice", q.Content)
	}
	if len(mc.Options) != 2 || !mc.Options[1].IsCorrect {
		t.Fatalf("unexpected options: %+v", mc.Options)
	}
	if err := q.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}

	// round trip keeps the variant
	b, err := json.Marshal(q)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Question
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("unmarshal again: %v", err)
	}
	if _, ok := back.Content.(MultipleChoice); !ok {
		t.Fatalf("round trip lost content type: %T", back.Content)
	}
}

func TestUnmarshalRejectsUnknownType(t *testing.T) {
	var q Question
	err := json.Unmarshal([]byte(`{"id":"x","type":"essay","content":{}}`), &q)
	if !errors.Is(err, ErrUnknownType) {
		t.Fatalf("want ErrUnknownType, got %v", err)
	}
}

func TestSortedHints(t *testing.T) {
	var q Question
	if err := json.Unmarshal([]byte(mcJSON), &q); err != nil {
		t.Fatal(err)
	}
	h := q.SortedHints()
	if h[0].ID != "h1" || h[1].ID != "h2" {
		t.Fatalf("hints not in display order: %+v", h)
	}
}

func TestDifficultyOrder(t *testing.T) {
	order := []Difficulty{DifficultyBeginner, DifficultyEasy, DifficultyMedium, DifficultyHard, DifficultyExpert}
	for i := 1; i < len(order); i++ {
		if !order[i-1].Less(order[i]) {
			t.Fatalf("%s should be less than %s", order[i-1], order[i])
		}
	}
	if Difficulty("trivial").Valid() {
		t.Fatal("unknown difficulty reported valid")
	}
}

func base(t Type, c Content) Question {
	return Question{
		ID: "q", Type: t, Title: "t", Difficulty: DifficultyMedium,
		Topics: []string{"arrays"}, XPReward: 10, Content: c,
	}
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name    string
		q       Question
		wantErr string
	}{
		{
			name:    "multiple choice with two correct",
			q:       base(TypeMultipleChoice, MultipleChoice{Options: []Option{{ID: "a", Text: "a", IsCorrect: true}, {ID: "b", Text: "b", IsCorrect: true}}}),
			wantErr: "exactly one option",
		},
		{
			name:    "multi select without correct",
			q:       base(TypeMultiSelect, MultiSelect{Options: []Option{{ID: "a", Text: "a"}, {ID: "b", Text: "b"}}}),
			wantErr: "at least one option",
		},
		{
			name:    "content does not match type",
			q:       base(TypeTrueFalse, MultiSelect{}),
			wantErr: "but type is true_false",
		},
		{
			name: "drag order positions with a gap",
			q: base(TypeDragOrder, DragOrder{Items: []OrderItem{
				{ID: "a", Text: "a", CorrectPosition: 0},
				{ID: "b", Text: "b", CorrectPosition: 2},
				{ID: "x", Text: "x", CorrectPosition: Distractor},
			}}),
			wantErr: "missing 1",
		},
		{
			name: "drag match to unknown target",
			q: base(TypeDragMatch, DragMatch{
				LeftItems:  []MatchLeft{{ID: "l1", Text: "stack", MatchID: "r9"}},
				RightItems: []MatchRight{{ID: "r1", Text: "LIFO"}},
			}),
			wantErr: "unknown right item",
		},
		{
			name:    "no topics",
			q:       func() Question { q := base(TypeTrueFalse, TrueFalse{}); q.Topics = nil; return q }(),
			wantErr: "topics",
		},
		{
			name:    "zero xp reward",
			q:       func() Question { q := base(TypeTrueFalse, TrueFalse{}); q.XPReward = 0; return q }(),
			wantErr: "xpReward",
		},
		{
			name: "debugging bug past the end",
			q: base(TypeDebugging, Debugging{
				Language: "python", BuggyCode: "x = 1\nprint(x)",
				Bugs: []Bug{{Line: 5, Fix: "print(x + 1)"}},
			}),
			wantErr: "past the end",
		},
		{
			name: "code writing unsupported language",
			q: base(TypeCodeWriting, CodeWriting{
				Language:  "cobol",
				TestCases: []TestCase{{ID: "t1", Input: "", ExpectedOutput: "1"}},
			}),
			wantErr: "content.language",
		},
		{
			name: "valid parsons",
			q: base(TypeParsons, Parsons{Language: "python", CodeLines: []CodeLine{
				{ID: "l1", Code: "def f():", CorrectPosition: 0},
				{ID: "l2", Code: "return 1", CorrectPosition: 1, CorrectIndent: 1},
			}}),
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.q.Validate()
			if tc.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("want *ValidationError, got %v", err)
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Fatalf("error %q does not mention %q", err.Error(), tc.wantErr)
			}
		})
	}
}

func TestLearnerViewHidesAnswers(t *testing.T) {
	q := base(TypeCodeWriting, CodeWriting{
		Language:     "python",
		StarterCode:  "def solve():\n    pass",
		SolutionCode: "def solve():\n    return 42",
		TestCases: []TestCase{
			{ID: "t1", Input: "1", ExpectedOutput: "42"},
			{ID: "t2", Input: "2", ExpectedOutput: "secret", IsHidden: true},
		},
	})
	b, err := json.Marshal(q.LearnerView())
	if err != nil {
		t.Fatal(err)
	}
	s := string(b)
	for _, leak := range []string{"return 42", "secret", "solutionCode"} {
		if strings.Contains(s, leak) {
			t.Fatalf("learner view leaks %q: %s", leak, s)
		}
	}

	mc := base(TypeMultipleChoice, MultipleChoice{Options: []Option{{ID: "a", Text: "a", IsCorrect: true}, {ID: "b", Text: "b"}}})
	b, _ = json.Marshal(mc.LearnerView())
	if strings.Contains(string(b), "isCorrect") {
		t.Fatalf("learner view leaks isCorrect: %s", b)
	}
}

func TestReviewCopyDropsHiddenTests(t *testing.T) {
	cw := base(TypeCodeWriting, CodeWriting{
		Language:     "python",
		SolutionCode: "def solve():\n    return 42",
		TestCases: []TestCase{
			{ID: "t1", Input: "1", ExpectedOutput: "42"},
			{ID: "t2", Input: "2", ExpectedOutput: "secret", IsHidden: true},
		},
	})
	dbg := base(TypeDebugging, Debugging{
		Language:    "go",
		BuggyCode:   "x := 1",
		CorrectCode: "x := 2",
		Bugs:        []Bug{{Line: 1, Fix: "x := 2"}},
		TestCases:   []TestCase{{ID: "h", Input: "hidden-in", IsHidden: true}},
	})
	for _, q := range []Question{cw, dbg} {
		b, err := json.Marshal(q.ReviewCopy())
		if err != nil {
			t.Fatal(err)
		}
		s := string(b)
		for _, leak := range []string{"return 42", "secret", "hidden-in", "correctCode", "solutionCode"} {
			if strings.Contains(s, leak) {
				t.Fatalf("%s review copy leaks %q: %s", q.Type, leak, s)
			}
		}
	}
	if got := cw.Content.(CodeWriting); len(got.TestCases) != 2 || got.SolutionCode == "" {
		t.Fatalf("original question modified: %+v", got)
	}

	mc := base(TypeMultipleChoice, MultipleChoice{Options: []Option{{ID: "a", Text: "a", IsCorrect: true}}})
	b, _ := json.Marshal(mc.ReviewCopy())
	if !strings.Contains(string(b), `"isCorrect":true`) {
		t.Fatalf("review copy lost the answer key: %s", b)
	}
}

func TestDecodeAnswer(t *testing.T) {
	a, err := DecodeAnswer(TypeParsons, json.RawMessage(`[{"id":"l1","indent":0},{"id":"l2","indent":1}]`))
	if err != nil {
		t.Fatal(err)
	}
	p, ok := a.(ParsonsAnswer)
	if !ok || len(p) != 2 || p[1].Indent != 1 {
		t.Fatalf("unexpected parsons answer %#v", a)
	}

	if _, err := DecodeAnswer(TypeTrueFalse, nil); !errors.Is(err, ErrNoAnswer) {
		t.Fatalf("want ErrNoAnswer, got %v", err)
	}
	if _, err := DecodeAnswer(TypeTrueFalse, json.RawMessage(`null`)); !errors.Is(err, ErrNoAnswer) {
		t.Fatalf("want ErrNoAnswer for null, got %v", err)
	}
	if a, err := DecodeAnswer(TypeFillBlank, nil); err != nil || len(a.(BlankAnswers)) != 0 {
		t.Fatalf("missing fill_blank answer = %#v, %v", a, err)
	}
	if _, err := DecodeAnswer(TypeMultiSelect, json.RawMessage(`"a"`)); err == nil {
		t.Fatal("expected shape error for multi_select string answer")
	}
}
