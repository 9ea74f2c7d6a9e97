package bundle

import (
	"archive/zip"
	"bytes"
	"errors"
	"reflect"
	"testing"

	"github.com/algodrill/algodrill/internal/attempt"
	"github.com/algodrill/algodrill/internal/question"
)

func sample() (attempt.Quiz, []question.Question) {
	qs := []question.Question{
		{
			ID: "mc1", Type: question.TypeMultipleChoice, Title: "Queue order", Difficulty: "easy",
			Topics: []string{"queue"}, XPReward: 10, CreatedBy: "c1",
			Content: question.MultipleChoice{Options: []question.Option{
				{ID: "a", Text: "FIFO", IsCorrect: true}, {ID: "b", Text: "LIFO"},
			}},
		},
		{
			ID: "cw1", Type: question.TypeCodeWriting, Title: "Sum", Difficulty: "medium",
			Topics: []string{"math"}, XPReward: 20,
			Content: question.CodeWriting{Language: "python", StarterCode: "def add(a, b):\n    pass",
				TestCases: []question.TestCase{{ID: "t1", Input: "1 2", ExpectedOutput: "3", IsHidden: true}}},
		},
	}
	quiz := attempt.Quiz{ID: "quiz1", Title: "Warmup", QuestionIDs: []string{"mc1", "cw1"}, PassingScore: 60, CreatedBy: "c1"}
	return quiz, qs
}

func TestBuildRead(t *testing.T) {
	quiz, qs := sample()
	b, err := Build(quiz, qs)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	pkg, err := Read(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if pkg.Quiz.CreatedBy != "" || pkg.Questions[0].CreatedBy != "" {
		t.Fatalf("ownership leaked into package: %+v", pkg.Quiz)
	}
	if !reflect.DeepEqual(pkg.Quiz.QuestionIDs, quiz.QuestionIDs) || pkg.Quiz.PassingScore != 60 {
		t.Fatalf("quiz = %+v", pkg.Quiz)
	}
	if len(pkg.Questions) != 2 {
		t.Fatalf("questions = %d", len(pkg.Questions))
	}
	if !reflect.DeepEqual(pkg.Questions[1].Content, qs[1].Content) {
		t.Fatalf("content = %+v", pkg.Questions[1].Content)
	}
	mc, ok := pkg.Questions[0].Content.(question.MultipleChoice)
	if !ok || !mc.Options[0].IsCorrect {
		t.Fatalf("answer key lost: %+v", pkg.Questions[0].Content)
	}
}

func zipOf(t *testing.T, files map[string]string) []byte {
	t.Helper()
	buf := new(bytes.Buffer)
	zw := zip.NewWriter(buf)
	for name, body := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatal(err)
		}
		if _, err := w.Write([]byte(body)); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestReadRejects(t *testing.T) {
	okQuestion := `{"id":"tf1","type":"true_false","title":"T","difficulty":"easy","topics":["x"],"xpReward":5,"content":{"isTrue":true}}`
	tests := []struct {
		name  string
		files map[string]string
	}{
		{"no manifest", map[string]string{quizName: `{}`}},
		{"wrong version", map[string]string{manifestName: `{"version":9}`, quizName: `{}`}},
		{"missing question file", map[string]string{
			manifestName: `{"version":1,"questions":["questions/tf1.json"]}`,
			quizName:     `{"id":"q","title":"Q","questionIds":["tf1"]}`,
		}},
		{"quiz references unknown question", map[string]string{
			manifestName:        `{"version":1,"questions":["questions/tf1.json"]}`,
			quizName:            `{"id":"q","title":"Q","questionIds":["tf1","ghost"]}`,
			"questions/tf1.json": okQuestion,
		}},
		{"invalid question", map[string]string{
			manifestName:        `{"version":1,"questions":["questions/bad.json"]}`,
			quizName:            `{"id":"q","title":"Q","questionIds":["bad"]}`,
			"questions/bad.json": `{"id":"bad","type":"true_false","title":"","difficulty":"easy","topics":["x"],"xpReward":5,"content":{"isTrue":true}}`,
		}},
		{"path outside questions", map[string]string{
			manifestName: `{"version":1,"questions":["quiz.json"]}`,
			quizName:     `{"id":"q","title":"Q","questionIds":[]}`,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := zipOf(t, tt.files)
			if _, err := Read(bytes.NewReader(b), int64(len(b))); !errors.Is(err, ErrBadPackage) {
				t.Fatalf("err = %v, want ErrBadPackage", err)
			}
		})
	}

	if _, err := Read(bytes.NewReader([]byte("not a zip")), 9); !errors.Is(err, ErrBadPackage) {
		t.Fatalf("non-zip err = %v", err)
	}
}
