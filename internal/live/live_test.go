package live

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/algodrill/algodrill/internal/attempt"
	authmw "github.com/algodrill/algodrill/internal/auth/middleware"
	"github.com/algodrill/algodrill/internal/grading"
	"github.com/algodrill/algodrill/internal/question"
	"github.com/algodrill/algodrill/internal/session"
)

type frame struct {
	Type    MessageType     `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func newServer(t *testing.T, timeLimit *int, opts ...Option) (*httptest.Server, attempt.Store) {
	t.Helper()
	ctx := context.Background()
	store := attempt.NewInMemoryStore()
	qs := []question.Question{
		{ID: "q1", Type: question.TypeTrueFalse, Title: "A queue is FIFO", Difficulty: question.DifficultyBeginner,
			Topics: []string{"queue"}, XPReward: 10, Content: question.TrueFalse{IsTrue: true},
			Hints: []question.Hint{{ID: "h1", Text: "first in...", XPPenalty: 4}}},
		{ID: "q2", Type: question.TypeMultipleChoice, Title: "Binary search cost", Difficulty: question.DifficultyEasy,
			Topics: []string{"search"}, XPReward: 20, Content: question.MultipleChoice{Options: []question.Option{
				{ID: "a", Text: "O(n)"}, {ID: "b", Text: "O(log n)", IsCorrect: true},
			}}},
	}
	for _, q := range qs {
		if err := store.PutQuestion(ctx, q); err != nil {
			t.Fatal(err)
		}
	}
	quizzes := []attempt.Quiz{
		{ID: "quiz1", Title: "Basics", QuestionIDs: []string{"q1", "q2"}, PassingScore: 50, TimeLimit: timeLimit, IsPublic: true},
		{ID: "draft", Title: "Unpublished", QuestionIDs: []string{"q2"}, CreatedBy: "c1"},
	}
	for _, qz := range quizzes {
		if err := store.PutQuiz(ctx, qz); err != nil {
			t.Fatal(err)
		}
	}

	h := NewHandler(attempt.NewService(store, grading.NewDefaultGrader()), opts...)
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(authmw.WithPrincipal(r.Context(), "u1", "learner")))
		})
	})
	r.Get("/ws/quizzes/{quizID}", h.ServeHTTP)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, store
}

func dial(t *testing.T, srv *httptest.Server, quizID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/quizzes/" + quizID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, typ MessageType, payload string) {
	t.Helper()
	msg := `{"type":"` + string(typ) + `"`
	if payload != "" {
		msg += `,"payload":` + payload
	}
	msg += "}"
	if err := conn.WriteMessage(websocket.TextMessage, []byte(msg)); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// readUntil reads frames until match returns true.
func readUntil(t *testing.T, conn *websocket.Conn, match func(frame) bool) frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		var f frame
		if err := conn.ReadJSON(&f); err != nil {
			t.Fatalf("read: %v", err)
		}
		if match(f) {
			return f
		}
	}
}

func stateWhere(t *testing.T, pred func(session.View) bool) func(frame) bool {
	return func(f frame) bool {
		if f.Type != MessageTypeState {
			return false
		}
		var v session.View
		if err := json.Unmarshal(f.Payload, &v); err != nil {
			t.Fatalf("decode state: %v", err)
		}
		return pred(v)
	}
}

func ofType(typ MessageType) func(frame) bool {
	return func(f frame) bool { return f.Type == typ }
}

func TestLiveSessionSubmit(t *testing.T) {
	srv, store := newServer(t, nil)
	conn := dial(t, srv, "quiz1")

	first := readUntil(t, conn, ofType(MessageTypeState))
	if strings.Contains(string(first.Payload), "isCorrect") || strings.Contains(string(first.Payload), "isTrue") {
		t.Fatalf("initial state leaks answers: %s", first.Payload)
	}

	send(t, conn, MessageTypeUseHint, `{"hintId":"h1"}`)
	send(t, conn, MessageTypeSetAnswer, `true`)
	readUntil(t, conn, stateWhere(t, func(v session.View) bool { return string(v.Answers["q1"]) == "true" }))
	send(t, conn, MessageTypeNext, "")
	send(t, conn, MessageTypeSetAnswer, `"b"`)
	send(t, conn, MessageTypeSubmit, "")

	f := readUntil(t, conn, ofType(MessageTypeResults))
	var res grading.Results
	if err := json.Unmarshal(f.Payload, &res); err != nil {
		t.Fatal(err)
	}
	if res.Score != 100 || res.XPEarned != (10-4)+20 || !res.Passed {
		t.Fatalf("results = %+v", res)
	}

	p, err := store.GetProgress(context.Background(), "u1")
	if err != nil || p.TotalXP != 26 || p.TotalQuizzes != 1 {
		t.Fatalf("progress = %+v, %v", p, err)
	}
	list, _ := store.ListAttempts(context.Background(), attempt.AttemptListOpts{UserID: "u1"})
	if len(list) != 1 {
		t.Fatalf("attempts = %d", len(list))
	}
}

func TestLiveSessionReviewAfterResults(t *testing.T) {
	srv, _ := newServer(t, nil)
	conn := dial(t, srv, "quiz1")
	readUntil(t, conn, ofType(MessageTypeState))

	send(t, conn, MessageTypeSubmit, "")
	v := readUntil(t, conn, stateWhere(t, func(v session.View) bool { return v.Status == session.StatusReviewing }))
	var view session.View
	_ = json.Unmarshal(v.Payload, &view)
	if len(view.Review) != 2 || view.Review[0].Result.IsCorrect {
		t.Fatalf("review = %+v", view.Review)
	}

	// reviewing is terminal; edits are ignored
	send(t, conn, MessageTypeSetAnswer, `true`)
	send(t, conn, MessageTypeGoTo, `{"index":1}`)
	v = readUntil(t, conn, stateWhere(t, func(v session.View) bool { return v.CurrentIndex == 1 }))
	_ = json.Unmarshal(v.Payload, &view)
	if len(view.Answers) != 0 {
		t.Fatalf("answers changed while reviewing: %v", view.Answers)
	}
}

func TestLiveSessionTimerSubmits(t *testing.T) {
	limit := 2
	srv, store := newServer(t, &limit, WithSessionOptions(session.WithTickInterval(10*time.Millisecond)))
	conn := dial(t, srv, "quiz1")

	f := readUntil(t, conn, ofType(MessageTypeResults))
	var res grading.Results
	_ = json.Unmarshal(f.Payload, &res)
	if res.Score != 0 || res.TotalCount != 2 {
		t.Fatalf("results = %+v", res)
	}
	p, _ := store.GetProgress(context.Background(), "u1")
	if p.TotalQuizzes != 1 {
		t.Fatalf("progress = %+v", p)
	}
}

func TestLiveSessionErrors(t *testing.T) {
	srv, _ := newServer(t, nil)
	conn := dial(t, srv, "quiz1")
	readUntil(t, conn, ofType(MessageTypeState))

	for _, raw := range []string{`not json`, `{"type":"dance"}`, `{"type":"use_hint"}`} {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
			t.Fatal(err)
		}
		readUntil(t, conn, ofType(MessageTypeError))
	}

	// another creator's private quiz looks the same as a missing one
	for _, id := range []string{"missing", "draft"} {
		url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/quizzes/" + id
		_, resp, err := websocket.DefaultDialer.Dial(url, nil)
		if err == nil || resp == nil || resp.StatusCode != http.StatusNotFound {
			t.Fatalf("quiz %s: resp=%v err=%v", id, resp, err)
		}
	}
}
