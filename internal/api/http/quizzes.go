package http

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/algodrill/algodrill/internal/attempt"
	authmw "github.com/algodrill/algodrill/internal/auth/middleware"
	"github.com/algodrill/algodrill/internal/grading"
)

var validate = validator.New()

// POST /quizzes
func CreateQuizHandler(store attempt.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var q attempt.Quiz
		if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if q.ID == "" {
			q.ID = uuid.NewString()
		}
		if existing, err := store.GetQuiz(r.Context(), q.ID); err == nil && !isAdmin(r) &&
			existing.CreatedBy != authmw.SubjectFromContext(r.Context()) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		q.CreatedBy = authmw.SubjectFromContext(r.Context())
		if err := validate.Struct(q); err != nil {
			http.Error(w, "invalid quiz: "+err.Error(), http.StatusUnprocessableEntity)
			return
		}
		if err := store.PutQuiz(r.Context(), q); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		respondJSON(w, http.StatusCreated, map[string]string{"status": "ok", "id": q.ID})
	}
}

type quizResp struct {
	attempt.Quiz
	Questions []any `json:"questions"`
}

// GET /quizzes/{quizID}  quiz plus its questions in order
func GetQuizHandler(store attempt.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "quizID")
		q, err := store.GetQuiz(r.Context(), id)
		if err != nil || !canSee(r, q.IsPublic, q.CreatedBy) {
			http.Error(w, "quiz not found", http.StatusNotFound)
			return
		}
		questions, err := store.QuizQuestions(r.Context(), id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		out := quizResp{Quiz: q, Questions: make([]any, len(questions))}
		for i, qq := range questions {
			if canSeeAnswers(r, qq.CreatedBy) {
				out.Questions[i] = qq
			} else {
				out.Questions[i] = qq.LearnerView()
			}
		}
		respondJSON(w, http.StatusOK, out)
	}
}

// GET /quizzes?q=&limit=50&offset=0
func ListQuizzesHandler(store attempt.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f := attempt.QuizFilter{
			Q:      strings.TrimSpace(r.URL.Query().Get("q")),
			Limit:  parseIntDefault(r.URL.Query().Get("limit"), 50),
			Offset: parseIntDefault(r.URL.Query().Get("offset"), 0),
		}
		if !isAdmin(r) {
			f.ViewerID = authmw.SubjectFromContext(r.Context())
		}
		list, err := store.ListQuizzes(r.Context(), f)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		respondJSON(w, http.StatusOK, list)
	}
}

type submitResp struct {
	AttemptID string `json:"attemptId"`
	grading.Results
	Replayed bool `json:"replayed,omitempty"`
}

// POST /quizzes/{quizID}/attempts  { attemptId?, answers, hintsUsed, timeSpent, startedAt }
func SubmitQuizHandler(svc *attempt.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		quizID := chi.URLParam(r, "quizID")
		var req attempt.SubmitRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		if req.TimeSpent < 0 {
			http.Error(w, "timeSpent must be >= 0", http.StatusBadRequest)
			return
		}
		q, err := svc.Store().GetQuiz(r.Context(), quizID)
		if err != nil || !canSee(r, q.IsPublic, q.CreatedBy) {
			http.Error(w, "quiz not found", http.StatusNotFound)
			return
		}

		res, err := svc.Submit(r.Context(), authmw.SubjectFromContext(r.Context()), quizID, req)
		switch {
		case errors.Is(err, attempt.ErrNotFound):
			http.Error(w, "quiz not found", http.StatusNotFound)
			return
		case errors.Is(err, attempt.ErrAttemptConflict):
			http.Error(w, "attemptId already in use, start a new attempt", http.StatusConflict)
			return
		case errors.Is(err, attempt.ErrSubmissionFailed):
			log.Printf("submit quiz %s: %v", quizID, err)
			http.Error(w, "could not save your attempt, please retry", http.StatusServiceUnavailable)
			return
		case err != nil:
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		status := http.StatusCreated
		if res.Replayed {
			status = http.StatusOK
		}
		respondJSON(w, status, submitResp{AttemptID: res.Attempt.ID, Results: res.Results, Replayed: res.Replayed})
	}
}
