package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/algodrill/algodrill/internal/attempt"
	authmw "github.com/algodrill/algodrill/internal/auth/middleware"
	"github.com/algodrill/algodrill/internal/question"
	"github.com/algodrill/algodrill/internal/rbac"
)

// canSeeAnswers: admins see every answer key, creators only their own.
func canSeeAnswers(r *http.Request, createdBy string) bool {
	if isAdmin(r) {
		return true
	}
	sub := authmw.SubjectFromContext(r.Context())
	return rbac.Can(r.Context(), "question:view-answers") && createdBy != "" && createdBy == sub
}

func canSee(r *http.Request, isPublic bool, createdBy string) bool {
	return rbac.Visible(r.Context(), authmw.SubjectFromContext(r.Context()), isPublic, createdBy)
}

// POST /questions  (question builder JSON)
func CreateQuestionHandler(store attempt.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var q question.Question
		if err := json.NewDecoder(r.Body).Decode(&q); err != nil {
			http.Error(w, "bad json: "+err.Error(), http.StatusBadRequest)
			return
		}
		if q.ID == "" {
			q.ID = uuid.NewString()
		}
		if existing, err := store.GetQuestion(r.Context(), q.ID); err == nil && !canSeeAnswers(r, existing.CreatedBy) {
			http.Error(w, "forbidden", http.StatusForbidden)
			return
		}
		q.CreatedBy = authmw.SubjectFromContext(r.Context())
		if err := q.Validate(); err != nil {
			var ve *question.ValidationError
			if errors.As(err, &ve) {
				respondJSON(w, http.StatusUnprocessableEntity, ve)
				return
			}
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := store.PutQuestion(r.Context(), q); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		respondJSON(w, http.StatusCreated, map[string]string{"status": "ok", "id": q.ID})
	}
}

// GET /questions/{questionID}
func GetQuestionHandler(store attempt.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q, err := store.GetQuestion(r.Context(), chi.URLParam(r, "questionID"))
		if err != nil || !canSee(r, q.IsPublic, q.CreatedBy) {
			http.Error(w, "question not found", http.StatusNotFound)
			return
		}
		if canSeeAnswers(r, q.CreatedBy) {
			respondJSON(w, http.StatusOK, q)
			return
		}
		respondJSON(w, http.StatusOK, q.LearnerView())
	}
}

// GET /questions?type=&difficulty=&topic=&limit=50&offset=0
func ListQuestionsHandler(store attempt.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		qv := r.URL.Query()
		f := attempt.QuestionFilter{
			Type:       question.Type(strings.TrimSpace(qv.Get("type"))),
			Difficulty: question.Difficulty(strings.TrimSpace(qv.Get("difficulty"))),
			Topic:      strings.TrimSpace(qv.Get("topic")),
			Limit:      parseIntDefault(qv.Get("limit"), 50),
			Offset:     parseIntDefault(qv.Get("offset"), 0),
		}
		if f.Type != "" && !f.Type.Valid() {
			http.Error(w, "unknown type", http.StatusBadRequest)
			return
		}
		if f.Difficulty != "" && !f.Difficulty.Valid() {
			http.Error(w, "unknown difficulty", http.StatusBadRequest)
			return
		}
		if !isAdmin(r) {
			f.ViewerID = authmw.SubjectFromContext(r.Context())
		}
		list, err := store.ListQuestions(r.Context(), f)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		out := make([]any, len(list))
		for i, q := range list {
			if canSeeAnswers(r, q.CreatedBy) {
				out[i] = q
			} else {
				out[i] = q.LearnerView()
			}
		}
		respondJSON(w, http.StatusOK, out)
	}
}
