package http

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/algodrill/algodrill/internal/attempt"
	authmw "github.com/algodrill/algodrill/internal/auth/middleware"
	"github.com/algodrill/algodrill/internal/rbac"
)

// GET /attempts/{attemptID}
// Learners only see their own attempts; other ids answer 404.
func GetAttemptHandler(store attempt.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		a, err := store.GetAttempt(r.Context(), chi.URLParam(r, "attemptID"))
		if err != nil || !ownsOrViewsAll(r, a.UserID) {
			http.Error(w, "attempt not found", http.StatusNotFound)
			return
		}
		respondJSON(w, http.StatusOK, a)
	}
}

func ownsOrViewsAll(r *http.Request, userID string) bool {
	return userID == authmw.SubjectFromContext(r.Context()) || rbac.Can(r.Context(), "attempt:view-all")
}

// GET /attempts?quiz_id=...&user_id=...&limit=50&offset=0
// RBAC:
// - role with attempt:view-all can list any filters
// - otherwise user_id is forced to the subject
func ListAttemptsHandler(store attempt.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		quizID := strings.TrimSpace(r.URL.Query().Get("quiz_id"))
		userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
		limit := parseIntDefault(r.URL.Query().Get("limit"), 50)
		offset := parseIntDefault(r.URL.Query().Get("offset"), 0)

		if !rbac.Can(r.Context(), "attempt:view-all") {
			userID = authmw.SubjectFromContext(r.Context())
		}

		list, err := store.ListAttempts(r.Context(), attempt.AttemptListOpts{
			QuizID: quizID,
			UserID: userID,
			Limit:  limit,
			Offset: offset,
		})
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		respondJSON(w, http.StatusOK, list)
	}
}
