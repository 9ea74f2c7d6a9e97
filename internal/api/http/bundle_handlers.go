package http

import (
	"bytes"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/algodrill/algodrill/internal/attempt"
	authmw "github.com/algodrill/algodrill/internal/auth/middleware"
	"github.com/algodrill/algodrill/internal/bundle"
)

const maxPackageSize = 16 << 20

// GET /quizzes/{quizID}/export  zip package with answer keys; owner or admin only
func ExportQuizHandler(store attempt.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "quizID")
		q, err := store.GetQuiz(r.Context(), id)
		if err != nil || (!isAdmin(r) && q.CreatedBy != authmw.SubjectFromContext(r.Context())) {
			http.Error(w, "quiz not found", http.StatusNotFound)
			return
		}
		questions, err := store.QuizQuestions(r.Context(), id)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		pkg, err := bundle.Build(q, questions)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/zip")
		w.Header().Set("Content-Disposition", "attachment; filename=\""+id+".zip\"")
		http.ServeContent(w, r, id+".zip", time.Now(), bytes.NewReader(pkg))
	}
}

// POST /quizzes/import  (multipart: file=package.zip)
// The caller owns everything imported. Ids held by another author are refused.
func ImportQuizHandler(store attempt.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxPackageSize)
		f, hdr, err := r.FormFile("file")
		if err != nil {
			http.Error(w, "file required", http.StatusBadRequest)
			return
		}
		defer f.Close()
		raw, err := io.ReadAll(f)
		if err != nil {
			http.Error(w, "read upload: "+err.Error(), http.StatusBadRequest)
			return
		}
		pkg, err := bundle.Read(bytes.NewReader(raw), int64(len(raw)))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		if pkg.Quiz.ID == "" {
			pkg.Quiz.ID = uuid.NewString()
		}
		if err := validate.Struct(pkg.Quiz); err != nil {
			http.Error(w, "invalid quiz: "+err.Error(), http.StatusUnprocessableEntity)
			return
		}

		sub := authmw.SubjectFromContext(r.Context())
		ctx := r.Context()
		owned := func(createdBy string, err error) bool {
			return errors.Is(err, attempt.ErrNotFound) || (err == nil && (isAdmin(r) || createdBy == sub))
		}
		for _, q := range pkg.Questions {
			prev, err := store.GetQuestion(ctx, q.ID)
			if !owned(prev.CreatedBy, err) {
				http.Error(w, "question id in use: "+q.ID, http.StatusConflict)
				return
			}
		}
		prev, err := store.GetQuiz(ctx, pkg.Quiz.ID)
		if !owned(prev.CreatedBy, err) {
			http.Error(w, "quiz id in use: "+pkg.Quiz.ID, http.StatusConflict)
			return
		}

		for _, q := range pkg.Questions {
			q.CreatedBy = sub
			if err := store.PutQuestion(ctx, q); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
		}
		pkg.Quiz.CreatedBy = sub
		if err := store.PutQuiz(ctx, pkg.Quiz); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		respondJSON(w, http.StatusCreated, map[string]any{
			"quizId":    pkg.Quiz.ID,
			"questions": len(pkg.Questions),
			"filename":  hdr.Filename,
		})
	}
}
