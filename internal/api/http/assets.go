package http

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/algodrill/algodrill/internal/attempt"
	authmw "github.com/algodrill/algodrill/internal/auth/middleware"
	"github.com/algodrill/algodrill/internal/rbac"
	"github.com/algodrill/algodrill/internal/storage"
)

// MountCodeArchive serves archived code answers under /attempts/{attemptID}/code.
// The attempt's owner and roles with code:archive may read them.
func MountCodeArchive(r chi.Router, store attempt.Store, bs storage.BlobStore) {
	allowed := func(r *http.Request) bool {
		a, err := store.GetAttempt(r.Context(), chi.URLParam(r, "attemptID"))
		if err != nil {
			return false
		}
		return a.UserID == authmw.SubjectFromContext(r.Context()) || rbac.Can(r.Context(), "code:archive")
	}

	// GET /attempts/{attemptID}/code/{questionID}
	r.Get("/{questionID}", func(w http.ResponseWriter, r *http.Request) {
		if !allowed(r) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		key := storage.CodeKey(chi.URLParam(r, "attemptID"), chi.URLParam(r, "questionID"))
		rc, err := bs.Get(r.Context(), key)
		if err != nil {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		defer rc.Close()
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = io.Copy(w, rc)
	})

	// GET /attempts/{attemptID}/code/{questionID}/url
	r.Get("/{questionID}/url", func(w http.ResponseWriter, r *http.Request) {
		if !allowed(r) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		key := storage.CodeKey(chi.URLParam(r, "attemptID"), chi.URLParam(r, "questionID"))
		u, err := bs.SignedURL(r.Context(), key)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"key": key, "url": u})
	})
}
