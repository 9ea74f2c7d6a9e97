package http

import (
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/algodrill/algodrill/internal/auth"
	authmw "github.com/algodrill/algodrill/internal/auth/middleware"
	"github.com/algodrill/algodrill/internal/rbac"
)

// accountError maps account errors to status codes.
func accountError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrUserNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, auth.ErrWrongPassword):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, auth.ErrLastAdmin), errors.Is(err, auth.ErrWeakPassword):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// PUT /admin/users/{userID}/role  {"role":"creator"}; userID may also be a username.
func AdminUpdateUserRoleHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Role string `json:"role"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		role := strings.ToLower(strings.TrimSpace(req.Role))
		if !rbac.ValidRole(role) {
			http.Error(w, "invalid role", http.StatusBadRequest)
			return
		}
		if err := auth.SetRole(r.Context(), db, chi.URLParam(r, "userID"), role); err != nil {
			accountError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// POST /users/change-password  {"old_password":"...","new_password":"..."}
func ChangePasswordHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Old string `json:"old_password"`
			New string `json:"new_password"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "bad json", http.StatusBadRequest)
			return
		}
		err := auth.ChangePassword(r.Context(), db, authmw.SubjectFromContext(r.Context()), req.Old, req.New)
		if err != nil {
			accountError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
