package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/algodrill/algodrill/internal/rbac"
)

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func parseIntDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if v, err := strconv.Atoi(s); err == nil && v >= 0 {
		return v
	}
	return def
}

func isAdmin(r *http.Request) bool {
	return rbac.RoleFromContext(r.Context()) == rbac.RoleAdmin
}
