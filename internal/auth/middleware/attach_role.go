package auth

import (
	"database/sql"
	"errors"
	"net/http"

	"github.com/algodrill/algodrill/internal/rbac"
)

// AttachRoleFromDB replaces the role from the token with the one stored for the
// subject, so role changes apply before the token expires. Subjects without a users
// row keep their claim role only when allowClaimFallback is set.
func AttachRoleFromDB(db *sql.DB, allowClaimFallback bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			sub := SubjectFromContext(ctx)
			claimRole := rbac.RoleFromContext(ctx)

			var role string
			err := db.QueryRowContext(ctx, `SELECT role FROM users WHERE id=$1`, sub).Scan(&role)
			switch {
			case err == nil && role != "":
				next.ServeHTTP(w, r.WithContext(rbac.WithRole(ctx, role)))
			case errors.Is(err, sql.ErrNoRows) && allowClaimFallback && claimRole != "":
				next.ServeHTTP(w, r)
			case errors.Is(err, sql.ErrNoRows):
				http.Error(w, "unknown user", http.StatusUnauthorized)
			default:
				http.Error(w, "role lookup failed", http.StatusInternalServerError)
			}
		})
	}
}
