package auth

import (
	"database/sql"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	authmw "github.com/algodrill/algodrill/internal/auth/middleware"
	"github.com/algodrill/algodrill/internal/rbac"
)

const (
	guestCookie = "algodrill_guest_id"
	guestPrefix = "guest|"
)

// IsGuestID reports whether id belongs to a guest account.
func IsGuestID(id string) bool { return strings.HasPrefix(id, guestPrefix) }

func setGuestCookie(w http.ResponseWriter, id string) {
	http.SetCookie(w, &http.Cookie{
		Name:     guestCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteNoneMode,
		Expires:  time.Now().Add(30 * 24 * time.Hour),
	})
}

// GuestLoginHandler issues a learner token without credentials. A browser that
// already has a guest cookie gets its previous identity back, so its progress
// carries over.
func GuestLoginHandler(a *authmw.AuthService, db *sql.DB) http.HandlerFunc {
	type out struct {
		AccessToken string `json:"access_token"`
		UserID      string `json:"user_id"`
		Username    string `json:"username"`
	}
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if c, err := r.Cookie(guestCookie); err == nil && IsGuestID(c.Value) {
			var username, role string
			err := db.QueryRowContext(r.Context(), `SELECT username, role FROM users WHERE id=$1`, c.Value).Scan(&username, &role)
			if err == nil && role == rbac.RoleLearner {
				tok, err := a.IssueJWT(c.Value, role)
				if err != nil {
					http.Error(w, "issue token", http.StatusInternalServerError)
					return
				}
				setGuestCookie(w, c.Value)
				_ = json.NewEncoder(w).Encode(out{AccessToken: tok, UserID: c.Value, Username: username})
				return
			}
		}

		sfx := strings.ReplaceAll(uuid.NewString(), "-", "")
		userID := guestPrefix + sfx
		username := "guest-" + sfx[:8]
		if _, err := db.ExecContext(r.Context(),
			`INSERT INTO users (id, username, password_hash, role, created_at) VALUES ($1,$2,'',$3,$4)`,
			userID, username, rbac.RoleLearner, time.Now().Unix()); err != nil {
			log.Printf("guest login: %v", err)
			http.Error(w, "create guest", http.StatusInternalServerError)
			return
		}

		tok, err := a.IssueJWT(userID, rbac.RoleLearner)
		if err != nil {
			http.Error(w, "issue token", http.StatusInternalServerError)
			return
		}
		setGuestCookie(w, userID)
		_ = json.NewEncoder(w).Encode(out{AccessToken: tok, UserID: userID, Username: username})
	}
}
