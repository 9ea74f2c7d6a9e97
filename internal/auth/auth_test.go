package auth

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"

	authmw "github.com/algodrill/algodrill/internal/auth/middleware"
	"github.com/algodrill/algodrill/internal/db"
	"github.com/algodrill/algodrill/internal/rbac"
)

func openDB(t *testing.T) *sql.DB {
	t.Helper()
	h, err := db.Open(context.Background(), db.DriverSQLite, "file:"+filepath.Join(t.TempDir(), "auth.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return h
}

func hash(t *testing.T, pw string) string {
	t.Helper()
	b, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	return string(b)
}

func login(h http.Handler, user, pw string) *httptest.ResponseRecorder {
	body := `{"username":"` + user + `","password":"` + pw + `"}`
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body)))
	return rec
}

func TestEnsureAdminAndLogin(t *testing.T) {
	ctx := context.Background()
	dbh := openDB(t)
	a := authmw.NewAuthService("test-secret-0123456789")

	created, err := EnsureAdmin(ctx, dbh, "root", hash(t, "hunter2"))
	if err != nil || !created {
		t.Fatalf("EnsureAdmin = %v, %v", created, err)
	}
	if created, err := EnsureAdmin(ctx, dbh, "root", hash(t, "other")); err != nil || created {
		t.Fatalf("second EnsureAdmin = %v, %v", created, err)
	}

	h := authmw.LoginHandler(a, dbh)
	if rec := login(h, "root", "wrong"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password: %d", rec.Code)
	}
	if rec := login(h, "nobody", "hunter2"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("unknown user: %d", rec.Code)
	}
	rec := login(h, "root", "hunter2")
	if rec.Code != http.StatusOK {
		t.Fatalf("login: %d %s", rec.Code, rec.Body)
	}
	var out struct {
		AccessToken string `json:"access_token"`
		Role        string `json:"role"`
	}
	_ = json.NewDecoder(rec.Body).Decode(&out)
	c, err := a.Parse(out.AccessToken)
	if err != nil || c.Sub != "root" || c.Role != rbac.RoleAdmin || out.Role != rbac.RoleAdmin {
		t.Fatalf("claims = %+v, %v", c, err)
	}
}

func TestGuestLoginIsReusedByCookie(t *testing.T) {
	dbh := openDB(t)
	a := authmw.NewAuthService("test-secret-0123456789")
	h := GuestLoginHandler(a, dbh)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/auth/guest", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("guest: %d %s", rec.Code, rec.Body)
	}
	var first struct {
		UserID string `json:"user_id"`
	}
	_ = json.NewDecoder(rec.Body).Decode(&first)
	cookies := rec.Result().Cookies()
	if len(cookies) != 1 || cookies[0].Value != first.UserID {
		t.Fatalf("cookies = %v", cookies)
	}

	req := httptest.NewRequest(http.MethodPost, "/auth/guest", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	var second struct {
		AccessToken string `json:"access_token"`
		UserID      string `json:"user_id"`
	}
	_ = json.NewDecoder(rec.Body).Decode(&second)
	if second.UserID != first.UserID {
		t.Fatalf("guest not reused: %q vs %q", second.UserID, first.UserID)
	}
	c, err := a.Parse(second.AccessToken)
	if err != nil || c.Role != rbac.RoleLearner {
		t.Fatalf("claims = %+v, %v", c, err)
	}

	// guests have no password and cannot use the password login
	var username string
	_ = dbh.QueryRow(`SELECT username FROM users WHERE id=$1`, first.UserID).Scan(&username)
	if rec := login(authmw.LoginHandler(a, dbh), username, ""); rec.Code != http.StatusUnauthorized {
		t.Fatalf("guest password login: %d", rec.Code)
	}
}

func addUser(t *testing.T, dbh *sql.DB, id, role, passHash string) {
	t.Helper()
	if _, err := dbh.Exec(`INSERT INTO users (id, username, password_hash, role, created_at) VALUES ($1,$1,$2,$3,0)`, id, passHash, role); err != nil {
		t.Fatal(err)
	}
}

func TestSetRole(t *testing.T) {
	ctx := context.Background()
	dbh := openDB(t)
	addUser(t, dbh, "root", rbac.RoleAdmin, "")
	addUser(t, dbh, "ann", rbac.RoleLearner, "")

	cases := []struct {
		name string
		user string
		role string
		want error
	}{
		{"promote by username", "ann", rbac.RoleAdmin, nil},
		{"demote while another admin exists", "root", rbac.RoleCreator, nil},
		{"demote the last admin", "ann", rbac.RoleLearner, ErrLastAdmin},
		{"same role is a no-op", "ann", rbac.RoleAdmin, nil},
		{"unknown user", "nobody", rbac.RoleLearner, ErrUserNotFound},
	}
	for _, tc := range cases {
		if err := SetRole(ctx, dbh, tc.user, tc.role); !errors.Is(err, tc.want) {
			t.Fatalf("%s: err = %v, want %v", tc.name, err, tc.want)
		}
	}
	if err := SetRole(ctx, dbh, "root", "wizard"); err == nil {
		t.Fatal("invalid role accepted")
	}

	var role string
	_ = dbh.QueryRow(`SELECT role FROM users WHERE id='root'`).Scan(&role)
	if role != rbac.RoleCreator {
		t.Fatalf("root role = %s", role)
	}
}

func TestChangePassword(t *testing.T) {
	ctx := context.Background()
	dbh := openDB(t)
	addUser(t, dbh, "ann", rbac.RoleLearner, hash(t, "old-password"))
	addUser(t, dbh, "guest|x", rbac.RoleLearner, "")

	cases := []struct {
		name     string
		user     string
		old, new string
		want     error
	}{
		{"too short", "ann", "old-password", "short", ErrWeakPassword},
		{"wrong old password", "ann", "nope", "new-password", ErrWrongPassword},
		{"guest has no password", "guest|x", "", "new-password", ErrWrongPassword},
		{"unknown user", "nobody", "x", "new-password", ErrUserNotFound},
		{"ok", "ann", "old-password", "new-password", nil},
		{"old password no longer works", "ann", "old-password", "another-one", ErrWrongPassword},
	}
	for _, tc := range cases {
		if err := ChangePassword(ctx, dbh, tc.user, tc.old, tc.new); !errors.Is(err, tc.want) {
			t.Fatalf("%s: err = %v, want %v", tc.name, err, tc.want)
		}
	}
	a := authmw.NewAuthService("test-secret-0123456789")
	if rec := login(authmw.LoginHandler(a, dbh), "ann", "new-password"); rec.Code != http.StatusOK {
		t.Fatalf("login with new password: %d", rec.Code)
	}
}
