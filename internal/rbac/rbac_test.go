package rbac

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDefaultPolicy(t *testing.T) {
	cases := []struct {
		role, perm string
		want       bool
	}{
		{RoleLearner, "attempt:submit", true},
		{RoleLearner, "quiz:create", false},
		{RoleLearner, "attempt:view-all", false},
		{RoleCreator, "quiz:create", true},
		{RoleCreator, "attempt:submit", true},
		{RoleCreator, "users:bulk_upsert", false},
		{RoleAdmin, "users:bulk_upsert", true},
		{"", "quiz:view", false},
		{"guest", "quiz:view", false},
	}
	for _, tc := range cases {
		if got := Default.Grants(tc.role, tc.perm); got != tc.want {
			t.Errorf("Grants(%q, %q) = %v, want %v", tc.role, tc.perm, got, tc.want)
		}
	}
}

func TestPrefixPattern(t *testing.T) {
	p := Policy{"ops": {"quiz:*"}}
	if !p.Grants("ops", "quiz:create") || p.Grants("ops", "question:create") {
		t.Fatal("prefix pattern mismatch")
	}
	if !p.GrantsAny("ops", "question:create", "quiz:view") || p.GrantsAny("ops", "question:create") {
		t.Fatal("GrantsAny mismatch")
	}
}

func TestRequire(t *testing.T) {
	h := Require("quiz:create")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	for role, want := range map[string]int{
		RoleCreator: http.StatusNoContent,
		RoleLearner: http.StatusForbidden,
		"":          http.StatusForbidden,
	} {
		req := httptest.NewRequest(http.MethodPost, "/quizzes", nil)
		req = req.WithContext(WithRole(context.Background(), role))
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Errorf("role %q: status %d, want %d", role, rec.Code, want)
		}
	}
}

func TestValidRole(t *testing.T) {
	if !ValidRole(RoleLearner) || ValidRole("student") {
		t.Fatal("ValidRole")
	}
}

func TestVisible(t *testing.T) {
	learner := WithRole(context.Background(), RoleLearner)
	admin := WithRole(context.Background(), RoleAdmin)
	cases := []struct {
		name     string
		ctx      context.Context
		subject  string
		isPublic bool
		owner    string
		want     bool
	}{
		{"public", learner, "l1", true, "c1", true},
		{"private, other owner", learner, "l1", false, "c1", false},
		{"private, own", learner, "c1", false, "c1", true},
		{"private, admin", admin, "root", false, "c1", true},
		{"private, no owner", learner, "", false, "", false},
	}
	for _, tc := range cases {
		if got := Visible(tc.ctx, tc.subject, tc.isPublic, tc.owner); got != tc.want {
			t.Errorf("%s: Visible = %v, want %v", tc.name, got, tc.want)
		}
	}
}
