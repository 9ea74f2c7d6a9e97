// Package rbac decides what a role may do. Roles travel in the request context;
// permissions are "resource:action" strings.
package rbac

import (
	"context"
	"strings"
)

const (
	RoleLearner = "learner"
	RoleCreator = "creator"
	RoleAdmin   = "admin"
)

// Policy maps each role to the permissions it grants. A grant ending in "*"
// covers every permission with that prefix, and "*" alone covers all of them.
type Policy map[string][]string

var learnerPerms = []string{
	"question:view",
	"quiz:view",
	"attempt:submit",
	"attempt:view-own",
	"progress:view-own",
	"leaderboard:view",
	"code:run",
	"user:change_password",
}

// Default is the policy enforced by Can and the Require middleware. Creators can do
// everything learners can.
var Default = Policy{
	RoleLearner: learnerPerms,
	RoleCreator: append([]string{
		"question:create",
		"question:view-answers",
		"quiz:create",
		"attempt:view-all",
		"code:archive",
		"users:list",
	}, learnerPerms...),
	RoleAdmin: {"*"},
}

// ValidRole reports whether role is known to the default policy.
func ValidRole(role string) bool {
	_, ok := Default[role]
	return ok
}

func (p Policy) Grants(role, perm string) bool {
	for _, g := range p[role] {
		if g == perm || (strings.HasSuffix(g, "*") && strings.HasPrefix(perm, strings.TrimSuffix(g, "*"))) {
			return true
		}
	}
	return false
}

// GrantsAny reports whether role holds at least one of perms.
func (p Policy) GrantsAny(role string, perms ...string) bool {
	for _, perm := range perms {
		if p.Grants(role, perm) {
			return true
		}
	}
	return false
}

type roleKey struct{}

func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, roleKey{}, role)
}

func RoleFromContext(ctx context.Context) string {
	role, _ := ctx.Value(roleKey{}).(string)
	return role
}

// Can reports whether the role in ctx is granted perm by the default policy.
func Can(ctx context.Context, perm string) bool {
	return Default.Grants(RoleFromContext(ctx), perm)
}

// Visible reports whether subject may read a quiz or question: public ones are open
// to everyone, private ones to their owner and admins.
func Visible(ctx context.Context, subject string, isPublic bool, owner string) bool {
	return isPublic || RoleFromContext(ctx) == RoleAdmin || (owner != "" && owner == subject)
}
