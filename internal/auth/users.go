package auth

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/algodrill/algodrill/internal/rbac"
)

var (
	ErrUserNotFound  = errors.New("user not found")
	ErrLastAdmin     = errors.New("cannot demote the last admin")
	ErrWrongPassword = errors.New("incorrect old password")
	ErrWeakPassword  = errors.New("new password must be at least 8 characters")
)

const minPasswordLen = 8

// EnsureAdmin creates the admin account when no user with that name exists. An
// empty passHash skips seeding.
func EnsureAdmin(ctx context.Context, db *sql.DB, username, passHash string) (bool, error) {
	if username == "" || passHash == "" {
		return false, nil
	}
	var one int
	err := db.QueryRowContext(ctx, `SELECT 1 FROM users WHERE username=$1`, username).Scan(&one)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, err
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO users (id, username, password_hash, role, created_at) VALUES ($1,$2,$3,$4,$5)`,
		username, username, passHash, rbac.RoleAdmin, time.Now().Unix())
	if err != nil {
		return false, err
	}
	return true, nil
}

// SetRole changes the role of the user with the given id or username. The last
// remaining admin keeps the admin role.
func SetRole(ctx context.Context, db *sql.DB, user, role string) (err error) {
	if !rbac.ValidRole(role) {
		return errors.New("invalid role")
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	var id, current string
	err = tx.QueryRowContext(ctx, `SELECT id, role FROM users WHERE id=$1 OR username=$1`, user).Scan(&id, &current)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrUserNotFound
	}
	if err != nil {
		return err
	}
	if current == role {
		return nil
	}
	if current == rbac.RoleAdmin {
		var admins int
		if err = tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM users WHERE role=$1`, rbac.RoleAdmin).Scan(&admins); err != nil {
			return err
		}
		if admins <= 1 {
			return ErrLastAdmin
		}
	}
	_, err = tx.ExecContext(ctx, `UPDATE users SET role=$1 WHERE id=$2`, role, id)
	return err
}

// ChangePassword replaces userID's password after checking the old one. Guest
// accounts have no password and always fail the check.
func ChangePassword(ctx context.Context, db *sql.DB, userID, oldPassword, newPassword string) error {
	if len(newPassword) < minPasswordLen {
		return ErrWeakPassword
	}
	var stored string
	err := db.QueryRowContext(ctx, `SELECT password_hash FROM users WHERE id=$1`, userID).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrUserNotFound
	}
	if err != nil {
		return err
	}
	if stored == "" || bcrypt.CompareHashAndPassword([]byte(stored), []byte(oldPassword)) != nil {
		return ErrWrongPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, `UPDATE users SET password_hash=$1 WHERE id=$2`, string(hash), userID)
	return err
}
