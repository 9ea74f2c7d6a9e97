package http

import (
	"context"
	"database/sql"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/algodrill/algodrill/internal/auth"
	"github.com/algodrill/algodrill/internal/rbac"
)

type userRow struct {
	ID       string `json:"id"`
	Username string `json:"username" validate:"required,max=64"`
	Role     string `json:"role" validate:"omitempty,oneof=learner creator admin"`
	Password string `json:"password,omitempty" validate:"omitempty,min=8"`

	line int
}

type rowError struct {
	Row      int    `json:"row"` // 1-based position in the upload
	Username string `json:"username"`
	Error    string `json:"error"`
}

type bulkResult struct {
	Inserted int        `json:"inserted"`
	Updated  int        `json:"updated"`
	Rejected []rowError `json:"rejected"`
}

// POST /users/bulk  JSON array body, or multipart file= holding a JSON array or CSV
// with a username column and optional id, role, password columns.
// Invalid rows are reported and skipped; valid rows are applied in one transaction.
func BulkUpsertUsersHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rows, err := readUserRows(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		res := bulkResult{Rejected: []rowError{}}
		valid := make([]userRow, 0, len(rows))
		for i, row := range rows {
			row.line = i + 1
			row.Username = strings.TrimSpace(row.Username)
			row.Role = strings.ToLower(strings.TrimSpace(row.Role))
			if row.Role == "" {
				row.Role = rbac.RoleLearner
			}
			if row.ID == "" {
				row.ID = row.Username
			}
			if err := validate.Struct(row); err != nil {
				res.Rejected = append(res.Rejected, rowError{Row: row.line, Username: row.Username, Error: err.Error()})
				continue
			}
			if auth.IsGuestID(row.ID) {
				res.Rejected = append(res.Rejected, rowError{Row: row.line, Username: row.Username, Error: "guest ids are reserved"})
				continue
			}
			valid = append(valid, row)
		}

		if len(valid) > 0 {
			res.Inserted, res.Updated, err = upsertUsers(r.Context(), db, valid, &res.Rejected)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
		}
		respondJSON(w, http.StatusOK, res)
	}
}

func readUserRows(r *http.Request) ([]userRow, error) {
	var rows []userRow
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := json.NewDecoder(r.Body).Decode(&rows); err != nil {
			return nil, errors.New("expected JSON array or multipart file")
		}
		return rows, nil
	}

	f, _, err := r.FormFile("file")
	if err != nil {
		return nil, errors.New("file required")
	}
	defer f.Close()
	// JSON starts with '[', anything else is read as CSV
	buf := make([]byte, 1)
	if _, err := f.Read(buf); err != nil {
		return nil, errors.New("empty file")
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, errors.New("unreadable file")
	}
	if buf[0] == '[' {
		if err := json.NewDecoder(f).Decode(&rows); err != nil {
			return nil, errors.New("bad json")
		}
		return rows, nil
	}
	rows, err = parseCSV(f)
	if err != nil {
		return nil, fmt.Errorf("bad csv: %w", err)
	}
	return rows, nil
}

type userSummary struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	TotalXP  int    `json:"totalXp"`
	Level    int    `json:"level"`
	Quizzes  int    `json:"totalQuizzes"`
}

// GET /users?role=&q=&limit=50&offset=0  users with their XP totals
func ListUsersHandler(db *sql.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		qv := r.URL.Query()
		role := strings.ToLower(strings.TrimSpace(qv.Get("role")))
		if role != "" && !rbac.ValidRole(role) {
			http.Error(w, "invalid role", http.StatusBadRequest)
			return
		}
		q := strings.ToLower(strings.TrimSpace(qv.Get("q")))
		limit := parseIntDefault(qv.Get("limit"), 50)
		if limit <= 0 || limit > 200 {
			limit = 50
		}
		offset := max(0, parseIntDefault(qv.Get("offset"), 0))

		rows, err := db.QueryContext(r.Context(), `
			SELECT u.id, u.username, u.role,
			       COALESCE(p.total_xp, 0), COALESCE(p.level, 1), COALESCE(p.total_quizzes, 0)
			FROM users u LEFT JOIN user_progress p ON p.user_id = u.id
			WHERE ($1 = '' OR u.role = $1) AND ($2 = '' OR LOWER(u.username) LIKE '%'||$2||'%')
			ORDER BY u.username LIMIT $3 OFFSET $4`, role, q, limit, offset)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		defer rows.Close()
		out := []userSummary{}
		for rows.Next() {
			var u userSummary
			if err := rows.Scan(&u.ID, &u.Username, &u.Role, &u.TotalXP, &u.Level, &u.Quizzes); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			out = append(out, u)
		}
		if err := rows.Err(); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		respondJSON(w, http.StatusOK, out)
	}
}

func parseCSV(r io.Reader) ([]userRow, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1
	hdr, err := cr.Read()
	if err != nil {
		return nil, err
	}
	col := map[string]int{}
	for i, h := range hdr {
		col[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := col["username"]; !ok {
		return nil, errors.New("missing column: username")
	}
	field := func(rec []string, name string) string {
		if i, ok := col[name]; ok && i < len(rec) {
			return rec[i]
		}
		return ""
	}

	var rows []userRow
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return rows, nil
		}
		if err != nil {
			return nil, err
		}
		rows = append(rows, userRow{
			ID:       field(rec, "id"),
			Username: field(rec, "username"),
			Role:     field(rec, "role"),
			Password: field(rec, "password"),
		})
	}
}

// upsertUsers applies rows in one transaction. New users without a password are
// appended to rejected rather than failing the batch.
func upsertUsers(ctx context.Context, db *sql.DB, rows []userRow, rejected *[]rowError) (inserted, updated int, err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		} else {
			err = tx.Commit()
		}
	}()

	now := time.Now().Unix()
	for _, row := range rows {
		var hash string
		if row.Password != "" {
			b, herr := bcrypt.GenerateFromPassword([]byte(row.Password), bcrypt.DefaultCost)
			if herr != nil {
				return inserted, updated, herr
			}
			hash = string(b)
		}

		var id string
		err = tx.QueryRowContext(ctx, `SELECT id FROM users WHERE id=$1 OR username=$2`, row.ID, row.Username).Scan(&id)
		switch {
		case err == nil:
			if hash != "" {
				_, err = tx.ExecContext(ctx, `UPDATE users SET username=$1, role=$2, password_hash=$3 WHERE id=$4`,
					row.Username, row.Role, hash, id)
			} else {
				_, err = tx.ExecContext(ctx, `UPDATE users SET username=$1, role=$2 WHERE id=$3`,
					row.Username, row.Role, id)
			}
			if err != nil {
				return inserted, updated, err
			}
			updated++
		case errors.Is(err, sql.ErrNoRows):
			err = nil
			if hash == "" {
				*rejected = append(*rejected, rowError{Row: row.line, Username: row.Username, Error: "password required for new user"})
				continue
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO users (id, username, password_hash, role, created_at) VALUES ($1,$2,$3,$4,$5)`,
				row.ID, row.Username, hash, row.Role, now)
			if err != nil {
				return inserted, updated, err
			}
			inserted++
		default:
			return inserted, updated, err
		}
	}
	return
}
