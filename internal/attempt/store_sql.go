package attempt

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/algodrill/algodrill/internal/events"
	"github.com/algodrill/algodrill/internal/grading"
	"github.com/algodrill/algodrill/internal/question"
)

type SQLStore struct {
	db     *sql.DB
	driver string // "sqlite" or "postgres"
	events *events.EventRepo
}

// NewSQLStore uses the schema from db.Open. Every recorded attempt also appends an
// attempt.graded row to event_log in the same transaction.
func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver, events: events.NewEventRepo(db, "")}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func (s *SQLStore) PutQuestion(ctx context.Context, q question.Question) error {
	if q.CreatedAt == 0 {
		q.CreatedAt = time.Now().Unix()
	}
	data, err := json.Marshal(q)
	if err != nil {
		return err
	}
	topics, err := json.Marshal(q.Topics)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO questions (id,type,title,difficulty,topics_json,data_json,is_public,created_by,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id) DO UPDATE SET type=EXCLUDED.type, title=EXCLUDED.title, difficulty=EXCLUDED.difficulty,
			topics_json=EXCLUDED.topics_json, data_json=EXCLUDED.data_json, is_public=EXCLUDED.is_public`,
		q.ID, string(q.Type), q.Title, string(q.Difficulty), string(topics), string(data), boolInt(q.IsPublic), q.CreatedBy, q.CreatedAt)
	return err
}

func (s *SQLStore) GetQuestion(ctx context.Context, id string) (question.Question, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `SELECT data_json FROM questions WHERE id=$1`, id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return question.Question{}, ErrNotFound
		}
		return question.Question{}, err
	}
	var q question.Question
	if err := json.Unmarshal([]byte(data), &q); err != nil {
		return question.Question{}, err
	}
	return q, nil
}

// ListQuestions filters type and difficulty in SQL and the rest after decoding.
func (s *SQLStore) ListQuestions(ctx context.Context, f QuestionFilter) ([]question.Question, error) {
	where := []string{"1=1"}
	var args []any
	if f.Type != "" {
		args = append(args, string(f.Type))
		where = append(where, fmt.Sprintf("type=$%d", len(args)))
	}
	if f.Difficulty != "" {
		args = append(args, string(f.Difficulty))
		where = append(where, fmt.Sprintf("difficulty=$%d", len(args)))
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT data_json FROM questions WHERE `+strings.Join(where, " AND ")+` ORDER BY id`, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []question.Question{}
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var q question.Question
		if err := json.Unmarshal([]byte(data), &q); err != nil {
			return nil, err
		}
		if f.matches(q) {
			out = append(out, q)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	limit, offset := clampPage(f.Limit, f.Offset)
	return page(out, limit, offset), nil
}

func (s *SQLStore) PutQuiz(ctx context.Context, q Quiz) error {
	for _, id := range q.QuestionIDs {
		if _, err := s.GetQuestion(ctx, id); err != nil {
			if errors.Is(err, ErrNotFound) {
				return errors.New("unknown question: " + id)
			}
			return err
		}
	}
	if q.CreatedAt == 0 {
		q.CreatedAt = time.Now().Unix()
	}
	ids, err := json.Marshal(q.QuestionIDs)
	if err != nil {
		return err
	}
	var limit sql.NullInt64
	if q.TimeLimit != nil {
		limit = sql.NullInt64{Int64: int64(*q.TimeLimit), Valid: true}
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO quizzes (id,title,description,question_ids_json,passing_score,time_limit_sec,is_public,created_by,created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id) DO UPDATE SET title=EXCLUDED.title, description=EXCLUDED.description,
			question_ids_json=EXCLUDED.question_ids_json, passing_score=EXCLUDED.passing_score,
			time_limit_sec=EXCLUDED.time_limit_sec, is_public=EXCLUDED.is_public`,
		q.ID, q.Title, q.Description, string(ids), q.PassingScore, limit, boolInt(q.IsPublic), q.CreatedBy, q.CreatedAt)
	return err
}

const quizCols = `id,title,description,question_ids_json,passing_score,time_limit_sec,is_public,created_by,created_at`

func scanQuiz(row scanner) (Quiz, error) {
	var (
		q      Quiz
		ids    string
		limit  sql.NullInt64
		public int
	)
	if err := row.Scan(&q.ID, &q.Title, &q.Description, &ids, &q.PassingScore, &limit, &public, &q.CreatedBy, &q.CreatedAt); err != nil {
		return Quiz{}, err
	}
	if err := json.Unmarshal([]byte(ids), &q.QuestionIDs); err != nil {
		return Quiz{}, err
	}
	if limit.Valid {
		t := int(limit.Int64)
		q.TimeLimit = &t
	}
	q.IsPublic = public != 0
	return q, nil
}

func (s *SQLStore) GetQuiz(ctx context.Context, id string) (Quiz, error) {
	q, err := scanQuiz(s.db.QueryRowContext(ctx, `SELECT `+quizCols+` FROM quizzes WHERE id=$1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return Quiz{}, ErrNotFound
	}
	return q, err
}

func (s *SQLStore) ListQuizzes(ctx context.Context, f QuizFilter) ([]Quiz, error) {
	where := []string{"1=1"}
	var args []any
	if f.Q != "" {
		args = append(args, "%"+strings.ToLower(f.Q)+"%")
		where = append(where, fmt.Sprintf("LOWER(title) LIKE $%d", len(args)))
	}
	if f.ViewerID != "" {
		args = append(args, f.ViewerID)
		where = append(where, fmt.Sprintf("(is_public=1 OR created_by=$%d)", len(args)))
	}
	limit, offset := clampPage(f.Limit, f.Offset)
	args = append(args, limit, offset)
	rows, err := s.db.QueryContext(ctx,
		fmt.Sprintf(`SELECT %s FROM quizzes WHERE %s ORDER BY id LIMIT $%d OFFSET $%d`,
			quizCols, strings.Join(where, " AND "), len(args)-1, len(args)), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Quiz{}
	for rows.Next() {
		q, err := scanQuiz(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, rows.Err()
}

func (s *SQLStore) QuizQuestions(ctx context.Context, quizID string) ([]question.Question, error) {
	qz, err := s.GetQuiz(ctx, quizID)
	if err != nil {
		return nil, err
	}
	out := make([]question.Question, 0, len(qz.QuestionIDs))
	for _, id := range qz.QuestionIDs {
		q, err := s.GetQuestion(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("quiz %s question %s: %w", quizID, id, err)
		}
		out = append(out, q)
	}
	return out, nil
}

func (s *SQLStore) RecordAttempt(ctx context.Context, a Attempt, d grading.Delta) (err error) {
	answers, err := json.Marshal(a.Answers)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(gradedEvent{
		AttemptID: a.ID, QuizID: a.QuizID, UserID: a.UserID,
		Score: a.Score, XPEarned: a.XPEarned, Passed: a.Passed, CompletedAt: a.CompletedAt,
	})
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
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

	if err = tx.QueryRowContext(ctx, `SELECT 1 FROM attempts WHERE id=$1`, a.ID).Scan(new(int)); err == nil {
		return ErrDuplicateAttempt
	} else if !errors.Is(err, sql.ErrNoRows) {
		return err
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO attempts
		(id,quiz_id,user_id,status,score,correct_count,total_count,xp_earned,time_spent,passed,answers_json,started_at,completed_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		a.ID, a.QuizID, a.UserID, a.Status, a.Score, a.CorrectCount, a.TotalCount, a.XPEarned, a.TimeSpent,
		boolInt(a.Passed), string(answers), a.StartedAt, a.CompletedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicateAttempt
		}
		return err
	}

	_, err = tx.ExecContext(ctx, `INSERT INTO user_progress
		(user_id,total_xp,level,total_quizzes,total_questions,correct_answers,updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (user_id) DO UPDATE SET
			total_xp=user_progress.total_xp+EXCLUDED.total_xp,
			level=1+(user_progress.total_xp+EXCLUDED.total_xp)/$8,
			total_quizzes=user_progress.total_quizzes+EXCLUDED.total_quizzes,
			total_questions=user_progress.total_questions+EXCLUDED.total_questions,
			correct_answers=user_progress.correct_answers+EXCLUDED.correct_answers,
			updated_at=EXCLUDED.updated_at`,
		a.UserID, d.XP, LevelFor(d.XP), d.Quizzes, d.Questions, d.Correct, time.Now().Unix(), LevelXP)
	if err != nil {
		return err
	}

	err = s.events.Append(ctx, tx, events.Event{Type: events.TypeAttemptGraded, Key: a.ID, Data: payload})
	return err
}

type gradedEvent struct {
	AttemptID   string `json:"attemptId"`
	QuizID      string `json:"quizId"`
	UserID      string `json:"userId"`
	Score       int    `json:"score"`
	XPEarned    int    `json:"xpEarned"`
	Passed      bool   `json:"passed"`
	CompletedAt int64  `json:"completedAt"`
}

func isUniqueViolation(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || // sqlite
		strings.Contains(msg, "duplicate key value") // postgres
}

const attemptCols = `id,quiz_id,user_id,status,score,correct_count,total_count,xp_earned,time_spent,passed,started_at,completed_at`

type scanner interface{ Scan(dest ...any) error }

func scanAttempt(row scanner, extra ...any) (Attempt, error) {
	var a Attempt
	var passed int
	dest := append([]any{&a.ID, &a.QuizID, &a.UserID, &a.Status, &a.Score, &a.CorrectCount, &a.TotalCount,
		&a.XPEarned, &a.TimeSpent, &passed, &a.StartedAt, &a.CompletedAt}, extra...)
	if err := row.Scan(dest...); err != nil {
		return Attempt{}, err
	}
	a.Passed = passed != 0
	return a, nil
}

func (s *SQLStore) GetAttempt(ctx context.Context, id string) (Attempt, error) {
	var answers string
	row := s.db.QueryRowContext(ctx, `SELECT `+attemptCols+`,answers_json FROM attempts WHERE id=$1`, id)
	a, err := scanAttempt(row, &answers)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Attempt{}, ErrNotFound
		}
		return Attempt{}, err
	}
	if err := json.Unmarshal([]byte(answers), &a.Answers); err != nil {
		return Attempt{}, fmt.Errorf("attempt %s answers: %w", id, err)
	}
	return a, nil
}

// ListAttempts returns summaries without answer snapshots, newest first.
func (s *SQLStore) ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error) {
	where := []string{"1=1"}
	var args []any
	if opts.QuizID != "" {
		args = append(args, opts.QuizID)
		where = append(where, fmt.Sprintf("quiz_id=$%d", len(args)))
	}
	if opts.UserID != "" {
		args = append(args, opts.UserID)
		where = append(where, fmt.Sprintf("user_id=$%d", len(args)))
	}
	limit, offset := clampPage(opts.Limit, opts.Offset)
	args = append(args, limit, offset)
	q := fmt.Sprintf(`SELECT %s FROM attempts WHERE %s ORDER BY completed_at DESC, id LIMIT $%d OFFSET $%d`,
		attemptCols, strings.Join(where, " AND "), len(args)-1, len(args))

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Attempt{}
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLStore) GetProgress(ctx context.Context, userID string) (Progress, error) {
	p := Progress{UserID: userID}
	err := s.db.QueryRowContext(ctx, `SELECT total_xp,level,total_quizzes,total_questions,correct_answers,updated_at
		FROM user_progress WHERE user_id=$1`, userID).
		Scan(&p.TotalXP, &p.Level, &p.TotalQuizzes, &p.TotalQuestions, &p.CorrectAnswers, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Progress{UserID: userID, Level: 1}, nil
	}
	if err != nil {
		return Progress{}, err
	}
	return p, nil
}

// Leaderboard returns the top users by XP.
func (s *SQLStore) Leaderboard(ctx context.Context, limit int) ([]Progress, error) {
	limit, _ = clampPage(limit, 0)
	rows, err := s.db.QueryContext(ctx, `SELECT user_id,total_xp,level,total_quizzes,total_questions,correct_answers,updated_at
		FROM user_progress ORDER BY total_xp DESC, user_id LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []Progress{}
	for rows.Next() {
		var p Progress
		if err := rows.Scan(&p.UserID, &p.TotalXP, &p.Level, &p.TotalQuizzes, &p.TotalQuestions, &p.CorrectAnswers, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Events exposes the event log for the relay.
func (s *SQLStore) Events() *events.EventRepo { return s.events }

var _ Store = (*SQLStore)(nil)
