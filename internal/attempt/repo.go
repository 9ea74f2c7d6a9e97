package attempt

import (
	"context"
	"errors"
	"slices"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/algodrill/algodrill/internal/grading"
	"github.com/algodrill/algodrill/internal/question"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrDuplicateAttempt = errors.New("attempt already recorded")
)

type QuestionFilter struct {
	Type       question.Type
	Difficulty question.Difficulty
	Topic      string
	ViewerID   string // non-empty limits results to public questions and the viewer's own
	Limit      int
	Offset     int
}

type QuizFilter struct {
	Q        string // case-insensitive title substring
	ViewerID string // non-empty limits results to public quizzes and the viewer's own
	Limit    int
	Offset   int
}

func (f QuizFilter) matches(q Quiz) bool {
	if f.Q != "" && !strings.Contains(strings.ToLower(q.Title), strings.ToLower(f.Q)) {
		return false
	}
	if f.ViewerID != "" && !q.IsPublic && q.CreatedBy != f.ViewerID {
		return false
	}
	return true
}

type AttemptListOpts struct {
	QuizID string
	UserID string
	Limit  int
	Offset int
}

type Store interface {
	PutQuestion(ctx context.Context, q question.Question) error
	GetQuestion(ctx context.Context, id string) (question.Question, error)
	ListQuestions(ctx context.Context, f QuestionFilter) ([]question.Question, error)

	PutQuiz(ctx context.Context, q Quiz) error
	GetQuiz(ctx context.Context, id string) (Quiz, error)
	ListQuizzes(ctx context.Context, f QuizFilter) ([]Quiz, error)
	// QuizQuestions returns the quiz's questions in quiz order.
	QuizQuestions(ctx context.Context, quizID string) ([]question.Question, error)

	// RecordAttempt stores a and applies d to the user's progress as one unit. A second
	// call with the same attempt id returns ErrDuplicateAttempt and changes nothing.
	RecordAttempt(ctx context.Context, a Attempt, d grading.Delta) error
	GetAttempt(ctx context.Context, id string) (Attempt, error)
	ListAttempts(ctx context.Context, opts AttemptListOpts) ([]Attempt, error)
	GetProgress(ctx context.Context, userID string) (Progress, error)
	// Leaderboard returns users ordered by total XP, highest first.
	Leaderboard(ctx context.Context, limit int) ([]Progress, error)
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return limit, max(0, offset)
}

func (f QuestionFilter) matches(q question.Question) bool {
	if f.Type != "" && q.Type != f.Type {
		return false
	}
	if f.Difficulty != "" && q.Difficulty != f.Difficulty {
		return false
	}
	if f.Topic != "" && !slices.ContainsFunc(q.Topics, func(t string) bool { return strings.EqualFold(t, f.Topic) }) {
		return false
	}
	if f.ViewerID != "" && !q.IsPublic && q.CreatedBy != f.ViewerID {
		return false
	}
	return true
}

type memoryStore struct {
	mu        sync.RWMutex
	questions map[string]question.Question
	quizzes   map[string]Quiz
	attempts  map[string]Attempt
	progress  map[string]Progress
}

func NewInMemoryStore() Store {
	return &memoryStore{
		questions: map[string]question.Question{},
		quizzes:   map[string]Quiz{},
		attempts:  map[string]Attempt{},
		progress:  map[string]Progress{},
	}
}

func (m *memoryStore) PutQuestion(_ context.Context, q question.Question) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if q.CreatedAt == 0 {
		q.CreatedAt = time.Now().Unix()
	}
	m.questions[q.ID] = q
	return nil
}

func (m *memoryStore) GetQuestion(_ context.Context, id string) (question.Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.questions[id]
	if !ok {
		return question.Question{}, ErrNotFound
	}
	return q, nil
}

func (m *memoryStore) ListQuestions(_ context.Context, f QuestionFilter) ([]question.Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []question.Question{}
	for _, q := range m.questions {
		if f.matches(q) {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	limit, offset := clampPage(f.Limit, f.Offset)
	return page(out, limit, offset), nil
}

func (m *memoryStore) PutQuiz(_ context.Context, q Quiz) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range q.QuestionIDs {
		if _, ok := m.questions[id]; !ok {
			return errors.New("unknown question: " + id)
		}
	}
	if q.CreatedAt == 0 {
		q.CreatedAt = time.Now().Unix()
	}
	m.quizzes[q.ID] = q
	return nil
}

func (m *memoryStore) GetQuiz(_ context.Context, id string) (Quiz, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.quizzes[id]
	if !ok {
		return Quiz{}, ErrNotFound
	}
	return q, nil
}

func (m *memoryStore) ListQuizzes(_ context.Context, f QuizFilter) ([]Quiz, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Quiz{}
	for _, q := range m.quizzes {
		if f.matches(q) {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	limit, offset := clampPage(f.Limit, f.Offset)
	return page(out, limit, offset), nil
}

func (m *memoryStore) QuizQuestions(_ context.Context, quizID string) ([]question.Question, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	qz, ok := m.quizzes[quizID]
	if !ok {
		return nil, ErrNotFound
	}
	out := make([]question.Question, 0, len(qz.QuestionIDs))
	for _, id := range qz.QuestionIDs {
		q, ok := m.questions[id]
		if !ok {
			return nil, errors.New("quiz " + quizID + " references missing question " + id)
		}
		out = append(out, q)
	}
	return out, nil
}

func (m *memoryStore) RecordAttempt(_ context.Context, a Attempt, d grading.Delta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.attempts[a.ID]; ok {
		return ErrDuplicateAttempt
	}
	if _, ok := m.quizzes[a.QuizID]; !ok {
		return ErrNotFound
	}
	m.attempts[a.ID] = a
	p, ok := m.progress[a.UserID]
	if !ok {
		p = Progress{UserID: a.UserID}
	}
	p = p.Apply(d)
	p.UpdatedAt = time.Now().Unix()
	m.progress[a.UserID] = p
	return nil
}

func (m *memoryStore) GetAttempt(_ context.Context, id string) (Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.attempts[id]
	if !ok {
		return Attempt{}, ErrNotFound
	}
	return a, nil
}

func (m *memoryStore) ListAttempts(_ context.Context, opts AttemptListOpts) ([]Attempt, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Attempt{}
	for _, a := range m.attempts {
		if opts.QuizID != "" && a.QuizID != opts.QuizID {
			continue
		}
		if opts.UserID != "" && a.UserID != opts.UserID {
			continue
		}
		a.Answers = nil
		out = append(out, a)
	}
	// newest first
	sort.Slice(out, func(i, j int) bool {
		if out[i].CompletedAt != out[j].CompletedAt {
			return out[i].CompletedAt > out[j].CompletedAt
		}
		return out[i].ID < out[j].ID
	})
	limit, offset := clampPage(opts.Limit, opts.Offset)
	return page(out, limit, offset), nil
}

func (m *memoryStore) GetProgress(_ context.Context, userID string) (Progress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.progress[userID]
	if !ok {
		return Progress{UserID: userID, Level: 1}, nil
	}
	return p, nil
}

func (m *memoryStore) Leaderboard(_ context.Context, limit int) ([]Progress, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Progress, 0, len(m.progress))
	for _, p := range m.progress {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalXP != out[j].TotalXP {
			return out[i].TotalXP > out[j].TotalXP
		}
		return out[i].UserID < out[j].UserID
	})
	limit, _ = clampPage(limit, 0)
	return page(out, limit, 0), nil
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return []T{}
	}
	return items[offset:min(len(items), offset+limit)]
}
