package sessioncache

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/algodrill/algodrill/internal/question"
	"github.com/algodrill/algodrill/internal/session"
)

type memKV struct {
	data map[string][]byte
	ttls map[string]time.Duration
}

func newMemKV() *memKV {
	return &memKV{data: map[string][]byte{}, ttls: map[string]time.Duration{}}
}

func (m *memKV) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.data[key] = value
	m.ttls[key] = ttl
	return nil
}

func (m *memKV) Get(_ context.Context, key string) ([]byte, error) {
	b, ok := m.data[key]
	if !ok {
		return nil, ErrMiss
	}
	return b, nil
}

func (m *memKV) Del(_ context.Context, key string) error {
	delete(m.data, key)
	return nil
}

func (m *memKV) Close() error { return nil }

func TestKey(t *testing.T) {
	if got := Key("u1", "q9"); got != "session:u1:q9" {
		t.Fatalf("Key = %q", got)
	}
}

func TestNilCache(t *testing.T) {
	var c *Cache
	ctx := context.Background()
	if err := c.Save(ctx, "k", session.State{}); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Load(ctx, "k"); !errors.Is(err, ErrMiss) {
		t.Fatalf("Load on nil cache: %v", err)
	}
	if err := c.Delete(ctx, "k"); err != nil {
		t.Fatal(err)
	}
	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newMemKV()
	c := &Cache{kv: store, ttl: time.Hour}

	q := question.Question{
		ID: "q1", Type: question.TypeTrueFalse, Title: "Stacks are LIFO",
		Difficulty: question.DifficultyBeginner, Topics: []string{"stack"}, XPReward: 10,
		Content: question.TrueFalse{IsTrue: true},
	}
	limit := 60
	st := session.NewState("s1", "quiz1", []question.Question{q}, &limit, time.Unix(1700000000, 0))
	st = session.Reduce(st, session.SetAnswer{Answer: json.RawMessage(`true`)})
	st = session.Reduce(st, session.Tick{})

	key := Key("u1", "quiz1")
	if err := c.Save(ctx, key, st); err != nil {
		t.Fatalf("save: %v", err)
	}
	if store.ttls[key] != time.Hour {
		t.Fatalf("ttl = %v", store.ttls[key])
	}
	got, err := c.Load(ctx, key)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.ID != "s1" || got.Version != st.Version || *got.TimeRemaining != 59 {
		t.Fatalf("loaded %+v", got)
	}
	if string(got.Answers["q1"]) != "true" {
		t.Fatalf("answers = %v", got.Answers)
	}
	if _, ok := got.Questions[0].Content.(question.TrueFalse); !ok {
		t.Fatalf("content type %T", got.Questions[0].Content)
	}

	if err := c.Delete(ctx, key); err != nil {
		t.Fatal(err)
	}
	if _, err := c.Load(ctx, key); !errors.Is(err, ErrMiss) {
		t.Fatalf("after delete: %v", err)
	}
}
