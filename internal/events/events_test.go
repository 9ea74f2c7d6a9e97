package events

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"

	"github.com/algodrill/algodrill/internal/db"
)

func openRepo(t *testing.T) *EventRepo {
	t.Helper()
	h, err := db.Open(context.Background(), db.DriverSQLite, "file:"+filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { h.Close() })
	return NewEventRepo(h, "")
}

type recordingPublisher struct {
	got    []Event
	failAt int64 // seq that fails once
}

func (p *recordingPublisher) Publish(_ context.Context, e Event) error {
	if e.Seq == p.failAt {
		p.failAt = 0
		return errors.New("broker down")
	}
	p.got = append(p.got, e)
	return nil
}

func TestRelayPublishesInOrderAndRetries(t *testing.T) {
	ctx := context.Background()
	repo := openRepo(t)
	for _, key := range []string{"a1", "a2", "a3"} {
		data, _ := json.Marshal(map[string]string{"attemptId": key})
		if err := repo.Append(ctx, nil, Event{Type: TypeAttemptGraded, Key: key, Data: data}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	pub := &recordingPublisher{failAt: 2}
	if err := RelayOnce(ctx, repo, pub); err == nil {
		t.Fatal("want error from failing publish")
	}
	if len(pub.got) != 1 || pub.got[0].Key != "a1" {
		t.Fatalf("first pass published %+v", pub.got)
	}
	pending, _ := repo.Pending(ctx, 10)
	if len(pending) != 2 || pending[0].Key != "a2" {
		t.Fatalf("pending after failure = %+v", pending)
	}

	if err := RelayOnce(ctx, repo, pub); err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if len(pub.got) != 3 || pub.got[1].Key != "a2" || pub.got[2].Key != "a3" {
		t.Fatalf("published = %+v", pub.got)
	}
	if pending, _ := repo.Pending(ctx, 10); len(pending) != 0 {
		t.Fatalf("still pending: %+v", pending)
	}
	if pub.got[0].SiteID != "local" {
		t.Fatalf("site id = %q", pub.got[0].SiteID)
	}
}

func TestNopPublisher(t *testing.T) {
	if err := (Nop{}).Publish(context.Background(), Event{}); err != nil {
		t.Fatal(err)
	}
}
