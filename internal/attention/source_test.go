package attention

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/nexus-chief/chief/internal/storage"
	"github.com/nexus-chief/chief/pkg/models"
)

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPoller_Tick_AddsAwaitingWorkersToFeed(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	w := &models.Worker{
		ID:             "worker-1",
		ShortID:        "abcd1234",
		TaskType:       "company_research",
		ConversationID: "chief",
		Status:         models.WorkerPending,
		CreatedAt:      time.Now(),
	}
	if err := store.CreateWorker(ctx, w); err != nil {
		t.Fatalf("CreateWorker: %v", err)
	}
	now := time.Now()
	w.Status = models.WorkerComplete
	w.AttentionKind = models.AttentionResult
	w.AttentionTitle = "Researched Acme"
	w.CompletedAt = &now
	if err := store.CompleteWorker(ctx, w); err != nil {
		t.Fatalf("CompleteWorker: %v", err)
	}

	feed := NewFeed()
	poller := NewPoller(feed, store, discardLogger())
	poller.tick(ctx)

	items := feed.Active()
	if len(items) != 1 || items[0].ID != "worker-1" {
		t.Fatalf("Active() after tick = %v, want 1 item for worker-1", items)
	}
	if items[0].Title != "Researched Acme" {
		t.Errorf("Title = %q, want %q", items[0].Title, "Researched Acme")
	}
}

func TestPoller_Tick_SkipsAlreadyNotifiedWorkers(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)

	w := &models.Worker{ID: "worker-1", ShortID: "abcd1234", TaskType: "x", ConversationID: "chief", Status: models.WorkerPending, CreatedAt: time.Now()}
	if err := store.CreateWorker(ctx, w); err != nil {
		t.Fatalf("CreateWorker: %v", err)
	}
	now := time.Now()
	w.Status = models.WorkerComplete
	w.AttentionKind = models.AttentionResult
	w.CompletedAt = &now
	if err := store.CompleteWorker(ctx, w); err != nil {
		t.Fatalf("CompleteWorker: %v", err)
	}
	if err := store.RecordNotification(ctx, &models.ConversationNotification{
		ConversationID: "chief", WorkerID: "worker-1", NotifiedAt: now,
	}); err != nil {
		t.Fatalf("RecordNotification: %v", err)
	}

	feed := NewFeed()
	poller := NewPoller(feed, store, discardLogger())
	poller.tick(ctx)

	if items := feed.Active(); len(items) != 0 {
		t.Fatalf("Active() = %v, want none (already notified)", items)
	}
}

func TestPoller_Tick_WakesSnoozedItems(t *testing.T) {
	feed := NewFeed()
	feed.Add(&Item{ID: "w1", Status: StatusNew, ReceivedAt: time.Now()})
	feed.Snooze("w1", time.Now().Add(-time.Minute))

	poller := NewPoller(feed, newTestStore(t), discardLogger())
	poller.tick(context.Background())

	got, _ := feed.Get("w1")
	if got.Status != StatusNew {
		t.Errorf("Status = %v, want %v after snooze deadline passes", got.Status, StatusNew)
	}
}
