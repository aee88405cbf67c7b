package storage

import (
	"context"
	"testing"
	"time"

	"github.com/nexus-chief/chief/pkg/models"
)

func TestWorker_CreateGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(t)

	w := &models.Worker{
		ID:             "w-1",
		ShortID:        "w1",
		TaskType:       "company_research",
		SpawnedBy:      "chief",
		ConversationID: models.ChiefConversationID,
		DependsOn:      []string{"w-0"},
		Status:         models.WorkerPending,
		CreatedAt:      time.Now(),
	}
	if err := store.CreateWorker(ctx, w); err != nil {
		t.Fatalf("CreateWorker: %v", err)
	}

	got, err := store.GetWorker(ctx, "w-1")
	if err != nil {
		t.Fatalf("GetWorker: %v", err)
	}
	if got.TaskType != w.TaskType || got.Status != models.WorkerPending {
		t.Errorf("GetWorker round-trip mismatch: %+v", got)
	}
	if len(got.DependsOn) != 1 || got.DependsOn[0] != "w-0" {
		t.Errorf("DependsOn round-trip = %v, want [w-0]", got.DependsOn)
	}
}

func TestWorker_GetWorker_NotFound(t *testing.T) {
	store := newMemStore(t)
	if _, err := store.GetWorker(context.Background(), "missing"); err != ErrNotFound {
		t.Errorf("GetWorker(missing) error = %v, want ErrNotFound", err)
	}
}

func TestWorker_ListPendingWorkers(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(t)
	now := time.Now()

	pending := &models.Worker{ID: "w-pending", ShortID: "wp", TaskType: "t", ConversationID: "c", Status: models.WorkerPending, CreatedAt: now}
	running := &models.Worker{ID: "w-running", ShortID: "wr", TaskType: "t", ConversationID: "c", Status: models.WorkerRunning, CreatedAt: now}
	if err := store.CreateWorker(ctx, pending); err != nil {
		t.Fatalf("CreateWorker(pending): %v", err)
	}
	if err := store.CreateWorker(ctx, running); err != nil {
		t.Fatalf("CreateWorker(running): %v", err)
	}

	got, err := store.ListPendingWorkers(ctx)
	if err != nil {
		t.Fatalf("ListPendingWorkers: %v", err)
	}
	if len(got) != 1 || got[0].ID != "w-pending" {
		t.Fatalf("ListPendingWorkers = %v, want only w-pending", got)
	}
}

func TestWorker_SetStatusAndAppendLiveOutput(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(t)
	w := &models.Worker{ID: "w-1", ShortID: "w1", TaskType: "t", ConversationID: "c", Status: models.WorkerPending, CreatedAt: time.Now()}
	if err := store.CreateWorker(ctx, w); err != nil {
		t.Fatalf("CreateWorker: %v", err)
	}

	if err := store.SetWorkerStatus(ctx, "w-1", models.WorkerRunning); err != nil {
		t.Fatalf("SetWorkerStatus: %v", err)
	}
	if err := store.AppendLiveOutput(ctx, "w-1", "partial output\n"); err != nil {
		t.Fatalf("AppendLiveOutput: %v", err)
	}

	got, err := store.GetWorker(ctx, "w-1")
	if err != nil {
		t.Fatalf("GetWorker: %v", err)
	}
	if got.Status != models.WorkerRunning {
		t.Errorf("Status = %q, want running", got.Status)
	}
	if got.LiveOutput != "partial output\n" {
		t.Errorf("LiveOutput = %q", got.LiveOutput)
	}
}

func TestWorker_CompleteWorker(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(t)
	w := &models.Worker{ID: "w-1", ShortID: "w1", TaskType: "t", ConversationID: "c", Status: models.WorkerRunning, CreatedAt: time.Now()}
	if err := store.CreateWorker(ctx, w); err != nil {
		t.Fatalf("CreateWorker: %v", err)
	}

	now := time.Now()
	w.Status = models.WorkerComplete
	w.ReportMD = "# done"
	w.ReportSummary = "did the thing"
	w.AttentionKind = models.AttentionResult
	w.AttentionTitle = "Finished task"
	w.Severity = models.SeverityNormal
	w.CompletedAt = &now
	if err := store.CompleteWorker(ctx, w); err != nil {
		t.Fatalf("CompleteWorker: %v", err)
	}

	got, err := store.GetWorker(ctx, "w-1")
	if err != nil {
		t.Fatalf("GetWorker: %v", err)
	}
	if got.Status != models.WorkerComplete || got.ReportSummary != "did the thing" || got.AttentionTitle != "Finished task" {
		t.Errorf("CompleteWorker round-trip mismatch: %+v", got)
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt not set after CompleteWorker")
	}
}

func TestWorker_ClarificationFlow(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(t)
	w := &models.Worker{ID: "w-1", ShortID: "w1", TaskType: "t", ConversationID: "c", Status: models.WorkerRunning, CreatedAt: time.Now()}
	if err := store.CreateWorker(ctx, w); err != nil {
		t.Fatalf("CreateWorker: %v", err)
	}

	if err := store.SetWorkerClarification(ctx, "w-1", "sess-1", "Which account?"); err != nil {
		t.Fatalf("SetWorkerClarification: %v", err)
	}
	got, err := store.GetWorker(ctx, "w-1")
	if err != nil {
		t.Fatalf("GetWorker: %v", err)
	}
	if got.Status != models.WorkerAwaitingClarification || got.ClarificationSessionID != "sess-1" || got.AttentionTitle != "Which account?" {
		t.Fatalf("after SetWorkerClarification: %+v", got)
	}

	if err := store.AnswerWorkerClarification(ctx, "w-1", "the main one", timeToStr(time.Now())); err != nil {
		t.Fatalf("AnswerWorkerClarification: %v", err)
	}
	got, err = store.GetWorker(ctx, "w-1")
	if err != nil {
		t.Fatalf("GetWorker: %v", err)
	}
	if got.Status != models.WorkerClarificationAnswered || got.ClarificationAnswer != "the main one" {
		t.Fatalf("after AnswerWorkerClarification: %+v", got)
	}
}

func TestWorker_ListAwaitingNotificationAndRecordNotification(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(t)
	now := time.Now()

	w := &models.Worker{ID: "w-1", ShortID: "w1", TaskType: "t", ConversationID: "conv-a", Status: models.WorkerRunning, CreatedAt: now}
	if err := store.CreateWorker(ctx, w); err != nil {
		t.Fatalf("CreateWorker: %v", err)
	}
	w.Status = models.WorkerComplete
	w.CompletedAt = &now
	if err := store.CompleteWorker(ctx, w); err != nil {
		t.Fatalf("CompleteWorker: %v", err)
	}

	pending, err := store.ListAwaitingNotification(ctx, "conv-a")
	if err != nil {
		t.Fatalf("ListAwaitingNotification: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "w-1" {
		t.Fatalf("ListAwaitingNotification = %v, want [w-1]", pending)
	}

	allPending, err := store.ListAllAwaitingNotification(ctx)
	if err != nil {
		t.Fatalf("ListAllAwaitingNotification: %v", err)
	}
	if len(allPending) != 1 || allPending[0].ID != "w-1" {
		t.Fatalf("ListAllAwaitingNotification = %v, want [w-1]", allPending)
	}

	if err := store.RecordNotification(ctx, &models.ConversationNotification{ConversationID: "conv-a", WorkerID: "w-1", NotifiedAt: now}); err != nil {
		t.Fatalf("RecordNotification: %v", err)
	}

	pending, err = store.ListAwaitingNotification(ctx, "conv-a")
	if err != nil {
		t.Fatalf("ListAwaitingNotification (after record): %v", err)
	}
	if len(pending) != 0 {
		t.Errorf("ListAwaitingNotification after RecordNotification = %v, want empty", pending)
	}

	// A duplicate record must not error — the composite key makes it idempotent.
	if err := store.RecordNotification(ctx, &models.ConversationNotification{ConversationID: "conv-a", WorkerID: "w-1", NotifiedAt: now}); err != nil {
		t.Errorf("duplicate RecordNotification returned an error: %v", err)
	}
}
