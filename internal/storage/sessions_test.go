package storage

import (
	"context"
	"testing"
	"time"

	"github.com/nexus-chief/chief/pkg/models"
)

func newMemStore(t *testing.T) *Store {
	t.Helper()
	store, err := OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestSession_CreateGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(t)

	now := time.Now()
	sess := &models.Session{
		ID:             "sess-1",
		ConversationID: models.ChiefConversationID,
		Role:           models.RoleChief,
		Mode:           models.ModeInteractive,
		WindowName:     "chief",
		WorkingDir:     "/home/chief",
		State:          models.StateIdle,
		CreatedAt:      now,
		LastSeenAt:     now,
	}
	if err := store.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	got, err := store.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.ConversationID != sess.ConversationID || got.Role != sess.Role || got.WorkingDir != sess.WorkingDir {
		t.Errorf("GetSession round-trip mismatch: %+v", got)
	}
	if got.EndedAt != nil {
		t.Errorf("EndedAt = %v, want nil for a fresh session", got.EndedAt)
	}
}

func TestSession_GetSession_NotFound(t *testing.T) {
	store := newMemStore(t)
	if _, err := store.GetSession(context.Background(), "missing"); err != ErrNotFound {
		t.Errorf("GetSession(missing) error = %v, want ErrNotFound", err)
	}
}

func TestSession_GetActiveSessionForConversation(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(t)
	now := time.Now()

	sess := &models.Session{
		ID: "sess-1", ConversationID: "conv-a", Role: models.RoleWorker, Mode: models.ModeBackground,
		WindowName: "w", WorkingDir: "/tmp", State: models.StateActive, CreatedAt: now, LastSeenAt: now,
	}
	if err := store.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	got, err := store.GetActiveSessionForConversation(ctx, "conv-a")
	if err != nil {
		t.Fatalf("GetActiveSessionForConversation: %v", err)
	}
	if got.ID != "sess-1" {
		t.Errorf("GetActiveSessionForConversation = %q, want sess-1", got.ID)
	}

	if err := store.EndSession(ctx, "sess-1", models.EndReasonExit, now); err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	if _, err := store.GetActiveSessionForConversation(ctx, "conv-a"); err != ErrNotFound {
		t.Errorf("GetActiveSessionForConversation after EndSession error = %v, want ErrNotFound", err)
	}
}

func TestSession_EndSession_IsIdempotent(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(t)
	now := time.Now()

	sess := &models.Session{
		ID: "sess-1", ConversationID: "conv-a", Role: models.RoleWorker, Mode: models.ModeBackground,
		WindowName: "w", WorkingDir: "/tmp", State: models.StateActive, CreatedAt: now, LastSeenAt: now,
	}
	if err := store.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}

	first := now.Add(time.Minute)
	if err := store.EndSession(ctx, "sess-1", models.EndReasonExit, first); err != nil {
		t.Fatalf("EndSession (first): %v", err)
	}
	second := now.Add(time.Hour)
	if err := store.EndSession(ctx, "sess-1", models.EndReasonCrash, second); err != nil {
		t.Fatalf("EndSession (second): %v", err)
	}

	got, err := store.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetSession: %v", err)
	}
	if got.EndReason != models.EndReasonExit {
		t.Errorf("EndReason = %q after a second EndSession call, want unchanged %q", got.EndReason, models.EndReasonExit)
	}
	if got.EndedAt == nil || !got.EndedAt.Equal(first.UTC()) {
		t.Errorf("EndedAt = %v, want the first call's timestamp %v", got.EndedAt, first)
	}
}

func TestSession_GetActiveSessions_OnlyUnended(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(t)
	now := time.Now()

	active := &models.Session{ID: "s-active", ConversationID: "conv-a", Role: models.RoleWorker, Mode: models.ModeBackground, WindowName: "w", WorkingDir: "/tmp", State: models.StateActive, CreatedAt: now, LastSeenAt: now}
	ended := &models.Session{ID: "s-ended", ConversationID: "conv-b", Role: models.RoleWorker, Mode: models.ModeBackground, WindowName: "w", WorkingDir: "/tmp", State: models.StateActive, CreatedAt: now, LastSeenAt: now}
	if err := store.CreateSession(ctx, active); err != nil {
		t.Fatalf("CreateSession(active): %v", err)
	}
	if err := store.CreateSession(ctx, ended); err != nil {
		t.Fatalf("CreateSession(ended): %v", err)
	}
	if err := store.EndSession(ctx, "s-ended", models.EndReasonExit, now); err != nil {
		t.Fatalf("EndSession: %v", err)
	}

	sessions, err := store.GetActiveSessions(ctx)
	if err != nil {
		t.Fatalf("GetActiveSessions: %v", err)
	}
	if len(sessions) != 1 || sessions[0].ID != "s-active" {
		t.Fatalf("GetActiveSessions = %v, want only s-active", sessions)
	}
}

func TestSession_FindSessionByPane(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(t)
	now := time.Now()

	sess := &models.Session{ID: "sess-1", ConversationID: "conv-a", Role: models.RoleWorker, Mode: models.ModeBackground, WindowName: "w", WorkingDir: "/tmp", State: models.StateActive, CreatedAt: now, LastSeenAt: now}
	if err := store.CreateSession(ctx, sess); err != nil {
		t.Fatalf("CreateSession: %v", err)
	}
	if err := store.SetSessionPane(ctx, "sess-1", "%3"); err != nil {
		t.Fatalf("SetSessionPane: %v", err)
	}

	got, err := store.FindSessionByPane(ctx, "%3")
	if err != nil {
		t.Fatalf("FindSessionByPane: %v", err)
	}
	if got.ID != "sess-1" {
		t.Errorf("FindSessionByPane = %q, want sess-1", got.ID)
	}
}

func TestSession_MarkAllChiefEnded(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(t)
	now := time.Now()

	chief := &models.Session{ID: "chief-1", ConversationID: models.ChiefConversationID, Role: models.RoleChief, Mode: models.ModeInteractive, WindowName: "chief", WorkingDir: "/tmp", State: models.StateActive, CreatedAt: now, LastSeenAt: now}
	other := &models.Session{ID: "worker-1", ConversationID: "conv-other", Role: models.RoleWorker, Mode: models.ModeBackground, WindowName: "w", WorkingDir: "/tmp", State: models.StateActive, CreatedAt: now, LastSeenAt: now}
	if err := store.CreateSession(ctx, chief); err != nil {
		t.Fatalf("CreateSession(chief): %v", err)
	}
	if err := store.CreateSession(ctx, other); err != nil {
		t.Fatalf("CreateSession(other): %v", err)
	}

	if err := store.MarkAllChiefEnded(ctx, models.EndReasonForceReset, now); err != nil {
		t.Fatalf("MarkAllChiefEnded: %v", err)
	}

	if _, err := store.GetActiveSessionForConversation(ctx, models.ChiefConversationID); err != ErrNotFound {
		t.Errorf("chief session still active after MarkAllChiefEnded, error = %v", err)
	}
	if _, err := store.GetActiveSessionForConversation(ctx, "conv-other"); err != nil {
		t.Errorf("unrelated conversation's session was ended too: %v", err)
	}
}

func TestHandoff_CreateAndComplete(t *testing.T) {
	ctx := context.Background()
	store := newMemStore(t)
	now := time.Now()

	h := &models.Handoff{
		ID:            "handoff-1",
		PredecessorID: "sess-old",
		Role:          models.RoleChief,
		Mode:          models.ModeInteractive,
		Reason:        models.HandoffReasonContextLow,
		Status:        models.HandoffExecuting,
		RequestedAt:   now,
	}
	if err := store.CreateHandoff(ctx, h); err != nil {
		t.Fatalf("CreateHandoff: %v", err)
	}

	if err := store.CompleteHandoff(ctx, "handoff-1", models.HandoffComplete, "sess-new", "", now.Add(time.Second)); err != nil {
		t.Fatalf("CompleteHandoff: %v", err)
	}

	got, err := store.HandoffByPredecessor(ctx, "sess-old")
	if err != nil {
		t.Fatalf("HandoffByPredecessor: %v", err)
	}
	if got.Status != models.HandoffComplete || got.NewSessionID != "sess-new" {
		t.Errorf("HandoffByPredecessor after complete = %+v", got)
	}
}
