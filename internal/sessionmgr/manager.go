// Package sessionmgr is the session manager C4: the single source of truth
// for spawning, querying, ending, and handing off agent sessions. Every
// other component that needs a session to exist or change state goes
// through here rather than touching internal/storage or internal/tmux
// directly.
//
// Grounded on _examples/original_source/.engine/src/modules/sessions/service.py's
// SessionService — spawn/get/heartbeat/end/cleanup_orphans/handoff/focus/
// spawn_chief/reset_chief/send_to_chief — reimplemented against tmux and
// sqlite instead of subprocess+cockroach.
package sessionmgr

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/nexus-chief/chief/internal/eventbus"
	"github.com/nexus-chief/chief/internal/storage"
	"github.com/nexus-chief/chief/internal/tmux"
	"github.com/nexus-chief/chief/pkg/models"
)

// Clock abstracts time.Now for deterministic tests.
type Clock func() time.Time

// Manager is the session lifecycle service.
type Manager struct {
	store *storage.Store
	tmux  *tmux.Driver
	bus   *eventbus.Bus
	log   *slog.Logger
	now   Clock

	workspaceRoot string
	agentCommand  string
}

// Config wires a Manager's dependencies.
type Config struct {
	Store         *storage.Store
	Tmux          *tmux.Driver
	Bus           *eventbus.Bus
	WorkspaceRoot string
	// AgentCommand is the shell command typed into a freshly created window
	// to launch the underlying coding agent (e.g. "claude --model opus").
	// Left empty in tests that only exercise bookkeeping.
	AgentCommand string
	Now          Clock // nil defaults to time.Now
}

// New builds a Manager.
func New(cfg Config, log *slog.Logger) *Manager {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Manager{
		store:         cfg.Store,
		tmux:          cfg.Tmux,
		bus:           cfg.Bus,
		log:           log.With("component", "sessionmgr"),
		now:           now,
		workspaceRoot: cfg.WorkspaceRoot,
		agentCommand:  cfg.AgentCommand,
	}
}

func newShortID() string {
	var buf [4]byte
	_, _ = rand.Read(buf[:])
	return hex.EncodeToString(buf[:])
}

// SpawnRequest describes a new session to bring up.
type SpawnRequest struct {
	Role       models.Role
	Mode       models.Mode
	WindowName string // defaults to "<role>-<id>"; "chief" is always reused for RoleChief

	Description  string
	WorkingDir   string
	InitialTask  string
	SpecPath     string

	ConversationID     string // empty generates a fresh one (or "chief" for RoleChief)
	ParentSessionID    string
	MissionExecutionID string

	HandoffDocumentPath string
	HandoffReason       models.HandoffReason
}

// SpawnResult is the outcome of a spawn attempt.
type SpawnResult struct {
	Session *models.Session
	Error   string
}

func (r SpawnResult) Success() bool { return r.Error == "" }

// Spawn creates a new tmux window (or reuses an empty existing one),
// starts the agent, and injects its initial prompt. Equivalent to the
// Python SessionService.spawn.
func (m *Manager) Spawn(ctx context.Context, req SpawnRequest) SpawnResult {
	sessionID := newShortID()

	conversationID := req.ConversationID
	if conversationID == "" {
		if req.Role == models.RoleChief {
			conversationID = models.ChiefConversationID
		} else {
			conversationID = fmt.Sprintf("%s-%s-%s", m.now().Format("0102-1504"), req.Role, newShortID())
		}
	}

	windowName := req.WindowName
	if windowName == "" {
		if req.Role == models.RoleChief {
			windowName = "chief"
		} else {
			windowName = fmt.Sprintf("%s-%s", req.Role, sessionID)
		}
	}

	if err := m.tmux.EnsureSession(ctx); err != nil {
		return SpawnResult{Error: fmt.Sprintf("ensure tmux session: %v", err)}
	}

	exists, err := m.tmux.WindowExists(ctx, windowName)
	if err != nil {
		return SpawnResult{Error: fmt.Sprintf("check window: %v", err)}
	}

	windowCreated := false
	var pane string
	if exists {
		running, err := m.tmux.IsClaudeRunning(ctx, windowName)
		if err != nil {
			return SpawnResult{Error: fmt.Sprintf("check running: %v", err)}
		}
		if running {
			return SpawnResult{Error: fmt.Sprintf("claude already running in window %q", windowName)}
		}
	} else {
		pane, err = m.tmux.CreateWindow(ctx, windowName, req.WorkingDir)
		if err != nil {
			return SpawnResult{Error: fmt.Sprintf("create window: %v", err)}
		}
		windowCreated = true
	}

	if err := m.startAgent(ctx, windowName, req); err != nil {
		if windowCreated {
			_ = m.tmux.KillWindow(ctx, windowName)
		}
		return SpawnResult{Error: fmt.Sprintf("start agent: %v", err)}
	}

	prompt := m.buildPrompt(req, conversationID)
	if req.InitialTask != "" {
		prompt += "\n\n" + req.InitialTask
	}
	if err := m.tmux.InjectMessage(ctx, windowName, prompt); err != nil {
		if windowCreated {
			_ = m.tmux.KillWindow(ctx, windowName)
		}
		return SpawnResult{Error: fmt.Sprintf("inject prompt: %v", err)}
	}

	now := m.now()
	sess := &models.Session{
		ID:                 sessionID,
		ConversationID:     conversationID,
		ParentSessionID:    req.ParentSessionID,
		Role:               req.Role,
		Mode:               req.Mode,
		WindowName:         windowName,
		PaneID:             pane,
		WorkingDir:         req.WorkingDir,
		Description:        req.Description,
		State:              models.StateIdle,
		MissionExecutionID: req.MissionExecutionID,
		SpecPath:           req.SpecPath,
		CreatedAt:          now,
		LastSeenAt:         now,
	}
	if err := m.store.CreateSession(ctx, sess); err != nil {
		return SpawnResult{Error: fmt.Sprintf("persist session: %v", err)}
	}

	m.bus.Publish(eventbus.TopicSessionStarted, sess)
	return SpawnResult{Session: sess}
}

// startAgent launches the underlying agent process in windowName. Left as
// a narrow seam: the real command line (binary, model flag, env vars) is
// environment-specific and supplied by cmd/chief's wiring via Config.AgentCommand.
func (m *Manager) startAgent(ctx context.Context, windowName string, req SpawnRequest) error {
	if m.agentCommand == "" {
		return nil
	}
	return m.tmux.SendText(ctx, windowName, m.agentCommand)
}

func (m *Manager) buildPrompt(req SpawnRequest, conversationID string) string {
	if req.HandoffDocumentPath != "" {
		return fmt.Sprintf("Resuming as %s (%s). Handoff reason: %s. Read handoff notes at: %s\nConversation: %s",
			req.Role, req.Mode, req.HandoffReason, req.HandoffDocumentPath, conversationID)
	}
	if req.Description != "" {
		return fmt.Sprintf("You are a %s session (%s mode). Task: %s\nConversation: %s", req.Role, req.Mode, req.Description, conversationID)
	}
	return fmt.Sprintf("You are a %s session (%s mode).\nConversation: %s", req.Role, req.Mode, conversationID)
}

// GetSession fetches a session by id.
func (m *Manager) GetSession(ctx context.Context, id string) (*models.Session, error) {
	return m.store.GetSession(ctx, id)
}

// GetActiveSessions returns every currently running session.
func (m *Manager) GetActiveSessions(ctx context.Context) ([]*models.Session, error) {
	return m.store.GetActiveSessions(ctx)
}

// ActiveSessionForConversation returns the current active session for a
// conversation (the row with ended_at IS NULL), or ErrNotFound if the
// conversation has no running session.
func (m *Manager) ActiveSessionForConversation(ctx context.Context, conversationID string) (*models.Session, error) {
	return m.store.GetActiveSessionForConversation(ctx, conversationID)
}

// FindSessionByPane resolves a tmux pane id to its active session, used by
// hook scripts invoked from inside a pane (CLAUDE_SESSION_ID / TMUX_PANE).
func (m *Manager) FindSessionByPane(ctx context.Context, pane string) (*models.Session, error) {
	return m.store.FindSessionByPane(ctx, pane)
}

// Heartbeat bumps last_seen_at, called on every tool use / hook fire.
func (m *Manager) Heartbeat(ctx context.Context, sessionID string) error {
	return m.store.Heartbeat(ctx, sessionID, m.now())
}

// SetStatus updates a session's free-text status line.
func (m *Manager) SetStatus(ctx context.Context, sessionID, text string) error {
	return m.store.SetSessionStatus(ctx, sessionID, text)
}

// End terminates a session. Idempotent: ending an already-ended session
// returns nil without emitting a second session.ended event (spec.md §8
// property 2).
func (m *Manager) End(ctx context.Context, sessionID string, reason models.EndReason, closeTmux bool) error {
	sess, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if !sess.Active() {
		return nil
	}

	if err := m.store.EndSession(ctx, sessionID, reason, m.now()); err != nil {
		return err
	}
	sess.EndedAt = timePtr(m.now())
	sess.EndReason = reason
	m.bus.Publish(eventbus.TopicSessionEnded, sess)

	if closeTmux && sess.WindowName != "" {
		_ = m.tmux.KillWindow(ctx, sess.WindowName)
	}
	return nil
}

func timePtr(t time.Time) *time.Time { return &t }

// CleanupOrphans ends sessions whose last_seen_at is older than maxAge and
// whose tmux window no longer exists.
func (m *Manager) CleanupOrphans(ctx context.Context, maxAge time.Duration) (int, error) {
	sessions, err := m.store.GetActiveSessions(ctx)
	if err != nil {
		return 0, err
	}
	cutoff := m.now().Add(-maxAge)

	windows, err := m.tmux.ListWindows(ctx)
	if err != nil {
		return 0, err
	}
	windowSet := make(map[string]bool, len(windows))
	for _, w := range windows {
		windowSet[w] = true
	}

	cleaned := 0
	for _, sess := range sessions {
		if sess.LastSeenAt.After(cutoff) {
			continue
		}
		if windowSet[sess.WindowName] {
			continue
		}
		if err := m.End(ctx, sess.ID, models.EndReasonOrphanCleanup, false); err != nil {
			m.log.Warn("cleanup orphan failed", "session", sess.ID, "error", err)
			continue
		}
		cleaned++
	}
	return cleaned, nil
}

// CleanupOrphanMissionExecutions marks still-running mission executions
// whose session has ended with the execution's terminal status derived
// from the session's end reason.
func (m *Manager) CleanupOrphanMissionExecutions(ctx context.Context) (int, error) {
	orphans, err := m.store.OrphanMissionExecutions(ctx)
	if err != nil {
		return 0, err
	}
	for _, exec := range orphans {
		sess, err := m.store.GetSession(ctx, exec.SessionID)
		if err != nil {
			continue
		}
		status := models.TerminalStatusForEndReason(sess.EndReason)
		if err := m.store.CompleteMissionExecution(ctx, exec.ID, status, "", "orphaned: session ended without completion report",
			timeToStr(m.now()), m.now().Sub(exec.StartedAt).Seconds()); err != nil {
			m.log.Warn("complete orphan mission execution failed", "execution", exec.ID, "error", err)
		}
	}
	return len(orphans), nil
}

func timeToStr(t time.Time) string { return t.UTC().Format(time.RFC3339Nano) }
