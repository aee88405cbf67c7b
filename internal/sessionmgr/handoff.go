package sessionmgr

import (
	"context"
	"fmt"
	"time"

	"github.com/nexus-chief/chief/pkg/models"
)

// Handoff ends the current session and spawns its replacement, inheriting
// conversation_id and recording the transition in the handoffs table.
func (m *Manager) Handoff(ctx context.Context, sessionID, handoffDocumentPath string, reason models.HandoffReason) SpawnResult {
	sess, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return SpawnResult{Error: err.Error()}
	}

	handoffID := newShortID()
	h := &models.Handoff{
		ID:            handoffID,
		PredecessorID: sessionID,
		Role:          sess.Role,
		Mode:          sess.Mode,
		Pane:          sess.PaneID,
		DocumentPath:  handoffDocumentPath,
		Reason:        reason,
		Status:        models.HandoffExecuting,
		RequestedAt:   m.now(),
	}
	if err := m.store.CreateHandoff(ctx, h); err != nil {
		return SpawnResult{Error: fmt.Sprintf("record handoff: %v", err)}
	}

	if err := m.End(ctx, sessionID, models.EndReasonDutyReset, true); err != nil {
		return SpawnResult{Error: fmt.Sprintf("end predecessor: %v", err)}
	}
	time.Sleep(500 * time.Millisecond)

	windowName := ""
	if sess.Role == models.RoleChief {
		windowName = "chief"
	}

	result := m.Spawn(ctx, SpawnRequest{
		Role:                sess.Role,
		Mode:                sess.Mode,
		WindowName:          windowName,
		WorkingDir:          sess.WorkingDir,
		HandoffDocumentPath: handoffDocumentPath,
		HandoffReason:       reason,
		MissionExecutionID:  sess.MissionExecutionID,
		ConversationID:      sess.ConversationID,
		ParentSessionID:     sessionID,
		SpecPath:            sess.SpecPath,
	})

	if result.Success() {
		_ = m.store.CompleteHandoff(ctx, handoffID, models.HandoffComplete, result.Session.ID, "", m.now())
	} else {
		_ = m.store.CompleteHandoff(ctx, handoffID, models.HandoffFailed, "", result.Error, m.now())
	}
	return result
}

// SendMessage injects a system-style message into a session's pane.
func (m *Manager) SendMessage(ctx context.Context, sessionID, message string) error {
	sess, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.WindowName == "" {
		return fmt.Errorf("session %s has no window", sessionID)
	}
	return m.tmux.InjectMessage(ctx, sess.WindowName, message)
}

// SendKeystroke sends raw text (no added framing) to a session, used for
// interactive prompts such as AskUserQuestion where exact keystrokes
// matter.
func (m *Manager) SendKeystroke(ctx context.Context, sessionID, text string) error {
	sess, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.WindowName == "" {
		return fmt.Errorf("session %s has no window", sessionID)
	}
	return m.tmux.SendText(ctx, sess.WindowName, text)
}

// Focus switches the visible tmux window to a session's, the one place
// chief is allowed to steal the operator's view — called only in response
// to an explicit operator focus request, never as a side effect of spawn.
func (m *Manager) Focus(ctx context.Context, sessionID string) error {
	sess, err := m.store.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.WindowName == "" {
		return fmt.Errorf("session %s has no window", sessionID)
	}
	return m.tmux.FocusWindow(ctx, sess.WindowName)
}

// SpawnChief brings up the Chief window with standard settings. If force
// is set and Chief is already running, it is reset instead of rejected.
func (m *Manager) SpawnChief(ctx context.Context, handoffDocumentPath string, force bool) SpawnResult {
	if force {
		running, err := m.tmux.IsClaudeRunning(ctx, "chief")
		if err == nil && running {
			return m.ResetChief(ctx, handoffDocumentPath)
		}
	}
	reason := models.HandoffReason("")
	if handoffDocumentPath != "" {
		reason = models.HandoffReasonChiefCycle
	}
	return m.Spawn(ctx, SpawnRequest{
		Role:                models.RoleChief,
		Mode:                models.ModeInteractive,
		WindowName:          "chief",
		HandoffDocumentPath: handoffDocumentPath,
		HandoffReason:       reason,
	})
}

// ResetChief force-resets Chief regardless of its current state: window
// absent, window present but idle, or window present with Claude running.
// Grounded on the Python reset_chief sequence — interrupt x3, wait up to
// 5s for natural exit, fall back to "/exit", and finally kill the window
// outright if Claude still won't leave.
func (m *Manager) ResetChief(ctx context.Context, handoffDocumentPath string) SpawnResult {
	if err := m.tmux.EnsureSession(ctx); err != nil {
		return SpawnResult{Error: fmt.Sprintf("ensure tmux session: %v", err)}
	}

	exists, err := m.tmux.WindowExists(ctx, "chief")
	if err != nil {
		return SpawnResult{Error: fmt.Sprintf("check chief window: %v", err)}
	}
	if !exists {
		return m.SpawnChief(ctx, handoffDocumentPath, false)
	}

	running, err := m.tmux.IsClaudeRunning(ctx, "chief")
	if err != nil {
		return SpawnResult{Error: fmt.Sprintf("check chief running: %v", err)}
	}
	if running {
		for i := 0; i < 3; i++ {
			_ = m.tmux.SendKeystroke(ctx, "chief", "C-c")
			time.Sleep(500 * time.Millisecond)
		}
		for i := 0; i < 10; i++ {
			running, _ = m.tmux.IsClaudeRunning(ctx, "chief")
			if !running {
				break
			}
			time.Sleep(500 * time.Millisecond)
		}
		if running {
			_ = m.tmux.SendText(ctx, "chief", "/exit")
			time.Sleep(time.Second)
			running, _ = m.tmux.IsClaudeRunning(ctx, "chief")
		}
		if running {
			_ = m.tmux.KillWindow(ctx, "chief")
			time.Sleep(500 * time.Millisecond)
		}
	}

	if err := m.store.MarkAllChiefEnded(ctx, models.EndReasonForceReset, m.now()); err != nil {
		m.log.Warn("mark chief sessions ended failed", "error", err)
	}

	return m.SpawnChief(ctx, handoffDocumentPath, false)
}

// SendToChief sends a pre-formatted message to Chief, used by the mission
// scheduler's heartbeat sub-loop and by operator "drop a note" paths.
// Returns false if Chief's window is absent or Claude is not running,
// matching the Python send_to_chief short-circuit.
func (m *Manager) SendToChief(ctx context.Context, formatted string) bool {
	exists, err := m.tmux.WindowExists(ctx, "chief")
	if err != nil || !exists {
		return false
	}
	running, err := m.tmux.IsClaudeRunning(ctx, "chief")
	if err != nil || !running {
		return false
	}
	return m.tmux.InjectMessage(ctx, "chief", formatted) == nil
}
