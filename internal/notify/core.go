// Package notify is the messaging and notification core C9: it wakes a
// conversation's active session when background workers finish, offers a
// paced send for a bootstrap prompt (SendInitialPrompt; sessionmgr.Spawn
// injects its own prompt directly and does not call it), and escalates
// critical-severity results to an external channel when configured.
//
// Grounded on internal/attention/feed.go's dedupe/state-tracking shape
// (here keyed by conversation_id + worker_id instead of item id) and
// internal/heartbeat.Runner's queue-and-retry delivery cadence, reused here
// unmodified for escalation pushes instead of typing-indicator acks.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nexus-chief/chief/internal/channels"
	"github.com/nexus-chief/chief/internal/heartbeat"
	"github.com/nexus-chief/chief/internal/sessionmgr"
	"github.com/nexus-chief/chief/internal/storage"
	"github.com/nexus-chief/chief/pkg/models"
)

// severityRank orders models.Severity for threshold comparison; higher
// ranks outweigh lower ones.
var severityRank = map[models.Severity]int{
	models.SeverityLow:      0,
	models.SeverityNormal:   1,
	models.SeverityHigh:     2,
	models.SeverityCritical: 3,
}

// InitialPromptPause is the pause between agent-ready detection and the
// first characters of a bootstrap prompt, giving the CLI's input handling
// time to settle before a bulk paste.
const InitialPromptPause = 400 * time.Millisecond

// Clock abstracts time.Now for tests.
type Clock func() time.Time

// Core implements wake_conversation and initial-prompt delivery.
type Core struct {
	store    *storage.Store
	sessions *sessionmgr.Manager
	log      *slog.Logger
	now      Clock

	escalation  EscalationConfig
	hbScheduler *heartbeat.Scheduler
}

// EscalationConfig tells Core to additionally push critical-severity
// results through an external channel, outside chief's own tmux windows.
type EscalationConfig struct {
	Adapter     channels.MessagesAdapter
	Channel     string // "telegram", "slack", ... — resolves the runner's visibility mode
	To          string
	MinSeverity models.Severity
	IntervalMs  int
}

// Config wires a Core's dependencies.
type Config struct {
	Store      *storage.Store
	Sessions   *sessionmgr.Manager
	Now        Clock
	Escalation EscalationConfig
}

// New builds a Core.
func New(cfg Config, log *slog.Logger) *Core {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	c := &Core{
		store:      cfg.Store,
		sessions:   cfg.Sessions,
		log:        log.With("component", "notify"),
		now:        now,
		escalation: cfg.Escalation,
	}
	if c.escalation.Adapter != nil {
		hbCfg := heartbeat.DefaultConfig()
		if cfg.Escalation.IntervalMs > 0 {
			hbCfg.IntervalMs = cfg.Escalation.IntervalMs
		}
		// Telegram/Slack both support a "typing" chat action; resolving it
		// here means a future delivery path can consult config.VisibilityMode
		// without every escalation caller re-deriving it from the channel name.
		hbCfg.VisibilityMode = heartbeat.ResolveVisibilityMode("", cfg.Escalation.Channel).String()
		c.hbScheduler = heartbeat.NewScheduler(hbCfg)
	}
	return c
}

// WakeConversation finds the conversation's current active session,
// computes the delta of unnotified completed workers, injects a brief
// summary message, and records the notifications so a later call never
// re-announces the same worker. A no-op if no session is active.
func (c *Core) WakeConversation(ctx context.Context, conversationID string) error {
	sess, err := c.sessions.ActiveSessionForConversation(ctx, conversationID)
	if err == storage.ErrNotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("notify: active session lookup: %w", err)
	}

	workers, err := c.store.ListAwaitingNotification(ctx, conversationID)
	if err != nil {
		return fmt.Errorf("notify: list awaiting notification: %w", err)
	}

	fresh := make([]*models.Worker, 0, len(workers))
	for _, w := range workers {
		if w.AttentionKind != models.AttentionResult {
			continue
		}
		if w.HasDependentChildren {
			continue
		}
		fresh = append(fresh, w)
	}
	if len(fresh) == 0 {
		return nil
	}

	message := formatWakeMessage(fresh)
	if err := c.sessions.SendMessage(ctx, sess.ID, message); err != nil {
		return fmt.Errorf("notify: send: %w", err)
	}

	c.escalateIfCritical(ctx, conversationID, fresh)

	now := c.now()
	for _, w := range fresh {
		n := &models.ConversationNotification{ConversationID: conversationID, WorkerID: w.ID, NotifiedAt: now}
		if err := c.store.RecordNotification(ctx, n); err != nil {
			c.log.Error("record notification failed", "worker", w.ShortID, "error", err)
		}
	}
	return nil
}

// escalateIfCritical queues an external-channel push for any worker in
// fresh at or above the configured severity threshold, delivered on the
// heartbeat runner's retry cadence rather than inline — a slow or
// rate-limited Telegram/Slack API must never stall the tmux wake path.
func (c *Core) escalateIfCritical(ctx context.Context, conversationID string, fresh []*models.Worker) {
	if c.escalation.Adapter == nil {
		return
	}
	threshold := severityRank[c.escalation.MinSeverity]
	for _, w := range fresh {
		if severityRank[w.Severity] < threshold {
			continue
		}
		runner := c.hbScheduler.GetOrCreate(conversationID, c.deliverEscalation, c.onEscalationEvent)
		if !runner.IsRunning() {
			runner.Start(ctx, "", conversationID)
		}
		title := w.AttentionTitle
		if title == "" {
			title = w.TaskType
		}
		runner.QueueAck(fmt.Sprintf("[%s] %s", w.Severity, title))
	}
}

func (c *Core) deliverEscalation(ctx context.Context, ack *heartbeat.HeartbeatAck) error {
	return c.escalation.Adapter.Send(ctx, c.escalation.To, ack.Text)
}

func (c *Core) onEscalationEvent(event *heartbeat.HeartbeatEvent) {
	if event.Type == "error" {
		c.log.Warn("escalation delivery failed", "session", event.SessionID, "error", event.Error)
	}
}

func formatWakeMessage(workers []*models.Worker) string {
	if len(workers) == 1 {
		return fmt.Sprintf("[NOTIFICATION] 1 new result ready: %s", workers[0].AttentionTitle)
	}
	return fmt.Sprintf("[NOTIFICATION] %d new results ready", len(workers))
}

// SendInitialPrompt delivers a session's bootstrap prompt on the cadence
// this component owns: pause for agent readiness, then a single bulk send.
func (c *Core) SendInitialPrompt(ctx context.Context, sessionID, prompt string) error {
	select {
	case <-time.After(InitialPromptPause):
	case <-ctx.Done():
		return ctx.Err()
	}
	return c.sessions.SendMessage(ctx, sessionID, prompt)
}
