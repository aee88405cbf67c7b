package notify

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/nexus-chief/chief/internal/heartbeat"
	"github.com/nexus-chief/chief/pkg/models"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingAdapter struct {
	mu   sync.Mutex
	sent []string
}

func (r *recordingAdapter) Send(ctx context.Context, to, body string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, body)
	return nil
}

func (r *recordingAdapter) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.sent))
	copy(out, r.sent)
	return out
}

func TestFormatWakeMessage_Singular(t *testing.T) {
	workers := []*models.Worker{{AttentionTitle: "Researched Acme"}}
	got := formatWakeMessage(workers)
	want := "[NOTIFICATION] 1 new result ready: Researched Acme"
	if got != want {
		t.Errorf("formatWakeMessage = %q, want %q", got, want)
	}
}

func TestFormatWakeMessage_Plural(t *testing.T) {
	workers := []*models.Worker{{}, {}}
	got := formatWakeMessage(workers)
	want := "[NOTIFICATION] 2 new results ready"
	if got != want {
		t.Errorf("formatWakeMessage = %q, want %q", got, want)
	}
}

func TestCore_EscalateIfCritical_NoAdapterIsNoop(t *testing.T) {
	c := New(Config{}, discardLogger())
	// Should not panic with no adapter configured.
	c.escalateIfCritical(context.Background(), "chief", []*models.Worker{
		{Severity: models.SeverityCritical, AttentionTitle: "prod down"},
	})
}

func TestCore_EscalateIfCritical_OnlyAboveThreshold(t *testing.T) {
	adapter := &recordingAdapter{}
	c := New(Config{
		Escalation: EscalationConfig{
			Adapter:     adapter,
			To:          "12345",
			MinSeverity: models.SeverityHigh,
			IntervalMs:  20,
		},
	}, discardLogger())

	c.escalateIfCritical(context.Background(), "chief", []*models.Worker{
		{Severity: models.SeverityNormal, AttentionTitle: "routine sync"},
		{Severity: models.SeverityCritical, AttentionTitle: "prod down"},
	})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(adapter.messages()) > 0 {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	c.hbScheduler.StopAll()

	msgs := adapter.messages()
	if len(msgs) != 1 {
		t.Fatalf("messages = %v, want exactly 1 (only the critical worker)", msgs)
	}
	if msgs[0] != "[critical] prod down" {
		t.Errorf("message = %q, want %q", msgs[0], "[critical] prod down")
	}
}

func TestNew_ResolvesVisibilityModeFromEscalationChannel(t *testing.T) {
	c := New(Config{
		Escalation: EscalationConfig{
			Adapter: &recordingAdapter{},
			Channel: "telegram",
		},
	}, discardLogger())

	if c.hbScheduler == nil {
		t.Fatal("expected hbScheduler to be built when an adapter is configured")
	}
	runner := c.hbScheduler.GetOrCreate("conv-1", c.deliverEscalation, c.onEscalationEvent)
	if got := runner.VisibilityMode(); got != heartbeat.VisibilityTyping {
		t.Errorf("VisibilityMode() = %q, want %q", got, heartbeat.VisibilityTyping)
	}
}

func TestCore_EscalateIfCritical_BelowThresholdNeverDelivered(t *testing.T) {
	adapter := &recordingAdapter{}
	c := New(Config{
		Escalation: EscalationConfig{
			Adapter:     adapter,
			To:          "12345",
			MinSeverity: models.SeverityCritical,
			IntervalMs:  20,
		},
	}, discardLogger())

	c.escalateIfCritical(context.Background(), "chief", []*models.Worker{
		{Severity: models.SeverityHigh, AttentionTitle: "slow query"},
	})

	time.Sleep(100 * time.Millisecond)
	c.hbScheduler.StopAll()

	if msgs := adapter.messages(); len(msgs) != 0 {
		t.Fatalf("messages = %v, want none (below threshold)", msgs)
	}
}
