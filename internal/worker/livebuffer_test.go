package worker

import (
	"strings"
	"testing"
	"time"

	"github.com/nexus-chief/chief/pkg/models"
)

func TestLiveBuffer_AppendAccumulatesUnderCap(t *testing.T) {
	b := newLiveBuffer()
	b.Append(Event{Kind: EventText, Text: "one"})
	out := b.Append(Event{Kind: EventText, Text: "two"})

	if !strings.Contains(out, "one") || !strings.Contains(out, "two") {
		t.Errorf("Append output = %q, want both lines present", out)
	}
	if out != b.String() {
		t.Errorf("String() = %q, want it to match the latest Append return value", b.String())
	}
}

func TestLiveBuffer_TruncatesFromHeadPastCap(t *testing.T) {
	b := newLiveBuffer()
	big := strings.Repeat("x", models.MaxLiveOutputChars)
	b.Append(Event{Kind: EventText, Text: big})
	out := b.Append(Event{Kind: EventText, Text: "final"})

	if len(out) > models.MaxLiveOutputChars {
		t.Errorf("buffer length %d exceeds MaxLiveOutputChars %d after truncation", len(out), models.MaxLiveOutputChars)
	}
	if !strings.HasPrefix(out, models.TruncationMarker) {
		t.Errorf("truncated buffer does not start with the truncation marker: %q", out[:40])
	}
	if !strings.Contains(out, "final") {
		t.Error("truncated buffer dropped the most recent append")
	}
}

func TestOutputThrottle_AllowsOncePerSecondPerID(t *testing.T) {
	th := newOutputThrottle()
	base := time.Now()

	if !th.Allow("worker-1", base) {
		t.Error("first Allow for a fresh id should succeed")
	}
	if th.Allow("worker-1", base.Add(500*time.Millisecond)) {
		t.Error("a second Allow within one second for the same id should be throttled")
	}
	if !th.Allow("worker-1", base.Add(time.Second+time.Millisecond)) {
		t.Error("Allow after the one-second window should succeed again")
	}
}

func TestOutputThrottle_IndependentPerID(t *testing.T) {
	th := newOutputThrottle()
	now := time.Now()

	if !th.Allow("worker-1", now) {
		t.Fatal("Allow(worker-1) should succeed")
	}
	if !th.Allow("worker-2", now) {
		t.Error("a different worker id should not be throttled by worker-1's state")
	}
}
