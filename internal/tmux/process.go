package tmux

import (
	"context"
	"os/exec"
	"strconv"
	"strings"
)

// claudeIndicators are substrings of a pane's trailing scrollback lines that
// strongly suggest an interactive Claude prompt is on screen. Used only as
// a fallback when the process-tree check below is inconclusive (e.g. pgrep
// unavailable in a minimal container).
var claudeIndicators = []string{"claude", "Opus", "Sonnet", "ctx:", "╭", "╰", "⏵"}

// ChildPIDs returns the immediate child process IDs of pid, via pgrep -P.
// Returns an empty slice (not an error) if pgrep is unavailable or pid has
// no children — both are normal, not exceptional.
func ChildPIDs(ctx context.Context, pid int) []int {
	out, err := exec.CommandContext(ctx, "pgrep", "-P", strconv.Itoa(pid)).Output()
	if err != nil {
		return nil
	}
	var pids []int
	for _, line := range strings.Split(strings.TrimSpace(string(out)), "\n") {
		if line == "" {
			continue
		}
		if n, err := strconv.Atoi(strings.TrimSpace(line)); err == nil {
			pids = append(pids, n)
		}
	}
	return pids
}

func processTreeHasClaude(ctx context.Context, pid int) bool {
	out, err := exec.CommandContext(ctx, "pgrep", "-P", strconv.Itoa(pid), "-l").Output()
	if err != nil {
		return false
	}
	lower := strings.ToLower(string(out))
	if strings.Contains(lower, "claude") || strings.Contains(lower, "node") {
		return true
	}
	for _, child := range ChildPIDs(ctx, pid) {
		if processTreeHasClaude(ctx, child) {
			return true
		}
	}
	return false
}

// IsClaudeRunning applies the two-method detection used throughout chief:
// first the process tree rooted at the pane's PID, then a pane-content
// scan of the trailing lines for prompt indicators. The content scan is a
// deliberately loose fallback — it exists because a detached tmux pane
// occasionally outlives the claude binary by a beat during handoffs.
func (d *Driver) IsClaudeRunning(ctx context.Context, window string) (bool, error) {
	pid, err := d.PanePID(ctx, window)
	if err == nil && pid > 0 && processTreeHasClaude(ctx, pid) {
		return true, nil
	}

	content, err := d.CapturePane(ctx, window, 10)
	if err != nil {
		return false, err
	}
	lines := strings.Split(content, "\n")
	if len(lines) > 10 {
		lines = lines[len(lines)-10:]
	}
	for _, line := range lines {
		for _, ind := range claudeIndicators {
			if strings.Contains(line, ind) {
				return true, nil
			}
		}
		if strings.Contains(line, ">") && (!strings.Contains(line, "$") || strings.Contains(line, "❯")) {
			return true, nil
		}
	}
	return false, nil
}

// InjectMessage sends a system-style message into a running Claude pane:
// literal text followed by Enter, exactly like SendText. Kept as a distinct
// method because the caller's intent (machine-to-agent message, not a
// user keystroke) matters for future rate limiting / logging.
func (d *Driver) InjectMessage(ctx context.Context, window, message string) error {
	return d.SendText(ctx, window, message)
}
