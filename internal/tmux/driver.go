// Package tmux is the terminal multiplexer driver C2: every interaction
// with the real tmux binary goes through here, serialized per window via
// internal/process so that a send-keys can never race a capture-pane or a
// kill-window against the same pane.
package tmux

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/nexus-chief/chief/internal/process"
	"github.com/nexus-chief/chief/internal/retry"
)

// Driver shells out to the tmux binary. All methods are safe for concurrent
// use; per-window ordering is guaranteed by queuing every command onto the
// lane process.WindowLane(window) returns.
type Driver struct {
	session string // tmux session name chief owns, e.g. "chief"
	bin     string // path to the tmux binary, usually just "tmux"
	queue   *process.CommandQueue
	log     *slog.Logger
}

// Config configures a Driver.
type Config struct {
	Session string
	Bin     string
}

// New builds a Driver for the given tmux session name.
func New(cfg Config, log *slog.Logger) *Driver {
	bin := cfg.Bin
	if bin == "" {
		bin = "tmux"
	}
	return &Driver{
		session: cfg.Session,
		bin:     bin,
		queue:   process.NewCommandQueue(),
		log:     log.With("component", "tmux"),
	}
}

func (d *Driver) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, d.bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("tmux %s: %w: %s", strings.Join(args, " "), err, stderr.String())
	}
	return stdout.String(), nil
}

// windowRetryConfig allows exactly one retry on a transient tmux failure,
// per the C2 "retry once" policy.
var windowRetryConfig = retry.Config{
	MaxAttempts:  2,
	InitialDelay: 200 * time.Millisecond,
	MaxDelay:     200 * time.Millisecond,
	Factor:       1,
}

// inWindow serializes fn against every other command touching window,
// retrying once on a transient tmux error per spec.md's C2 retry policy.
func (d *Driver) inWindow(ctx context.Context, window string, fn func(ctx context.Context) (string, error)) (string, error) {
	lane := process.WindowLane(window)
	return process.EnqueueInLane(d.queue, lane, func(ctx context.Context) (string, error) {
		res, result := retry.DoWithValue(ctx, windowRetryConfig, func() (string, error) {
			return fn(ctx)
		})
		return res, result.Err
	}, nil)
}

// EnsureSession creates chief's owning tmux session if it does not already
// exist. Idempotent.
func (d *Driver) EnsureSession(ctx context.Context) error {
	if _, err := d.run(ctx, "has-session", "-t", d.session); err == nil {
		return nil
	}
	_, err := d.run(ctx, "new-session", "-d", "-s", d.session, "-n", "_placeholder")
	return err
}

// WindowExists reports whether a named window is present in chief's session.
func (d *Driver) WindowExists(ctx context.Context, window string) (bool, error) {
	out, err := d.inWindow(ctx, window, func(ctx context.Context) (string, error) {
		return d.run(ctx, "list-windows", "-t", d.session, "-F", "#{window_name}")
	})
	if err != nil {
		return false, err
	}
	for _, name := range strings.Split(strings.TrimSpace(out), "\n") {
		if name == window {
			return true, nil
		}
	}
	return false, nil
}

// CreateWindow creates window in the given directory. -d keeps it detached
// so it never steals the operator's visible focus (spec.md §4.2 invariant).
func (d *Driver) CreateWindow(ctx context.Context, window, workingDir string) (pane string, err error) {
	return d.inWindow(ctx, window, func(ctx context.Context) (string, error) {
		if _, err := d.run(ctx, "new-window", "-d", "-t", d.session, "-n", window, "-c", workingDir,
			"-P", "-F", "#{pane_id}"); err != nil {
			return "", err
		}
		out, err := d.run(ctx, "list-panes", "-t", d.session+":"+window, "-F", "#{pane_id}")
		if err != nil {
			return "", err
		}
		return strings.TrimSpace(out), nil
	})
}

// KillWindow destroys a window. Missing windows are treated as already
// killed, not an error, since cleanup paths call this unconditionally.
func (d *Driver) KillWindow(ctx context.Context, window string) error {
	_, err := d.inWindow(ctx, window, func(ctx context.Context) (string, error) {
		out, runErr := d.run(ctx, "kill-window", "-t", d.session+":"+window)
		if runErr != nil && strings.Contains(runErr.Error(), "can't find window") {
			return out, nil
		}
		return out, runErr
	})
	return err
}

// ListWindows returns the names of every window in chief's session.
func (d *Driver) ListWindows(ctx context.Context) ([]string, error) {
	out, err := d.run(ctx, "list-windows", "-t", d.session, "-F", "#{window_name}")
	if err != nil {
		return nil, err
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return nil, nil
	}
	return strings.Split(out, "\n"), nil
}

// SendText types literal text into a window's pane, followed by Enter.
func (d *Driver) SendText(ctx context.Context, window, text string) error {
	_, err := d.inWindow(ctx, window, func(ctx context.Context) (string, error) {
		return d.run(ctx, "send-keys", "-t", d.session+":"+window, "-l", text)
	})
	if err != nil {
		return err
	}
	return d.SendKeystroke(ctx, window, "Enter")
}

// InjectMessage is SendText's name at the call sites that deliver a
// session's initial prompt or a system-style wake message, as distinct
// from SendKeystroke's raw-keystroke use for interactive control.
func (d *Driver) InjectMessage(ctx context.Context, window, text string) error {
	return d.SendText(ctx, window, text)
}

// SendKeystroke sends a named key (e.g. "Enter", "Escape", "C-c") to a
// window, used for interrupts and control sequences.
func (d *Driver) SendKeystroke(ctx context.Context, window, key string) error {
	_, err := d.inWindow(ctx, window, func(ctx context.Context) (string, error) {
		return d.run(ctx, "send-keys", "-t", d.session+":"+window, key)
	})
	return err
}

// CapturePane returns the visible scrollback of a window's pane.
func (d *Driver) CapturePane(ctx context.Context, window string, lines int) (string, error) {
	args := []string{"capture-pane", "-p", "-t", d.session + ":" + window}
	if lines > 0 {
		args = append(args, "-S", "-"+strconv.Itoa(lines))
	}
	return d.inWindow(ctx, window, func(ctx context.Context) (string, error) {
		return d.run(ctx, args...)
	})
}

// PanePID returns the PID of the shell process occupying a window's pane.
func (d *Driver) PanePID(ctx context.Context, window string) (int, error) {
	out, err := d.inWindow(ctx, window, func(ctx context.Context) (string, error) {
		return d.run(ctx, "list-panes", "-t", d.session+":"+window, "-F", "#{pane_pid}")
	})
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(out))
}

// IsClaudeRunning reports whether window's pane is currently occupied by
// the claude CLI rather than a bare shell, so Spawn never double-launches
// an agent into a window that already has one.
func (d *Driver) IsClaudeRunning(ctx context.Context, window string) (bool, error) {
	out, err := d.inWindow(ctx, window, func(ctx context.Context) (string, error) {
		return d.run(ctx, "list-panes", "-t", d.session+":"+window, "-F", "#{pane_current_command}")
	})
	if err != nil {
		return false, err
	}
	for _, cmd := range strings.Split(strings.TrimSpace(out), "\n") {
		if strings.Contains(cmd, "claude") {
			return true, nil
		}
	}
	return false, nil
}

// FocusWindow selects a window, making it the visibly active one. Callers
// must only invoke this for explicit operator-facing focus requests, never
// as a side effect of spawning, per the focus-steal-safety invariant.
func (d *Driver) FocusWindow(ctx context.Context, window string) error {
	_, err := d.inWindow(ctx, window, func(ctx context.Context) (string, error) {
		return d.run(ctx, "select-window", "-t", d.session+":"+window)
	})
	return err
}
