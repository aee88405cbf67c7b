package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "chief.yaml", "storage:\n  path: \"\"\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Storage.Path != ".engine/data/chief.db" {
		t.Errorf("Storage.Path = %q, want default", cfg.Storage.Path)
	}
	if cfg.Tmux.Session != "chief" {
		t.Errorf("Tmux.Session = %q, want %q", cfg.Tmux.Session, "chief")
	}
	if cfg.Worker.Agent.Kind != "claude" {
		t.Errorf("Worker.Agent.Kind = %q, want %q", cfg.Worker.Agent.Kind, "claude")
	}
	if cfg.Channels.Escalation.MinSeverity != "critical" {
		t.Errorf("Escalation.MinSeverity = %q, want %q", cfg.Channels.Escalation.MinSeverity, "critical")
	}
	if cfg.Channels.Escalation.IntervalMs != 5000 {
		t.Errorf("Escalation.IntervalMs = %d, want 5000", cfg.Channels.Escalation.IntervalMs)
	}
}

func TestLoad_RejectsInvalidEscalationChannel(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "chief.yaml", "channels:\n  escalation:\n    channel: discord\n")

	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for an unsupported escalation channel")
	}
}

func TestLoad_RejectsInvalidAgentKind(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "chief.yaml", "worker:\n  agent:\n    kind: gemini\n")

	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for an unsupported agent kind")
	}
}

func TestLoad_ResolvesIncludes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", "tmux:\n  session: base-session\nduty:\n  timezone: UTC\n")
	path := writeFile(t, dir, "chief.yaml", "$include: base.yaml\ntmux:\n  bin: /usr/local/bin/tmux\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Tmux.Session != "base-session" {
		t.Errorf("Tmux.Session = %q, want %q (from include)", cfg.Tmux.Session, "base-session")
	}
	if cfg.Tmux.Bin != "/usr/local/bin/tmux" {
		t.Errorf("Tmux.Bin = %q, want %q (from parent, overriding include)", cfg.Tmux.Bin, "/usr/local/bin/tmux")
	}
}

func TestLoad_RejectsUnknownFields(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "chief.yaml", "nonexistent_section:\n  foo: bar\n")

	if _, err := Load(path); err == nil {
		t.Fatal("expected an error for an unknown top-level config field")
	}
}
