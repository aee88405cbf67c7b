package config

import (
	"fmt"
	"time"
)

// Config is chief's top-level configuration, loaded from a single YAML
// file (with $include support via loader.go) at startup.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Tmux      TmuxConfig      `yaml:"tmux"`
	Duty      DutyConfig      `yaml:"duty"`
	Mission   MissionConfig   `yaml:"mission"`
	Worker    WorkerConfig    `yaml:"worker"`
	Stream    StreamConfig    `yaml:"stream"`
	Heartbeat HeartbeatConfig `yaml:"heartbeat"`
	HTTP      HTTPConfig      `yaml:"http"`
	Channels  ChannelsConfig  `yaml:"channels"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// StorageConfig configures the embedded SQLite store (C1).
type StorageConfig struct {
	Path string `yaml:"path"`
}

// TmuxConfig configures the terminal multiplexer driver (C2).
type TmuxConfig struct {
	Session string `yaml:"session"`
	Bin     string `yaml:"bin"`
}

// DutyConfig configures the duty scheduler (C5).
type DutyConfig struct {
	Timezone string `yaml:"timezone"`
}

// MissionConfig configures the mission scheduler (C6), which also owns
// Chief's calendar-aware heartbeat loop.
type MissionConfig struct {
	Timezone string `yaml:"timezone"`
}

// WorkerConfig configures the worker executor (C7) and its agent runner.
type WorkerConfig struct {
	PIDsDir string       `yaml:"pids_dir"`
	Agent   AgentConfig  `yaml:"agent"`
}

// AgentConfig selects and configures the AgentRunner workers use.
type AgentConfig struct {
	// Kind is "claude" (default, shells out to the claude CLI) or "openai"
	// (dry-run fallback backed by sashabaranov/go-openai).
	Kind       string `yaml:"kind"`
	ClaudeBin  string `yaml:"claude_bin"`
	WorkingDir string `yaml:"working_dir"`
	OpenAIKey  string `yaml:"openai_api_key"`
	OpenAIModel string `yaml:"openai_model"`
}

// StreamConfig holds conversation stream (C8) settings. IncludeThinking is
// loaded but not read: the HTTP stream takes include_thinking from each
// request's query string (default true).
type StreamConfig struct {
	IncludeThinking bool `yaml:"include_thinking"`
}

// HeartbeatConfig holds the messaging/notification core's (C9) initial
// prompt pacing setting. InitialPromptPauseMS is loaded and defaulted to 400
// but not read: internal/notify pauses for its fixed InitialPromptPause.
type HeartbeatConfig struct {
	InitialPromptPauseMS int `yaml:"initial_prompt_pause_ms"`
}

// HTTPConfig configures chief's external HTTP surface.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// ChannelsConfig configures the out-of-scope-by-default external
// providers behind internal/channels' capability interfaces.
type ChannelsConfig struct {
	Telegram   TelegramChannelConfig `yaml:"telegram"`
	Slack      SlackChannelConfig    `yaml:"slack"`
	Escalation EscalationConfig      `yaml:"escalation"`
}

// EscalationConfig controls when internal/notify pushes a critical-severity
// worker result out through an external channel (Telegram/Slack) in
// addition to the normal tmux wake, and who it addresses the push to.
type EscalationConfig struct {
	Channel        string `yaml:"channel"` // "telegram", "slack", or "" to disable
	To             string `yaml:"to"`
	MinSeverity    string `yaml:"min_severity"`
	IntervalMs     int    `yaml:"interval_ms"`
}

// TelegramChannelConfig mirrors internal/channels.TelegramConfig.
type TelegramChannelConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
}

// SlackChannelConfig mirrors internal/channels.SlackConfig.
type SlackChannelConfig struct {
	Enabled  bool   `yaml:"enabled"`
	BotToken string `yaml:"bot_token"`
}

// LoggingConfig configures the root slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "text" or "json"
}

// Load reads path (resolving $include directives), applies defaults, and
// validates the result.
func Load(path string) (*Config, error) {
	raw, err := LoadRaw(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg, err := decodeRawConfig(raw)
	if err != nil {
		return nil, err
	}
	applyDefaults(cfg)
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = ".engine/data/chief.db"
	}
	if cfg.Tmux.Session == "" {
		cfg.Tmux.Session = "chief"
	}
	if cfg.Tmux.Bin == "" {
		cfg.Tmux.Bin = "tmux"
	}
	if cfg.Duty.Timezone == "" {
		cfg.Duty.Timezone = "UTC"
	}
	if cfg.Mission.Timezone == "" {
		cfg.Mission.Timezone = "UTC"
	}
	if cfg.Worker.PIDsDir == "" {
		cfg.Worker.PIDsDir = ".engine/data/pids"
	}
	if cfg.Worker.Agent.Kind == "" {
		cfg.Worker.Agent.Kind = "claude"
	}
	if cfg.Worker.Agent.ClaudeBin == "" {
		cfg.Worker.Agent.ClaudeBin = "claude"
	}
	if cfg.Worker.Agent.OpenAIModel == "" {
		cfg.Worker.Agent.OpenAIModel = "gpt-4o-mini"
	}
	if cfg.Heartbeat.InitialPromptPauseMS == 0 {
		cfg.Heartbeat.InitialPromptPauseMS = 400
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = "127.0.0.1:8787"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Channels.Escalation.MinSeverity == "" {
		cfg.Channels.Escalation.MinSeverity = "critical"
	}
	if cfg.Channels.Escalation.IntervalMs == 0 {
		cfg.Channels.Escalation.IntervalMs = 5000
	}
}

func validateConfig(cfg *Config) error {
	switch cfg.Worker.Agent.Kind {
	case "claude", "openai":
	default:
		return fmt.Errorf("worker.agent.kind must be \"claude\" or \"openai\", got %q", cfg.Worker.Agent.Kind)
	}
	if _, err := time.LoadLocation(cfg.Duty.Timezone); err != nil {
		return fmt.Errorf("duty.timezone: %w", err)
	}
	if _, err := time.LoadLocation(cfg.Mission.Timezone); err != nil {
		return fmt.Errorf("mission.timezone: %w", err)
	}
	switch cfg.Channels.Escalation.Channel {
	case "", "telegram", "slack":
	default:
		return fmt.Errorf("channels.escalation.channel must be \"telegram\", \"slack\", or empty, got %q", cfg.Channels.Escalation.Channel)
	}
	return nil
}
