// Package main provides the CLI entry point for Chief, a personal always-on
// LLM orchestrator.
//
// Chief keeps one eternal tmux conversation alive, spawns specialist worker
// sessions for background tasks, wakes the eternal conversation when a
// worker finishes, and runs a calendar-aware heartbeat plus a self-healing
// duty scheduler for Chief's own recurring in-context work.
//
// # Basic usage
//
// Start the server:
//
//	chief serve --config chief.yaml
//
// Check system status:
//
//	chief status
//
// Run a duty immediately:
//
//	chief duty run morning-prep
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/nexus-chief/chief/internal/attention"
	"github.com/nexus-chief/chief/internal/channels"
	"github.com/nexus-chief/chief/internal/config"
	"github.com/nexus-chief/chief/internal/convstream"
	"github.com/nexus-chief/chief/internal/duty"
	"github.com/nexus-chief/chief/internal/eventbus"
	"github.com/nexus-chief/chief/internal/httpapi"
	"github.com/nexus-chief/chief/internal/mission"
	"github.com/nexus-chief/chief/internal/notify"
	"github.com/nexus-chief/chief/internal/sessionmgr"
	"github.com/nexus-chief/chief/internal/storage"
	"github.com/nexus-chief/chief/internal/tmux"
	"github.com/nexus-chief/chief/internal/worker"
	"github.com/nexus-chief/chief/pkg/models"
)

// version/commit/date are injected at build time:
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const defaultConfigPath = "chief.yaml"

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "chief",
		Short:        "Chief - personal always-on LLM orchestrator",
		Long:         "Chief keeps one eternal conversation alive in tmux, dispatches background workers, and wakes you up for what matters.",
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildStatusCmd(),
		buildDutyCmd(),
		buildMissionCmd(),
		buildAttentionCmd(),
	)
	return rootCmd
}

func resolveConfigPath(path string) string {
	if path != "" {
		return path
	}
	if env := os.Getenv("CHIEF_CONFIG"); env != "" {
		return env
	}
	return defaultConfigPath
}

// app bundles every wired component so subcommands besides "serve" can
// stand the stack up without duplicating its construction.
type app struct {
	cfg      *config.Config
	store    *storage.Store
	bus      *eventbus.Bus
	driver   *tmux.Driver
	sessions *sessionmgr.Manager
	notifier *notify.Core
	duties   *duty.Scheduler
	missions *mission.Scheduler
	workers  *worker.Executor
	feed     *attention.Feed
	poller   *attention.Poller
	prober   convstream.StatusProber
	api      *httpapi.Server
	log      *slog.Logger
}

func buildApp(configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	level := slog.LevelInfo
	if cfg.Logging.Level == "debug" {
		level = slog.LevelDebug
	}
	var handler slog.Handler
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	log := slog.New(handler)
	slog.SetDefault(log)

	store, err := storage.Open(cfg.Storage.Path)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}

	bus := eventbus.New()
	driver := tmux.New(tmux.Config{Session: cfg.Tmux.Session, Bin: cfg.Tmux.Bin}, log)

	sessions := sessionmgr.New(sessionmgr.Config{
		Store:         store,
		Tmux:          driver,
		Bus:           bus,
		WorkspaceRoot: cfg.Worker.Agent.WorkingDir,
		AgentCommand:  cfg.Worker.Agent.ClaudeBin,
	}, log)

	escalationAdapter, escalationTo := buildEscalationAdapter(cfg.Channels)
	notifier := notify.New(notify.Config{
		Store:    store,
		Sessions: sessions,
		Escalation: notify.EscalationConfig{
			Adapter:     escalationAdapter,
			Channel:     cfg.Channels.Escalation.Channel,
			To:          escalationTo,
			MinSeverity: models.Severity(cfg.Channels.Escalation.MinSeverity),
			IntervalMs:  cfg.Channels.Escalation.IntervalMs,
		},
	}, log)

	dutyLoc, err := time.LoadLocation(cfg.Duty.Timezone)
	if err != nil {
		return nil, fmt.Errorf("duty timezone: %w", err)
	}
	duties := duty.New(duty.Config{Store: store, Sessions: sessions, Bus: bus, Location: dutyLoc}, log)

	missionLoc, err := time.LoadLocation(cfg.Mission.Timezone)
	if err != nil {
		return nil, fmt.Errorf("mission timezone: %w", err)
	}
	missions := mission.New(mission.Config{
		Store:    store,
		Sessions: sessions,
		Bus:      bus,
		Calendar: channels.NoopCalendar{},
		Location: missionLoc,
	}, log)

	var runner worker.AgentRunner
	switch cfg.Worker.Agent.Kind {
	case "openai":
		runner = worker.NewOpenAIRunner(cfg.Worker.Agent.OpenAIKey, cfg.Worker.Agent.OpenAIModel)
	default:
		runner = worker.NewClaudeCLIRunner(cfg.Worker.Agent.ClaudeBin, cfg.Worker.Agent.WorkingDir)
	}
	workers := worker.New(worker.Config{
		Store:   store,
		Bus:     bus,
		Notify:  notifier,
		Runner:  runner,
		PIDsDir: cfg.Worker.PIDsDir,
	}, log)

	feed := attention.NewFeed()
	poller := attention.NewPoller(feed, store, log)

	prober := &convstream.TmuxStatusProber{Tmux: driver}

	api := httpapi.New(httpapi.Config{
		Addr:     cfg.HTTP.Addr,
		Notify:   notifier,
		Sessions: sessions,
		Prober:   prober,
	}, log)

	return &app{
		cfg: cfg, store: store, bus: bus, driver: driver, sessions: sessions,
		notifier: notifier, duties: duties, missions: missions, workers: workers,
		feed: feed, poller: poller, prober: prober, api: api, log: log,
	}, nil
}

// buildEscalationAdapter resolves the configured escalation channel into a
// concrete channels.MessagesAdapter, or returns (nil, "") when escalation
// is disabled — the signal notify.Core uses to skip it entirely.
func buildEscalationAdapter(cfg config.ChannelsConfig) (channels.MessagesAdapter, string) {
	switch cfg.Escalation.Channel {
	case "telegram":
		return channels.NewTelegramMessages(channels.TelegramConfig{BotToken: cfg.Telegram.BotToken}), cfg.Escalation.To
	case "slack":
		return channels.NewSlackMessages(channels.SlackConfig{BotToken: cfg.Slack.BotToken}), cfg.Escalation.To
	default:
		return nil, ""
	}
}

func (a *app) close() {
	a.poller.Stop()
	_ = a.store.Close()
}

func buildServeCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run Chief: the duty/mission schedulers, worker executor, and HTTP surface",
		Long: `Start Chief's background process:

1. Load configuration from the specified file (or $CHIEF_CONFIG, or chief.yaml)
2. Open the SQLite store and recover any orphaned worker/session/mission state
3. Start the duty scheduler, mission scheduler, worker executor, and attention poller
4. Serve the HTTP API (notify-event webhook, conversation stream)

Graceful shutdown is handled on SIGINT/SIGTERM.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), resolveConfigPath(configPath))
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

func runServe(ctx context.Context, configPath string) error {
	a, err := buildApp(configPath)
	if err != nil {
		return err
	}
	defer a.close()

	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if n, err := a.workers.RecoverOrphans(ctx); err != nil {
		a.log.Error("recover orphaned workers failed", "error", err)
	} else if n > 0 {
		a.log.Info("recovered orphaned workers", "count", n)
	}
	if n, err := a.sessions.CleanupOrphans(ctx, time.Hour); err != nil {
		a.log.Error("cleanup orphan sessions failed", "error", err)
	} else if n > 0 {
		a.log.Info("cleaned up orphan sessions", "count", n)
	}
	if n, err := a.sessions.CleanupOrphanMissionExecutions(ctx); err != nil {
		a.log.Error("cleanup orphan mission executions failed", "error", err)
	} else if n > 0 {
		a.log.Info("cleaned up orphan mission executions", "count", n)
	}
	if err := a.duties.CatchUp(ctx); err != nil {
		a.log.Error("duty catch-up failed", "error", err)
	}

	a.poller.Start(ctx)
	go pollLoop(ctx, worker.PollInterval, a.log, "worker", a.workers.Poll)
	go pollLoop(ctx, duty.PollInterval, a.log, "duty", a.duties.Run)
	go pollLoop(ctx, mission.PollInterval, a.log, "mission", a.missions.CheckAndDispatch)
	go pollLoop(ctx, mission.PollInterval, a.log, "heartbeat", a.missions.CheckHeartbeat)

	a.log.Info("chief serving", "http_addr", a.cfg.HTTP.Addr, "tmux_session", a.cfg.Tmux.Session)
	return a.api.ListenAndServe(ctx)
}

// pollLoop runs fn immediately and then on every tick of interval, until ctx
// is cancelled, logging (not panicking on) any error fn returns.
func pollLoop(ctx context.Context, interval time.Duration, log *slog.Logger, name string, fn func(context.Context) error) {
	runOnce := func() {
		defer func() {
			if p := recover(); p != nil {
				log.Error(name+" tick panicked", "panic", p)
			}
		}()
		if err := fn(ctx); err != nil {
			log.Error(name+" tick failed", "error", err)
		}
	}
	runOnce()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}

func buildStatusCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show Chief's current status",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(resolveConfigPath(configPath))
			if err != nil {
				return err
			}
			defer a.close()

			ctx := cmd.Context()
			out := cmd.OutOrStdout()

			sessions, err := a.sessions.GetActiveSessions(ctx)
			if err != nil {
				return fmt.Errorf("list active sessions: %w", err)
			}
			fmt.Fprintf(out, "Chief %s (commit: %s, built: %s)\n\n", version, commit, date)
			fmt.Fprintf(out, "Active sessions: %d\n", len(sessions))
			for _, s := range sessions {
				fmt.Fprintf(out, "  %s  role=%s  mode=%s  conversation=%s\n", s.ID, s.Role, s.Mode, s.ConversationID)
			}

			duties, err := a.store.ListDuties(ctx)
			if err != nil {
				return fmt.Errorf("list duties: %w", err)
			}
			fmt.Fprintf(out, "\nDuties: %d configured\n", len(duties))

			missions, err := a.store.ListMissions(ctx)
			if err != nil {
				return fmt.Errorf("list missions: %w", err)
			}
			fmt.Fprintf(out, "Missions: %d configured\n", len(missions))
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

func buildDutyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "duty",
		Short: "Inspect and manually trigger duties",
	}
	cmd.AddCommand(buildDutyRunCmd())
	return cmd
}

func buildDutyRunCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "run <slug>",
		Short: "Run a duty immediately regardless of its schedule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(resolveConfigPath(configPath))
			if err != nil {
				return err
			}
			defer a.close()
			return a.duties.RunSlug(cmd.Context(), args[0])
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

func buildMissionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mission",
		Short: "Inspect missions",
	}
	cmd.AddCommand(buildMissionListCmd())
	return cmd
}

func buildMissionListCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List configured missions",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(resolveConfigPath(configPath))
			if err != nil {
				return err
			}
			defer a.close()

			missions, err := a.store.ListMissions(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, m := range missions {
				fmt.Fprintf(out, "%s  schedule=%s  next_run=%v\n", m.Slug, m.ScheduleType, m.NextRun)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}

func buildAttentionCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "attention",
		Short: "List items awaiting attention",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(resolveConfigPath(configPath))
			if err != nil {
				return err
			}
			defer a.close()

			workers, err := a.store.ListAllAwaitingNotification(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(workers) == 0 {
				fmt.Fprintln(out, "nothing awaiting attention")
				return nil
			}
			for _, w := range workers {
				fmt.Fprintf(out, "[%s] %s  %s  conversation=%s\n", w.Severity, w.ShortID, w.AttentionTitle, w.ConversationID)
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to YAML configuration file")
	return cmd
}
