package worker

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/nexus-chief/chief/internal/eventbus"
	"github.com/nexus-chief/chief/internal/notify"
	"github.com/nexus-chief/chief/internal/storage"
	"github.com/nexus-chief/chief/pkg/models"
)

// PollInterval is how often the executor scans for newly-pending workers.
const PollInterval = 2 * time.Second

// MaxConcurrent bounds how many workers run simultaneously, matching
// spec.md §4.7's "multiple workers may run in parallel" with a concrete
// resource ceiling the way internal/process.CommandQueue caps lane
// concurrency.
const MaxConcurrent = 4

// Clock abstracts time.Now for tests.
type Clock func() time.Time

// Executor runs queued workers concurrently, one goroutine each, bounded
// by a semaphore, tracking live agent clients for termination and
// resumption.
type Executor struct {
	store   *storage.Store
	bus     *eventbus.Bus
	notify  *notify.Core
	runner  AgentRunner
	log     *slog.Logger
	now     Clock
	pidsDir string

	sem       chan struct{}
	throttle  *outputThrottle
	mu        sync.Mutex
	active    map[string]context.CancelFunc // worker id -> cancel
	buffers   map[string]*liveBuffer
}

// Config wires an Executor's dependencies.
type Config struct {
	Store   *storage.Store
	Bus     *eventbus.Bus
	Notify  *notify.Core
	Runner  AgentRunner
	PIDsDir string
	Now     Clock
}

// New builds an Executor.
func New(cfg Config, log *slog.Logger) *Executor {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Executor{
		store:    cfg.Store,
		bus:      cfg.Bus,
		notify:   cfg.Notify,
		runner:   cfg.Runner,
		log:      log.With("component", "worker"),
		now:      now,
		pidsDir:  cfg.PIDsDir,
		sem:      make(chan struct{}, MaxConcurrent),
		throttle: newOutputThrottle(),
		active:   make(map[string]context.CancelFunc),
		buffers:  make(map[string]*liveBuffer),
	}
}

func newWorkerID() string {
	var buf [8]byte
	_, _ = rand.Read(buf[:])
	return hex.EncodeToString(buf[:])
}

// Enqueue creates a new pending worker row and returns its id.
func (e *Executor) Enqueue(ctx context.Context, taskType, spawnedBy, conversationID string, params []byte, dependsOn []string, executeAt *time.Time) (string, error) {
	id := newWorkerID()
	w := &models.Worker{
		ID:             id,
		ShortID:        models.ShortIDOf(id),
		TaskType:       taskType,
		Params:         params,
		SpawnedBy:      spawnedBy,
		ConversationID: conversationID,
		DependsOn:      dependsOn,
		ExecuteAt:      executeAt,
		Status:         models.WorkerPending,
		CreatedAt:      e.now(),
	}
	if err := e.store.CreateWorker(ctx, w); err != nil {
		return "", err
	}
	return id, nil
}

// Poll runs one dispatch tick: pulls pending workers whose dependencies
// and schedule are satisfied and starts them, up to the concurrency cap.
func (e *Executor) Poll(ctx context.Context) error {
	pending, err := e.store.ListPendingWorkers(ctx)
	if err != nil {
		return err
	}
	now := e.now()
	completed := make(map[string]bool)
	for _, w := range pending {
		for _, dep := range w.DependsOn {
			if d, err := e.store.GetWorker(ctx, dep); err == nil && d.Status == models.WorkerComplete {
				completed[dep] = true
			}
		}
	}
	for _, w := range pending {
		dependsComplete := true
		for _, dep := range w.DependsOn {
			if !completed[dep] {
				dependsComplete = false
				break
			}
		}
		if !w.ReadyToRun(now, dependsComplete) {
			continue
		}
		select {
		case e.sem <- struct{}{}:
		default:
			continue // at concurrency cap; pick the rest up next tick
		}
		if err := e.store.SetWorkerStatus(ctx, w.ID, models.WorkerRunning); err != nil {
			<-e.sem
			e.log.Error("set worker running failed", "worker", w.ShortID, "error", err)
			continue
		}
		go e.run(context.Background(), w)
	}
	return nil
}

func (e *Executor) run(ctx context.Context, w *models.Worker) {
	defer func() { <-e.sem }()

	runCtx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.active[w.ID] = cancel
	buf := newLiveBuffer()
	e.buffers[w.ID] = buf
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.active, w.ID)
		delete(e.buffers, w.ID)
		e.mu.Unlock()
		cancel()
	}()

	pid := os.Getpid()
	if e.pidsDir != "" {
		_ = writePIDMarker(e.pidsDir, w.ShortID, w.ID, pid, e.now())
		defer removePIDMarker(e.pidsDir, w.ShortID)
	}

	prompt := BuildPrompt(w.ID, w.TaskType, w.Params)
	events, _, err := e.runner.Run(runCtx, RunRequest{WorkerID: w.ID, Prompt: prompt})
	if err != nil {
		e.log.Error("worker run failed to start", "worker", w.ShortID, "error", err)
		_ = synthesizeFailureReport(runCtx, e.store, e.now(), w.ID)
		e.finish(runCtx, w)
		return
	}

	for ev := range events {
		line := buf.Append(ev)
		_ = e.store.AppendLiveOutput(runCtx, w.ID, line)
		if e.throttle.Allow(w.ID, e.now()) {
			e.bus.Publish(eventbus.TopicWorkerOutputUpdated, map[string]any{"worker_id": w.ID})
		}
	}

	final, err := e.store.GetWorker(runCtx, w.ID)
	if err != nil {
		e.log.Error("worker reload after run failed", "worker", w.ShortID, "error", err)
		return
	}
	if final.ReportMD == "" {
		_ = synthesizeFailureReport(runCtx, e.store, e.now(), w.ID)
	}
	e.finish(runCtx, w)
}

// RecoverOrphans scans pidsDir at startup for markers whose process is no
// longer alive — a worker whose chief process died mid-run — finalizes
// each as a failure, and removes the stale marker.
func (e *Executor) RecoverOrphans(ctx context.Context) (int, error) {
	if e.pidsDir == "" {
		return 0, nil
	}
	entries, err := os.ReadDir(e.pidsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	recovered := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		data, err := os.ReadFile(e.pidsDir + "/" + entry.Name())
		if err != nil {
			continue
		}
		pid, workerID, ok := parsePIDMarker(string(data))
		if !ok || processAlive(pid) {
			continue
		}
		if err := synthesizeFailureReport(ctx, e.store, e.now(), workerID); err != nil {
			e.log.Warn("recover orphan worker failed", "worker", models.ShortIDOf(workerID), "error", err)
			continue
		}
		_ = os.Remove(e.pidsDir + "/" + entry.Name())
		recovered++
	}
	return recovered, nil
}

func (e *Executor) finish(ctx context.Context, w *models.Worker) {
	final, err := e.store.GetWorker(ctx, w.ID)
	if err != nil {
		return
	}
	topic := eventbus.TopicWorkerCompleted
	if final.Status == models.WorkerFailed {
		topic = eventbus.TopicWorkerNeedsHelp
	}
	e.bus.Publish(topic, final)

	if final.Status == models.WorkerComplete && e.notify != nil {
		e.notify.WakeConversation(ctx, final.ConversationID)
	}
}

// Terminate interrupts and cleans up a running worker's client, returning
// whether one was found.
func (e *Executor) Terminate(id string) bool {
	e.mu.Lock()
	cancel, ok := e.active[id]
	e.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	e.runner.Interrupt(id)
	return true
}

// Resume re-opens a clarification-answered worker for a second turn,
// passing the prior agent session id so the runner resumes context.
func (e *Executor) Resume(ctx context.Context, workerID, resumePrompt, agentSessionID string) error {
	w, err := e.store.GetWorker(ctx, workerID)
	if err != nil {
		return err
	}
	if err := e.store.SetWorkerStatus(ctx, workerID, models.WorkerRunning); err != nil {
		return err
	}
	select {
	case e.sem <- struct{}{}:
	default:
	}
	go e.runResume(context.Background(), w, resumePrompt, agentSessionID)
	return nil
}

func (e *Executor) runResume(ctx context.Context, w *models.Worker, prompt, agentSessionID string) {
	defer func() {
		select {
		case <-e.sem:
		default:
		}
	}()
	buf := newLiveBuffer()
	e.mu.Lock()
	e.buffers[w.ID] = buf
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.buffers, w.ID)
		e.mu.Unlock()
	}()

	events, _, err := e.runner.Run(ctx, RunRequest{WorkerID: w.ID, Prompt: prompt, Resume: agentSessionID})
	if err != nil {
		e.log.Error("worker resume failed to start", "worker", w.ShortID, "error", err)
		_ = synthesizeFailureReport(ctx, e.store, e.now(), w.ID)
		e.finish(ctx, w)
		return
	}
	for ev := range events {
		line := buf.Append(ev)
		_ = e.store.AppendLiveOutput(ctx, w.ID, line)
	}
	final, err := e.store.GetWorker(ctx, w.ID)
	if err == nil && final.ReportMD == "" {
		_ = synthesizeFailureReport(ctx, e.store, e.now(), w.ID)
	}
	e.finish(ctx, w)
}
