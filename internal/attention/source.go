package attention

import (
	"context"
	"log/slog"
	"time"

	"github.com/nexus-chief/chief/internal/storage"
)

// PollInterval is how often the poller re-reads awaiting-notification
// workers from storage, matching the teacher's snooze-watcher cadence.
const PollInterval = time.Minute

// Poller periodically pulls workers awaiting notification across every
// conversation into the feed, and wakes snoozed items past their deadline.
// It is the storage-backed replacement for the teacher's multi-channel
// Aggregator — this domain has exactly one source of attention items: the
// workers table, not inbound channel messages.
type Poller struct {
	feed  *Feed
	store *storage.Store
	log   *slog.Logger
	stop  context.CancelFunc
}

// NewPoller builds a Poller over feed and store.
func NewPoller(feed *Feed, store *storage.Store, log *slog.Logger) *Poller {
	return &Poller{feed: feed, store: store, log: log.With("component", "attention")}
}

// Start begins polling in a background goroutine until ctx is canceled or
// Stop is called.
func (p *Poller) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	p.stop = cancel
	go p.run(ctx)
}

// Stop halts polling.
func (p *Poller) Stop() {
	if p.stop != nil {
		p.stop()
	}
}

func (p *Poller) run(ctx context.Context) {
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	p.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Poller) tick(ctx context.Context) {
	workers, err := p.store.ListAllAwaitingNotification(ctx)
	if err != nil {
		p.log.Warn("poll awaiting notification failed", "error", err)
	} else {
		for _, w := range workers {
			p.feed.Add(ItemFromWorker(w))
		}
	}
	p.feed.WakeSnoozed()
}
