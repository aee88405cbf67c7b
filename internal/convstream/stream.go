package convstream

import (
	"context"
	"os"
	"time"

	"github.com/nexus-chief/chief/pkg/models"
)

// Poll cadences, matching the original's POLL_INTERVAL_MS /
// STATUS_INTERVAL_MS / SESSION_CHECK_INTERVAL_MS / SESSION_END_GRACE_PERIOD_S.
const (
	PollInterval        = 100 * time.Millisecond
	StatusInterval      = 500 * time.Millisecond
	SessionCheckInterval = time.Second
	TaskCheckInterval    = time.Second
	EndGracePeriod       = 10 * time.Second
)

// ActiveSessionFunc resolves the current active session for a
// conversation, or nil if none is active.
type ActiveSessionFunc func(ctx context.Context) (*models.Session, error)

type streamState struct {
	sessionID       string
	claudeSessionID string
	mode            string
	transcriptPath  string
	tmuxPane        string

	inactiveSince time.Time

	activity *Activity
	warning  bool
	remain   int
	model    string
	cost     float64
	tasks    []Task
}

// Stream multiplexes transcript, activity, and session-boundary events for
// one conversation onto a single channel, closed when ctx is cancelled.
func Stream(ctx context.Context, conversationID string, getActive ActiveSessionFunc, prober StatusProber, includeThinking bool, afterUUID string) <-chan Event {
	out := make(chan Event, 64)
	go runStream(ctx, conversationID, getActive, prober, includeThinking, afterUUID, out)
	return out
}

func runStream(ctx context.Context, conversationID string, getActive ActiveSessionFunc, prober StatusProber, includeThinking bool, afterUUID string, out chan<- Event) {
	defer close(out)

	send := func(ev Event) bool {
		ev.Timestamp = time.Now()
		select {
		case out <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if !send(Event{Type: EventConnected, ConversationID: conversationID}) {
		return
	}

	state := &streamState{}
	var tl *tailer
	initialConnection := true

	stopTailer := func() {
		if tl != nil {
			tl.Stop()
			tl = nil
		}
	}
	defer stopTailer()

	startTailer := func(path string) {
		stopTailer()
		if _, err := os.Stat(path); err != nil {
			return
		}
		resume := ""
		if initialConnection {
			resume = afterUUID
		}
		tl = newTailer(path, includeThinking)
		tl.Start(ctx, resume)
		initialConnection = false
	}

	sessionTicker := time.NewTicker(SessionCheckInterval)
	statusTicker := time.NewTicker(StatusInterval)
	taskTicker := time.NewTicker(TaskCheckInterval)
	poll := time.NewTicker(PollInterval)
	defer sessionTicker.Stop()
	defer statusTicker.Stop()
	defer taskTicker.Stop()
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-sessionTicker.C:
			if !checkSessionBoundary(ctx, conversationID, getActive, state, startTailer, send) {
				return
			}

		case <-statusTicker.C:
			if state.tmuxPane != "" && prober != nil {
				if !emitStatus(ctx, prober, state, send) {
					return
				}
			}

		case <-taskTicker.C:
			if state.sessionID != "" {
				tasks := loadTasks(state.claudeSessionID, state.sessionID)
				if !tasksEqual(tasks, state.tasks) {
					state.tasks = tasks
					if !send(Event{Type: EventTasks, ConversationID: conversationID, Tasks: tasks}) {
						return
					}
				}
			}

		case <-poll.C:
			if tl == nil {
				continue
			}
			drained := 0
			for drained < 10 {
				select {
				case raw, ok := <-tl.Events():
					if !ok {
						tl = nil
						drained = 10
						continue
					}
					if !send(Event{Type: EventTranscript, ConversationID: conversationID, Transcript: raw}) {
						return
					}
					drained++
				default:
					drained = 10
				}
			}
		}
	}
}

func checkSessionBoundary(ctx context.Context, conversationID string, getActive ActiveSessionFunc, state *streamState, startTailer func(string), send func(Event) bool) bool {
	active, err := getActive(ctx)
	if err != nil {
		active = nil
	}

	if active == nil {
		if state.sessionID != "" {
			if state.inactiveSince.IsZero() {
				state.inactiveSince = time.Now()
			} else if time.Since(state.inactiveSince) >= EndGracePeriod {
				if !send(Event{Type: EventConversationEnded, ConversationID: conversationID, LastSessionID: state.sessionID}) {
					return false
				}
				state.sessionID = ""
				state.tmuxPane = ""
				state.inactiveSince = time.Time{}
			}
		}
		return true
	}

	if active.ID != state.sessionID {
		oldSessionID := state.sessionID
		oldMode := state.mode
		newMode := string(active.Mode)

		boundaryType := BoundaryReset
		switch {
		case newMode == "summarizer":
			boundaryType = BoundarySummarizer
		case oldMode == "summarizer":
			boundaryType = BoundaryReset
		case oldMode != "" && newMode != "" && oldMode != newMode:
			boundaryType = BoundaryModeTransition
		}

		if oldSessionID != "" {
			if !send(Event{
				Type:           EventSessionBoundary,
				ConversationID: conversationID,
				OldSessionID:   oldSessionID,
				NewSessionID:   active.ID,
				Boundary: &Boundary{
					OldSessionID: oldSessionID,
					NewSessionID: active.ID,
					Type:         boundaryType,
					PrevMode:     oldMode,
					Mode:         newMode,
					NewRole:      string(active.Role),
					NewMode:      newMode,
				},
			}) {
				return false
			}
		}

		state.sessionID = active.ID
		state.mode = newMode
		state.tmuxPane = active.PaneID
		state.transcriptPath = active.Transcript
		state.inactiveSince = time.Time{}

		if state.transcriptPath != "" {
			startTailer(state.transcriptPath)
		}
	} else if active.Transcript != "" && active.Transcript != state.transcriptPath {
		state.transcriptPath = active.Transcript
		startTailer(state.transcriptPath)
	}
	return true
}

func emitStatus(ctx context.Context, prober StatusProber, state *streamState, send func(Event) bool) bool {
	status, err := prober.Status(ctx, state.tmuxPane)
	if err != nil {
		return true
	}

	newActivity := &Activity{}
	if status != nil {
		newActivity = &Activity{
			IsThinking: status.IsThinking,
			ActiveTask: status.ActiveTask,
			LastTask:   status.LastTask,
			Elapsed:    status.ElapsedTime,
			TokenCount: status.TokenCount,
		}
	}
	if activityChanged(state.activity, newActivity) {
		if !send(Event{Type: EventActivity, Activity: newActivity}) {
			return false
		}
	}
	state.activity = newActivity

	warningNow := status != nil && status.ContextWarning
	remainNow := 0
	if status != nil {
		remainNow = status.ContextRemaining
	}
	if warningNow != state.warning || remainNow != state.remain {
		if warningNow {
			w := &ContextWarning{
				PercentRemaining: status.ContextRemaining,
				PercentUsed:      status.ContextPercent,
				ShouldWarn:       true,
				ShouldForceReset: status.ContextRemaining <= 10,
			}
			if !send(Event{Type: EventContextWarning, Warning: w}) {
				return false
			}
		} else if state.warning {
			if !send(Event{Type: EventContextWarning, Warning: &ContextWarning{ShouldWarn: false}}) {
				return false
			}
		}
	}
	state.warning = warningNow
	state.remain = remainNow

	if status != nil && (status.Model != state.model || status.CostUSD != state.cost) {
		state.model = status.Model
		state.cost = status.CostUSD
		if !send(Event{Type: EventSessionMeta, Meta: &SessionMeta{Model: status.Model, CostUSD: status.CostUSD}}) {
			return false
		}
	}
	return true
}

func activityChanged(a, b *Activity) bool {
	if a == nil {
		return b.IsThinking || b.ActiveTask != ""
	}
	return *a != *b
}
