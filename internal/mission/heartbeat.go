package mission

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nexus-chief/chief/internal/channels"
)

// classify applies the calendar-proximity rules from the original
// scheduler's _get_calendar_context/check_and_send_heartbeat: an event
// whose title contains a focus keyword suppresses any wake while it is in
// progress; otherwise a soon-starting event yields PRE_EVENT, a
// just-ended event yields POST_EVENT, and anything else is a plain
// HEARTBEAT.
func classify(now time.Time, events []channels.CalendarEvent) (WakeType, *channels.CalendarEvent) {
	for i := range events {
		ev := &events[i]
		if isFocusEvent(ev) && !now.Before(ev.Start) && now.Before(ev.End) {
			return WakeSuppress, ev
		}
	}
	for i := range events {
		ev := &events[i]
		untilStart := ev.Start.Sub(now)
		if untilStart > 0 && untilStart <= preEventMaxMinutes*time.Minute && untilStart >= preEventMinMinutes*time.Minute {
			return WakePreEvent, ev
		}
	}
	for i := range events {
		ev := &events[i]
		sinceEnd := now.Sub(ev.End)
		if sinceEnd > 0 && sinceEnd <= postEventMaxMinutes*time.Minute {
			return WakePostEvent, ev
		}
	}
	return WakeHeartbeat, nil
}

func isFocusEvent(ev *channels.CalendarEvent) bool {
	title := strings.ToLower(ev.Title)
	for _, kw := range FocusKeywords {
		if strings.Contains(title, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func inActiveHours(now time.Time) bool {
	h := now.Hour()
	return h >= HeartbeatStartHour && h < HeartbeatEndHour
}

// CheckHeartbeat runs one tick of the calendar-aware heartbeat loop: it
// looks at calendar events near now, classifies the wake, and sends a
// formatted wake message to Chief unless suppressed or outside active
// hours or throttled below HeartbeatInterval.
func (s *Scheduler) CheckHeartbeat(ctx context.Context) error {
	now := s.now().In(s.location)
	if !inActiveHours(now) {
		return nil
	}

	events, err := s.calendar.EventsNear(ctx, now, preEventMaxMinutes*time.Minute)
	if err != nil {
		s.log.Warn("calendar lookup failed", "error", err)
		events = nil
	}

	wakeType, event := classify(now, events)

	switch wakeType {
	case WakeSuppress:
		return nil
	case WakePreEvent:
		key := event.ID
		if key == s.lastPreEventAlert {
			return nil
		}
		s.lastPreEventAlert = key
		s.sendWake(ctx, preEventMessage(event, now))
		return nil
	case WakePostEvent:
		key := event.ID
		if key == s.lastPostEventAlert {
			return nil
		}
		s.lastPostEventAlert = key
		s.sendWake(ctx, postEventMessage(event))
		return nil
	case WakeHeartbeat:
		if !s.lastHeartbeat.IsZero() && now.Sub(s.lastHeartbeat) < HeartbeatInterval {
			return nil
		}
		s.lastHeartbeat = now
		s.sendWake(ctx, heartbeatMessage(now))
		return nil
	}
	return nil
}

func (s *Scheduler) sendWake(ctx context.Context, message string) {
	if ok := s.sessions.SendToChief(ctx, message); !ok {
		s.log.Debug("heartbeat wake skipped, chief not reachable")
	}
}

func preEventMessage(ev *channels.CalendarEvent, now time.Time) string {
	minutes := int(ev.Start.Sub(now).Minutes())
	return fmt.Sprintf("[HEARTBEAT - PRE_EVENT]\n\n\"%s\" starts in %d minutes.", ev.Title, minutes)
}

func postEventMessage(ev *channels.CalendarEvent) string {
	return fmt.Sprintf("[HEARTBEAT - POST_EVENT]\n\n\"%s\" just ended.", ev.Title)
}

func heartbeatMessage(now time.Time) string {
	return fmt.Sprintf("[HEARTBEAT]\n\nRoutine check-in at %s.", now.Format("15:04"))
}
