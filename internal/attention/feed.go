package attention

import (
	"sort"
	"sync"
	"time"
)

// FeedOptions configures how items are filtered and sorted.
type FeedOptions struct {
	// Domains filters to specific attention domains (empty = all).
	Domains []string

	// Kinds filters to specific attention kinds (empty = all).
	Kinds []string

	// MinPriority filters to a minimum priority level.
	MinPriority Priority

	// Statuses filters to specific statuses (empty = every status except
	// snoozed, which IncludeSnoozed adds back; handled items are included).
	Statuses []Status

	// ConversationIDs filters to items from specific conversations.
	ConversationIDs []string

	// Since filters to items received after this time.
	Since time.Time

	// Until filters to items received before this time.
	Until time.Time

	// Limit caps the number of items returned.
	Limit int

	// Offset for pagination.
	Offset int

	// SortBy determines sort order.
	SortBy SortOrder

	// IncludeSnoozed includes snoozed items if true.
	IncludeSnoozed bool
}

// SortOrder determines how items are sorted.
type SortOrder string

const (
	SortByReceivedDesc SortOrder = "received_desc" // newest first (default)
	SortByReceivedAsc  SortOrder = "received_asc"  // oldest first
	SortByPriorityDesc SortOrder = "priority_desc" // highest priority first
	SortByPriorityAsc  SortOrder = "priority_asc"  // lowest priority first
)

// FeedStats provides aggregate statistics about the feed.
type FeedStats struct {
	TotalItems   int            `json:"total_items"`
	NewItems     int            `json:"new_items"`
	ViewedItems  int            `json:"viewed_items"`
	SnoozedItems int            `json:"snoozed_items"`
	ByDomain     map[string]int `json:"by_domain"`
	ByKind       map[string]int `json:"by_kind"`
	ByPriority   map[int]int    `json:"by_priority"`
	OldestItem   *time.Time     `json:"oldest_item,omitempty"`
	NewestItem   *time.Time     `json:"newest_item,omitempty"`
}

// Feed aggregates attention items keyed by worker id, safe for concurrent
// access by the HTTP surface, CLI commands, and the background poller.
type Feed struct {
	items    map[string]*Item
	mu       sync.RWMutex
	handlers []ItemHandler
}

// ItemHandler is called when items are added or updated.
type ItemHandler func(item *Item, event string)

// NewFeed creates a new attention feed.
func NewFeed() *Feed {
	return &Feed{
		items: make(map[string]*Item),
	}
}

// Add adds a new item to the feed, or replaces an existing one with the
// same id without resetting its feed-local viewed/snoozed state.
func (f *Feed) Add(item *Item) {
	f.mu.Lock()
	if existing, ok := f.items[item.ID]; ok {
		item.Status = existing.Status
		item.ViewedAt = existing.ViewedAt
		item.SnoozedUntil = existing.SnoozedUntil
		item.HandledAt = existing.HandledAt
	}
	f.items[item.ID] = item
	f.mu.Unlock()

	f.notifyHandlers(item, "added")
}

// Get retrieves an item by worker id or short id.
func (f *Feed) Get(id string) (*Item, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if item, ok := f.items[id]; ok {
		return item, true
	}
	for _, item := range f.items {
		if item.ShortID == id {
			return item, true
		}
	}
	return nil, false
}

// MarkViewed marks an item as viewed.
func (f *Feed) MarkViewed(id string) bool {
	return f.mutate(id, func(item *Item) { item.SetViewed() }, "viewed")
}

// MarkHandled marks an item as handled.
func (f *Feed) MarkHandled(id string) bool {
	return f.mutate(id, func(item *Item) { item.SetHandled() }, "handled")
}

// Snooze snoozes an item until the given time.
func (f *Feed) Snooze(id string, until time.Time) bool {
	return f.mutate(id, func(item *Item) { item.Snooze(until) }, "snoozed")
}

// Unsnooze brings a snoozed item back to active.
func (f *Feed) Unsnooze(id string) bool {
	return f.mutate(id, func(item *Item) { item.Unsnooze() }, "unsnoozed")
}

func (f *Feed) mutate(id string, fn func(*Item), event string) bool {
	f.mu.Lock()
	item, exists := f.items[id]
	if !exists {
		for _, it := range f.items {
			if it.ShortID == id {
				item, exists = it, true
				break
			}
		}
	}
	if exists {
		fn(item)
	}
	f.mu.Unlock()

	if exists {
		f.notifyHandlers(item, event)
	}
	return exists
}

// List returns items matching the given options.
func (f *Feed) List(opts FeedOptions) []*Item {
	f.mu.RLock()
	defer f.mu.RUnlock()

	var result []*Item
	for _, item := range f.items {
		if f.matchesOptions(item, opts) {
			result = append(result, item)
		}
	}

	f.sortItems(result, opts.SortBy)

	if opts.Offset > 0 && opts.Offset < len(result) {
		result = result[opts.Offset:]
	} else if opts.Offset >= len(result) {
		return nil
	}

	if opts.Limit > 0 && opts.Limit < len(result) {
		result = result[:opts.Limit]
	}

	return result
}

// Active returns all items still requiring attention.
func (f *Feed) Active() []*Item {
	return f.List(FeedOptions{Statuses: []Status{StatusNew, StatusViewed}})
}

// Urgent returns high-priority-and-above active items.
func (f *Feed) Urgent() []*Item {
	return f.List(FeedOptions{
		MinPriority: PriorityHigh,
		Statuses:    []Status{StatusNew, StatusViewed},
		SortBy:      SortByPriorityDesc,
	})
}

// Stats returns aggregate statistics about the feed.
func (f *Feed) Stats() FeedStats {
	f.mu.RLock()
	defer f.mu.RUnlock()

	stats := FeedStats{
		ByDomain:   make(map[string]int),
		ByKind:     make(map[string]int),
		ByPriority: make(map[int]int),
	}

	for _, item := range f.items {
		stats.TotalItems++
		stats.ByDomain[item.Domain]++
		stats.ByKind[string(item.Kind)]++
		stats.ByPriority[int(item.Priority)]++

		switch item.Status {
		case StatusNew:
			stats.NewItems++
		case StatusViewed:
			stats.ViewedItems++
		case StatusSnoozed:
			stats.SnoozedItems++
		}

		if stats.OldestItem == nil || item.ReceivedAt.Before(*stats.OldestItem) {
			stats.OldestItem = &item.ReceivedAt
		}
		if stats.NewestItem == nil || item.ReceivedAt.After(*stats.NewestItem) {
			stats.NewestItem = &item.ReceivedAt
		}
	}

	return stats
}

// OnItemChange registers a handler for item changes.
func (f *Feed) OnItemChange(handler ItemHandler) {
	f.mu.Lock()
	f.handlers = append(f.handlers, handler)
	f.mu.Unlock()
}

// WakeSnoozed checks for snoozed items past their snooze deadline and
// brings them back to active.
func (f *Feed) WakeSnoozed() []*Item {
	f.mu.Lock()
	defer f.mu.Unlock()

	var woken []*Item
	now := time.Now()

	for _, item := range f.items {
		if item.Status == StatusSnoozed && item.SnoozedUntil != nil && now.After(*item.SnoozedUntil) {
			item.Unsnooze()
			woken = append(woken, item)
		}
	}

	return woken
}

func (f *Feed) matchesOptions(item *Item, opts FeedOptions) bool {
	if len(opts.Domains) > 0 {
		found := false
		for _, d := range opts.Domains {
			if item.Domain == d {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if len(opts.Kinds) > 0 {
		found := false
		for _, k := range opts.Kinds {
			if string(item.Kind) == k {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if opts.MinPriority > 0 && item.Priority < opts.MinPriority {
		return false
	}

	if len(opts.Statuses) > 0 {
		found := false
		for _, s := range opts.Statuses {
			if item.Status == s {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	} else if !opts.IncludeSnoozed && item.Status == StatusSnoozed {
		return false
	}

	if len(opts.ConversationIDs) > 0 {
		found := false
		for _, id := range opts.ConversationIDs {
			if item.ConversationID == id {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if !opts.Since.IsZero() && item.ReceivedAt.Before(opts.Since) {
		return false
	}
	if !opts.Until.IsZero() && item.ReceivedAt.After(opts.Until) {
		return false
	}

	return true
}

func (f *Feed) sortItems(items []*Item, sortBy SortOrder) {
	switch sortBy {
	case SortByReceivedAsc:
		sort.Slice(items, func(i, j int) bool {
			return items[i].ReceivedAt.Before(items[j].ReceivedAt)
		})
	case SortByPriorityDesc:
		sort.Slice(items, func(i, j int) bool {
			if items[i].Priority != items[j].Priority {
				return items[i].Priority > items[j].Priority
			}
			return items[i].ReceivedAt.After(items[j].ReceivedAt)
		})
	case SortByPriorityAsc:
		sort.Slice(items, func(i, j int) bool {
			if items[i].Priority != items[j].Priority {
				return items[i].Priority < items[j].Priority
			}
			return items[i].ReceivedAt.Before(items[j].ReceivedAt)
		})
	default: // SortByReceivedDesc
		sort.Slice(items, func(i, j int) bool {
			return items[i].ReceivedAt.After(items[j].ReceivedAt)
		})
	}
}

func (f *Feed) notifyHandlers(item *Item, event string) {
	f.mu.RLock()
	handlers := make([]ItemHandler, len(f.handlers))
	copy(handlers, f.handlers)
	f.mu.RUnlock()

	for _, h := range handlers {
		h(item, event)
	}
}
