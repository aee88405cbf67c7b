package attention

import (
	"testing"
	"time"

	"github.com/nexus-chief/chief/pkg/models"
)

func TestNewFeed(t *testing.T) {
	feed := NewFeed()
	if feed == nil {
		t.Fatal("NewFeed() returned nil")
	}
}

func TestFeed_AddAndGet(t *testing.T) {
	feed := NewFeed()
	feed.Add(&Item{ID: "item-1", ShortID: "it1", Status: StatusNew})

	got, ok := feed.Get("item-1")
	if !ok || got.ID != "item-1" {
		t.Fatalf("Get(item-1) = %v, %v", got, ok)
	}

	got, ok = feed.Get("it1")
	if !ok || got.ID != "item-1" {
		t.Fatalf("Get by short id = %v, %v", got, ok)
	}

	if _, ok := feed.Get("nonexistent"); ok {
		t.Error("expected ok to be false for nonexistent item")
	}
}

func TestFeed_AddPreservesFeedLocalState(t *testing.T) {
	feed := NewFeed()
	feed.Add(&Item{ID: "item-1", Status: StatusNew})
	feed.MarkViewed("item-1")

	// A re-poll for the same worker should not reset a feed-local viewed
	// mark back to "new".
	feed.Add(&Item{ID: "item-1", Status: StatusNew})

	got, _ := feed.Get("item-1")
	if got.Status != StatusViewed {
		t.Errorf("Status = %v, want %v (should survive re-add)", got.Status, StatusViewed)
	}
}

func TestFeed_MarkViewedAndHandled(t *testing.T) {
	feed := NewFeed()
	feed.Add(&Item{ID: "item-1", Status: StatusNew})

	if !feed.MarkViewed("item-1") {
		t.Fatal("MarkViewed should find item-1")
	}
	got, _ := feed.Get("item-1")
	if got.Status != StatusViewed {
		t.Errorf("Status = %v, want %v", got.Status, StatusViewed)
	}

	if !feed.MarkHandled("item-1") {
		t.Fatal("MarkHandled should find item-1")
	}
	got, _ = feed.Get("item-1")
	if got.Status != StatusHandled {
		t.Errorf("Status = %v, want %v", got.Status, StatusHandled)
	}

	if feed.MarkHandled("missing") {
		t.Error("MarkHandled on a missing item should return false")
	}
}

func TestFeed_SnoozeAndUnsnooze(t *testing.T) {
	feed := NewFeed()
	feed.Add(&Item{ID: "item-1", Status: StatusNew})

	until := time.Now().Add(time.Hour)
	if !feed.Snooze("item-1", until) {
		t.Fatal("Snooze should find item-1")
	}
	got, _ := feed.Get("item-1")
	if got.Status != StatusSnoozed {
		t.Errorf("Status = %v, want %v", got.Status, StatusSnoozed)
	}

	if !feed.Unsnooze("item-1") {
		t.Fatal("Unsnooze should find item-1")
	}
	got, _ = feed.Get("item-1")
	if got.Status != StatusNew {
		t.Errorf("Status = %v, want %v", got.Status, StatusNew)
	}
}

func TestFeed_List_FiltersByDomainKindAndPriority(t *testing.T) {
	feed := NewFeed()
	feed.Add(&Item{ID: "w1", Domain: "research", Kind: models.AttentionResult, Priority: PriorityLow, Status: StatusNew, ReceivedAt: time.Now()})
	feed.Add(&Item{ID: "w2", Domain: "ops", Kind: models.AttentionAlert, Priority: PriorityCritical, Status: StatusNew, ReceivedAt: time.Now()})

	byDomain := feed.List(FeedOptions{Domains: []string{"ops"}})
	if len(byDomain) != 1 || byDomain[0].ID != "w2" {
		t.Fatalf("Domains filter = %v", byDomain)
	}

	byKind := feed.List(FeedOptions{Kinds: []string{string(models.AttentionResult)}})
	if len(byKind) != 1 || byKind[0].ID != "w1" {
		t.Fatalf("Kinds filter = %v", byKind)
	}

	urgent := feed.Urgent()
	if len(urgent) != 1 || urgent[0].ID != "w2" {
		t.Fatalf("Urgent() = %v", urgent)
	}
}

func TestFeed_List_ExcludesSnoozedByDefault(t *testing.T) {
	feed := NewFeed()
	feed.Add(&Item{ID: "w1", Status: StatusNew, ReceivedAt: time.Now()})
	feed.Add(&Item{ID: "w2", Status: StatusNew, ReceivedAt: time.Now()})
	feed.Snooze("w2", time.Now().Add(time.Hour))

	active := feed.Active()
	if len(active) != 1 || active[0].ID != "w1" {
		t.Fatalf("Active() = %v, want only w1", active)
	}

	all := feed.List(FeedOptions{IncludeSnoozed: true})
	if len(all) != 2 {
		t.Fatalf("List with IncludeSnoozed = %v, want 2 items", all)
	}
}

func TestFeed_List_SortOrders(t *testing.T) {
	feed := NewFeed()
	now := time.Now()
	feed.Add(&Item{ID: "old", Priority: PriorityLow, Status: StatusNew, ReceivedAt: now.Add(-time.Hour)})
	feed.Add(&Item{ID: "new", Priority: PriorityHigh, Status: StatusNew, ReceivedAt: now})

	desc := feed.List(FeedOptions{SortBy: SortByReceivedDesc})
	if desc[0].ID != "new" {
		t.Errorf("SortByReceivedDesc first = %q, want %q", desc[0].ID, "new")
	}

	byPriority := feed.List(FeedOptions{SortBy: SortByPriorityDesc})
	if byPriority[0].ID != "new" {
		t.Errorf("SortByPriorityDesc first = %q, want %q", byPriority[0].ID, "new")
	}
}

func TestFeed_Stats(t *testing.T) {
	feed := NewFeed()
	feed.Add(&Item{ID: "w1", Domain: "research", Kind: models.AttentionResult, Status: StatusNew, ReceivedAt: time.Now()})
	feed.Add(&Item{ID: "w2", Domain: "research", Kind: models.AttentionAlert, Status: StatusViewed, ReceivedAt: time.Now()})

	stats := feed.Stats()
	if stats.TotalItems != 2 {
		t.Errorf("TotalItems = %d, want 2", stats.TotalItems)
	}
	if stats.NewItems != 1 {
		t.Errorf("NewItems = %d, want 1", stats.NewItems)
	}
	if stats.ByDomain["research"] != 2 {
		t.Errorf("ByDomain[research] = %d, want 2", stats.ByDomain["research"])
	}
}

func TestFeed_WakeSnoozed(t *testing.T) {
	feed := NewFeed()
	feed.Add(&Item{ID: "w1", Status: StatusNew, ReceivedAt: time.Now()})
	past := time.Now().Add(-time.Minute)
	feed.Snooze("w1", past)

	woken := feed.WakeSnoozed()
	if len(woken) != 1 || woken[0].ID != "w1" {
		t.Fatalf("WakeSnoozed() = %v", woken)
	}
	got, _ := feed.Get("w1")
	if got.Status != StatusNew {
		t.Errorf("Status after wake = %v, want %v", got.Status, StatusNew)
	}
}

func TestFeed_OnItemChange(t *testing.T) {
	feed := NewFeed()
	var events []string
	feed.OnItemChange(func(item *Item, event string) {
		events = append(events, event)
	})

	feed.Add(&Item{ID: "w1", Status: StatusNew})
	feed.MarkViewed("w1")
	feed.MarkHandled("w1")

	if len(events) != 3 || events[0] != "added" || events[1] != "viewed" || events[2] != "handled" {
		t.Fatalf("events = %v", events)
	}
}
