package activity

import (
	"testing"
	"time"
)

func TestCountWithinWindow(t *testing.T) {
	tracker := NewTracker(10 * time.Minute)
	now := time.Unix(1000, 0)
	tracker.Record("g1", "u1", now, "a")
	tracker.Record("g1", "u1", now.Add(1*time.Second), "b")
	tracker.Record("g1", "u1", now.Add(6*time.Second), "c")

	if count := tracker.CountWithin("g1", "u1", 5*time.Second, now.Add(6*time.Second)); count != 2 {
		t.Fatalf("expected 2, got %d", count)
	}
	if count := tracker.CountWithin("g1", "u2", 5*time.Second, now); count != 0 {
		t.Fatalf("expected 0 for unknown user, got %d", count)
	}
}

func TestPruneKeepsWindow(t *testing.T) {
	tracker := NewTracker(10 * time.Minute)
	now := time.Unix(1000, 0)
	tracker.Record("g1", "u1", now, "x")
	tracker.Record("g1", "u1", now.Add(40*time.Second), "x")
	tracker.Prune("g1", "u1", 30*time.Second, now.Add(40*time.Second))

	if count := tracker.CountWithin("g1", "u1", time.Hour, now.Add(40*time.Second)); count != 1 {
		t.Fatalf("expected pruned to 1, got %d", count)
	}
}

func TestCountDuplicates(t *testing.T) {
	tracker := NewTracker(10 * time.Minute)
	now := time.Unix(1000, 0)
	tracker.Record("g1", "u1", now, "hello")
	tracker.Record("g1", "u1", now.Add(time.Second), "hello")
	tracker.Record("g1", "u1", now.Add(2*time.Second), "other")

	if count := tracker.CountDuplicates("g1", "u1", "hello", 30*time.Second, now.Add(2*time.Second)); count != 2 {
		t.Fatalf("expected 2 duplicates, got %d", count)
	}
	if count := tracker.CountDuplicates("g1", "u1", "hello", 30*time.Second, now.Add(31*time.Second)); count != 1 {
		t.Fatalf("expected 1 duplicate inside window, got %d", count)
	}
}

func TestMentionTags(t *testing.T) {
	tracker := NewTracker(10 * time.Minute)
	now := time.Unix(1000, 0)
	window := 5 * time.Minute

	if count := tracker.RecordMentionTag("g1", "u1", "t1", now, window); count != 1 {
		t.Fatalf("expected 1, got %d", count)
	}
	tracker.RecordMentionTag("g1", "u1", "t1", now.Add(time.Minute), window)
	if count := tracker.RecordMentionTag("g1", "u1", "t1", now.Add(6*time.Minute), window); count != 2 {
		t.Fatalf("expected old tag pruned, got %d", count)
	}
	if count := tracker.RecordMentionTag("g1", "u1", "t2", now.Add(6*time.Minute), window); count != 1 {
		t.Fatalf("targets must be independent, got %d", count)
	}
}

func TestSweepEvictsIdleUsers(t *testing.T) {
	tracker := NewTracker(10 * time.Minute)
	now := time.Unix(1000, 0)
	tracker.Record("g1", "idle", now, "a")
	tracker.Record("g1", "active", now.Add(9*time.Minute), "a")

	if removed := tracker.Sweep(now.Add(11 * time.Minute)); removed != 1 {
		t.Fatalf("expected 1 eviction, got %d", removed)
	}
	if tracker.Len() != 1 {
		t.Fatalf("expected 1 tracked user, got %d", tracker.Len())
	}
	if count := tracker.CountWithin("g1", "active", time.Hour, now.Add(11*time.Minute)); count != 1 {
		t.Fatalf("active user state lost")
	}
}

func TestShortTTLKeepsTagHistory(t *testing.T) {
	tracker := NewTracker(time.Minute)
	now := time.Unix(1000, 0)
	window := 5 * time.Minute
	tracker.RecordMentionTag("g1", "u1", "t1", now, window)

	if removed := tracker.Sweep(now.Add(4*time.Minute + 30*time.Second)); removed != 0 {
		t.Fatalf("tag history inside the window must survive a sweep, evicted %d", removed)
	}
	if count := tracker.RecordMentionTag("g1", "u1", "t1", now.Add(4*time.Minute+45*time.Second), window); count != 2 {
		t.Fatalf("expected 2 tags, got %d", count)
	}
	if removed := tracker.Sweep(now.Add(10 * time.Minute)); removed != 1 {
		t.Fatalf("expected the idle user evicted after MinIdleTTL, got %d", removed)
	}
}
