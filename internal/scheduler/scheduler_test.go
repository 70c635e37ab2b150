package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"securitybot/internal/clock"
)

func entryDelay(t *testing.T, s *Scheduler, id cron.EntryID) time.Duration {
	t.Helper()
	schedule, ok := s.cron.Entry(id).Schedule.(cron.ConstantDelaySchedule)
	if !ok {
		t.Fatalf("entry %d is not a constant delay schedule", id)
	}
	return schedule.Delay
}

func TestAdaptiveSwitchesAfterWarmup(t *testing.T) {
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))
	s := New(clk, zap.NewNop())
	var runs atomic.Int32
	task := s.Adaptive("verification", AdaptiveOptions{
		Delay:   2 * time.Second,
		Initial: 30 * time.Second,
		Steady:  10 * time.Second,
		Warmup:  5 * time.Minute,
	}, func(context.Context) { runs.Add(1) })

	s.Start(context.Background())
	t.Cleanup(s.Stop)

	if runs.Load() != 0 {
		t.Fatalf("task must wait for the startup delay")
	}
	clk.Advance(2 * time.Second)
	if runs.Load() != 1 {
		t.Fatalf("expected the first run after the delay, got %d", runs.Load())
	}
	state := task.State()
	if state.Interval != 30*time.Second || state.Switched {
		t.Fatalf("unexpected initial state: %+v", state)
	}
	if got := entryDelay(t, s, task.entry); got != 30*time.Second {
		t.Fatalf("expected a 30s entry, got %s", got)
	}

	clk.Advance(time.Minute)
	task.tick()
	if task.State().Switched {
		t.Fatalf("must not switch before the warmup")
	}

	clk.Advance(4 * time.Minute)
	task.tick()
	state = task.State()
	if !state.Switched || state.Interval != 10*time.Second {
		t.Fatalf("expected the steady interval, got %+v", state)
	}
	if got := entryDelay(t, s, task.entry); got != 10*time.Second {
		t.Fatalf("expected a 10s entry, got %s", got)
	}
	if n := len(s.cron.Entries()); n != 1 {
		t.Fatalf("adaptive task must own exactly one entry, got %d", n)
	}
	if runs.Load() != 3 {
		t.Fatalf("expected 3 runs, got %d", runs.Load())
	}
}

func TestStopCancelsPendingStart(t *testing.T) {
	clk := clock.NewFake(time.Unix(1_700_000_000, 0))
	s := New(clk, zap.NewNop())
	var runs atomic.Int32
	s.Adaptive("verification", AdaptiveOptions{Delay: time.Second, Initial: time.Minute}, func(context.Context) { runs.Add(1) })

	s.Start(context.Background())
	s.Stop()
	clk.Advance(time.Minute)
	if runs.Load() != 0 {
		t.Fatalf("stopped scheduler must not run delayed tasks")
	}
}

func TestEveryRejectsNonPositiveInterval(t *testing.T) {
	s := New(clock.Real(), zap.NewNop())
	if err := s.Every("sweep", 0, func(context.Context) {}); err == nil {
		t.Fatalf("expected an error for a zero interval")
	}
	if err := s.Cron("retention", "every tuesday-ish", func(context.Context) {}); err == nil {
		t.Fatalf("expected an error for an invalid expression")
	}
	if err := s.Cron("retention", "@daily", func(context.Context) {}); err != nil {
		t.Fatalf("daily expression: %v", err)
	}
}

func TestJobsReceiveCancelledContextAfterStop(t *testing.T) {
	s := New(clock.Real(), zap.NewNop())
	s.Start(context.Background())
	s.Stop()
	if s.context().Err() == nil {
		t.Fatalf("job context should be cancelled by Stop")
	}
}
