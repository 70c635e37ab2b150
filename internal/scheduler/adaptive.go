package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type AdaptiveOptions struct {
	Delay   time.Duration
	Initial time.Duration
	Steady  time.Duration
	Warmup  time.Duration
}

type AdaptiveState struct {
	Interval  time.Duration
	StartedAt time.Time
	Switched  bool
}

// Adaptive is a task that runs at one interval while the process warms up and
// at another afterwards. It owns exactly one cron entry at any time.
type Adaptive struct {
	name  string
	opts  AdaptiveOptions
	fn    func(ctx context.Context)
	s     *Scheduler
	job   cron.Job
	mu    sync.Mutex
	state AdaptiveState
	entry cron.EntryID
}

// Adaptive registers a task that first runs after opts.Delay, then every
// opts.Initial, and every opts.Steady once opts.Warmup has passed.
func (s *Scheduler) Adaptive(name string, opts AdaptiveOptions, fn func(ctx context.Context)) *Adaptive {
	if opts.Steady <= 0 {
		opts.Steady = opts.Initial
	}
	a := &Adaptive{name: name, opts: opts, fn: fn, s: s}
	a.job = s.chain.Then(cron.FuncJob(a.tick))
	s.mu.Lock()
	s.adaptive = append(s.adaptive, a)
	s.mu.Unlock()
	return a
}

func (a *Adaptive) State() AdaptiveState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

func (a *Adaptive) begin() {
	a.mu.Lock()
	a.state = AdaptiveState{Interval: a.opts.Initial, StartedAt: a.s.clock.Now()}
	a.entry = a.s.cron.Schedule(cron.Every(a.opts.Initial), a.job)
	a.mu.Unlock()
	a.job.Run()
}

func (a *Adaptive) tick() {
	a.mu.Lock()
	if !a.state.Switched && a.s.clock.Now().Sub(a.state.StartedAt) >= a.opts.Warmup {
		a.s.cron.Remove(a.entry)
		a.entry = a.s.cron.Schedule(cron.Every(a.opts.Steady), a.job)
		a.state.Interval = a.opts.Steady
		a.state.Switched = true
		a.s.logger.Info("adaptive task switched interval", zap.String("task", a.name), zap.Duration("interval", a.opts.Steady))
	}
	a.mu.Unlock()
	a.fn(a.s.context())
}
