package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"securitybot/internal/clock"
)

// Scheduler runs the bot's periodic work on a single cron instance. Every
// job is wrapped so a panic is logged and a run that overlaps the previous
// one is skipped.
type Scheduler struct {
	cron   *cron.Cron
	chain  cron.Chain
	clock  clock.Clock
	logger *zap.Logger

	mu       sync.Mutex
	ctx      context.Context
	cancel   context.CancelFunc
	adaptive []*Adaptive
	timers   []clock.Timer
}

func New(clk clock.Clock, logger *zap.Logger) *Scheduler {
	cl := cronLogger{logger: logger.Sugar()}
	chain := cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))
	return &Scheduler{
		cron:   cron.New(cron.WithLogger(cl)),
		chain:  chain,
		clock:  clk,
		logger: logger,
		ctx:    context.Background(),
	}
}

// Every runs fn at a fixed interval once the scheduler is started.
func (s *Scheduler) Every(name string, interval time.Duration, fn func(ctx context.Context)) error {
	if interval <= 0 {
		return fmt.Errorf("scheduler %s: interval must be positive", name)
	}
	s.cron.Schedule(cron.Every(interval), s.namedJob(name, fn))
	return nil
}

// Cron runs fn on a standard cron expression such as "@daily".
func (s *Scheduler) Cron(name, expr string, fn func(ctx context.Context)) error {
	if _, err := s.cron.AddJob(expr, s.namedJob(name, fn)); err != nil {
		return fmt.Errorf("scheduler %s: %w", name, err)
	}
	return nil
}

func (s *Scheduler) namedJob(name string, fn func(ctx context.Context)) cron.Job {
	return s.chain.Then(cron.FuncJob(func() {
		s.logger.Debug("scheduled job", zap.String("job", name))
		fn(s.context())
	}))
}

func (s *Scheduler) context() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

// Start begins running jobs. Adaptive tasks wait for their startup delay
// before the first run. Jobs receive a context that is cancelled by Stop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	for _, task := range s.adaptive {
		s.timers = append(s.timers, s.clock.AfterFunc(task.opts.Delay, task.begin))
	}
	s.mu.Unlock()
	s.cron.Start()
	s.logger.Info("scheduler started", zap.Int("entries", len(s.cron.Entries())), zap.Int("adaptive", len(s.adaptive)))
}

// Stop halts scheduling and waits for running jobs to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	for _, t := range s.timers {
		t.Stop()
	}
	s.timers = nil
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

type cronLogger struct {
	logger *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
