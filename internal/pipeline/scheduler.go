package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/patagonialabs/firesentinel/internal/domain"
	"github.com/patagonialabs/firesentinel/internal/observability"
)

// CycleRunner executes one detection cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context) *domain.CycleRecord
}

// Scheduler triggers cycles on a fixed interval. Triggers never queue: if a
// cycle is still running when the next tick fires, that tick is skipped and
// counted, keeping one cycle in flight at most.
type Scheduler struct {
	runner   CycleRunner
	interval time.Duration
	clock    clockwork.Clock
	metrics  *observability.Metrics
	logger   *slog.Logger

	mu sync.Mutex // held for a cycle's duration
	wg sync.WaitGroup
}

// NewScheduler creates an interval scheduler around a cycle runner.
func NewScheduler(runner CycleRunner, interval time.Duration, clock clockwork.Clock, metrics *observability.Metrics, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		runner:   runner,
		interval: interval,
		clock:    clock,
		metrics:  metrics,
		logger:   logger,
	}
}

// Run fires an immediate cycle, then one per interval, until the context is
// cancelled. It waits for any in-flight cycle before returning, so persisted
// state stays consistent across shutdown.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("scheduler started", "interval", s.interval)

	s.trigger(ctx)

	ticker := s.clock.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping", "reason", ctx.Err())
			s.wg.Wait()
			return nil
		case <-ticker.Chan():
			s.trigger(ctx)
		}
	}
}

// trigger starts a cycle unless one is already running.
func (s *Scheduler) trigger(ctx context.Context) {
	if !s.mu.TryLock() {
		s.metrics.CyclesSkipped.Inc()
		s.logger.Warn("previous cycle still running, skipping this trigger")
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.mu.Unlock()
		s.runner.RunCycle(ctx)
	}()
}
