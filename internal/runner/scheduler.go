package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bakkerme/relaypipe/internal/core"
	"github.com/bakkerme/relaypipe/internal/processors/trigger"
)

var ErrSchedulerRunning = errors.New("scheduler already running")

// droppedCounter is implemented by triggers that discard firings before
// they reach the scheduler.
type droppedCounter interface {
	Dropped() int64
}

func droppedBy(trig core.TriggerProcessor) int64 {
	if dc, ok := trig.(droppedCounter); ok {
		return dc.Dropped()
	}
	return 0
}

// Status is a point-in-time view of the scheduler.
type Status struct {
	PipelineID     string        `json:"pipeline_id"`
	Running        bool          `json:"running"`
	CycleActive    bool          `json:"cycle_active"`
	Trigger        string        `json:"trigger,omitempty"`
	CyclesRun      int64         `json:"cycles_run"`
	SkippedFirings int64         `json:"skipped_firings"`
	LastCycle      *CycleSummary `json:"last_cycle,omitempty"`
}

type CycleSummary struct {
	ID            string           `json:"id"`
	Status        core.CycleStatus `json:"status"`
	StartedAt     time.Time        `json:"started_at"`
	CompletedAt   *time.Time       `json:"completed_at,omitempty"`
	SnapshotSize  int              `json:"snapshot_size"`
	FilteredCount int              `json:"filtered_count"`
	Counts        core.CycleCounts `json:"counts"`
	Error         string           `json:"error,omitempty"`
}

func SummarizeCycle(cycle *core.Cycle) *CycleSummary {
	if cycle == nil {
		return nil
	}
	return &CycleSummary{
		ID:            cycle.ID,
		Status:        cycle.Status,
		StartedAt:     cycle.StartedAt,
		CompletedAt:   cycle.CompletedAt,
		SnapshotSize:  cycle.SnapshotSize,
		FilteredCount: cycle.FilteredCount,
		Counts:        cycle.Counts(),
		Error:         cycle.Error,
	}
}

// Scheduler fires cycles from a trigger with at most one cycle active.
// A firing that arrives while a cycle runs is skipped, not queued.
type Scheduler struct {
	runner  *Runner
	trigger core.TriggerProcessor
	logger  *slog.Logger

	mu      sync.Mutex
	active  core.TriggerProcessor
	cancel  context.CancelFunc
	done    chan struct{}
	cycles  sync.WaitGroup
	busy    atomic.Bool
	skipped atomic.Int64
	// dropped totals firings discarded by triggers that have since stopped.
	dropped atomic.Int64
}

// NewScheduler returns a scheduler for runner. A nil trigger means Start
// builds an interval trigger from its interval argument.
func NewScheduler(runner *Runner, trig core.TriggerProcessor, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{runner: runner, trigger: trig, logger: logger}
}

// Start begins firing cycles. With an interval trigger the first cycle runs
// one interval after Start returns.
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != nil {
		return ErrSchedulerRunning
	}

	trig := s.trigger
	if trig == nil {
		if interval <= 0 {
			return fmt.Errorf("interval must be positive, got %s", interval)
		}
		trig = trigger.NewIntervalProcessor(interval)
	}
	if err := trig.Validate(); err != nil {
		return fmt.Errorf("trigger %s: %w", trig.Name(), err)
	}

	listenCtx, cancel := context.WithCancel(ctx)
	events, err := trig.Start(listenCtx, s.runner.Pipeline().ID)
	if err != nil {
		cancel()
		return fmt.Errorf("start trigger %s: %w", trig.Name(), err)
	}

	s.active = trig
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.listen(listenCtx, events, s.done)

	s.logger.Info("scheduler started", "pipeline_id", s.runner.Pipeline().ID, "trigger", trig.Name(), "interval", interval)
	return nil
}

// Stop prevents further cycles and waits for an in-flight cycle to finish.
// Calling Stop on a stopped scheduler is a no-op.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	trig, cancel, done := s.active, s.cancel, s.done
	s.active, s.cancel, s.done = nil, nil, nil
	s.mu.Unlock()
	if trig == nil {
		return nil
	}

	cancel()
	err := trig.Stop()
	s.dropped.Add(droppedBy(trig))
	<-done
	s.cycles.Wait()
	s.logger.Info("scheduler stopped", "pipeline_id", s.runner.Pipeline().ID, "skipped_firings", s.skipped.Load()+s.dropped.Load())
	return err
}

func (s *Scheduler) listen(ctx context.Context, events <-chan core.TriggerEvent, done chan struct{}) {
	defer close(done)
	// Cycles outlive Stop's cancellation so in-flight remote writes complete.
	cycleCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if ctx.Err() != nil {
				return
			}
			if !s.busy.CompareAndSwap(false, true) {
				skipped := s.skipped.Add(1)
				s.logger.Warn("cycle still running, skipping firing", "pipeline_id", event.PipelineID, "time", event.Timestamp, "skipped_firings", skipped)
				continue
			}
			s.cycles.Add(1)
			go func() {
				defer s.cycles.Done()
				defer s.busy.Store(false)
				// Errors are already logged and recorded on the cycle.
				_, _ = s.runner.RunCycle(cycleCtx)
			}()
		}
	}
}

func (s *Scheduler) Status() Status {
	s.mu.Lock()
	trig := s.active
	s.mu.Unlock()

	status := Status{
		PipelineID:     s.runner.Pipeline().ID,
		Running:        trig != nil,
		CycleActive:    s.busy.Load(),
		CyclesRun:      s.runner.CyclesRun(),
		SkippedFirings: s.skipped.Load() + s.dropped.Load() + droppedBy(trig),
		LastCycle:      SummarizeCycle(s.runner.LastCycle()),
	}
	if trig != nil {
		status.Trigger = trig.Name()
	}
	return status
}

func (s *Scheduler) LastCycle() *core.Cycle {
	return s.runner.LastCycle()
}
