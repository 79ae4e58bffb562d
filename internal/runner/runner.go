package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bakkerme/relaypipe/internal/core"
	"github.com/bakkerme/relaypipe/internal/dedupe"
	"github.com/bakkerme/relaypipe/internal/processors/source"
	"github.com/bakkerme/relaypipe/internal/relay"
	"github.com/bakkerme/relaypipe/internal/runner/report"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Runner executes read-filter-relay cycles for one pipeline.
type Runner struct {
	pipeline *core.Pipeline
	logger   *slog.Logger
	tracer   trace.Tracer
	source   *source.Multi
	sink     *relay.Sink
	now      func() time.Time

	mu        sync.Mutex
	lastCycle *core.Cycle
	cyclesRun int64
}

func New(pipeline *core.Pipeline, logger *slog.Logger) (*Runner, error) {
	if pipeline == nil {
		return nil, fmt.Errorf("pipeline is required")
	}
	if len(pipeline.Sources) == 0 {
		return nil, fmt.Errorf("pipeline %q has no sources", pipeline.Name)
	}
	if logger == nil {
		logger = slog.Default()
	}
	sink, err := relay.NewSink(pipeline.Remote, pipeline.Seen, pipeline.MaxConcurrency, logger)
	if err != nil {
		return nil, err
	}
	return &Runner{
		pipeline: pipeline,
		logger:   logger,
		tracer:   otel.Tracer("github.com/bakkerme/relaypipe/internal/runner"),
		source:   source.NewMulti(pipeline.Sources, pipeline.AllowPartialSourceErrors, logger),
		sink:     sink,
		now:      func() time.Time { return time.Now().UTC() },
	}, nil
}

func (r *Runner) Pipeline() *core.Pipeline {
	return r.pipeline
}

// RunCycle reads every source, drops identities already in the seen store and
// relays the rest. A source or seen-store failure fails the cycle before
// anything is relayed; per-item failures are recorded as outcomes only.
func (r *Runner) RunCycle(ctx context.Context) (*core.Cycle, error) {
	cycle := &core.Cycle{
		ID:         uuid.NewString(),
		PipelineID: r.pipeline.ID,
		StartedAt:  r.now(),
		Status:     core.CycleStatusRunning,
	}

	logger := core.LoggerFromContextOr(ctx, r.logger).With("pipeline_id", cycle.PipelineID, "cycle_id", cycle.ID)
	ctx = core.WithCycle(ctx, cycle.PipelineID, cycle.ID)
	ctx = core.WithLogger(ctx, logger)

	ctx, span := r.tracer.Start(ctx, "relaypipe.cycle", trace.WithAttributes(
		attribute.String("relaypipe.pipeline_id", cycle.PipelineID),
		attribute.String("relaypipe.cycle_id", cycle.ID),
	))
	defer span.End()

	logger.Info("cycle started")
	err := r.execute(ctx, cycle)
	completedAt := r.now()
	cycle.CompletedAt = &completedAt

	counts := cycle.Counts()
	span.SetAttributes(
		attribute.Int("relaypipe.snapshot_size", cycle.SnapshotSize),
		attribute.Int("relaypipe.new_items", cycle.FilteredCount),
		attribute.Int("relaypipe.relayed", counts.Relayed),
		attribute.Int("relaypipe.failed", counts.Failed),
	)
	if err != nil {
		cycle.Status = core.CycleStatusFailed
		cycle.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("cycle failed", "error", err, "duration", completedAt.Sub(cycle.StartedAt))
	} else {
		cycle.Status = core.CycleStatusCompleted
		logger.Info("cycle completed",
			"snapshot_size", cycle.SnapshotSize,
			"new_items", cycle.FilteredCount,
			"relayed", counts.Relayed,
			"skipped_duplicate", counts.Skipped,
			"failed", counts.Failed,
			"duration", completedAt.Sub(cycle.StartedAt),
		)
	}

	r.finish(ctx, logger, cycle)
	return cycle, err
}

func (r *Runner) execute(ctx context.Context, cycle *core.Cycle) error {
	snapshot, err := r.source.Read(ctx)
	if err != nil {
		return err
	}
	cycle.SnapshotSize = len(snapshot)

	for _, rule := range r.pipeline.Rules {
		if rule == nil {
			continue
		}
		next, err := rule.Apply(ctx, snapshot)
		if err != nil {
			return fmt.Errorf("item rule %s: %w", rule.Name(), err)
		}
		snapshot = next
	}

	fresh, err := dedupe.Filter(ctx, snapshot, r.pipeline.Seen)
	if err != nil {
		return err
	}
	cycle.FilteredCount = len(fresh)
	if len(fresh) > 0 {
		cycle.Outcomes = r.sink.Relay(ctx, fresh)
	}
	r.prune(ctx)
	return nil
}

// prune drops expired seen records once this cycle's marks are written.
// A failure only delays reclaiming space.
func (r *Runner) prune(ctx context.Context) {
	pruner, ok := r.pipeline.Seen.(dedupe.Pruner)
	if !ok {
		return
	}
	logger := core.LoggerFromContext(ctx)
	n, err := pruner.Prune(ctx)
	if err != nil {
		logger.Warn("seen store prune failed", "error", err)
		return
	}
	if n > 0 {
		logger.Info("pruned expired seen records", "count", n)
	}
}

// finish records the cycle and runs the side effects that must never fail it.
func (r *Runner) finish(ctx context.Context, logger *slog.Logger, cycle *core.Cycle) {
	r.mu.Lock()
	r.lastCycle = cycle
	r.cyclesRun++
	r.mu.Unlock()

	for _, notifier := range r.pipeline.Notifiers {
		if notifier == nil {
			continue
		}
		if err := notifier.Notify(ctx, cycle); err != nil {
			logger.Warn("notification failed", "notifier", notifier.Name(), "error", err)
		}
	}

	if r.pipeline.ReportPath != "" {
		if err := report.Save(r.pipeline.ReportPath, cycle); err != nil {
			logger.Warn("failed to save cycle report", "path", r.pipeline.ReportPath, "error", err)
		}
	}
}

// LastCycle returns the most recently finished cycle, or nil.
func (r *Runner) LastCycle() *core.Cycle {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastCycle
}

func (r *Runner) CyclesRun() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cyclesRun
}

// IsSourceFailure reports whether a cycle error came from reading the sources.
func IsSourceFailure(err error) bool {
	return errors.Is(err, core.ErrSourceUnavailable)
}
