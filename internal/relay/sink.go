package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/bakkerme/relaypipe/internal/core"
	"github.com/bakkerme/relaypipe/internal/dedupe"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const defaultMaxConcurrency = 4

// Sink writes new items to a remote store, checking the remote for an equal
// value before every write and recording settled items in the seen store.
type Sink struct {
	remote         core.RemoteStore
	seen           dedupe.SeenStore
	maxConcurrency int
	logger         *slog.Logger
	tracer         trace.Tracer
}

func NewSink(remote core.RemoteStore, seen dedupe.SeenStore, maxConcurrency int, logger *slog.Logger) (*Sink, error) {
	if remote == nil {
		return nil, fmt.Errorf("remote store is required")
	}
	if seen == nil {
		return nil, fmt.Errorf("seen store is required")
	}
	if maxConcurrency <= 0 {
		maxConcurrency = defaultMaxConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sink{
		remote:         remote,
		seen:           seen,
		maxConcurrency: maxConcurrency,
		logger:         logger,
		tracer:         otel.Tracer("github.com/bakkerme/relaypipe/internal/relay"),
	}, nil
}

// Relay returns one outcome per item, in input order.
//
// Items with different identities are processed concurrently. Copies of one
// identity run one after another in input order, so every copy after the
// first sees the earlier write in its remote check. Relay returns only after
// every item has settled.
func (s *Sink) Relay(ctx context.Context, items []core.Item) []core.Outcome {
	outcomes := make([]core.Outcome, len(items))
	if len(items) == 0 {
		return outcomes
	}
	logger := core.LoggerFromContextOr(ctx, s.logger)

	groups := groupByIdentity(items)

	if s.maxConcurrency <= 1 || len(groups) <= 1 {
		for _, group := range groups {
			s.relayGroup(ctx, logger, items, group, outcomes)
		}
		return outcomes
	}

	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup
	for _, group := range groups {
		group := group
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			s.relayGroup(ctx, logger, items, group, outcomes)
		}()
	}
	wg.Wait()
	return outcomes
}

// relayGroup settles every copy of one identity. Each goroutine writes only
// the outcome slots of its own group.
func (s *Sink) relayGroup(ctx context.Context, logger *slog.Logger, items []core.Item, group []int, outcomes []core.Outcome) {
	for _, idx := range group {
		outcomes[idx] = s.relayOne(ctx, logger, items[idx])
	}
}

func (s *Sink) relayOne(ctx context.Context, logger *slog.Logger, item core.Item) core.Outcome {
	_, cycleID := core.CycleFromContext(ctx)
	ctx, span := s.tracer.Start(ctx, "relaypipe.relay_item", trace.WithAttributes(
		attribute.String("relaypipe.cycle_id", cycleID),
		attribute.String("relaypipe.item.source", item.Source),
		attribute.Int("relaypipe.item.length", len(item.Value)),
	))
	defer span.End()

	outcome := s.settle(ctx, item)
	span.SetAttributes(attribute.String("relaypipe.outcome", string(outcome.Status)))
	switch outcome.Status {
	case core.OutcomeFailed:
		span.SetStatus(codes.Error, outcome.Reason)
		logger.Warn("relay failed", "source", item.Source, "error", outcome.Reason)
		return outcome
	case core.OutcomeRelayed:
		logger.Debug("item relayed", "source", item.Source, "key", outcome.Key)
	case core.OutcomeSkippedDuplicate:
		logger.Debug("item already present remotely", "source", item.Source)
	}

	if err := s.seen.MarkSeen(ctx, item.ID()); err != nil {
		// The remote check catches this item again next cycle.
		logger.Warn("failed to mark item as seen", "source", item.Source, "error", err)
	}
	return outcome
}

func (s *Sink) settle(ctx context.Context, item core.Item) core.Outcome {
	exists, err := s.remote.Exists(ctx, item.Value)
	if err != nil {
		return failed(item, fmt.Errorf("%w: %v", core.ErrRemoteQueryFailed, err))
	}
	if exists {
		return core.Outcome{Item: item, Status: core.OutcomeSkippedDuplicate}
	}

	key, err := s.remote.WriteNew(ctx, item.Value)
	if errors.Is(err, core.ErrAlreadyExists) {
		return core.Outcome{Item: item, Status: core.OutcomeSkippedDuplicate}
	}
	if err != nil {
		return failed(item, fmt.Errorf("%w: %v", core.ErrRemoteWriteFailed, err))
	}
	return core.Outcome{Item: item, Status: core.OutcomeRelayed, Key: key}
}

func failed(item core.Item, err error) core.Outcome {
	return core.Outcome{
		Item:   item,
		Status: core.OutcomeFailed,
		Reason: err.Error(),
		Err:    err,
	}
}

// groupByIdentity returns item positions grouped by identity, groups ordered
// by first appearance and positions ascending within each group.
func groupByIdentity(items []core.Item) [][]int {
	index := make(map[string]int, len(items))
	groups := make([][]int, 0, len(items))
	for i, item := range items {
		g, ok := index[item.ID()]
		if !ok {
			g = len(groups)
			index[item.ID()] = g
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], i)
	}
	return groups
}
