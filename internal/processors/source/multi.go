package source

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/bakkerme/relaypipe/internal/core"
)

// Multi composes several sources into one snapshot, in source order.
type Multi struct {
	sources      []core.SourceReader
	allowPartial bool
	logger       *slog.Logger
}

func NewMulti(sources []core.SourceReader, allowPartial bool, logger *slog.Logger) *Multi {
	return &Multi{sources: sources, allowPartial: allowPartial, logger: logger}
}

func (m *Multi) Name() string {
	return "multi"
}

// Read returns the concatenated snapshots. When partial errors are allowed a
// failing source is logged and skipped, unless every source failed.
func (m *Multi) Read(ctx context.Context) (core.Snapshot, error) {
	logger := core.LoggerFromContextOr(ctx, m.logger)

	snapshot := core.Snapshot{}
	var errs []error
	for _, source := range m.sources {
		items, err := source.Read(ctx)
		if err != nil {
			if !m.allowPartial {
				return nil, wrapUnavailable(source.Name(), err)
			}
			logger.Warn("source read failed", "source", source.Name(), "error", err)
			errs = append(errs, wrapUnavailable(source.Name(), err))
			continue
		}
		snapshot = append(snapshot, items...)
	}
	if len(m.sources) > 0 && len(errs) == len(m.sources) {
		return nil, errors.Join(errs...)
	}
	return snapshot, nil
}

func wrapUnavailable(name string, err error) error {
	if errors.Is(err, core.ErrSourceUnavailable) {
		return fmt.Errorf("source %s: %w", name, err)
	}
	return fmt.Errorf("source %s: %w: %w", name, core.ErrSourceUnavailable, err)
}
