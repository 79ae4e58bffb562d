package trigger

import (
	"context"
	"fmt"
	"time"

	"github.com/bakkerme/relaypipe/internal/core"
)

// intervalSchedule is a cron.Schedule with a constant period. Unlike
// cron.Every it is not rounded to whole seconds.
type intervalSchedule struct {
	period time.Duration
}

func (s intervalSchedule) Next(t time.Time) time.Time {
	return t.Add(s.period)
}

// IntervalProcessor fires every interval, the first time one interval after Start.
type IntervalProcessor struct {
	timer
	interval time.Duration
}

func NewIntervalProcessor(interval time.Duration) *IntervalProcessor {
	return &IntervalProcessor{interval: interval}
}

func (p *IntervalProcessor) Name() string {
	return "interval"
}

func (p *IntervalProcessor) Validate() error {
	if p.interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", p.interval)
	}
	return nil
}

func (p *IntervalProcessor) Start(ctx context.Context, pipelineID string) (<-chan core.TriggerEvent, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p.start(ctx, pipelineID, intervalSchedule{period: p.interval}, time.UTC)
}

func (p *IntervalProcessor) Stop() error {
	return p.stop()
}
