package trigger

import (
	"context"
	"fmt"
	"time"

	"github.com/bakkerme/relaypipe/internal/core"
	"github.com/robfig/cron/v3"
)

// CronProcessor fires on a standard five-field cron expression.
type CronProcessor struct {
	timer
	name     string
	schedule string
	timezone string
}

func NewCronProcessor(schedule, timezone string) *CronProcessor {
	return &CronProcessor{
		name:     "cron",
		schedule: schedule,
		timezone: timezone,
	}
}

func (c *CronProcessor) Name() string {
	return c.name
}

func (c *CronProcessor) Validate() error {
	if c.schedule == "" {
		return fmt.Errorf("cron schedule is required")
	}
	if _, err := cron.ParseStandard(c.schedule); err != nil {
		return fmt.Errorf("invalid cron schedule: %w", err)
	}
	if c.timezone != "" {
		if _, err := time.LoadLocation(c.timezone); err != nil {
			return fmt.Errorf("invalid timezone: %w", err)
		}
	}
	return nil
}

func (c *CronProcessor) Start(ctx context.Context, pipelineID string) (<-chan core.TriggerEvent, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	location := time.UTC
	if c.timezone != "" {
		tz, err := time.LoadLocation(c.timezone)
		if err != nil {
			return nil, err
		}
		location = tz
	}

	schedule, err := cron.ParseStandard(c.schedule)
	if err != nil {
		return nil, err
	}
	return c.start(ctx, pipelineID, schedule, location)
}

func (c *CronProcessor) Stop() error {
	return c.stop()
}
