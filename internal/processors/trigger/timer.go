package trigger

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bakkerme/relaypipe/internal/core"
	"github.com/robfig/cron/v3"
)

// timer runs a cron.Schedule and turns each firing into a TriggerEvent.
// Firings are never queued: when the previous event has not been received
// yet the new one is dropped and counted.
type timer struct {
	mu       sync.Mutex
	cron     *cron.Cron
	events   chan core.TriggerEvent
	stopOnce *sync.Once
	dropped  atomic.Int64
}

func (t *timer) start(ctx context.Context, pipelineID string, schedule cron.Schedule, location *time.Location) (<-chan core.TriggerEvent, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	events := make(chan core.TriggerEvent, 1)
	c := cron.New(cron.WithLocation(location))
	c.Schedule(schedule, cron.FuncJob(func() {
		select {
		case events <- core.TriggerEvent{PipelineID: pipelineID, Timestamp: time.Now().UTC()}:
		default:
			t.dropped.Add(1)
		}
	}))

	t.cron = c
	t.events = events
	t.stopOnce = &sync.Once{}
	t.dropped.Store(0)
	c.Start()

	stopOnce := t.stopOnce
	go func() {
		<-ctx.Done()
		t.stopWith(c, events, stopOnce)
	}()

	return events, nil
}

// stop halts the cron engine, waits for a running job and closes the channel.
func (t *timer) stop() error {
	t.mu.Lock()
	c, events, once := t.cron, t.events, t.stopOnce
	t.mu.Unlock()
	if c == nil {
		return nil
	}
	t.stopWith(c, events, once)
	return nil
}

func (t *timer) stopWith(c *cron.Cron, events chan core.TriggerEvent, once *sync.Once) {
	once.Do(func() {
		<-c.Stop().Done()
		close(events)
	})
}

// Dropped returns how many firings since the last start were discarded
// because the previous event was still pending.
func (t *timer) Dropped() int64 {
	return t.dropped.Load()
}
