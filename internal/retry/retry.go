package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"
)

// Config bounds how often and how slowly a transient operation is retried.
// Zero values fall back to the package defaults.
type Config struct {
	Attempts  int
	BaseDelay time.Duration
	MaxDelay  time.Duration
	Jitter    time.Duration

	// OnRetry, when set, is called before each sleep with the failed attempt
	// number (starting at 1) and its error.
	OnRetry func(attempt int, err error)
}

const (
	defaultBaseDelay = 200 * time.Millisecond
	defaultMaxDelay  = 2 * time.Second
	defaultJitter    = 100 * time.Millisecond
)

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying. Do returns it immediately,
// unwrapped from the marker.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do runs fn until it succeeds, returns a Permanent error, the attempts are
// used up, or ctx is done.
func Do(ctx context.Context, config Config, fn func() error) error {
	config = config.withDefaults()

	var lastErr error
	for attempt := 1; attempt <= config.Attempts; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		var perm *permanentError
		if errors.As(err, &perm) {
			return perm.err
		}
		lastErr = err
		if attempt == config.Attempts {
			break
		}
		if config.OnRetry != nil {
			config.OnRetry(attempt, err)
		}
		timer := time.NewTimer(config.backoff(attempt))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	if config.Attempts == 1 {
		return lastErr
	}
	return fmt.Errorf("after %d attempts: %w", config.Attempts, lastErr)
}

func (c Config) withDefaults() Config {
	if c.Attempts <= 0 {
		c.Attempts = 1
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = defaultBaseDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = defaultMaxDelay
	}
	if c.Jitter <= 0 {
		c.Jitter = defaultJitter
	}
	return c
}

// backoff doubles the base delay per failed attempt, adds jitter and caps the
// result at MaxDelay.
func (c Config) backoff(attempt int) time.Duration {
	delay := c.BaseDelay
	for i := 1; i < attempt && delay < c.MaxDelay; i++ {
		delay *= 2
	}
	delay += time.Duration(rand.Int63n(int64(c.Jitter)))
	if delay > c.MaxDelay {
		delay = c.MaxDelay
	}
	return delay
}
