package core

import (
	"context"
	"time"
)

// SourceReader produces the current full snapshot of a local data source.
type SourceReader interface {
	// Name returns the source name used in logs and on items
	Name() string
	// Read returns every item currently in the source. An empty source yields
	// an empty snapshot; an unreadable one an error wrapping ErrSourceUnavailable.
	Read(ctx context.Context) (Snapshot, error)
}

// RemoteStore is the destination items are relayed to.
// Transport, auth and transport-level retries belong to the implementation.
type RemoteStore interface {
	// Exists reports whether an entry with an equal value is already stored
	Exists(ctx context.Context, value string) (bool, error)
	// WriteNew stores value under a freshly generated key and returns the key
	WriteNew(ctx context.Context, value string) (string, error)
	Close() error
}

// Notifier is told about every finished cycle
type Notifier interface {
	Name() string
	Notify(ctx context.Context, cycle *Cycle) error
}

// TriggerEvent represents a trigger firing
type TriggerEvent struct {
	PipelineID string
	Timestamp  time.Time
}

// TriggerProcessor defines when cycles run
type TriggerProcessor interface {
	Name() string
	Validate() error
	// Start begins the trigger and returns a channel of trigger events.
	// The channel is closed once the trigger has stopped.
	Start(ctx context.Context, pipelineID string) (<-chan TriggerEvent, error)
	// Stop shuts down the trigger and waits for its timer goroutine to exit
	Stop() error
}

// SeenStore tracks the identities of items already relayed.
// There is deliberately no delete: the record only grows.
type SeenStore interface {
	HasSeen(ctx context.Context, id string) (bool, error)
	// MarkSeen is idempotent and must be safe for concurrent use
	MarkSeen(ctx context.Context, id string) error
	Close() error
}

// ItemRule drops items from a snapshot before deduplication
type ItemRule interface {
	Name() string
	Apply(ctx context.Context, snapshot Snapshot) (Snapshot, error)
}
