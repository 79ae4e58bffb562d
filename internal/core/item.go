package core

import "time"

// Item is a single relayable record read from a source.
// Its identity is its Value; Source and ReadAt are informational only.
type Item struct {
	Value  string    `json:"value" yaml:"value"`
	Source string    `json:"source,omitempty" yaml:"source,omitempty"`
	ReadAt time.Time `json:"read_at" yaml:"read_at"`
}

// ID returns the content-derived identity of the item.
func (i Item) ID() string {
	return i.Value
}

// Snapshot is the ordered set of items read from the sources in one cycle.
// It may contain the same identity more than once.
type Snapshot []Item

// IDs returns the identities of the snapshot in order.
func (s Snapshot) IDs() []string {
	ids := make([]string, 0, len(s))
	for _, item := range s {
		ids = append(ids, item.ID())
	}
	return ids
}

// OutcomeStatus is the terminal state of a single relay attempt.
type OutcomeStatus string

const (
	OutcomeRelayed          OutcomeStatus = "relayed"
	OutcomeSkippedDuplicate OutcomeStatus = "skipped-duplicate"
	OutcomeFailed           OutcomeStatus = "failed"
)

// Outcome records what happened to one item handed to the relay sink.
type Outcome struct {
	Item   Item          `json:"item" yaml:"item"`
	Status OutcomeStatus `json:"status" yaml:"status"`
	// Key is the remote identifier assigned on a successful write.
	Key    string `json:"key,omitempty" yaml:"key,omitempty"`
	Reason string `json:"reason,omitempty" yaml:"reason,omitempty"`
	Err    error  `json:"-" yaml:"-"`
}

// CycleStatus represents the current state of a cycle
type CycleStatus string

const (
	CycleStatusRunning   CycleStatus = "running"
	CycleStatusCompleted CycleStatus = "completed"
	CycleStatusFailed    CycleStatus = "failed"
)

// Cycle represents a single read-filter-relay pass of a pipeline
type Cycle struct {
	ID            string      `json:"id" yaml:"id"`
	PipelineID    string      `json:"pipeline_id" yaml:"pipeline_id"`
	StartedAt     time.Time   `json:"started_at" yaml:"started_at"`
	CompletedAt   *time.Time  `json:"completed_at,omitempty" yaml:"completed_at,omitempty"`
	Status        CycleStatus `json:"status" yaml:"status"`
	SnapshotSize  int         `json:"snapshot_size" yaml:"snapshot_size"`
	FilteredCount int         `json:"filtered_count" yaml:"filtered_count"`
	Outcomes      []Outcome   `json:"outcomes,omitempty" yaml:"outcomes,omitempty"`
	Error         string      `json:"error,omitempty" yaml:"error,omitempty"`
}

// CycleCounts tallies outcomes by status.
type CycleCounts struct {
	Relayed int `json:"relayed"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

func (c *Cycle) Counts() CycleCounts {
	var counts CycleCounts
	if c == nil {
		return counts
	}
	for _, outcome := range c.Outcomes {
		switch outcome.Status {
		case OutcomeRelayed:
			counts.Relayed++
		case OutcomeSkippedDuplicate:
			counts.Skipped++
		case OutcomeFailed:
			counts.Failed++
		}
	}
	return counts
}
