package core

import "time"

// Pipeline is the runtime form of a parsed pipeline document: every
// component the runner and scheduler need, already constructed.
type Pipeline struct {
	ID                       string
	Name                     string
	Interval                 time.Duration
	MaxConcurrency           int
	AllowPartialSourceErrors bool
	// Trigger replaces the fixed interval when set (cron schedules)
	Trigger    TriggerProcessor
	Sources    []SourceReader
	Rules      []ItemRule
	Seen       SeenStore
	Remote     RemoteStore
	Notifiers  []Notifier
	ReportPath string
	StatusAddr string
}

// Close releases the stores owned by the pipeline.
func (p *Pipeline) Close() error {
	if p == nil {
		return nil
	}
	var firstErr error
	if p.Seen != nil {
		if err := p.Seen.Close(); err != nil {
			firstErr = err
		}
	}
	if p.Remote != nil {
		if err := p.Remote.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
