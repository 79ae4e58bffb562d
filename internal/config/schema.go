package config

import (
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/bakkerme/relaypipe/internal/core"
)

// PipelineDocument represents the top-level structure of a relaypipe.yaml file
type PipelineDocument struct {
	Pipeline Pipeline `yaml:"pipeline"`
}

// Pipeline contains the complete pipeline configuration
// Interval accepts Go durations plus d/w units.
type Pipeline struct {
	Name                     string         `yaml:"name"`
	Interval                 string         `yaml:"interval,omitempty"`
	Cron                     *CronTrigger   `yaml:"cron,omitempty"`
	MaxConcurrency           int            `yaml:"max_concurrency,omitempty"`
	AllowPartialSourceErrors bool           `yaml:"allow_partial_source_errors,omitempty"`
	Sources                  []SourceConfig `yaml:"sources"`
	Rules                    []ItemRule     `yaml:"rules,omitempty"`
	SeenStore                SeenStore      `yaml:"seen_store"`
	Remote                   Remote         `yaml:"remote"`
	Notify                   []NotifyConfig `yaml:"notify,omitempty"`
	Report                   *Report        `yaml:"report,omitempty"`
	Status                   *Status        `yaml:"status,omitempty"`
}

// CronTrigger schedules cycles with a cron expression instead of a fixed interval
type CronTrigger struct {
	Schedule string `yaml:"schedule"`
	Timezone string `yaml:"timezone,omitempty"`
}

// SourceConfig wraps different source types
type SourceConfig struct {
	SQLite *SQLiteSource `yaml:"sqlite,omitempty"`
	RSS    *RSSSource    `yaml:"rss,omitempty"`
	File   *FileSource   `yaml:"file,omitempty"`
}

// SQLiteSource reads one text column from each listed table
type SQLiteSource struct {
	Name    string       `yaml:"name,omitempty"`
	DSN     string       `yaml:"dsn"`
	Queries []TableQuery `yaml:"queries"`
}

type TableQuery struct {
	Table  string `yaml:"table"`
	Column string `yaml:"column"`
}

// RSSSource defines RSS/Atom feed configuration
// Field selects the entry field used as the item value: link, guid, title or content.
// ConvertToMarkdown normalises HTML content values to Markdown.
type RSSSource struct {
	Name              string   `yaml:"name,omitempty"`
	Feeds             []string `yaml:"feeds"`
	Limit             int      `yaml:"limit,omitempty"`
	Field             string   `yaml:"field,omitempty"`
	ConvertToMarkdown bool     `yaml:"convert_to_markdown,omitempty"`
	UserAgent         string   `yaml:"user_agent,omitempty"`
}

// FileSource reads one item per non-empty line
type FileSource struct {
	Name string `yaml:"name,omitempty"`
	Path string `yaml:"path"`
}

// ItemRule drops snapshot items matching an expr expression
// Result is "drop" (drop matches) or "keep" (keep only matches)
type ItemRule struct {
	Name   string `yaml:"name"`
	Rule   string `yaml:"rule"`
	Result string `yaml:"result"`
}

// SeenStore selects exactly one seen-store backend
type SeenStore struct {
	Memory *MemorySeenStore `yaml:"memory,omitempty"`
	SQLite *SQLiteSeenStore `yaml:"sqlite,omitempty"`
	Badger *BadgerSeenStore `yaml:"badger,omitempty"`
}

type MemorySeenStore struct{}

// TTL expires identities; empty keeps them forever.
type SQLiteSeenStore struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table,omitempty"`
	TTL   string `yaml:"ttl,omitempty"`
}

type BadgerSeenStore struct {
	Path string `yaml:"path"`
}

// Remote selects exactly one remote store backend
type Remote struct {
	Memory   *MemoryRemote   `yaml:"memory,omitempty"`
	Postgres *PostgresRemote `yaml:"postgres,omitempty"`
}

type MemoryRemote struct{}

type PostgresRemote struct {
	DSN           string `yaml:"dsn"`
	Table         string `yaml:"table,omitempty"`
	RetryAttempts int    `yaml:"retry_attempts,omitempty"`
}

type NotifyConfig struct {
	Email *EmailNotify `yaml:"email,omitempty"`
}

// EmailNotify sends a digest of a cycle's outcomes. Template is a Markdown
// text/template rendered with the cycle.
type EmailNotify struct {
	Template     string `yaml:"template,omitempty"`
	To           string `yaml:"to"`
	From         string `yaml:"from,omitempty"`
	Subject      string `yaml:"subject"`
	On           string `yaml:"on,omitempty"`
	SMTPHost     string `yaml:"smtp_host,omitempty"`
	SMTPPort     int    `yaml:"smtp_port,omitempty"`
	SMTPUser     string `yaml:"smtp_user,omitempty"`
	SMTPPassword string `yaml:"smtp_password,omitempty"`
	TLSMode      string `yaml:"tls_mode,omitempty"`
}

const (
	NotifyOnRelayed = "relayed"
	NotifyOnFailure = "failure"
	NotifyOnAlways  = "always"
)

type Report struct {
	Path string `yaml:"path"`
}

type Status struct {
	Addr string `yaml:"addr"`
}

// ProcessorFactory constructs concrete components for a parsed document.
type ProcessorFactory interface {
	NewIntervalTrigger(interval time.Duration) (core.TriggerProcessor, error)
	NewCronTrigger(config *CronTrigger) (core.TriggerProcessor, error)
	NewSQLiteSource(config *SQLiteSource) (core.SourceReader, error)
	NewRSSSource(config *RSSSource) (core.SourceReader, error)
	NewFileSource(config *FileSource) (core.SourceReader, error)
	NewItemRule(config *ItemRule) (core.ItemRule, error)
	NewSeenStore(config *SeenStore) (core.SeenStore, error)
	NewRemoteStore(config *Remote) (core.RemoteStore, error)
	NewEmailNotifier(config *EmailNotify) (core.Notifier, error)
}

// Validate performs validation on the pipeline document
func (d *PipelineDocument) Validate() error {
	p := d.Pipeline
	if p.Name == "" {
		return fmt.Errorf("pipeline name is required")
	}

	if p.Interval == "" && p.Cron == nil {
		return fmt.Errorf("pipeline interval or cron schedule is required")
	}
	if p.Interval != "" && p.Cron != nil {
		return fmt.Errorf("pipeline interval and cron schedule are mutually exclusive")
	}
	if p.Interval != "" {
		interval, err := parseDurationExtended(p.Interval)
		if err != nil {
			return fmt.Errorf("pipeline interval: %w", err)
		}
		if interval <= 0 {
			return fmt.Errorf("pipeline interval must be positive")
		}
	}
	if p.Cron != nil && p.Cron.Schedule == "" {
		return fmt.Errorf("pipeline cron: schedule is required")
	}
	if p.MaxConcurrency < 0 {
		return fmt.Errorf("pipeline max_concurrency must be >= 0")
	}

	if len(p.Sources) == 0 {
		return fmt.Errorf("at least one source is required")
	}
	for i, source := range p.Sources {
		if countSet(source.SQLite != nil, source.RSS != nil, source.File != nil) != 1 {
			return fmt.Errorf("source %d: exactly one source type is required", i)
		}
		if source.SQLite != nil {
			if source.SQLite.DSN == "" {
				return fmt.Errorf("source %d sqlite: dsn is required", i)
			}
			if len(source.SQLite.Queries) == 0 {
				return fmt.Errorf("source %d sqlite: at least one query is required", i)
			}
			for j, q := range source.SQLite.Queries {
				if q.Table == "" || q.Column == "" {
					return fmt.Errorf("source %d sqlite query %d: table and column are required", i, j)
				}
			}
		}
		if source.RSS != nil {
			if len(source.RSS.Feeds) == 0 {
				return fmt.Errorf("source %d rss: at least one feed is required", i)
			}
			switch strings.ToLower(source.RSS.Field) {
			case "", "link", "guid", "title", "content":
			default:
				return fmt.Errorf("source %d rss: field must be one of link, guid, title, content", i)
			}
		}
		if source.File != nil && source.File.Path == "" {
			return fmt.Errorf("source %d file: path is required", i)
		}
	}

	for i, rule := range p.Rules {
		if rule.Name == "" || rule.Rule == "" {
			return fmt.Errorf("rule %d: name and rule expression are required", i)
		}
		if rule.Result != "drop" && rule.Result != "keep" {
			return fmt.Errorf("rule %d: result must be 'drop' or 'keep'", i)
		}
	}

	seen := p.SeenStore
	if countSet(seen.Memory != nil, seen.SQLite != nil, seen.Badger != nil) != 1 {
		return fmt.Errorf("seen_store: exactly one backend is required")
	}
	if seen.SQLite != nil {
		if seen.SQLite.DSN == "" {
			return fmt.Errorf("seen_store sqlite: dsn is required")
		}
		if seen.SQLite.TTL != "" {
			if _, err := parseDurationExtended(seen.SQLite.TTL); err != nil {
				return fmt.Errorf("seen_store sqlite ttl: %w", err)
			}
		}
	}
	if seen.Badger != nil && seen.Badger.Path == "" {
		return fmt.Errorf("seen_store badger: path is required")
	}

	remote := p.Remote
	if countSet(remote.Memory != nil, remote.Postgres != nil) != 1 {
		return fmt.Errorf("remote: exactly one backend is required")
	}
	if remote.Postgres != nil && remote.Postgres.DSN == "" {
		return fmt.Errorf("remote postgres: dsn is required")
	}

	for i, notify := range p.Notify {
		if notify.Email == nil {
			return fmt.Errorf("notify %d: unsupported notifier type", i)
		}
		email := notify.Email
		if email.To == "" || email.Subject == "" {
			return fmt.Errorf("notify %d email: to and subject are required", i)
		}
		if _, err := mail.ParseAddress(email.To); err != nil {
			return fmt.Errorf("notify %d email: invalid to address", i)
		}
		if email.From != "" { // From is optional, but if provided must be valid
			if _, err := mail.ParseAddress(email.From); err != nil {
				return fmt.Errorf("notify %d email: invalid from address", i)
			}
		}
		switch email.On {
		case "", NotifyOnRelayed, NotifyOnFailure, NotifyOnAlways:
		default:
			return fmt.Errorf("notify %d email: on must be relayed, failure or always", i)
		}
	}

	if p.Report != nil && p.Report.Path == "" {
		return fmt.Errorf("report: path is required")
	}
	if p.Status != nil && p.Status.Addr == "" {
		return fmt.Errorf("status: addr is required")
	}
	return nil
}

// IntervalDuration returns the parsed cycle interval, or zero when a cron schedule is used.
func (d *PipelineDocument) IntervalDuration() (time.Duration, error) {
	if d.Pipeline.Interval == "" {
		return 0, nil
	}
	return parseDurationExtended(d.Pipeline.Interval)
}

// SQLiteTTL returns the parsed seen-store ttl; zero means never expire.
func (s *SQLiteSeenStore) SQLiteTTL() (time.Duration, error) {
	if s == nil || s.TTL == "" {
		return 0, nil
	}
	return parseDurationExtended(s.TTL)
}

// ParseToPipelineWithFactory validates the document and builds every component through the factory.
func (d *PipelineDocument) ParseToPipelineWithFactory(factory ProcessorFactory) (*core.Pipeline, error) {
	if factory == nil {
		return nil, fmt.Errorf("processor factory is required")
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	p := d.Pipeline
	interval, err := d.IntervalDuration()
	if err != nil {
		return nil, err
	}

	pipeline := &core.Pipeline{
		Name:                     p.Name,
		Interval:                 interval,
		MaxConcurrency:           p.MaxConcurrency,
		AllowPartialSourceErrors: p.AllowPartialSourceErrors,
	}
	if p.Report != nil {
		pipeline.ReportPath = p.Report.Path
	}
	if p.Status != nil {
		pipeline.StatusAddr = p.Status.Addr
	}

	if p.Cron != nil {
		pipeline.Trigger, err = factory.NewCronTrigger(p.Cron)
	} else {
		pipeline.Trigger, err = factory.NewIntervalTrigger(interval)
	}
	if err != nil {
		return nil, fmt.Errorf("trigger: %w", err)
	}

	for i := range p.Sources {
		source := p.Sources[i]
		var reader core.SourceReader
		switch {
		case source.SQLite != nil:
			reader, err = factory.NewSQLiteSource(source.SQLite)
		case source.RSS != nil:
			reader, err = factory.NewRSSSource(source.RSS)
		case source.File != nil:
			reader, err = factory.NewFileSource(source.File)
		}
		if err != nil {
			return nil, fmt.Errorf("source %d: %w", i, err)
		}
		pipeline.Sources = append(pipeline.Sources, reader)
	}

	for i := range p.Rules {
		rule, err := factory.NewItemRule(&p.Rules[i])
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
		pipeline.Rules = append(pipeline.Rules, rule)
	}

	for i := range p.Notify {
		notifier, err := factory.NewEmailNotifier(p.Notify[i].Email)
		if err != nil {
			return nil, fmt.Errorf("notify %d: %w", i, err)
		}
		pipeline.Notifiers = append(pipeline.Notifiers, notifier)
	}

	pipeline.Seen, err = factory.NewSeenStore(&p.SeenStore)
	if err != nil {
		return nil, fmt.Errorf("seen_store: %w", err)
	}
	pipeline.Remote, err = factory.NewRemoteStore(&p.Remote)
	if err != nil {
		_ = pipeline.Seen.Close()
		return nil, fmt.Errorf("remote: %w", err)
	}
	return pipeline, nil
}

func countSet(values ...bool) int {
	n := 0
	for _, v := range values {
		if v {
			n++
		}
	}
	return n
}
