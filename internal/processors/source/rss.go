package source

import (
	"context"
	"fmt"
	"time"

	"github.com/bakkerme/relaypipe/internal/config"
	"github.com/bakkerme/relaypipe/internal/core"
	"github.com/bakkerme/relaypipe/internal/sources/rss"
)

// RSSProcessor turns feed entries into items, one per entry, using the
// configured field as the item value.
type RSSProcessor struct {
	name    string
	config  config.RSSSource
	fetcher rss.Fetcher
	now     func() time.Time
}

func NewRSSProcessor(cfg *config.RSSSource, fetcher rss.Fetcher) (*RSSProcessor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("rss config is required")
	}
	name := cfg.Name
	if name == "" {
		name = "rss"
	}
	return &RSSProcessor{
		name:    name,
		config:  *cfg,
		fetcher: fetcher,
		now:     func() time.Time { return time.Now().UTC() },
	}, nil
}

func (p *RSSProcessor) Name() string {
	return p.name
}

func (p *RSSProcessor) Validate() error {
	if len(p.config.Feeds) == 0 {
		return fmt.Errorf("at least one rss feed is required")
	}
	if p.fetcher == nil {
		return fmt.Errorf("rss fetcher is required")
	}
	if !rss.ValidField(p.config.Field) {
		return fmt.Errorf("unknown rss field %q", p.config.Field)
	}
	return nil
}

// Read fetches every configured feed in order. Any feed failure makes the
// whole source unavailable for this cycle.
func (p *RSSProcessor) Read(ctx context.Context) (core.Snapshot, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	options := rss.FetchOptions{
		Limit:     p.config.Limit,
		UserAgent: p.config.UserAgent,
	}
	readAt := p.now()

	snapshot := core.Snapshot{}
	for _, feedURL := range p.config.Feeds {
		entries, err := p.fetcher.Fetch(ctx, feedURL, options)
		if err != nil {
			return nil, fmt.Errorf("%w: rss feed %s: %v", core.ErrSourceUnavailable, feedURL, err)
		}
		for _, entry := range entries {
			value, err := entry.Value(p.config.Field, p.config.ConvertToMarkdown)
			if err != nil {
				return nil, fmt.Errorf("rss feed %s: %w", feedURL, err)
			}
			if value == "" {
				continue
			}
			snapshot = append(snapshot, core.Item{Value: value, Source: p.name, ReadAt: readAt})
		}
	}
	return snapshot, nil
}
