package impl

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bakkerme/relaypipe/internal/retry"
	"github.com/bakkerme/relaypipe/internal/sources/rss"
	"github.com/mmcdole/gofeed"
)

// Fetcher reads feeds over HTTP with gofeed, retrying transient failures.
type Fetcher struct {
	client    *http.Client
	userAgent string
	retry     retry.Config
}

func NewFetcher(timeout time.Duration, userAgent string) *Fetcher {
	return &Fetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
		retry:     retry.Config{Attempts: 3, BaseDelay: 200 * time.Millisecond},
	}
}

func (f *Fetcher) Fetch(ctx context.Context, feedURL string, options rss.FetchOptions) ([]rss.Entry, error) {
	parser := gofeed.NewParser()
	parser.Client = f.client
	parser.UserAgent = f.userAgent
	if options.UserAgent != "" {
		parser.UserAgent = options.UserAgent
	}

	var feed *gofeed.Feed
	err := retry.Do(ctx, f.retry, func() error {
		parsed, err := parser.ParseURLWithContext(feedURL, ctx)
		if err != nil {
			var httpErr gofeed.HTTPError
			if errors.As(err, &httpErr) && httpErr.StatusCode >= 400 && httpErr.StatusCode < 500 {
				return retry.Permanent(err)
			}
			return err
		}
		feed = parsed
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	return entriesOf(feed, options.Limit), nil
}

func entriesOf(feed *gofeed.Feed, limit int) []rss.Entry {
	if limit <= 0 || limit > len(feed.Items) {
		limit = len(feed.Items)
	}
	entries := make([]rss.Entry, 0, limit)
	for _, item := range feed.Items[:limit] {
		if item == nil {
			continue
		}
		entry := rss.Entry{
			GUID:    item.GUID,
			Title:   item.Title,
			Link:    item.Link,
			Summary: item.Description,
			Content: item.Content,
		}
		switch {
		case item.PublishedParsed != nil:
			entry.Published = *item.PublishedParsed
		case item.UpdatedParsed != nil:
			entry.Published = *item.UpdatedParsed
		}
		entries = append(entries, entry)
	}
	return entries
}
