package mock

import (
	"context"
	"sync"

	"github.com/bakkerme/relaypipe/internal/sources/rss"
)

// Fetcher serves canned entries per feed URL and records every call.
type Fetcher struct {
	EntriesByFeed map[string][]rss.Entry
	ErrByFeed     map[string]error

	mu    sync.Mutex
	calls []string
}

func (f *Fetcher) Fetch(ctx context.Context, feedURL string, options rss.FetchOptions) ([]rss.Entry, error) {
	f.mu.Lock()
	f.calls = append(f.calls, feedURL)
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err, ok := f.ErrByFeed[feedURL]; ok {
		return nil, err
	}
	entries := f.EntriesByFeed[feedURL]
	if options.Limit > 0 && len(entries) > options.Limit {
		return entries[:options.Limit], nil
	}
	return entries, nil
}

// Calls returns the feed URLs fetched so far, in order.
func (f *Fetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}
