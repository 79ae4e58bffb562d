package source

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bakkerme/relaypipe/internal/config"
	"github.com/bakkerme/relaypipe/internal/core"
	"github.com/bakkerme/relaypipe/internal/sources/rss"
	"github.com/bakkerme/relaypipe/internal/sources/rss/mock"
)

func TestRSSProcessorUsesLinkByDefault(t *testing.T) {
	fetcher := &mock.Fetcher{EntriesByFeed: map[string][]rss.Entry{
		"https://example.com/feed.xml": {
			{GUID: "1", Title: "First", Link: "https://example.com/1"},
			{GUID: "2", Title: "Second", Link: "https://example.com/2"},
			{GUID: "3", Title: "No link"},
		},
	}}
	processor, err := NewRSSProcessor(&config.RSSSource{Feeds: []string{"https://example.com/feed.xml"}}, fetcher)
	if err != nil {
		t.Fatalf("failed to create processor: %v", err)
	}
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	processor.now = func() time.Time { return fixed }

	snapshot, err := processor.Read(context.Background())
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(snapshot) != 2 {
		t.Fatalf("expected entries without a link to be skipped, got %d items", len(snapshot))
	}
	if snapshot[0].Value != "https://example.com/1" || snapshot[1].Value != "https://example.com/2" {
		t.Fatalf("unexpected values: %v", snapshot.IDs())
	}
	if snapshot[0].Source != "rss" || !snapshot[0].ReadAt.Equal(fixed) {
		t.Fatalf("unexpected item metadata: %+v", snapshot[0])
	}
}

func TestRSSProcessorFieldSelection(t *testing.T) {
	entry := rss.Entry{GUID: "guid-1", Title: " Title ", Link: "https://example.com/1", Summary: "Summary", Content: "<p><strong>Bold Text</strong></p>"}
	cases := []struct {
		field    string
		markdown bool
		want     string
	}{
		{"guid", false, "guid-1"},
		{"title", false, "Title"},
		{"content", false, "<p><strong>Bold Text</strong></p>"},
		{"content", true, "**Bold Text**"},
		{"LINK", false, "https://example.com/1"},
	}
	for _, tc := range cases {
		fetcher := &mock.Fetcher{EntriesByFeed: map[string][]rss.Entry{"feed": {entry}}}
		processor, err := NewRSSProcessor(&config.RSSSource{Feeds: []string{"feed"}, Field: tc.field, ConvertToMarkdown: tc.markdown}, fetcher)
		if err != nil {
			t.Fatalf("failed to create processor: %v", err)
		}
		snapshot, err := processor.Read(context.Background())
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		if len(snapshot) != 1 || snapshot[0].Value != tc.want {
			t.Fatalf("field %q (markdown=%v): got %v, want %q", tc.field, tc.markdown, snapshot.IDs(), tc.want)
		}
	}
}

func TestRSSProcessorKeepsDuplicateEntries(t *testing.T) {
	fetcher := &mock.Fetcher{EntriesByFeed: map[string][]rss.Entry{
		"a": {{Link: "https://example.com/same"}},
		"b": {{Link: "https://example.com/same"}},
	}}
	processor, _ := NewRSSProcessor(&config.RSSSource{Feeds: []string{"a", "b"}}, fetcher)
	snapshot, err := processor.Read(context.Background())
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if len(snapshot) != 2 {
		t.Fatalf("expected both copies in the snapshot, got %d", len(snapshot))
	}
}

func TestRSSProcessorFeedFailureIsSourceUnavailable(t *testing.T) {
	fetcher := &mock.Fetcher{
		EntriesByFeed: map[string][]rss.Entry{"ok": {{Link: "https://example.com/1"}}},
		ErrByFeed:   map[string]error{"down": errors.New("connection refused")},
	}
	processor, _ := NewRSSProcessor(&config.RSSSource{Feeds: []string{"ok", "down"}}, fetcher)
	_, err := processor.Read(context.Background())
	if !errors.Is(err, core.ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
}

func TestRSSProcessorFetchesFeedsInOrder(t *testing.T) {
	fetcher := &mock.Fetcher{EntriesByFeed: map[string][]rss.Entry{
		"a": {{Link: "https://example.com/a"}},
		"b": {{Link: "https://example.com/b"}},
	}}
	processor, _ := NewRSSProcessor(&config.RSSSource{Feeds: []string{"b", "a"}}, fetcher)
	snapshot, err := processor.Read(context.Background())
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	calls := fetcher.Calls()
	if len(calls) != 2 || calls[0] != "b" || calls[1] != "a" {
		t.Fatalf("unexpected fetch order %v", calls)
	}
	if snapshot[0].Value != "https://example.com/b" {
		t.Fatalf("expected feed order to be kept, got %v", snapshot.IDs())
	}
}

func TestRSSProcessorRejectsUnknownField(t *testing.T) {
	processor, _ := NewRSSProcessor(&config.RSSSource{Feeds: []string{"feed"}, Field: "author"}, &mock.Fetcher{})
	if err := processor.Validate(); err == nil {
		t.Fatalf("expected unknown field error")
	}
}

func TestRSSProcessorRequiresFetcher(t *testing.T) {
	processor, _ := NewRSSProcessor(&config.RSSSource{Feeds: []string{"feed"}}, nil)
	if _, err := processor.Read(context.Background()); err == nil {
		t.Fatalf("expected validation error without a fetcher")
	}
}
