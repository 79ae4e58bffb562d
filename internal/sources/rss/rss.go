package rss

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Fields an Entry can be keyed on.
const (
	FieldLink    = "link"
	FieldGUID    = "guid"
	FieldTitle   = "title"
	FieldContent = "content"
)

// FetchOptions controls RSS fetch behavior.
type FetchOptions struct {
	Limit     int
	UserAgent string
}

// Entry is a feed entry reduced to the fields a pipeline can key items on.
type Entry struct {
	GUID      string
	Title     string
	Link      string
	Summary   string
	Content   string
	Published time.Time
}

// Fetcher fetches and parses RSS/Atom feeds.
type Fetcher interface {
	Fetch(ctx context.Context, feedURL string, options FetchOptions) ([]Entry, error)
}

// ValidField reports whether name selects a known entry field. Empty means
// the link.
func ValidField(name string) bool {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", FieldLink, FieldGUID, FieldTitle, FieldContent:
		return true
	}
	return false
}

// Value returns the entry's value for field. A missing GUID falls back to
// the link and missing content falls back to the summary. With markdown set
// HTML content is converted to Markdown.
func (e Entry) Value(field string, markdown bool) (string, error) {
	switch strings.ToLower(strings.TrimSpace(field)) {
	case "", FieldLink:
		return strings.TrimSpace(e.Link), nil
	case FieldGUID:
		if guid := strings.TrimSpace(e.GUID); guid != "" {
			return guid, nil
		}
		return strings.TrimSpace(e.Link), nil
	case FieldTitle:
		return strings.TrimSpace(e.Title), nil
	case FieldContent:
		content := e.Content
		if content == "" {
			content = e.Summary
		}
		if markdown {
			return HTMLToMarkdown(content)
		}
		return content, nil
	default:
		return "", fmt.Errorf("unknown rss field %q", field)
	}
}
