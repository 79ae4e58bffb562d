package source

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/bakkerme/relaypipe/internal/config"
	"github.com/bakkerme/relaypipe/internal/core"
)

func TestFileProcessorReadsNonEmptyLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "items.txt")
	if err := os.WriteFile(path, []byte("hello\r\n\nworld\n   \nhello\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	processor, err := NewFileProcessor(&config.FileSource{Path: path})
	if err != nil {
		t.Fatalf("failed to create processor: %v", err)
	}
	snapshot, err := processor.Read(context.Background())
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	got := snapshot.IDs()
	if len(got) != 3 || got[0] != "hello" || got[1] != "world" || got[2] != "hello" {
		t.Fatalf("unexpected values: %q", got)
	}
}

func TestFileProcessorMissingFile(t *testing.T) {
	processor, _ := NewFileProcessor(&config.FileSource{Path: filepath.Join(t.TempDir(), "nope.txt")})
	_, err := processor.Read(context.Background())
	if !errors.Is(err, core.ErrSourceUnavailable) {
		t.Fatalf("expected ErrSourceUnavailable, got %v", err)
	}
}

func TestFileProcessorEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.txt")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	processor, _ := NewFileProcessor(&config.FileSource{Path: path})
	snapshot, err := processor.Read(context.Background())
	if err != nil || len(snapshot) != 0 {
		t.Fatalf("expected empty snapshot, got %v, %v", snapshot, err)
	}
}
