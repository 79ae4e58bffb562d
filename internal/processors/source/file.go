package source

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/bakkerme/relaypipe/internal/config"
	"github.com/bakkerme/relaypipe/internal/core"
)

const maxFileLineBytes = 1024 * 1024

// FileProcessor reads a newline-delimited text file, one item per non-empty line.
type FileProcessor struct {
	name string
	path string
	now  func() time.Time
}

func NewFileProcessor(cfg *config.FileSource) (*FileProcessor, error) {
	if cfg == nil || cfg.Path == "" {
		return nil, fmt.Errorf("file source path is required")
	}
	name := cfg.Name
	if name == "" {
		name = "file"
	}
	return &FileProcessor{
		name: name,
		path: cfg.Path,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

func (p *FileProcessor) Name() string {
	return p.name
}

func (p *FileProcessor) Read(ctx context.Context) (core.Snapshot, error) {
	f, err := os.Open(p.path)
	if err != nil {
		return nil, fmt.Errorf("%w: file %s: %v", core.ErrSourceUnavailable, p.name, err)
	}
	defer f.Close()

	readAt := p.now()
	snapshot := core.Snapshot{}
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxFileLineBytes)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		snapshot = append(snapshot, core.Item{Value: line, Source: p.name, ReadAt: readAt})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: file %s: %v", core.ErrSourceUnavailable, p.name, err)
	}
	return snapshot, nil
}
