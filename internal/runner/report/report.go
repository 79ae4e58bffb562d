package report

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bakkerme/relaypipe/internal/core"
)

// Payload is the on-disk form of the last cycle report.
type Payload struct {
	Cycle  *core.Cycle      `json:"cycle"`
	Counts core.CycleCounts `json:"counts"`
}

// Save writes the cycle as JSON. The file is replaced atomically so readers
// never observe a partial report.
func Save(path string, cycle *core.Cycle) error {
	if path == "" {
		return fmt.Errorf("report path is required")
	}
	if cycle == nil {
		return fmt.Errorf("cycle is required")
	}
	dir := filepath.Dir(path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create report directory: %w", err)
		}
	}
	payload := Payload{
		Cycle:  cycle,
		Counts: cycle.Counts(),
	}
	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create report temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace report: %w", err)
	}
	return nil
}

func Load(path string) (*Payload, error) {
	if path == "" {
		return nil, fmt.Errorf("report path is required")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	var payload Payload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, fmt.Errorf("unmarshal report: %w", err)
	}
	if payload.Cycle == nil {
		return nil, fmt.Errorf("report %s has no cycle", path)
	}
	return &payload, nil
}
