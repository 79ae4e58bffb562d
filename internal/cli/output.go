package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"

	"github.com/bakkerme/relaypipe/internal/core"
)

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	errColor  = color.New(color.FgRed)
	dimColor  = color.New(color.Faint)
)

func statusLabel(status core.OutcomeStatus) string {
	switch status {
	case core.OutcomeRelayed:
		return okColor.Sprint("relayed")
	case core.OutcomeSkippedDuplicate:
		return warnColor.Sprint("skipped")
	default:
		return errColor.Sprint("failed")
	}
}

func cycleLabel(status core.CycleStatus) string {
	switch status {
	case core.CycleStatusCompleted:
		return okColor.Sprint(string(status))
	case core.CycleStatusFailed:
		return errColor.Sprint(string(status))
	default:
		return warnColor.Sprint(string(status))
	}
}

// printCycle writes a human readable cycle summary followed by one line per outcome.
func printCycle(w io.Writer, cycle *core.Cycle, showOutcomes bool) {
	counts := cycle.Counts()
	fmt.Fprintf(w, "Cycle %s [%s]\n", cycle.ID, cycleLabel(cycle.Status))
	fmt.Fprintf(w, "  Pipeline:  %s\n", cycle.PipelineID)
	fmt.Fprintf(w, "  Started:   %s\n", cycle.StartedAt.Format(time.RFC3339))
	if cycle.CompletedAt != nil {
		fmt.Fprintf(w, "  Duration:  %s\n", cycle.CompletedAt.Sub(cycle.StartedAt).Round(time.Millisecond))
	}
	fmt.Fprintf(w, "  Read: %d  New: %d  Relayed: %d  Skipped: %d  Failed: %d\n",
		cycle.SnapshotSize, cycle.FilteredCount, counts.Relayed, counts.Skipped, counts.Failed)
	if cycle.Error != "" {
		fmt.Fprintf(w, "  Error: %s\n", errColor.Sprint(cycle.Error))
	}
	if !showOutcomes || len(cycle.Outcomes) == 0 {
		return
	}
	fmt.Fprintln(w)
	for _, outcome := range cycle.Outcomes {
		line := fmt.Sprintf("  %-8s %s", statusLabel(outcome.Status), truncate(outcome.Item.Value, 60))
		switch {
		case outcome.Key != "":
			line += dimColor.Sprintf("  key=%s", outcome.Key)
		case outcome.Reason != "":
			line += dimColor.Sprintf("  %s", outcome.Reason)
		}
		fmt.Fprintln(w, line)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
