package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bakkerme/relaypipe/internal/config"
	"github.com/bakkerme/relaypipe/internal/runner/report"
)

// StatusCmd prints the last saved cycle report.
func StatusCmd(opts *Options) *cobra.Command {
	var reportPath string
	var showOutcomes bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the last cycle report",
		Long: `Print the report written after the most recent cycle.
The report path defaults to report.path in the pipeline document.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := reportPath
			if path == "" {
				doc, err := config.LoadPipelineDocument(opts.ConfigPath)
				if err != nil {
					return err
				}
				if doc.Pipeline.Report == nil {
					return fmt.Errorf("pipeline %q has no report configured; pass --report", doc.Pipeline.Name)
				}
				path = doc.Pipeline.Report.Path
			}
			payload, err := report.Load(path)
			if err != nil {
				return err
			}
			printCycle(cmd.OutOrStdout(), payload.Cycle, showOutcomes)
			return nil
		},
	}
	cmd.Flags().StringVar(&reportPath, "report", "", "path to a cycle report")
	cmd.Flags().BoolVar(&showOutcomes, "outcomes", false, "list every outcome")
	return cmd
}
