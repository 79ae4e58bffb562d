package cli

import (
	"github.com/spf13/cobra"

	"github.com/bakkerme/relaypipe/internal/config"
	"github.com/bakkerme/relaypipe/internal/core"
	"github.com/bakkerme/relaypipe/internal/runner"
)

// OnceCmd runs exactly one cycle and prints its outcomes.
func OnceCmd(opts *Options, env config.EnvConfig) *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "once",
		Short: "Run a single cycle and print its outcomes",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(env)
			pipeline, err := buildPipeline(opts, env, logger)
			if err != nil {
				return err
			}
			defer pipeline.Close()

			r, err := runner.New(pipeline, logger)
			if err != nil {
				return err
			}
			cycle, err := r.RunCycle(core.WithLogger(cmd.Context(), logger))
			printCycle(cmd.OutOrStdout(), cycle, !quiet)
			return err
		},
	}
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "print only the cycle summary")
	return cmd
}
