package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bakkerme/relaypipe/internal/config"
	"github.com/bakkerme/relaypipe/internal/runner/factory"
)

// SeenCmd reports whether values are recorded in the pipeline's seen store.
func SeenCmd(opts *Options, env config.EnvConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "seen <value>...",
		Short: "Check whether values have already been relayed",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := config.LoadPipelineDocument(opts.ConfigPath)
			if err != nil {
				return err
			}
			if doc.Pipeline.SeenStore.Memory != nil {
				return fmt.Errorf("pipeline uses an in-memory seen store; nothing persists between runs")
			}
			f := factory.NewFromEnvConfig(newLogger(env), env)
			store, err := f.NewSeenStore(&doc.Pipeline.SeenStore)
			if err != nil {
				return fmt.Errorf("failed to open seen store: %w", err)
			}
			defer store.Close()

			out := cmd.OutOrStdout()
			for _, value := range args {
				seen, err := store.HasSeen(cmd.Context(), value)
				if err != nil {
					return fmt.Errorf("lookup %q: %w", value, err)
				}
				label := okColor.Sprint("new ")
				if seen {
					label = warnColor.Sprint("seen")
				}
				fmt.Fprintf(out, "%s  %s\n", label, value)
			}
			return nil
		},
	}
}
