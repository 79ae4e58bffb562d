package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/bakkerme/relaypipe/internal/config"
	"github.com/bakkerme/relaypipe/internal/core"
	"github.com/bakkerme/relaypipe/internal/runner/factory"
)

// Options are the flags shared by every command. Defaults come from the environment.
type Options struct {
	ConfigPath string
	PipelineID string
}

// RootCmd builds the relaypipe command tree.
func RootCmd(version string) *cobra.Command {
	env := config.LoadEnv()
	opts := &Options{}

	root := &cobra.Command{
		Use:     "relaypipe",
		Short:   "Poll local sources and relay new items to a remote store",
		Version: version,
		Long: `relaypipe reads a full snapshot of its configured sources on a timer,
drops every item it has already relayed, and writes the rest to the remote
store after checking the remote for an equal value.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", env.ConfigPath, "path to the pipeline document (RELAY_CONFIG)")
	root.PersistentFlags().StringVar(&opts.PipelineID, "pipeline-id", env.PipelineID, "pipeline identifier (PIPELINE_ID)")

	root.AddCommand(RunCmd(opts, env))
	root.AddCommand(OnceCmd(opts, env))
	root.AddCommand(SeenCmd(opts, env))
	root.AddCommand(StatusCmd(opts))
	return root
}

func newLogger(env config.EnvConfig) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: env.LogLevel}))
}

// buildPipeline loads the document and constructs every component. The caller owns Close.
func buildPipeline(opts *Options, env config.EnvConfig, logger *slog.Logger) (*core.Pipeline, error) {
	doc, err := config.LoadPipelineDocument(opts.ConfigPath)
	if err != nil {
		return nil, err
	}
	pipeline, err := doc.ParseToPipelineWithFactory(factory.NewFromEnvConfig(logger, env))
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline: %w", err)
	}
	pipeline.ID = opts.PipelineID
	return pipeline, nil
}
