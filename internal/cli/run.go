package cli

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bakkerme/relaypipe/internal/api"
	"github.com/bakkerme/relaypipe/internal/config"
	"github.com/bakkerme/relaypipe/internal/core"
	"github.com/bakkerme/relaypipe/internal/observability/otelx"
	"github.com/bakkerme/relaypipe/internal/runner"
)

// RunCmd starts the scheduler and blocks until SIGINT or SIGTERM.
func RunCmd(opts *Options, env config.EnvConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline on its schedule until interrupted",
		Long: `Start the scheduler. The first cycle runs one interval after start.
On SIGINT/SIGTERM no new cycle starts and an in-flight cycle is allowed to finish.
With RUN_ONCE=true a single cycle runs and the command exits.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := newLogger(env)
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ctx = core.WithLogger(ctx, logger)

			shutdownOTel, err := otelx.Init(ctx, logger, env.OTel)
			if err != nil {
				return fmt.Errorf("failed to initialize tracing: %w", err)
			}
			defer otelx.ShutdownWithTimeout(logger, shutdownOTel)

			pipeline, err := buildPipeline(opts, env, logger)
			if err != nil {
				return err
			}
			defer pipeline.Close()

			r, err := runner.New(pipeline, logger)
			if err != nil {
				return err
			}

			if env.RunOnce {
				cycle, err := r.RunCycle(ctx)
				printCycle(cmd.OutOrStdout(), cycle, false)
				return err
			}

			scheduler := runner.NewScheduler(r, pipeline.Trigger, logger)
			if err := scheduler.Start(ctx, pipeline.Interval); err != nil {
				return err
			}

			var server *api.Server
			if pipeline.StatusAddr != "" {
				server = api.NewServer(scheduler, logger)
				go func() {
					if err := server.Start(pipeline.StatusAddr); err != nil {
						logger.Error("status api stopped", "error", err)
					}
				}()
			}

			<-ctx.Done()
			logger.Info("shutting down, waiting for in-flight cycle")
			if err := scheduler.Stop(); err != nil {
				logger.Warn("trigger stop failed", "error", err)
			}
			if server != nil {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = server.Shutdown(shutdownCtx)
			}
			return nil
		},
	}
}
