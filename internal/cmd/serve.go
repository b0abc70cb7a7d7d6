package cmd

import (
	"os/signal"
	"syscall"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/inematds/inemavox/internal/config"
	"github.com/inematds/inemavox/internal/observability"
	"github.com/inematds/inemavox/internal/server"
	"github.com/inematds/inemavox/pkg/archive"
	"github.com/inematds/inemavox/pkg/jobs"
	"github.com/inematds/inemavox/pkg/notify"
	"github.com/inematds/inemavox/pkg/stats"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dubbing job server",
	Long: `Start the HTTP API and the job worker.

The worker executes queued jobs one at a time; SIGINT or SIGTERM drains
gracefully, stopping any running pipeline first.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Invalid configuration", err)
	}

	logger := observability.CLILogger

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var archiver jobs.Archiver
	if cfg.Archive.Enabled {
		up, err := archive.New(ctx, cfg.Archive, logger)
		if err != nil {
			return exitError(foundry.ExitExternalServiceUnavailable, "Failed to configure artifact archive", err)
		}
		archiver = up
	}

	statsStore := stats.NewStore(cfg.Stats.Path)

	manager, err := jobs.NewManager(notify.NewHub(), statsStore, jobs.Options{
		RootDir:      cfg.Jobs.Dir,
		Device:       cfg.Jobs.Device,
		Command:      jobs.PipelineCommand(cfg.Pipeline.Python, cfg.Pipeline.Script),
		PollInterval: cfg.Jobs.PollInterval,
		StopGrace:    cfg.Jobs.StopGrace,
		QueueSize:    cfg.Jobs.QueueSize,
		Archiver:     archiver,
		Logger:       logger,
	})
	if err != nil {
		return exitError(foundry.ExitFileWriteError, "Failed to initialize job manager", err)
	}

	srv := server.New(manager, server.Options{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		SubmitRPS:       cfg.Server.SubmitRPS,
		SubmitBurst:     cfg.Server.SubmitBurst,
		Version:         versionInfo.Version,
		Logger:          logger,
	})

	logger.Info("starting inemavox",
		zap.String("version", versionInfo.Version),
		zap.String("jobs_dir", cfg.Jobs.Dir),
		zap.String("device", cfg.Jobs.Device),
		zap.Bool("archive", cfg.Archive.Enabled))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		manager.Run(gctx)
		return nil
	})
	g.Go(func() error {
		return srv.Start(gctx)
	})

	if err := g.Wait(); err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Server failed", err)
	}
	logger.Info("shutdown complete")
	return nil
}
