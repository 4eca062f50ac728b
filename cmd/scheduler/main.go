package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"

	"github.com/xhs-agent/internal/app"
	"github.com/xhs-agent/internal/config"
	"github.com/xhs-agent/internal/server"
	"github.com/xhs-agent/pkg/logger"
)

// staged replies nobody approved within this window are expired by the report job
const stagedMaxAge = 48 * time.Hour

var (
	cfgFile string
	cfg     *config.Config
	log     *logger.Logger

	version = "dev"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "xhs-scheduler",
		Short: "Background scheduler for the Xiaohongshu agent",
		Long: `Runs the reply workflow in the configured time windows and writes the daily report.
Replies are staged for approval since nobody answers confirmation prompts.`,
		RunE: runScheduler,
	}

	rootCmd.Flags().StringVar(&cfgFile, "config", "", "config file path")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runScheduler(cmd *cobra.Command, args []string) error {
	var err error

	cfg, err = config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	log = logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})

	log.Info().Str("version", version).Msg("Starting Xiaohongshu agent scheduler")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log, app.Options{Unattended: true})
	if err != nil {
		return err
	}
	defer a.Close()

	cl := cronLogger{log.WithComponent("cron")}
	c := cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)))

	for _, spec := range cfg.Scheduler.RunCrons {
		if _, err := c.AddFunc(spec, func() { runWorkflow(ctx, a) }); err != nil {
			return fmt.Errorf("failed to schedule run job %q: %w", spec, err)
		}
		log.Info().Str("cron", spec).Msg("Run job scheduled")
	}

	if cfg.Scheduler.ReportCron != "" {
		if _, err := c.AddFunc(cfg.Scheduler.ReportCron, func() { dailyReport(ctx, a) }); err != nil {
			return fmt.Errorf("failed to schedule report job: %w", err)
		}
		log.Info().Str("cron", cfg.Scheduler.ReportCron).Msg("Report job scheduled")
	}

	serverErr := make(chan error, 1)
	if cfg.Server.Enabled {
		srv := server.New(cfg.Server.Listen, a.Gate, a.Metrics.Handler(), version, log)
		go func() { serverErr <- srv.Run(ctx) }()
	}

	c.Start()
	log.Info().Int("jobs", len(c.Entries())).Msg("Scheduler started")

	select {
	case <-ctx.Done():
	case err = <-serverErr:
		if err != nil {
			log.Error().Err(err).Msg("Control server stopped")
		}
	}

	log.Info().Msg("Shutting down scheduler")
	<-c.Stop().Done()
	return err
}

func runWorkflow(ctx context.Context, a *app.App) {
	log.Info().Msg("Running scheduled workflow")

	summary, err := a.Runner.Run(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Scheduled workflow failed")
		return
	}
	log.Info().Str("summary", summary.String()).Msg("Scheduled workflow completed")
}

func dailyReport(ctx context.Context, a *app.App) {
	log.Info().Msg("Running scheduled report")

	expired, err := a.Replier.ExpireStaged(ctx, stagedMaxAge)
	if err != nil {
		log.Error().Err(err).Msg("Failed to expire staged replies")
	} else if expired > 0 {
		log.Info().Int("expired", expired).Msg("Expired staged replies")
	}

	report, err := a.Report(ctx, time.Now())
	if err != nil {
		log.Error().Err(err).Msg("Failed to build daily report")
		return
	}
	path, err := report.WriteTo(cfg.WorkspaceDir(cfg.Workspace.ReportsDir))
	if err != nil {
		log.Error().Err(err).Msg("Failed to write daily report")
		return
	}
	log.Info().Str("path", path).Msg("Daily report written")

	if a.Notifier != nil {
		if err := a.Notifier.Notify(ctx, report.Render()); err != nil {
			log.Warn().Err(err).Msg("Failed to send daily report")
		}
	}
}

// cronLogger adapts our logger for cron
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
