package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"threatdash/internal/auth"
	"threatdash/internal/export"
	"threatdash/internal/ingest"
	"threatdash/internal/logging"
	"threatdash/internal/metrics"
	"threatdash/internal/scheduler"
	"threatdash/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the dashboard API and run the scheduled pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if err := cfg.ValidateServer(); err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		shutdownMetrics, err := metrics.Setup(ctx, cfg.Metrics, version)
		if err != nil {
			return err
		}
		defer func() {
			flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := shutdownMetrics(flushCtx); err != nil {
				slog.Warn("metrics shutdown failed", "error", err)
			}
		}()

		b, err := openBackend(ctx, cfg)
		if err != nil {
			return err
		}
		defer b.close()

		ingester := ingest.New(cfg.Ingest, b.store, logging.Component("ingest"), b.metrics)
		exporter := export.New(cfg.Export, b.svc, logging.Component("export"), b.metrics)
		steps := []scheduler.Runner{ingester}
		if cfg.Schedule.Export {
			steps = append(steps, exporter)
		}
		spec := ""
		if cfg.Schedule.Enabled {
			spec = cfg.Schedule.Cron
		}
		sched, err := scheduler.New(spec, scheduler.Sequence(steps...), logging.Component("scheduler"), b.metrics)
		if err != nil {
			return err
		}
		guard, err := auth.New(cfg.Server.AdminSecret, cfg.Server.AdminBindCIDRs, logging.Component("auth"))
		if err != nil {
			return err
		}

		api := server.New(cfg.Server, server.Deps{
			Service:   b.svc,
			Scheduler: sched,
			Exporter:  exporter,
			Progress:  ingester,
			Guard:     guard,
			Log:       logging.Component("http"),
			Metrics:   b.metrics,
		})
		httpServer := &http.Server{
			Addr:         cfg.Server.ListenAddress,
			Handler:      http.MaxBytesHandler(api.Routes(), cfg.Server.MaxBodyBytes),
			ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSec) * time.Second,
			WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSec) * time.Second,
			IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSec) * time.Second,
		}

		sched.Start(ctx)
		go func() {
			<-ctx.Done()
			shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = httpServer.Shutdown(shCtx)
		}()

		slog.Info("starting threatdash", "addr", cfg.Server.ListenAddress, "static_dir", cfg.Server.StaticDir, "schedule", spec)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}
