package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/maquinaplus/fieldsync/internal/api"
	"github.com/maquinaplus/fieldsync/internal/config"
	"github.com/maquinaplus/fieldsync/internal/scheduler"
	"github.com/maquinaplus/fieldsync/internal/session"
	"github.com/maquinaplus/fieldsync/internal/store"
	syncer "github.com/maquinaplus/fieldsync/internal/sync"
	"github.com/maquinaplus/fieldsync/internal/sync/coordinator"
	"github.com/maquinaplus/fieldsync/internal/sync/worker"
	"github.com/maquinaplus/fieldsync/internal/telemetry"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sync agent",
	Long: `Run the sync agent: drain pending records once at startup, then keep
syncing on the configured schedule until interrupted.

The agent requires a configuration file (--config) that specifies the
backend endpoint and the local database path. See examples/ for a
sample configuration.`,
	RunE: runAgent,
}

const metricsShutdownTimeout = 5 * time.Second

func init() {
	runCmd.Flags().String("config", "", "Path to configuration file (YAML format, required)")

	if err := viper.BindPFlag("config", runCmd.Flags().Lookup("config")); err != nil {
		slog.Error("Failed to bind config flag", "error", err)
	}
	if err := runCmd.MarkFlagRequired("config"); err != nil {
		slog.Error("Failed to mark config flag as required", "error", err)
	}
}

func runAgent(_ *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if viper.GetBool("debug") {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		})))
	}

	cfg, err := config.LoadConfig(config.WithConfigPath(viper.GetString("config")))
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	db, err := store.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("failed to open local store: %w", err)
	}
	defer db.Close()

	tokens := session.NewKeyringStore()

	// The plain client carries no bearer token; it only serves the
	// public login/refresh paths for the validator and the transport.
	plain := api.NewClient(cfg.API.Endpoint, api.WithTimeout(cfg.RequestTimeout()))
	probe := session.NewHTTPProbe(cfg.ProbeURL(), cfg.RequestTimeout())
	validator := session.NewValidator(tokens, plain, probe)

	transport := api.NewAuthTransport(tokens, plain,
		api.WithAuthFailureHandler(func() {
			if err := tokens.Clear(); err != nil {
				slog.Error("Failed to clear session", "error", err)
			}
		}))
	client := api.NewClient(cfg.API.Endpoint, api.WithHTTPClient(&http.Client{
		Transport: transport,
		Timeout:   cfg.RequestTimeout(),
	}))

	sched := scheduler.NewInProcess()
	defer sched.Stop()

	// Metrics are optional; a nil SyncMetrics no-ops every recording.
	var syncMetrics *telemetry.SyncMetrics
	var metricsServer *http.Server
	if cfg.Metrics != nil {
		provider, err := telemetry.NewProvider()
		if err != nil {
			return fmt.Errorf("failed to initialize telemetry: %w", err)
		}
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
			defer cancel()
			if err := provider.Shutdown(sctx); err != nil {
				slog.Error("Failed to shut down telemetry", "error", err)
			}
		}()

		syncMetrics, err = telemetry.NewSyncMetrics(provider.MeterProvider())
		if err != nil {
			return fmt.Errorf("failed to create sync metrics: %w", err)
		}

		mux := http.NewServeMux()
		mux.Handle("/metrics", provider.Handler())
		metricsServer = &http.Server{
			Addr:              cfg.Metrics.Address,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			slog.Info("Serving metrics", "address", cfg.Metrics.Address)
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("Metrics server failed", "error", err)
			}
		}()
	}

	images := worker.NewImageWorker(
		syncer.NewImageSyncer(db, client, cfg.ImageBatchSize()),
		worker.WithSyncMetrics(syncMetrics),
	)
	data := worker.NewDataWorker(
		db,
		validator,
		syncer.NewFormSyncer(db, client),
		syncer.NewMaintenanceSyncer(db, client),
		syncer.NewMasterDataSyncer(db, client),
		coordinator.ChainedImageEnqueuer(sched, images),
		worker.Timeouts{
			Session:    cfg.SessionTimeout(),
			Fetch:      cfg.FetchTimeout(),
			Item:       cfg.ItemTimeout(),
			MasterData: cfg.MasterDataTimeout(),
		},
		worker.WithSyncMetrics(syncMetrics),
	)
	cleanup := worker.NewCleanupWorker(db, cfg.TrackingRetention())

	coord := coordinator.New(sched, data, images, cleanup,
		coordinator.WithSyncInterval(cfg.SyncInterval()),
		coordinator.WithCleanupInterval(cfg.CleanupInterval()),
		coordinator.WithSyncMetrics(syncMetrics),
	)

	// Drain whatever the previous session left behind, then settle
	// into the periodic schedule.
	if err := coord.Coordinate(ctx, coordinator.AppStartSync{}); err != nil {
		slog.Error("App-start sync failed to enqueue", "error", err)
	}
	if err := coord.SchedulePeriodicSync(); err != nil {
		return err
	}
	if err := coord.SchedulePeriodicCleanup(); err != nil {
		return err
	}

	slog.Info("Sync agent running",
		"endpoint", cfg.API.Endpoint,
		"database", cfg.Database.Path,
		"sync_interval", cfg.SyncInterval())

	<-ctx.Done()
	slog.Info("Shutting down")

	coord.CancelAll()
	if metricsServer != nil {
		sctx, cancel := context.WithTimeout(context.Background(), metricsShutdownTimeout)
		defer cancel()
		if err := metricsServer.Shutdown(sctx); err != nil {
			slog.Error("Failed to shut down metrics server", "error", err)
		}
	}
	return nil
}
