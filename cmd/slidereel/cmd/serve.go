package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jmylchreest/slidereel/internal/database"
	"github.com/jmylchreest/slidereel/internal/database/migrations"
	"github.com/jmylchreest/slidereel/internal/encoder"
	"github.com/jmylchreest/slidereel/internal/ffmpeg"
	internalhttp "github.com/jmylchreest/slidereel/internal/http"
	"github.com/jmylchreest/slidereel/internal/http/handlers"
	"github.com/jmylchreest/slidereel/internal/repository"
	"github.com/jmylchreest/slidereel/internal/scheduler"
	"github.com/jmylchreest/slidereel/internal/service/events"
	"github.com/jmylchreest/slidereel/internal/service/history"
	"github.com/jmylchreest/slidereel/internal/service/system"
	"github.com/jmylchreest/slidereel/internal/startup"
	"github.com/jmylchreest/slidereel/internal/version"
	"gorm.io/gorm"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the slidereel server",
	Long: `Start the slidereel HTTP server and API.

The server provides:
- REST API for submitting and managing encoding jobs
- Live event stream (SSE) with job and segment progress
- Job history export/import
- OpenAPI documentation at /docs`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	// Server flags override the corresponding config values only when
	// explicitly set, same Changed() rule as the logging flags.
	serveCmd.Flags().String("host", "127.0.0.1", "Host to bind to")
	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("database", "", "Database DSN (file path for sqlite)")
	serveCmd.Flags().String("work-dir", "", "Directory for intermediate segment files")
}

func runServe(cmd *cobra.Command, args []string) error {
	flags := cmd.Flags()
	if flags.Changed("host") {
		cfg.Server.Host, _ = flags.GetString("host")
	}
	if flags.Changed("port") {
		cfg.Server.Port, _ = flags.GetInt("port")
	}
	if flags.Changed("database") {
		cfg.Database.DSN, _ = flags.GetString("database")
	}
	if flags.Changed("work-dir") {
		cfg.Storage.WorkDir, _ = flags.GetString("work-dir")
	}

	// Initialize the event bus and wrap the default slog handler so log
	// records show up on the SSE stream alongside job events.
	eventBus := events.New()
	wrappedHandler := eventBus.WrapHandler(slog.Default().Handler())
	slog.SetDefault(slog.New(wrappedHandler))

	logger := slog.Default()

	// Clean up orphaned segment directories from previous runs
	orphansRemoved, err := startup.CleanupOrphanedTempDirs(logger, cfg.Storage.WorkPath(), cfg.Storage.TempMaxAge)
	if err != nil {
		logger.Warn("failed to clean orphaned temp directories",
			slog.String("error", err.Error()),
		)
	} else if orphansRemoved > 0 {
		logger.Info("cleaned orphaned temp directories on startup",
			slog.Int("removed_count", orphansRemoved),
		)
	}

	// Initialize database
	db, err := database.New(cfg.Database, logger)
	if err != nil {
		return fmt.Errorf("initializing database: %w", err)
	}
	defer db.Close()

	// Run migrations
	if err := runMigrations(db.DB, logger); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	// Initialize repositories
	jobRepo := repository.NewJobRepository(db.DB)

	// Jobs left in running state by a crash or kill can never finish
	recovered, err := startup.RecoverInterruptedJobs(cmd.Context(), logger, jobRepo)
	if err != nil {
		logger.Warn("failed to recover interrupted jobs",
			slog.String("error", err.Error()),
		)
	} else if recovered > 0 {
		logger.Info("marked interrupted jobs as failed",
			slog.Int64("count", recovered),
		)
	}

	// Detect the ffmpeg installation up front so the first job does not
	// pay the probe cost and a missing install is visible at startup.
	detector := ffmpeg.NewDetector(cfg.FFmpeg.BinaryPath, cfg.FFmpeg.ProbePath, cfg.FFmpeg.DetectTimeout)
	caps := detector.Capabilities(cmd.Context())
	if !caps.FFmpegAvailable {
		logger.Warn("ffmpeg not available; jobs will fail until it is installed",
			slog.String("error", caps.Error),
		)
	} else {
		logger.Info("ffmpeg detected",
			slog.String("version", caps.Version),
			slog.String("path", caps.FFmpegPath),
			slog.Any("hardware_encoders", caps.HardwareEncoders),
		)
	}

	// Initialize encoding pipeline
	tracker := encoder.NewPerfTracker()
	segmentEncoder := encoder.NewSegmentEncoder(detector, tracker, cfg.FFmpeg.ProbeTimeout, logger)
	concatenator := encoder.NewConcatenator(detector, cfg.FFmpeg.ConcatTimeout, logger)
	processor := scheduler.NewProcessor(jobRepo, segmentEncoder, concatenator, eventBus, cfg.Storage.WorkPath()).
		WithLogger(logger)
	runner := scheduler.NewRunner(jobRepo, processor, eventBus).WithLogger(logger)

	// Setup graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := runner.Start(ctx); err != nil {
		return fmt.Errorf("starting worker: %w", err)
	}
	defer runner.Stop()

	// Scheduled maintenance: history retention and temp dir sweeps
	if cfg.Maintenance.Enabled {
		janitor, err := scheduler.NewJanitor(jobRepo, cfg.Storage.WorkPath(), scheduler.JanitorConfig{
			Schedule:         cfg.Maintenance.Cron,
			HistoryRetention: cfg.Maintenance.HistoryRetention,
			TempMaxAge:       cfg.Storage.TempMaxAge,
		})
		if err != nil {
			return fmt.Errorf("initializing janitor: %w", err)
		}
		janitor = janitor.WithLogger(logger)
		if err := janitor.Start(ctx); err != nil {
			return fmt.Errorf("starting janitor: %w", err)
		}
		defer janitor.Stop()
	}

	// Initialize services
	historyService := history.NewService(jobRepo).WithLogger(logger)
	systemService := system.New()

	// Initialize HTTP server
	serverConfig := internalhttp.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		IdleTimeout:     cfg.Server.IdleTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		CORSOrigins:     cfg.Server.CORSOrigins,
	}
	server := internalhttp.NewServer(serverConfig, logger, version.Version)

	// Register handlers
	healthHandler := handlers.NewHealthHandler(version.Version).WithDB(db.DB).WithRunner(runner)
	healthHandler.Register(server.API())

	jobHandler := handlers.NewJobHandler(jobRepo, runner, cfg.Encoding)
	jobHandler.Register(server.API())

	previewHandler := handlers.NewPreviewHandler()
	previewHandler.Register(server.API())

	capabilitiesHandler := handlers.NewCapabilitiesHandler(detector)
	capabilitiesHandler.Register(server.API())

	perfHandler := handlers.NewPerfHandler(tracker)
	perfHandler.Register(server.API())

	systemHandler := handlers.NewSystemHandler(systemService, version.Version)
	systemHandler.Register(server.API())

	versionHandler := handlers.NewVersionHandler()
	versionHandler.Register(server.API())

	eventsHandler := handlers.NewEventsHandler(eventBus)
	eventsHandler.Register(server.API())
	eventsHandler.RegisterSSE(server.Router())

	historyHandler := handlers.NewHistoryHandler(historyService).WithLogger(logger)
	historyHandler.Register(server.API())
	historyHandler.RegisterChiRoutes(server.Router())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	// Start server
	logger.Info("starting slidereel server",
		slog.String("host", serverConfig.Host),
		slog.Int("port", serverConfig.Port),
		slog.String("version", version.Version),
	)

	return server.ListenAndServe(ctx)
}

func runMigrations(db *gorm.DB, logger *slog.Logger) error {
	migrator := migrations.NewMigrator(db, logger)
	migrator.Register(migrations.All()...)
	return migrator.Up(context.Background())
}
