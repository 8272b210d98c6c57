package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/arbyte-inspect/inspection-engine/pkg/config"
	"github.com/arbyte-inspect/inspection-engine/pkg/database"
	"github.com/arbyte-inspect/inspection-engine/pkg/handlers"
	"github.com/arbyte-inspect/inspection-engine/pkg/middleware"
	"github.com/arbyte-inspect/inspection-engine/pkg/repositories"
	"github.com/arbyte-inspect/inspection-engine/pkg/services"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Configuration loaded",
		zap.String("environment", cfg.Env),
		zap.String("station_id", cfg.Station.ID),
		zap.String("database", cfg.Database.Database),
		zap.String("feed", cfg.Ingest.SourceFile),
		zap.String("staging_dir", cfg.Photos.StagingDir),
		zap.String("committed_dir", cfg.Photos.CommittedDir),
		zap.Duration("pipeline_interval", cfg.Pipeline.Interval))

	if err := cfg.EnsurePhotoDirs(); err != nil {
		logger.Fatal("Failed to prepare photo directories", zap.Error(err))
	}

	ctx := context.Background()

	if err := runMigrations(cfg, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}

	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	snapshotRepo := repositories.NewSnapshotRepository(db)
	inspectionRepo := repositories.NewInspectionRepository(db)
	photoRepo := repositories.NewInspectionPhotoRepository(db)
	aggregateRepo := repositories.NewMachineAggregateRepository(db)

	ingestService := services.NewIngestService(cfg.Ingest.SourceFile, snapshotRepo, logger)
	segmenter := services.NewSegmenter(cfg.Pipeline.BoundaryField, cfg.Pipeline.SettlePeriod, logger)
	resolver := services.NewCycleResolver(inspectionRepo, logger)
	correlator := services.NewPhotoCorrelator(
		cfg.Photos.StagingDir,
		cfg.Photos.CommittedDir,
		cfg.Pipeline.MatchWindow,
		inspectionRepo,
		photoRepo,
		logger,
	)
	aggregateService := services.NewAggregateService(cfg.Station.ID, aggregateRepo, logger)

	pipeline := services.NewPipelineService(
		db,
		&cfg.Pipeline,
		snapshotRepo,
		inspectionRepo,
		ingestService,
		segmenter,
		resolver,
		correlator,
		aggregateService,
		logger,
	)

	// Repair any photo left in the committed area without a record by a
	// crash mid-commit, before the first tick can re-match its cycle.
	if repaired, err := correlator.Reconcile(ctx); err != nil {
		logger.Error("Startup reconciliation failed", zap.Error(err))
	} else if repaired > 0 {
		logger.Info("Startup reconciliation repaired photo records", zap.Int("repaired", repaired))
	}

	if err := pipeline.RunScheduler(ctx, cfg.Pipeline.Interval); err != nil {
		logger.Fatal("Failed to start pipeline scheduler", zap.Error(err))
	}

	mux := http.NewServeMux()

	healthHandler := handlers.NewHealthHandler(cfg, logger)
	healthHandler.RegisterRoutes(mux)

	pipelineHandler := handlers.NewPipelineHandler(pipeline, logger)
	pipelineHandler.RegisterRoutes(mux)

	inspectionsHandler := handlers.NewInspectionsHandler(inspectionRepo, photoRepo, logger)
	inspectionsHandler.RegisterRoutes(mux)

	machineHandler := handlers.NewMachineHandler(aggregateService, cfg.Station.ID, logger)
	machineHandler.RegisterRoutes(mux)

	server := &http.Server{
		Addr:    cfg.BindAddr + ":" + cfg.Port,
		Handler: middleware.RequestLogger(logger)(mux),
	}

	go func() {
		logger.Info("Starting inspection-engine",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down")

	if err := pipeline.Stop(); err != nil {
		logger.Warn("Pipeline scheduler was not running", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}
}

// newLogger builds a production logger, or a human-readable development
// logger when running locally.
func newLogger(env string) (*zap.Logger, error) {
	if env == "local" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// runMigrations opens a short-lived database/sql connection for
// golang-migrate; the pgx pool used by the application is created after the
// schema is current.
func runMigrations(cfg *config.Config, logger *zap.Logger) error {
	db, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	return database.RunMigrations(db, cfg.Database.MigrationsPath, logger)
}
