package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aristath/fractal/internal/calibration"
	"github.com/aristath/fractal/internal/config"
	"github.com/aristath/fractal/internal/consensus"
	"github.com/aristath/fractal/internal/database"
	"github.com/aristath/fractal/internal/events"
	"github.com/aristath/fractal/internal/focus"
	"github.com/aristath/fractal/internal/forward"
	"github.com/aristath/fractal/internal/fractal"
	"github.com/aristath/fractal/internal/reliability"
	"github.com/aristath/fractal/internal/risk"
	"github.com/aristath/fractal/internal/scheduler"
	"github.com/aristath/fractal/internal/series"
	"github.com/aristath/fractal/internal/server"
	"github.com/aristath/fractal/pkg/logger"
)

func main() {
	// Load configuration first so the logger level is honored
	cfg, err := config.Load()
	if err != nil {
		fallback := logger.New(logger.Config{Level: "info", Pretty: true})
		fallback.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)

	log.Info().Msg("Starting fractal forecast engine")

	// Application databases
	calibrationDB, err := database.Open(cfg.DataDir, "calibration", database.ProfileStandard)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open calibration database")
	}
	defer calibrationDB.Close()
	if err := calibrationDB.Migrate(calibration.Schema); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate calibration database")
	}

	forwardDB, err := database.Open(cfg.DataDir, "forward", database.ProfileStandard)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open forward database")
	}
	defer forwardDB.Close()
	if err := forwardDB.Migrate(forward.Schema); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate forward database")
	}

	cacheDB, err := database.Open(cfg.DataDir, "cache", database.ProfileCache)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open cache database")
	}
	defer cacheDB.Close()
	if err := cacheDB.Migrate(focus.CacheSchema); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate cache database")
	}

	// Core services
	bus := events.NewBus(log)
	store := series.NewStore(filepath.Join(cfg.DataDir, "history"), log)
	matcher := fractal.NewMatcher(cfg.Matcher, log)
	forecaster := fractal.NewForecaster(log)
	riskEngine := risk.NewEngine(cfg.Risk, log)

	monitor, err := calibration.NewMonitor(calibration.NewRepository(calibrationDB.Conn()), store, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize calibration monitor")
	}

	cache := focus.NewCache(cacheDB.Conn())
	focusSvc := focus.NewService(store, matcher, forecaster, riskEngine, monitor, cache, bus, cfg.Matcher, log)
	consensusEngine := consensus.NewEngine(focusSvc, bus, cfg.Consensus, log)
	tracker := forward.NewTracker(forward.NewRepository(forwardDB.Conn()), store, log)

	// Background jobs
	sched := scheduler.New(log)
	if err := sched.AddJob("0 0 * * * *", monitor); err != nil {
		log.Fatal().Err(err).Msg("Failed to register calibration job")
	}
	if err := sched.AddJob("0 30 * * * *", tracker); err != nil {
		log.Fatal().Err(err).Msg("Failed to register forward resolver job")
	}
	if err := sched.AddJob("0 */10 * * * *", cache); err != nil {
		log.Fatal().Err(err).Msg("Failed to register cache sweep job")
	}

	if cfg.Backup.Enabled() {
		s3Client, err := reliability.NewS3Client(context.Background(), cfg.Backup, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize backup client")
		}
		backup := reliability.NewBackupService(s3Client, cfg.DataDir, cfg.Backup.RetentionDays, bus, log)
		if err := sched.AddJob("0 0 3 * * *", backup); err != nil {
			log.Fatal().Err(err).Msg("Failed to register backup job")
		}
	} else {
		log.Info().Msg("Snapshot backups disabled (no bucket configured)")
	}

	sched.Start()
	defer sched.Stop()

	// HTTP server
	srv := server.New(server.Config{
		Port:     cfg.Port,
		Log:      log,
		DevMode:  cfg.DevMode,
		Handlers: server.NewHandlers(focusSvc, consensusEngine, tracker, store, log),
		System:   server.NewSystemHandlers(sched, store, cfg.DataDir, log),
		Events:   server.NewEventsHandler(bus, log),
	})

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server stopped")
}
