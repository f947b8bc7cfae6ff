package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/faroinvest/faro/internal/config"
	"github.com/faroinvest/faro/internal/database"
	"github.com/faroinvest/faro/internal/modules/goals"
	goalhandlers "github.com/faroinvest/faro/internal/modules/goals/handlers"
	"github.com/faroinvest/faro/internal/modules/rebalancing"
	rebalancehandlers "github.com/faroinvest/faro/internal/modules/rebalancing/handlers"
	"github.com/faroinvest/faro/internal/scheduler"
	"github.com/faroinvest/faro/internal/server"
	"github.com/faroinvest/faro/pkg/logger"
)

func main() {
	// Load configuration first so the logger level comes from it
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

	log.Info().Msg("Starting Faro")

	// Initialize database
	db, err := database.New(database.Config{
		Path: filepath.Join(cfg.DataDir, "goals.db"),
		Name: "goals",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}

	// Wire services and handlers
	goalService := goals.NewService(goals.NewRepository(db, log), log)

	goalHandlers := goalhandlers.NewHandlers(goalService, log)
	rebalanceHandlers := rebalancehandlers.NewHandlers(
		goalService,
		rebalancing.NewSyntheticEstimator(),
		cfg.DefaultScenarios,
		log,
	)

	// Background drift monitoring
	sched := scheduler.New(log)
	if err := sched.AddJob(cfg.DriftCronSpec, scheduler.NewDriftMonitorJob(goalService, log)); err != nil {
		log.Fatal().Err(err).Msg("Failed to register drift monitor job")
	}
	sched.Start()
	defer sched.Stop()

	// HTTP server
	srv := server.New(server.Config{
		Cfg:               cfg,
		Log:               log,
		DB:                db,
		GoalHandlers:      goalHandlers,
		RebalanceHandlers: rebalanceHandlers,
	})

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Wait for interrupt signal
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
