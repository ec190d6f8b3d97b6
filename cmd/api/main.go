package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/timmy/sissync/internal/api"
	"github.com/timmy/sissync/internal/app"
	"github.com/timmy/sissync/internal/config"
	"github.com/timmy/sissync/internal/logger"
)

const shutdownTimeout = 30 * time.Second

func main() {
	appLogger := logger.NewFromEnv("sissync-api")
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// CONFIG_PATH overrides the default config lookup in production.
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	ctx := logger.SetComponent(context.Background(), "main")

	engine, err := app.New(ctx, cfg)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize sync engine")
	}
	defer engine.Close()

	if err := engine.Trigger.Start(ctx); err != nil {
		appLogger.WithError(err).Fatal("Failed to start recurring trigger")
	}

	deps := api.Dependencies{
		DB:        engine.Schedules,
		Sync:      engine.Sync,
		Schedules: engine.ScheduleSvc,
		Trigger:   engine.Trigger,
	}
	if engine.Registry != nil {
		deps.Metrics = engine.Registry
	}
	router := api.SetupRouter(cfg, deps)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		appLogger.WithFields(logger.Fields{
			"port": cfg.Server.Port,
			"mode": cfg.Server.Mode,
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Server forced to shutdown")
	}
	if err := engine.Trigger.Stop(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Recurring trigger did not stop cleanly")
	}
	if err := engine.Sync.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Background sync runs did not finish before shutdown")
	}

	appLogger.Info("Server exited")
}
