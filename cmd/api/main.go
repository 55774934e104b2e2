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

	"go.uber.org/zap"

	_ "talent-match/docs" // Swagger docs
	"talent-match/internal/api"
	"talent-match/internal/app"
	"talent-match/internal/config"
	"talent-match/internal/logger"
)

// @title Talent Match API
// @version 1.0
// @description Resume ingestion, candidate identity resolution and job description matching

// @license.name MIT
// @license.url https://opensource.org/licenses/MIT

// @host localhost:8080
// @BasePath /api

func main() {
	// Without TALENT_MATCH_CONFIG, ./talent-match.yaml is read when present.
	cfg, err := config.Load(os.Getenv("TALENT_MATCH_CONFIG"))
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	log, err := logger.New(cfg.Log.JSON, cfg.Log.Debug)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Fatal("server stopped", zap.Error(err))
	}
}

func run(cfg *config.Config, log *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	services, err := app.Build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer services.Close()

	apiSrv := api.NewAPI(api.Services{
		Store:     services.Store,
		Index:     services.Index,
		Pipeline:  services.Pipeline,
		Engine:    services.Engine,
		Scheduler: services.Scheduler,
	}, cfg.Server.MaxFileSizeMB, log)

	workerCtx, cancelWorkers := context.WithCancel(context.Background())
	workers := apiSrv.StartBackgroundWorkers(workerCtx)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      api.NewRouter(apiSrv, cfg.Server.SwaggerURL),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	idleConnsClosed := make(chan struct{})
	go func() {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown", zap.Error(err))
		}
		close(idleConnsClosed)
	}()

	log.Info("API server listening",
		zap.String("port", cfg.Server.Port),
		zap.String("index_backend", cfg.Index.Backend),
		zap.String("index_mode", cfg.Ingest.IndexMode),
		zap.String("embedding_version", services.Embedder.ModelVersion()))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		stop()
		<-idleConnsClosed
		cancelWorkers()
		workers.Wait()
		return err
	}

	<-idleConnsClosed
	// In-flight requests are done; let the worker finish its current job.
	cancelWorkers()
	workers.Wait()
	return nil
}
