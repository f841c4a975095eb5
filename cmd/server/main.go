package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	_ "github.com/lib/pq"

	"github.com/spacedesk/spacedesk/application/usecase/allocation"
	"github.com/spacedesk/spacedesk/infrastructure/config"
	httpadapter "github.com/spacedesk/spacedesk/infrastructure/http"
	"github.com/spacedesk/spacedesk/infrastructure/persistence/postgres"
	"github.com/spacedesk/spacedesk/infrastructure/service/logger"
	"github.com/spacedesk/spacedesk/infrastructure/service/ratelimit"
	"github.com/spacedesk/spacedesk/infrastructure/service/sweeper"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	structuredLogger := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Format:      cfg.LogFormat,
		ServiceName: "allocation-service",
	})
	structuredLogger.Info(ctx, "application starting", map[string]interface{}{
		"env": cfg.Environment,
	})

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		structuredLogger.Error(ctx, "failed to open database", err, nil)
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		structuredLogger.Error(ctx, "failed to ping database", err, nil)
		log.Fatalf("Failed to ping database: %v", err)
	}
	structuredLogger.Info(ctx, "database connection established", nil)

	limiter, err := ratelimit.New(ratelimit.Config{
		Enabled:       cfg.RateLimitEnabled,
		RedisURL:      cfg.RedisURL,
		Requests:      cfg.RateLimitRequests,
		Window:        cfg.RateLimitWindow,
		BlockDuration: cfg.RateLimitBlockDuration,
	}, structuredLogger)
	if err != nil {
		structuredLogger.Error(ctx, "failed to initialize rate limiter, throttling disabled", err, nil)
		limiter = ratelimit.NewNoop()
	}

	clock := clockwork.NewRealClock()
	entityRepo := postgres.NewEntityRepository(db)
	eventRepo := postgres.NewEventRepository(db)
	workflow := allocation.NewWorkflow(entityRepo, eventRepo, clock, structuredLogger)

	var sweep *sweeper.Sweeper
	if cfg.SweepEnabled {
		sweep = sweeper.New(eventRepo, entityRepo, workflow, clock, structuredLogger, cfg.SweepSchedule)
		if err := sweep.Start(); err != nil {
			structuredLogger.Error(ctx, "failed to start expiration sweeper", err, nil)
			log.Fatalf("Failed to start expiration sweeper: %v", err)
		}
	}

	server := httpadapter.NewServer(httpadapter.ServerConfig{
		Host:                   cfg.ServerHost,
		Port:                   cfg.ServerPort,
		ReadTimeout:            cfg.ReadTimeout,
		WriteTimeout:           cfg.WriteTimeout,
		IdleTimeout:            cfg.IdleTimeout,
		CORSEnabled:            cfg.CORSEnabled,
		CORSAllowedOrigins:     cfg.CORSAllowedOrigins,
		RateLimitRequests:      cfg.RateLimitRequests,
		RateLimitWindow:        cfg.RateLimitWindow,
		RateLimitBlockDuration: cfg.RateLimitBlockDuration,
	}, workflow, workflow, limiter, structuredLogger)

	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			structuredLogger.Error(ctx, "server stopped unexpectedly", err, nil)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	structuredLogger.Info(ctx, "shutdown signal received", nil)

	if sweep != nil {
		sweep.Stop()
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(ctx, 10*time.Second)
	defer cancelShutdown()
	if err := server.Shutdown(shutdownCtx); err != nil {
		structuredLogger.Error(ctx, "graceful shutdown failed", err, nil)
	}
	structuredLogger.Info(ctx, "application stopped", nil)
}
