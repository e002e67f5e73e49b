package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/pageza/pantrycam/config"
	"github.com/pageza/pantrycam/internal/devserver"
	"github.com/pageza/pantrycam/internal/logging"
	"github.com/pageza/pantrycam/internal/observability"
)

const devSecret = "pantrycam-dev-secret"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		// logging is not configured yet
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	log := logging.New("pantrycam-devserver", cfg)

	if cfg.Environment == config.Production {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := devserver.OpenDB(cfg.DevServerDB)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}

	secret := cfg.JWTSecret
	if secret == "" {
		log.Warn().Msg("JWT_SECRET is not set, using the development secret")
		secret = devSecret
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	opts := []devserver.Option{
		devserver.WithLogger(log),
		devserver.WithMetrics(observability.NewMetrics(reg), reg),
	}

	if cfg.RedisURL != "" {
		rdb, err := devserver.NewRedisClient(context.Background(), cfg.RedisURL)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		defer func() { _ = rdb.Close() }()
		opts = append(opts, devserver.WithRateLimiter(devserver.NewDetectRateLimiter(rdb)))
		log.Info().Msg("detect rate limiting enabled")
	}

	srv, err := devserver.New(db, secret, opts...)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create server")
	}

	// Channel to listen for errors coming from the server
	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start(cfg.DevServerAddr())
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		if err != nil {
			log.Fatal().Err(err).Msg("server error")
		}
		return
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("received signal")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("server shutdown error")
	}
	log.Info().Msg("server stopped")
}
