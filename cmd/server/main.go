package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/drawsync/drawsync/api"
	"github.com/drawsync/drawsync/internal/config"
	"github.com/drawsync/drawsync/internal/slogging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configFile := flag.String("config", "", "path to YAML config file")
	envFile := flag.String("env", "", "path to .env file (optional)")
	flag.Parse()

	loadEnvFile(*envFile)

	cfg, err := config.Load(*configFile)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := slogging.Initialize(slogging.Config{
		Level:            cfg.GetLogLevel(),
		IsDev:            cfg.Server.DevMode,
		LogDir:           cfg.Logging.LogDir,
		MaxAgeDays:       cfg.Logging.MaxAgeDays,
		MaxSizeMB:        cfg.Logging.MaxSizeMB,
		MaxBackups:       cfg.Logging.MaxBackups,
		AlsoLogToConsole: cfg.Logging.AlsoLogToConsole,
	}); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	logger := slogging.Get()
	defer func() {
		_ = logger.Close()
	}()

	var store api.SnapshotStore
	if cfg.Redis.Enabled {
		redisStore, err := api.NewRedisSnapshotStore(cfg.RedisAddr(), cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return fmt.Errorf("failed to connect to redis at %s: %w", cfg.RedisAddr(), err)
		}
		defer func() {
			_ = redisStore.Close()
		}()
		store = redisStore
		logger.Info("Snapshot persistence enabled via redis at %s", cfg.RedisAddr())
	}

	server := api.NewServer(cfg, store)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if store != nil {
		restoreCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := server.RestoreSnapshot(restoreCtx); err != nil {
			logger.Warn("Failed to restore diagram snapshot: %v", err)
		}
		cancel()
	}

	go server.Hub().Run(ctx)

	httpServer := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      server.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Starting sync server on %s", cfg.ListenAddr())
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("Shutdown signal received, draining connections")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed: %v", err)
		return err
	}
	logger.Info("Server stopped")
	return nil
}

// loadEnvFile loads environment variables from a .env file if one exists.
// A missing file is not an error; the process falls back to the real
// environment and built-in defaults.
func loadEnvFile(envFile string) {
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err != nil {
		return
	}
	if err := godotenv.Load(envFile); err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not load %s: %v\n", envFile, err)
		return
	}
	fmt.Printf("Loaded environment from %s\n", envFile)
}
