package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/devrev/pairdb/driver"
	"github.com/devrev/pairdb/driver/config"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(&cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Configuration loaded",
		zap.Strings("contact_points", cfg.Cluster.ContactPoints),
		zap.Int("port", cfg.Cluster.Port),
		zap.Int("io_workers", cfg.IO.Workers))

	session, err := driver.NewSession(cfg,
		driver.WithLogger(logger.Named("session")),
		driver.WithMetrics(prometheus.DefaultRegisterer),
	)
	if err != nil {
		logger.Fatal("Failed to create session", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Cluster.ConnectTimeout)
	defer cancel()

	if err := session.Connect(cfg.Cluster.Keyspace).Wait(ctx); err != nil {
		logger.Fatal("Connect failed", zap.Error(err))
	}
	logger.Info("Session ready")

	start := time.Now()
	pingCtx, pingCancel := context.WithTimeout(context.Background(), cfg.Cluster.RequestTimeout)
	defer pingCancel()

	outcome := session.Execute(&driver.Statement{Method: driver.MethodPing})
	if err := outcome.Wait(pingCtx); err != nil {
		logger.Error("Ping failed", zap.Error(err))
	} else {
		logger.Info("Ping succeeded", zap.Duration("rtt", time.Since(start)))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := session.Shutdown().Wait(shutdownCtx); err != nil {
		logger.Fatal("Shutdown failed", zap.Error(err))
	}
	session.Join()
	logger.Info("Session disconnected")
}

// initLogger builds the zap logger from the logging config section
func initLogger(cfg *config.LoggingConfig) (*zap.Logger, error) {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}
	level, err := zap.ParseAtomicLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	zapCfg.Level = level
	return zapCfg.Build()
}
