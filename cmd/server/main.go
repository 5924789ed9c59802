package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tabml/automl-backend/internal/config"
	"github.com/tabml/automl-backend/internal/server"
)

// Version is stamped by the build.
var Version = "dev"

func main() {
	var configPath string
	var showVersion bool
	flag.StringVar(&configPath, "config", "config/config.yaml", "Path to configuration file")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.Parse()

	if showVersion {
		fmt.Println("automl-backend", Version)
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("load configuration: %v", err)
	}

	logger := initLogger(cfg)
	defer logger.Sync()

	logger.Info("starting automl backend",
		zap.String("version", Version),
		zap.String("environment", cfg.Environment),
		zap.String("config_path", configPath))

	srv, err := server.New(cfg, logger)
	if err != nil {
		logger.Fatal("create server", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	select {
	case err := <-errCh:
		if err != nil {
			logger.Fatal("server failed", zap.Error(err))
		}
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", zap.Error(err))
			os.Exit(1)
		}
	}
	logger.Info("stopped")
}

func initLogger(cfg *config.Config) *zap.Logger {
	var zc zap.Config
	if cfg.Environment == "production" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Logging.Level)
	if err == nil {
		zc.Level = zap.NewAtomicLevelAt(level)
	}

	logger, err := zc.Build()
	if err != nil {
		log.Fatalf("initialize logger: %v", err)
	}
	return logger
}
