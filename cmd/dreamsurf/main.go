// Package main is the entry point for the DreamSurf client.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/Faultbox/dreamsurf/internal/config"
	"github.com/Faultbox/dreamsurf/internal/game"
	"github.com/Faultbox/dreamsurf/internal/game/generation"
	"github.com/Faultbox/dreamsurf/internal/logger"
	"github.com/Faultbox/dreamsurf/internal/metrics"
	"github.com/Faultbox/dreamsurf/internal/persist"
	"github.com/Faultbox/dreamsurf/internal/storage"
)

func main() {
	if err := run(); err != nil {
		logger.Error("client failed", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
	logger.Info("game closed normally")
	logger.Sync()
}

func run() error {
	// Parse CLI flags first
	config.ParseFlags()

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Config error: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	opts := logger.Options{Level: cfg.Logging.Level, Console: true, JSON: cfg.Logging.JSON}
	if cfg.Logging.LogFile != "" {
		opts.File = logger.DefaultFileConfig(cfg.Logging.LogFile)
	}
	if err := logger.InitWithOptions(opts); err != nil {
		fmt.Fprintf(os.Stderr, "Logger error: %v\n", err)
		os.Exit(1)
	}

	logger.Info("=== DreamSurf ===")
	logger.Sugar.Debugf("Config: %+v", cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry, logger.Named("metrics"))
	if cfg.Metrics.Enabled {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Listen, registry, logger.Named("metrics")); err != nil {
				logger.Warn("metrics endpoint stopped", zap.Error(err))
			}
		}()
	}

	store, err := storage.NewFileStore(cfg.Assets.Root)
	if err != nil {
		return fmt.Errorf("opening asset root: %w", err)
	}

	deps := game.Deps{
		Generator: generation.NewPipelineFromConfig(cfg.Generation, store, logger.Named("pipeline")),
		Source:    store,
		Metrics:   collector,
		Log:       logger.Log,
		Prompt:    config.StartupPrompt(),
	}
	if cfg.Assets.LibraryPath != "" {
		lib, err := persist.Open(cfg.Assets.LibraryPath)
		if err != nil {
			logger.Warn("generation library disabled", zap.String("path", cfg.Assets.LibraryPath), zap.Error(err))
		} else {
			defer lib.Close()
			deps.History = lib
		}
	}

	// Create and run game
	g, err := game.New(cfg, deps)
	if err != nil {
		return fmt.Errorf("failed to create game: %w", err)
	}
	defer g.Close()

	return g.Run()
}
