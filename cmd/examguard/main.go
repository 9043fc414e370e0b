package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gopkg.in/alecthomas/kingpin.v2"

	"examguard/internal/app"
	"examguard/internal/config"
	"examguard/internal/logging"
)

var (
	configFile = kingpin.Flag("config", "Path to the YAML config file").Short('c').Envar("EXAMGUARD_CONFIG_FILE").String()
)

// FUNCTIONAL DISCOVERY: Main entry point with comprehensive error handling and signal management
// Graceful shutdown on SIGINT/SIGTERM ensures proper resource cleanup
func main() {
	kingpin.UsageTemplate(kingpin.CompactUsageTemplate).Version("1.0")
	kingpin.CommandLine.Help = "examguard - proctored exam integrity server"
	kingpin.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *configFile); err != nil {
		color.Red("examguard: %v", err)
		os.Exit(1)
	}
}

// ARCHITECTURAL DISCOVERY: Separate run function enables testing and error handling
// run blocks until ctx is cancelled, then shuts down within the configured timeout
func run(ctx context.Context, configPath string) error {
	// STEP 1: Load configuration with precedence (env > file > defaults)
	loader, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	cfg := loader.Config()

	// STEP 2: Logger whose level follows config reloads
	logger, level, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	if level.Level() != zap.DebugLevel {
		gin.SetMode(gin.ReleaseMode)
	}

	loader.Watch(logger, func(next *config.Config) {
		if err := logging.SetLevel(level, next.Logging.Level); err != nil {
			logger.Warn("Ignoring log level change", zap.Error(err))
			return
		}
		logger.Info("Log level updated", zap.String("level", next.Logging.Level))
	})

	// STEP 3: Build and start the application
	application, err := app.NewApplication(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("application error: %w", err)
	}
	logger.Info("Listening", zap.String("addr", application.GetAddr()), zap.String("config", loader.File()))

	// STEP 4: Wait for shutdown signal
	<-ctx.Done()
	logger.Info("Shutdown signal received, shutting down gracefully")

	// FUNCTIONAL DISCOVERY: Timeout context prevents hanging shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Shutdown.Timeout)
	defer cancel()

	if err := application.Stop(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return nil
}
