package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/KevinKickass/OpenControllerCore/internal/config"
	"github.com/KevinKickass/OpenControllerCore/internal/lifecycle"
	"github.com/KevinKickass/OpenControllerCore/internal/system"
	"github.com/KevinKickass/OpenControllerCore/internal/target"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

// Exit codes a supervisor can act on.
const (
	exitOK                 = 0
	exitFailure            = 1
	exitRebootApplication  = 2
	exitRebootToBootloader = 3
)

func main() {
	configPath := pflag.StringP("config", "c", "configs/config.yaml", "path to the config file, empty for defaults only")
	targetRef := pflag.StringP("target", "t", "", "target name or path, overrides target.path")
	development := pflag.Bool("dev", false, "development logging")
	pflag.Parse()

	// Config laden
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Logger initialisieren
	var logger *zap.Logger
	if *development || cfg.Log.Development {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("Config loaded successfully", zap.String("path", *configPath))

	// Target laden
	loader, err := target.NewLoader(cfg.Target.SearchPaths)
	if err != nil {
		logger.Fatal("Failed to create target loader", zap.Error(err))
	}

	ref := cfg.Target.Path
	if *targetRef != "" {
		ref = *targetRef
	}

	def, err := loader.Load(ref)
	if err != nil {
		logger.Fatal("Failed to load target", zap.String("target", ref), zap.Error(err))
	}

	logger.Info("Target loaded",
		zap.String("name", def.Name),
		zap.Int("digital_inputs", def.Components.DigitalInputs),
		zap.Int("analog_inputs", def.Components.AnalogInputs),
		zap.Int("presets", def.SupportedPresets))

	ctx := context.Background()

	// Lifecycle Manager
	manager, err := lifecycle.New(ctx, cfg, def, logger)
	if err != nil {
		logger.Fatal("Failed to build controller", zap.Error(err))
	}

	rebootChan := make(chan system.RebootTarget, 1)
	manager.OnReboot(func(t system.RebootTarget) {
		select {
		case rebootChan <- t:
		default:
		}
	})

	// System starten
	if err := manager.Start(ctx); err != nil {
		logger.Fatal("Failed to start system", zap.Error(err))
	}

	logger.Info("OpenControllerCore started successfully")

	// Graceful Shutdown auf Signal oder Reboot-Request
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	code := exitOK
	select {
	case sig := <-sigChan:
		logger.Info("Shutdown signal received", zap.String("signal", sig.String()))
	case t := <-rebootChan:
		logger.Info("Reboot requested", zap.Stringer("target", t))
		code = exitRebootApplication
		if t == system.RebootBootloader {
			code = exitRebootToBootloader
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := manager.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown failed", zap.Error(err))
		code = exitFailure
	}

	logger.Info("OpenControllerCore stopped", zap.Int("exit_code", code))
	logger.Sync()
	os.Exit(code)
}
