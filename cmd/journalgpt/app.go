package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/journalgpt/internal/config"
	"github.com/fyrsmithlabs/journalgpt/internal/logging"
	"github.com/fyrsmithlabs/journalgpt/internal/services"
	"github.com/fyrsmithlabs/journalgpt/internal/telemetry"
	"go.opentelemetry.io/otel/log"
	"go.uber.org/zap"
)

// app holds everything a command needs. Build it with newApp and release it
// with close.
type app struct {
	cfg       *config.Config
	userID    string
	logger    *logging.Logger
	telemetry *telemetry.Telemetry
	registry  services.Registry
}

// newApp loads configuration and builds the logger, telemetry and pipeline.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return nil, err
	}

	telCfg := telemetry.NewDefaultConfig()
	telCfg.Enabled = cfg.Observability.EnableTelemetry
	telCfg.Endpoint = cfg.Observability.OTLPEndpoint
	telCfg.ServiceName = cfg.Observability.ServiceName
	telCfg.ServiceVersion = version
	tel, err := telemetry.New(ctx, telCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize telemetry: %w", err)
	}

	logger, err := newLogger(cfg.Observability, tel.LoggerProvider())
	if err != nil {
		_ = tel.Shutdown(context.Background())
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	if degraded, terr := tel.Degraded(); degraded {
		logger.Warn(ctx, "telemetry degraded, continuing without export", zap.Error(terr))
	}

	reg, err := services.New(ctx, cfg, logger, services.Dependencies{Telemetry: tel})
	if err != nil {
		_ = tel.Shutdown(context.Background())
		return nil, err
	}

	owner := strings.TrimSpace(userID)
	if owner == "" {
		owner = cfg.UserID
	}

	logger.Debug(ctx, "journalgpt ready",
		zap.String("vectorstore", cfg.VectorStore.Provider),
		zap.String("embeddings", cfg.Embeddings.Provider),
		zap.String("completion", cfg.Completion.Provider),
	)
	return &app{cfg: cfg, userID: owner, logger: logger, telemetry: tel, registry: reg}, nil
}

// newLogger writes to stderr, and also to lp when telemetry provides one.
func newLogger(cfg config.ObservabilityConfig, lp log.LoggerProvider) (*logging.Logger, error) {
	logCfg := logging.NewDefaultConfig()
	level, err := logging.LevelFromString(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logCfg.Level = level
	logCfg.Format = cfg.LogFormat
	logCfg.Output.OTEL = lp != nil
	return logging.NewLogger(logCfg, lp)
}

func (a *app) close() error {
	errs := []error{a.registry.Close(), a.telemetry.Shutdown(context.Background())}
	_ = a.logger.Sync()
	return errors.Join(errs...)
}
