package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/caterbase/caterpos/internal/observability/telemetry"
	"github.com/caterbase/caterpos/internal/relay"
	"github.com/caterbase/caterpos/pkg/config"
)

const (
	serviceName    = "caterpos-relay"
	serviceVersion = "v1.0.0"
)

func main() {
	// 1. Initialize Logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Sync()

	logger.Info("Starting CaterPOS relay",
		zap.String("service", serviceName),
		zap.String("version", serviceVersion),
	)

	// 2. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}

	// 3. Initialize OpenTelemetry (Distributed Tracing)
	if cfg.Telemetry.TracingEnabled {
		tracerProvider, err := telemetry.InitTracer(serviceName, cfg.Telemetry.JaegerEndpoint)
		if err != nil {
			logger.Fatal("Failed to initialize tracer", zap.Error(err))
		}
		defer func() {
			if err := tracerProvider.Shutdown(context.Background()); err != nil {
				logger.Error("Error shutting down tracer provider", zap.Error(err))
			}
		}()
	}

	// The relay stores the pairing code hashed. Accept a plain code from
	// config for development setups and hash it on the fly.
	codeHash := cfg.Relay.PairingSecret
	if len(codeHash) > 0 && codeHash[0] != '$' {
		codeHash, err = relay.HashPairingCode(cfg.Relay.PairingSecret)
		if err != nil {
			logger.Fatal("Failed to hash pairing code", zap.Error(err))
		}
	}

	server := relay.NewServer(relay.ServerConfig{
		PairingCodeHash: codeHash,
		JWTSecret:       cfg.Relay.JWTSecret,
	}, logger)

	go func() {
		addr := fmt.Sprintf(":%d", cfg.Relay.Port)
		logger.Info("Relay listening", zap.String("addr", addr))
		if err := server.Start(addr); err != nil {
			logger.Fatal("Relay server failed", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down relay")
	if err := server.Shutdown(); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}
}
