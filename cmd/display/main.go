package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/caterbase/caterpos/internal/adapter/relay"
	"github.com/caterbase/caterpos/internal/display"
	"github.com/caterbase/caterpos/internal/observability/telemetry"
	"github.com/caterbase/caterpos/pkg/config"
)

const (
	serviceName    = "caterpos-display"
	serviceVersion = "v1.0.0"
)

func main() {
	// 1. Initialize Logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Sync()

	logger.Info("Starting CaterPOS customer display",
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

	// 4. Connect the sync channel
	ch, err := openChannel(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open sync channel", zap.Error(err))
	}
	defer ch.Close()

	// 5. Start mirroring the operator's checkout state
	mirror, err := display.NewMirror(cfg.Device.ID, ch, logger)
	if err != nil {
		logger.Fatal("Failed to start mirror", zap.Error(err))
	}

	// 6. Expose Prometheus metrics
	go func() {
		http.Handle(cfg.Telemetry.MetricsPath, promhttp.Handler())
		if err := http.ListenAndServe(":9092", nil); err != nil {
			logger.Warn("Metrics listener failed", zap.Error(err))
		}
	}()

	// Log stage transitions; the rendering layer polls State() on its own.
	go func() {
		ticker := time.NewTicker(250 * time.Millisecond)
		defer ticker.Stop()
		last := mirror.State().Stage
		for range ticker.C {
			state := mirror.State()
			if state.Stage != last {
				logger.Info("Stage changed",
					zap.String("from", string(last)),
					zap.String("to", string(state.Stage)),
					zap.String("checkout_id", state.CheckoutID),
				)
				last = state.Stage
			}
		}
	}()

	logger.Info("Display ready",
		zap.String("device_id", cfg.Device.ID),
		zap.String("transport", cfg.Relay.Transport),
	)

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down display")
}

func openChannel(cfg *config.Config, logger *zap.Logger) (relay.Channel, error) {
	switch cfg.Relay.Transport {
	case "nats":
		return relay.NewNATSChannel(cfg.Relay.URL, cfg.Relay.Channel, logger)
	case "rabbitmq":
		return relay.NewRabbitChannel(cfg.Relay.URL, cfg.Relay.Channel, cfg.Device.ID, logger)
	case "websocket":
		return relay.NewWSChannel(relay.WSConfig{
			URL:      cfg.Relay.URL,
			Channel:  cfg.Relay.Channel,
			DeviceID: cfg.Device.ID,
			Token:    cfg.Relay.Token,
			Backoff:  cfg.Relay.ReconnectBackoff,
		}, logger)
	default:
		return nil, fmt.Errorf("unknown relay transport: %s", cfg.Relay.Transport)
	}
}
