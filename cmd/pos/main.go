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

	"github.com/caterbase/caterpos/internal/adapter/backend"
	"github.com/caterbase/caterpos/internal/adapter/catalog"
	"github.com/caterbase/caterpos/internal/adapter/relay"
	"github.com/caterbase/caterpos/internal/adapter/storage"
	"github.com/caterbase/caterpos/internal/adapter/vault"
	"github.com/caterbase/caterpos/internal/checkout"
	"github.com/caterbase/caterpos/internal/observability/telemetry"
	"github.com/caterbase/caterpos/internal/ports"
	"github.com/caterbase/caterpos/internal/reconcile"
	"github.com/caterbase/caterpos/internal/service/email"
	"github.com/caterbase/caterpos/internal/store"
	"github.com/caterbase/caterpos/internal/terminal"
	"github.com/caterbase/caterpos/internal/wire"
	"github.com/caterbase/caterpos/pkg/config"
)

const (
	serviceName    = "caterpos-pos"
	serviceVersion = "v1.0.0"
)

func main() {
	// 1. Initialize Logger
	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal("Failed to initialize logger:", err)
	}
	defer logger.Sync()

	logger.Info("Starting CaterPOS register",
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

	// 4. Resolve secrets from Vault when configured
	if cfg.Vault.Enabled {
		secrets, err := vault.NewSecretManager(cfg.Vault.Address, cfg.Vault.Token, cfg.Vault.Mount, cfg.Vault.Path)
		if err != nil {
			logger.Fatal("Failed to connect to Vault", zap.Error(err))
		}
		resolveSecrets(cfg, secrets, logger)
	}

	// 5. Initialize durable key-value storage
	kv, err := openStorage(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open storage", zap.Error(err))
	}
	defer kv.Close()

	// 6. Open the order store (reads all persisted state before first use)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	orders, err := store.Open(ctx, kv, logger)
	if err != nil {
		logger.Fatal("Failed to open order store", zap.Error(err))
	}

	// 7. Initialize the payment terminal adapter
	bridge := newBridge(cfg, logger)
	term := terminal.NewAdapter(bridge, cfg.Terminal.DiscoveryWindow, logger)

	// 8. Connect the cross-device sync channel
	ch, err := openChannel(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to open sync channel", zap.Error(err))
	}
	defer ch.Close()

	// 9. Initialize backend and catalog clients
	backendClient := backend.NewClient(cfg.Backend.BaseURL, cfg.Backend.Timeout, logger)
	catalogClient := catalog.NewClient(cfg.Catalog.BaseURL, cfg.Catalog.Timeout, logger)
	if entries, err := catalogClient.Entries(ctx); err != nil {
		logger.Warn("Failed to load catalog, item entry will be manual", zap.Error(err))
	} else {
		logger.Info("Catalog loaded", zap.Int("entries", len(entries)))
	}

	// 10. Initialize the summary mailer
	var mailer ports.Mailer
	if cfg.Email.Enabled {
		svc, err := email.NewService(&email.Config{
			Provider:       "sendgrid",
			FromEmail:      cfg.Email.From,
			FromName:       cfg.Email.FromName,
			SendGridAPIKey: cfg.Email.SendGridAPIKey,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to initialize mailer", zap.Error(err))
		}
		mailer = svc
	}

	// 11. Reconcile local state with the backend, then keep syncing
	reconciler := reconcile.New(reconcile.Config{
		SyncInterval: cfg.Reconcile.SyncInterval,
		SummaryTo:    cfg.Email.SummaryTo,
	}, orders, backendClient, mailer, logger)

	if err := reconciler.ReconcileOnStart(ctx); err != nil {
		logger.Error("Startup reconciliation failed", zap.Error(err))
	}
	go reconciler.Run(ctx)

	// 12. Initialize the checkout controller and wire the message paths
	controller := checkout.NewController(checkout.Config{
		DeviceID:             cfg.Device.ID,
		Currency:             cfg.Terminal.Currency,
		SuccessDisplayWindow: cfg.Checkout.SuccessDisplayWindow,
		FailureBannerWindow:  cfg.Checkout.FailureBannerWindow,
	}, orders, term, ch, logger)

	term.Notify(controller.HandleTerminalStatus)

	if err := ch.Subscribe(func(msg []byte) error {
		env, err := wire.Decode(msg)
		if err != nil {
			logger.Warn("Dropping malformed sync message", zap.Error(err))
			return nil
		}
		if env.DeviceID == cfg.Device.ID {
			return nil
		}
		telemetry.SyncMessages.WithLabelValues(string(env.Type), "in").Inc()
		controller.HandleMessage(ctx, env)
		return nil
	}); err != nil {
		logger.Fatal("Failed to subscribe to sync channel", zap.Error(err))
	}

	// 13. Discover and connect a card reader in the background
	go connectReader(ctx, term, controller, logger)

	// 14. Expose Prometheus metrics
	go func() {
		http.Handle(cfg.Telemetry.MetricsPath, promhttp.Handler())
		if err := http.ListenAndServe(":9091", nil); err != nil {
			logger.Warn("Metrics listener failed", zap.Error(err))
		}
	}()

	logger.Info("Register ready",
		zap.String("device_id", cfg.Device.ID),
		zap.String("storage", cfg.Storage.Driver),
		zap.String("transport", cfg.Relay.Transport),
	)

	// Wait for shutdown signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down register")
	cancel()
	if err := term.Disconnect(context.Background()); err != nil {
		logger.Warn("Failed to disconnect reader", zap.Error(err))
	}
}

// resolveSecrets overrides config credentials with Vault-held values where
// present, so deployments keep keys out of env files.
func resolveSecrets(cfg *config.Config, secrets ports.Secrets, logger *zap.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	lookups := []struct {
		name string
		dst  *string
	}{
		{"stripe_secret_key", &cfg.Terminal.StripeSecretKey},
		{"sendgrid_api_key", &cfg.Email.SendGridAPIKey},
		{"relay_token", &cfg.Relay.Token},
	}
	for _, l := range lookups {
		value, err := secrets.Get(ctx, l.name)
		if err != nil {
			logger.Warn("Secret not resolved from Vault, using config value",
				zap.String("name", l.name),
				zap.Error(err),
			)
			continue
		}
		*l.dst = value
	}
}

func openStorage(cfg *config.Config, logger *zap.Logger) (ports.KeyValue, error) {
	switch cfg.Storage.Driver {
	case "redis":
		return storage.NewRedisStore(cfg.Storage.RedisURL, cfg.Storage.KeyPrefix, logger)
	case "file":
		return storage.NewFileStore(cfg.Storage.FilePath, logger)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s", cfg.Storage.Driver)
	}
}

func newBridge(cfg *config.Config, logger *zap.Logger) terminal.Bridge {
	switch cfg.Terminal.Bridge {
	case "stripe":
		return terminal.NewStripeBridge(cfg.Terminal.StripeSecretKey, cfg.Terminal.StripeLocation, logger)
	default:
		return terminal.NewSimulatedBridge(logger)
	}
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

// connectReader takes the first reader found in the discovery window and
// announces availability to the customer display either way.
func connectReader(ctx context.Context, term *terminal.Adapter, controller *checkout.Controller, logger *zap.Logger) {
	for reader := range term.Discover(ctx) {
		conn, err := term.Connect(ctx, reader)
		if err != nil {
			logger.Warn("Failed to connect reader",
				zap.String("serial", reader.Serial),
				zap.Error(err),
			)
			continue
		}
		logger.Info("Reader connected",
			zap.String("serial", conn.Serial),
			zap.Bool("simulated", conn.Simulated),
		)
		controller.PublishReaderStatus(conn)
		return
	}

	logger.Warn("No card reader found, card payments unavailable")
	controller.PublishReaderStatus(nil)
}
