package config

import "time"

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Device    DeviceConfig    `mapstructure:"device"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Relay     RelayConfig     `mapstructure:"relay"`
	Backend   BackendConfig   `mapstructure:"backend"`
	Catalog   CatalogConfig   `mapstructure:"catalog"`
	Terminal  TerminalConfig  `mapstructure:"terminal"`
	Checkout  CheckoutConfig  `mapstructure:"checkout"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	Vault     VaultConfig     `mapstructure:"vault"`
	Email     EmailConfig     `mapstructure:"email"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type DeviceConfig struct {
	// ID identifies this device on the sync channel.
	ID string `mapstructure:"id"`
	// Role is "operator" or "display".
	Role string `mapstructure:"role"`
}

type StorageConfig struct {
	// Driver is "file" or "redis".
	Driver   string `mapstructure:"driver"`
	FilePath string `mapstructure:"file_path"`
	RedisURL string `mapstructure:"redis_url"`
	// KeyPrefix namespaces keys when two devices share one redis.
	KeyPrefix string `mapstructure:"key_prefix"`
}

type RelayConfig struct {
	// Transport is "websocket", "nats" or "rabbitmq".
	Transport string `mapstructure:"transport"`
	URL       string `mapstructure:"url"`
	// Channel scopes messages to one event pairing; both devices must agree.
	Channel          string        `mapstructure:"channel"`
	Token            string        `mapstructure:"token"`
	ReconnectBackoff time.Duration `mapstructure:"reconnect_backoff"`

	// Server settings, used by the relay binary only.
	Port          int    `mapstructure:"port"`
	PairingSecret string `mapstructure:"pairing_secret"`
	JWTSecret     string `mapstructure:"jwt_secret"`
}

type BackendConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type CatalogConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type TerminalConfig struct {
	// Bridge is "stripe" or "simulated".
	Bridge          string        `mapstructure:"bridge"`
	Currency        string        `mapstructure:"currency"`
	DiscoveryWindow time.Duration `mapstructure:"discovery_window"`
	StripeSecretKey string        `mapstructure:"stripe_secret_key"`
	StripeLocation  string        `mapstructure:"stripe_location"`
}

type CheckoutConfig struct {
	SuccessDisplayWindow time.Duration `mapstructure:"success_display_window"`
	FailureBannerWindow  time.Duration `mapstructure:"failure_banner_window"`
}

type ReconcileConfig struct {
	SyncInterval time.Duration `mapstructure:"sync_interval"`
}

type VaultConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Address string `mapstructure:"address"`
	Token   string `mapstructure:"token"`
	Mount   string `mapstructure:"mount"`
	Path    string `mapstructure:"path"`
}

type EmailConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	SendGridAPIKey string `mapstructure:"sendgrid_api_key"`
	From           string `mapstructure:"from"`
	FromName       string `mapstructure:"from_name"`
	SummaryTo      string `mapstructure:"summary_to"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TelemetryConfig struct {
	TracingEnabled bool   `mapstructure:"tracing_enabled"`
	JaegerEndpoint string `mapstructure:"jaeger_endpoint"`
	MetricsPath    string `mapstructure:"metrics_path"`
}
