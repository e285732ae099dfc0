package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")
	viper.AddConfigPath("/etc/caterpos")

	viper.SetEnvPrefix("CATERPOS")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Allow common env vars without the CATERPOS_ prefix for container deploys
	viper.BindEnv("storage.redis_url", "REDIS_URL", "CATERPOS_STORAGE_REDIS_URL")
	viper.BindEnv("relay.url", "RELAY_URL", "CATERPOS_RELAY_URL")
	viper.BindEnv("relay.channel", "RELAY_CHANNEL", "CATERPOS_RELAY_CHANNEL")
	viper.BindEnv("backend.base_url", "BACKEND_URL", "CATERPOS_BACKEND_BASE_URL")
	viper.BindEnv("terminal.stripe_secret_key", "STRIPE_SECRET_KEY")
	viper.BindEnv("email.sendgrid_api_key", "SENDGRID_API_KEY")
	viper.BindEnv("vault.address", "VAULT_ADDR")
	viper.BindEnv("vault.token", "VAULT_TOKEN")
	viper.BindEnv("device.role", "DEVICE_ROLE")
	viper.BindEnv("logging.level", "LOG_LEVEL")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// No config file is fine; env vars and defaults carry a device.
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("app.name", "caterpos")
	viper.SetDefault("device.role", "operator")
	viper.SetDefault("storage.driver", "file")
	viper.SetDefault("storage.file_path", "caterpos-state.json")
	viper.SetDefault("relay.transport", "websocket")
	viper.SetDefault("relay.reconnect_backoff", "3s")
	viper.SetDefault("relay.port", 8090)
	viper.SetDefault("backend.timeout", "10s")
	viper.SetDefault("catalog.timeout", "10s")
	viper.SetDefault("terminal.bridge", "simulated")
	viper.SetDefault("terminal.currency", "usd")
	viper.SetDefault("terminal.discovery_window", "10s")
	viper.SetDefault("checkout.success_display_window", "4s")
	viper.SetDefault("checkout.failure_banner_window", "3s")
	viper.SetDefault("reconcile.sync_interval", "30s")
	viper.SetDefault("vault.mount", "secret")
	viper.SetDefault("vault.path", "caterpos")
	viper.SetDefault("telemetry.metrics_path", "/metrics")
}
