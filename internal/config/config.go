// Package config loads storefront settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config aggregates application configuration values.
type Config struct {
	Store   StoreConfig
	HTTP    HTTPConfig
	Logging LoggingConfig
}

// StoreConfig covers the document store and the state components.
type StoreConfig struct {
	DatabasePath        string
	StoreID             string
	OperationTimeout    time.Duration
	DefaultDeliveryDays int
	LocalOrdersPath     string
}

// HTTPConfig governs the webhook server.
type HTTPConfig struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// LoggingConfig controls structured logging settings.
type LoggingConfig struct {
	Level         string
	Format        string // text|json
	IncludeCaller bool
}

const (
	defaultDatabasePath     = "storefront.db"
	defaultStoreID          = "SF"
	defaultOperationTimeout = 10 * time.Second
	defaultDeliveryDays     = 7
	defaultLocalOrdersPath  = "storefront-orders.json"
	defaultHTTPAddr         = ":8080"
	defaultShutdownTimeout  = 10 * time.Second
	defaultLoggingLevel     = "info"
	defaultLoggingFormat    = "text"
)

// Load reads configuration from environment variables, applying defaults.
func Load() (Config, error) {
	cfg := Config{
		Store: StoreConfig{
			DatabasePath:        valueOrDefault("STOREFRONT_DB", defaultDatabasePath),
			StoreID:             valueOrDefault("STOREFRONT_STORE_ID", defaultStoreID),
			OperationTimeout:    defaultOperationTimeout,
			DefaultDeliveryDays: parseIntWithDefault("STOREFRONT_DEFAULT_DELIVERY_DAYS", defaultDeliveryDays),
			LocalOrdersPath:     valueOrDefault("STOREFRONT_LOCAL_ORDERS", defaultLocalOrdersPath),
		},
		HTTP: HTTPConfig{
			Addr:            valueOrDefault("STOREFRONT_HTTP_ADDR", defaultHTTPAddr),
			ShutdownTimeout: defaultShutdownTimeout,
		},
		Logging: LoggingConfig{
			Level:         valueOrDefault("LOG_LEVEL", defaultLoggingLevel),
			Format:        valueOrDefault("LOG_FORMAT", defaultLoggingFormat),
			IncludeCaller: parseBoolWithDefault("LOG_INCLUDE_CALLER", false),
		},
	}

	if v := os.Getenv("STOREFRONT_OP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid STOREFRONT_OP_TIMEOUT: %w", err)
		}
		if d <= 0 {
			return Config{}, fmt.Errorf("STOREFRONT_OP_TIMEOUT must be positive, got %s", d)
		}
		cfg.Store.OperationTimeout = d
	}

	if v := os.Getenv("STOREFRONT_SHUTDOWN_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid STOREFRONT_SHUTDOWN_TIMEOUT: %w", err)
		}
		cfg.HTTP.ShutdownTimeout = d
	}

	if cfg.Store.DefaultDeliveryDays <= 0 {
		cfg.Store.DefaultDeliveryDays = defaultDeliveryDays
	}

	return cfg, nil
}

func valueOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func parseBoolWithDefault(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		val, err := strconv.ParseBool(v)
		if err != nil {
			return fallback
		}
		return val
	}
	return fallback
}

func parseIntWithDefault(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if val, err := strconv.Atoi(v); err == nil {
			return val
		}
	}
	return fallback
}
