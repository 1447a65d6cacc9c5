package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"STOREFRONT_DB", "STOREFRONT_STORE_ID", "STOREFRONT_OP_TIMEOUT",
		"STOREFRONT_DEFAULT_DELIVERY_DAYS", "STOREFRONT_LOCAL_ORDERS",
		"STOREFRONT_HTTP_ADDR", "STOREFRONT_SHUTDOWN_TIMEOUT",
		"LOG_LEVEL", "LOG_FORMAT", "LOG_INCLUDE_CALLER",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "storefront.db", cfg.Store.DatabasePath)
	assert.Equal(t, "SF", cfg.Store.StoreID)
	assert.Equal(t, 10*time.Second, cfg.Store.OperationTimeout)
	assert.Equal(t, 7, cfg.Store.DefaultDeliveryDays)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.False(t, cfg.Logging.IncludeCaller)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("STOREFRONT_DB", "/tmp/shop.db")
	t.Setenv("STOREFRONT_STORE_ID", "ACME")
	t.Setenv("STOREFRONT_OP_TIMEOUT", "250ms")
	t.Setenv("STOREFRONT_DEFAULT_DELIVERY_DAYS", "3")
	t.Setenv("STOREFRONT_HTTP_ADDR", "127.0.0.1:9000")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_INCLUDE_CALLER", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/tmp/shop.db", cfg.Store.DatabasePath)
	assert.Equal(t, "ACME", cfg.Store.StoreID)
	assert.Equal(t, 250*time.Millisecond, cfg.Store.OperationTimeout)
	assert.Equal(t, 3, cfg.Store.DefaultDeliveryDays)
	assert.Equal(t, "127.0.0.1:9000", cfg.HTTP.Addr)
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.True(t, cfg.Logging.IncludeCaller)
}

func TestLoad_InvalidValues(t *testing.T) {
	t.Setenv("STOREFRONT_OP_TIMEOUT", "soon")
	_, err := Load()
	assert.ErrorContains(t, err, "STOREFRONT_OP_TIMEOUT")

	t.Setenv("STOREFRONT_OP_TIMEOUT", "-1s")
	_, err = Load()
	assert.ErrorContains(t, err, "must be positive")

	t.Setenv("STOREFRONT_OP_TIMEOUT", "")
	t.Setenv("STOREFRONT_DEFAULT_DELIVERY_DAYS", "-4")
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Store.DefaultDeliveryDays)
}
