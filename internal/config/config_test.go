package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(m map[string]string) func(string) string {
	return func(k string) string { return m[k] }
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(nil, env(nil))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, 30*time.Second, cfg.RefreshInterval)
	assert.Equal(t, 15*time.Second, cfg.RefreshTimeout)
	assert.True(t, cfg.PublicOnly)
	assert.Equal(t, "60123456789", cfg.WhatsAppNumber)
	assert.Equal(t, StoreMemory, cfg.StoreDriver)
	assert.Equal(t, CartsMemory, cfg.CartStore)
}

func TestLoad_EnvThenFlags(t *testing.T) {
	cfg, err := Load(
		[]string{"-addr", ":9090", "-public-only=false"},
		env(map[string]string{
			"HTTP_ADDR":        ":7070",
			"REFRESH_INTERVAL": "5s",
			"STORE_DRIVER":     "postgres",
			"DB_HOST":          "db",
			"DB_PORT":          "6543",
			"DB_PASSWORD":      "pw",
			"DB_MIGRATE":       "true",
			"CART_STORE":       "pebble",
			"KAFKA_BROKERS":    "k1:9092",
		}),
	)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.False(t, cfg.PublicOnly)
	assert.Equal(t, 5*time.Second, cfg.RefreshInterval)
	assert.Equal(t, StorePostgres, cfg.StoreDriver)
	assert.Equal(t, "db", cfg.DB.Host)
	assert.Equal(t, 6543, cfg.DB.Port)
	assert.True(t, cfg.Migrate)
	assert.Equal(t, CartsPebble, cfg.CartStore)
	assert.Equal(t, "k1:9092", cfg.KafkaBrokers)
	assert.Contains(t, cfg.DB.DSN(), "password=pw")
}

func TestLoad_BadEnvValues(t *testing.T) {
	_, err := Load(nil, env(map[string]string{
		"DB_PORT":          "five",
		"PUBLIC_ONLY":      "maybe",
		"REFRESH_INTERVAL": "soon",
	}))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalid)
	assert.Contains(t, err.Error(), "DB_PORT")
	assert.Contains(t, err.Error(), "PUBLIC_ONLY")
	assert.Contains(t, err.Error(), "REFRESH_INTERVAL")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty addr", func(c *Config) { c.HTTPAddr = "" }},
		{"zero interval", func(c *Config) { c.RefreshInterval = 0 }},
		{"zero timeout", func(c *Config) { c.RefreshTimeout = 0 }},
		{"plus in number", func(c *Config) { c.WhatsAppNumber = "+60123" }},
		{"unknown store", func(c *Config) { c.StoreDriver = "mysql" }},
		{"bad port", func(c *Config) { c.StoreDriver = StorePostgres; c.DB.Port = 70000 }},
		{"unknown carts", func(c *Config) { c.CartStore = "redis" }},
		{"pebble without dir", func(c *Config) { c.CartStore = CartsPebble; c.CartDir = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}

	assert.NoError(t, Default().Validate())
}

func TestLoad_UnknownFlag(t *testing.T) {
	_, err := Load([]string{"-nope"}, env(nil))
	assert.Error(t, err)
}
