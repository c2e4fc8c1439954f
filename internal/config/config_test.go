package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "LEDGER_BACKEND", "MAX_TOOL_ITERATIONS", "HISTORY_LIMIT", "AMQP_URL", "RATE_LIMIT_RPS"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, LedgerMemory, cfg.LedgerBackend)
	assert.Equal(t, 5, cfg.MaxToolIterations)
	assert.Equal(t, 20, cfg.HistoryLimit)
	assert.Equal(t, 2.0, cfg.RateLimitRPS)
	assert.Empty(t, cfg.AMQPURL)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("REASONING_TIMEOUT", "15s")
	t.Setenv("BATCH_CONCURRENCY", "not-a-number")
	t.Setenv("LOG_JSON", "true")

	cfg := Load()
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 15*time.Second, cfg.ReasoningTimeout)
	assert.Equal(t, 4, cfg.BatchConcurrency)
	assert.True(t, cfg.LogJSON)
	assert.Equal(t, ":9090", cfg.Address())
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Port: "8080", LedgerBackend: LedgerMemory, ReasoningTimeout: time.Second,
			MaxToolIterations: 5, HistoryLimit: 20, RateLimitRPS: 2, RateLimitBurst: 5, BatchConcurrency: 4,
		}
	}

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"bad port", func(c *Config) { c.Port = "http" }, "invalid port"},
		{"port range", func(c *Config) { c.Port = "70000" }, "between 1 and 65535"},
		{"unknown backend", func(c *Config) { c.LedgerBackend = "sqlite" }, "invalid ledger backend"},
		{"bigquery without project", func(c *Config) { c.LedgerBackend = LedgerBigQuery; c.BigQueryDataset = "d" }, "BIGQUERY_PROJECT"},
		{"amqp scheme", func(c *Config) { c.AMQPURL = "http://broker"; c.AMQPExchange = "x"; c.AMQPQueue = "q" }, "scheme"},
		{"amqp names", func(c *Config) { c.AMQPURL = "amqp://broker" }, "cannot be empty"},
		{"iterations", func(c *Config) { c.MaxToolIterations = 0 }, "MAX_TOOL_ITERATIONS"},
		{"history", func(c *Config) { c.HistoryLimit = 0 }, "HISTORY_LIMIT"},
		{"rate", func(c *Config) { c.RateLimitRPS = 0 }, "RATE_LIMIT_RPS"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	c := &Config{Port: "x", LedgerBackend: "y"}
	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid port")
	assert.Contains(t, err.Error(), "invalid ledger backend")
	assert.Contains(t, err.Error(), "BATCH_CONCURRENCY")
}
