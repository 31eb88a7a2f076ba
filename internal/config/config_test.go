package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/paygate/internal/ratelimit"
	"github.com/example/paygate/internal/resilience"
)

func TestDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8090", cfg.Server.Addr)
	assert.Equal(t, "http://localhost:8080", cfg.Bank.URL)
	assert.Equal(t, 10*time.Second, cfg.Bank.ConnectTimeout)
	assert.Equal(t, "/v1/payment", cfg.RateLimit.PathPrefix)
	assert.Equal(t, []string{"GBP", "USD", "EUR"}, cfg.Currencies)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.Zero(t, cfg.Store.RedisTTL, "redis entries do not expire unless configured")
	assert.Empty(t, cfg.Events.Brokers)

	assert.Equal(t, ratelimit.Config{
		Mutating: ratelimit.EndpointLimit{Capacity: 200, RefillRate: 100},
		Read:     ratelimit.EndpointLimit{Capacity: 1000, RefillRate: 500},
	}, cfg.Limiter())
	assert.Equal(t, resilience.BreakerConfig{
		WindowSize: 10, FailureRateThreshold: 50, WaitDuration: 30 * time.Second, HalfOpenCalls: 3,
	}, cfg.CircuitBreaker())
	assert.Equal(t, resilience.RetryConfig{MaxAttempts: 3, Wait: 500 * time.Millisecond}, cfg.RetryPolicy())
}

func TestLoadFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
bank:
  url: http://bank.internal:9000
  read_timeout: 2s
ratelimit:
  post:
    capacity: 5
currencies: [GBP]
breaker:
  wait_duration: 1m
`), 0o644))
	t.Setenv("GATEWAY_RATELIMIT_POST_CAPACITY", "7")
	t.Setenv("GATEWAY_LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "http://bank.internal:9000", cfg.Bank.URL)
	assert.Equal(t, 2*time.Second, cfg.Bank.ReadTimeout)
	assert.Equal(t, 10*time.Second, cfg.Bank.ConnectTimeout)
	assert.Equal(t, 7, cfg.RateLimit.Post.Capacity, "env overrides file")
	assert.Equal(t, 100.0, cfg.RateLimit.Post.RefillRate)
	assert.Equal(t, []string{"GBP"}, cfg.Currencies)
	assert.Equal(t, time.Minute, cfg.Breaker.WaitDuration)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"zero capacity":      func(c *Config) { c.RateLimit.Post.Capacity = 0 },
		"negative refill":    func(c *Config) { c.RateLimit.Get.RefillRate = -1 },
		"empty window":       func(c *Config) { c.Breaker.SlidingWindowSize = 0 },
		"threshold over 100": func(c *Config) { c.Breaker.FailureRateThreshold = 101 },
		"zero threshold":     func(c *Config) { c.Breaker.FailureRateThreshold = 0 },
		"no attempts":        func(c *Config) { c.Retry.MaxAttempts = 0 },
		"no currencies":      func(c *Config) { c.Currencies = nil },
		"unknown backend":    func(c *Config) { c.Store.Backend = "mongo" },
		"postgres no dsn":    func(c *Config) { c.Store.Backend = "postgres" },
		"negative redis ttl": func(c *Config) { c.Store = StoreConfig{Backend: "redis", RedisAddr: "localhost:6379", RedisTTL: -time.Second} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
	assert.NoError(t, Default().Validate())
}
