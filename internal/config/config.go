// Package config loads gateway settings from defaults, an optional YAML file
// and GATEWAY_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/example/paygate/internal/ratelimit"
	"github.com/example/paygate/internal/resilience"
)

const EnvPrefix = "GATEWAY"

type Config struct {
	Server     ServerConfig    `mapstructure:"server"`
	Bank       BankConfig      `mapstructure:"bank"`
	RateLimit  RateLimitConfig `mapstructure:"ratelimit"`
	Breaker    BreakerConfig   `mapstructure:"breaker"`
	Retry      RetryConfig     `mapstructure:"retry"`
	Currencies []string        `mapstructure:"currencies"`
	Store      StoreConfig     `mapstructure:"store"`
	Events     EventsConfig    `mapstructure:"events"`
	Log        LogConfig       `mapstructure:"log"`
}

type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type BankConfig struct {
	URL            string        `mapstructure:"url"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
}

type LimitConfig struct {
	Capacity   int     `mapstructure:"capacity"`
	RefillRate float64 `mapstructure:"refill_rate"`
}

type RateLimitConfig struct {
	PathPrefix string      `mapstructure:"path_prefix"`
	Post       LimitConfig `mapstructure:"post"`
	Get        LimitConfig `mapstructure:"get"`
}

type BreakerConfig struct {
	SlidingWindowSize    int           `mapstructure:"sliding_window_size"`
	FailureRateThreshold float64       `mapstructure:"failure_rate_threshold"`
	WaitDuration         time.Duration `mapstructure:"wait_duration"`
	HalfOpenCalls        int           `mapstructure:"half_open_calls"`
}

type RetryConfig struct {
	MaxAttempts  int           `mapstructure:"max_attempts"`
	WaitDuration time.Duration `mapstructure:"wait_duration"`
}

// StoreConfig selects the payment store: memory, redis or postgres.
type StoreConfig struct {
	Backend     string        `mapstructure:"backend"`
	RedisAddr   string        `mapstructure:"redis_addr"`
	RedisTTL    time.Duration `mapstructure:"redis_ttl"`
	PostgresDSN string        `mapstructure:"postgres_dsn"`
}

// EventsConfig enables kafka publishing when Brokers is non-empty.
type EventsConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8090")
	v.SetDefault("server.read_timeout", 15*time.Second)
	v.SetDefault("server.write_timeout", 15*time.Second)
	v.SetDefault("server.idle_timeout", 60*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("bank.url", "http://localhost:8080")
	v.SetDefault("bank.connect_timeout", 10*time.Second)
	v.SetDefault("bank.read_timeout", 10*time.Second)

	v.SetDefault("ratelimit.path_prefix", "/v1/payment")
	v.SetDefault("ratelimit.post.capacity", 200)
	v.SetDefault("ratelimit.post.refill_rate", 100.0)
	v.SetDefault("ratelimit.get.capacity", 1000)
	v.SetDefault("ratelimit.get.refill_rate", 500.0)

	v.SetDefault("breaker.sliding_window_size", 10)
	v.SetDefault("breaker.failure_rate_threshold", 50.0)
	v.SetDefault("breaker.wait_duration", 30*time.Second)
	v.SetDefault("breaker.half_open_calls", 3)

	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.wait_duration", 500*time.Millisecond)

	v.SetDefault("currencies", []string{"GBP", "USD", "EUR"})

	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.redis_addr", "localhost:6379")
	v.SetDefault("store.redis_ttl", time.Duration(0)) // 0 keeps entries forever
	v.SetDefault("store.postgres_dsn", "")

	v.SetDefault("events.brokers", []string{})
	v.SetDefault("events.topic", "payments.events")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load reads path when non-empty and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg, err := Load("")
	if err != nil {
		panic(err)
	}
	return cfg
}

func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}
	check(c.Server.Addr != "", "server.addr must be set")
	check(c.Bank.URL != "", "bank.url must be set")
	check(c.Bank.ConnectTimeout > 0 && c.Bank.ReadTimeout > 0, "bank timeouts must be positive")
	for name, l := range map[string]LimitConfig{"post": c.RateLimit.Post, "get": c.RateLimit.Get} {
		check(l.Capacity > 0, "ratelimit.%s.capacity must be positive, got %d", name, l.Capacity)
		check(l.RefillRate > 0, "ratelimit.%s.refill_rate must be positive, got %v", name, l.RefillRate)
	}
	check(c.Breaker.SlidingWindowSize >= 1, "breaker.sliding_window_size must be at least 1")
	check(c.Breaker.FailureRateThreshold > 0 && c.Breaker.FailureRateThreshold <= 100,
		"breaker.failure_rate_threshold must be in (0,100], got %v", c.Breaker.FailureRateThreshold)
	check(c.Breaker.WaitDuration > 0, "breaker.wait_duration must be positive")
	check(c.Breaker.HalfOpenCalls >= 1, "breaker.half_open_calls must be at least 1")
	check(c.Retry.MaxAttempts >= 1, "retry.max_attempts must be at least 1")
	check(c.Retry.WaitDuration >= 0, "retry.wait_duration must not be negative")
	check(len(c.Currencies) > 0, "currencies must not be empty")

	switch c.Store.Backend {
	case "memory":
	case "redis":
		check(c.Store.RedisAddr != "", "store.redis_addr must be set for the redis backend")
		check(c.Store.RedisTTL >= 0, "store.redis_ttl must not be negative")
	case "postgres":
		check(c.Store.PostgresDSN != "", "store.postgres_dsn must be set for the postgres backend")
	default:
		errs = append(errs, fmt.Errorf("unknown store.backend %q", c.Store.Backend))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func (c *Config) Limiter() ratelimit.Config {
	return ratelimit.Config{
		Mutating: ratelimit.EndpointLimit{Capacity: c.RateLimit.Post.Capacity, RefillRate: c.RateLimit.Post.RefillRate},
		Read:     ratelimit.EndpointLimit{Capacity: c.RateLimit.Get.Capacity, RefillRate: c.RateLimit.Get.RefillRate},
	}
}

func (c *Config) CircuitBreaker() resilience.BreakerConfig {
	return resilience.BreakerConfig{
		WindowSize:           c.Breaker.SlidingWindowSize,
		FailureRateThreshold: c.Breaker.FailureRateThreshold,
		WaitDuration:         c.Breaker.WaitDuration,
		HalfOpenCalls:        c.Breaker.HalfOpenCalls,
	}
}

func (c *Config) RetryPolicy() resilience.RetryConfig {
	return resilience.RetryConfig{MaxAttempts: c.Retry.MaxAttempts, Wait: c.Retry.WaitDuration}
}
