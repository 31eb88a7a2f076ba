package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/paygate/internal/api"
	"github.com/example/paygate/internal/bank"
	"github.com/example/paygate/internal/config"
	"github.com/example/paygate/internal/events"
	"github.com/example/paygate/internal/logging"
	"github.com/example/paygate/internal/orchestrator"
	"github.com/example/paygate/internal/ratelimit"
	"github.com/example/paygate/internal/resilience"
	"github.com/example/paygate/internal/store"
	"github.com/example/paygate/internal/validation"
)

func serveCmd() *cobra.Command {
	var configPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the payment gateway HTTP API.

Settings come from built-in defaults, the optional --config YAML file and
GATEWAY_* environment variables (GATEWAY_BANK_URL, GATEWAY_STORE_BACKEND, ...).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			logger, err := logging.New(os.Stdout, cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg, logger)
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to a YAML config file")
	return cmd
}

// run serves until ctx is cancelled, then drains in-flight requests.
func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	st, err := openStore(ctx, cfg.Store)
	if err != nil {
		return err
	}
	defer st.Close()

	pub := openPublisher(cfg.Events, logger)
	defer pub.Close()

	client := bank.NewClient(cfg.Bank.URL, cfg.Bank.ConnectTimeout, cfg.Bank.ReadTimeout)
	breaker := resilience.NewBreaker("bank", cfg.CircuitBreaker(), logger)
	pipeline := resilience.NewPipeline(client, breaker, cfg.RetryPolicy(), logger)

	proc := orchestrator.New(
		validation.New(time.Now, cfg.Currencies),
		pipeline,
		st,
		orchestrator.WithPublisher(pub),
		orchestrator.WithHook(orchestrator.MetricsHook{}),
		orchestrator.WithLogger(logger),
	)

	server := &http.Server{
		Addr: cfg.Server.Addr,
		Handler: api.NewHandler(api.Deps{
			Payments:   proc,
			Limiter:    ratelimit.New(cfg.Limiter(), time.Now),
			PathPrefix: cfg.RateLimit.PathPrefix,
			Logger:     logger,
		}),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", "addr", cfg.Server.Addr, "bank", cfg.Bank.URL, "store", cfg.Store.Backend)
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}

func openStore(ctx context.Context, cfg config.StoreConfig) (store.Store, error) {
	switch cfg.Backend {
	case "redis":
		s := store.NewRedis(cfg.RedisAddr, cfg.RedisTTL)
		if err := s.Ping(ctx); err != nil {
			s.Close()
			return nil, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
		}
		return s, nil
	case "postgres":
		return store.NewPostgres(ctx, cfg.PostgresDSN)
	case "memory", "":
		return store.NewMemory(), nil
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Backend)
}

func openPublisher(cfg config.EventsConfig, logger *slog.Logger) events.Publisher {
	if len(cfg.Brokers) == 0 {
		return events.Noop{}
	}
	return events.NewKafka(cfg.Brokers, cfg.Topic, logger)
}
