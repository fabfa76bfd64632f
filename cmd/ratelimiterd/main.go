package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/manenim/distributed-rate-limiter/pkg/ratelimiter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

func main() {
	logger := zerolog.New(os.Stdout).With().Timestamp().Logger()

	configPath := os.Getenv("RATELIMITER_CONFIG")
	if configPath == "" {
		configPath = "./config.yaml"
	}
	cfg, err := ratelimiter.Load(configPath)
	if err != nil {
		logger.Warn().Err(err).Str("path", configPath).Msg("falling back to default config")
		cfg = ratelimiter.DefaultConfig()
	}

	store, closeStore, err := ratelimiter.BuildStore(cfg.Redis)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to coordination store")
	}
	defer closeStore()

	reg := prometheus.NewRegistry()
	metrics := ratelimiter.NewPrometheusRecorder(reg)

	clock := ratelimiter.NewSystemClock(250 * time.Millisecond)

	registry, err := ratelimiter.NewLimiterRegistry(
		cfg.WindowSize,
		cfg.Enabled,
		ratelimiter.WithClock(clock),
		ratelimiter.WithMetrics(metrics),
		ratelimiter.WithLogger(logger),
		ratelimiter.WithLogResourceKeys(cfg.LogResourceKeys...),
	)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to construct limiter registry")
	}

	syncer, err := ratelimiter.NewSyncer(registry, ratelimiter.ResolverFor(store), clock, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to construct syncer")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go clock.Start(ctx)
	go syncer.Start(ctx)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	mux.HandleFunc("/ping", func(w http.ResponseWriter, r *http.Request) {
		// Rate limit: 5 req/sec per remote IP, advisory and fail-open.
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}
		ok := registry.TryAcquire("ip:"+ip, 5)
		if !ok {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte("rate limit exceeded\n"))
			return
		}
		_, _ = w.Write([]byte("pong\n"))
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	srv := &http.Server{
		Addr:              ":8080",
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Info().Msg("shutting down")
	cancel()
	syncer.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("graceful shutdown failed")
	}
	fmt.Println("bye")
}
