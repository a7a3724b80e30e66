// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"

	"github.com/n1n-api/xiaoshubao/internal/catalog"
	"github.com/n1n-api/xiaoshubao/internal/metrics"
	"github.com/n1n-api/xiaoshubao/internal/pprof"
	"github.com/n1n-api/xiaoshubao/internal/server"
	"github.com/n1n-api/xiaoshubao/internal/taskstate"
	"github.com/n1n-api/xiaoshubao/internal/tracing"
	"github.com/n1n-api/xiaoshubao/internal/version"
)

// shutdownTimeout bounds the graceful drain of the HTTP server and the
// telemetry providers on termination.
const shutdownTimeout = 10 * time.Second

// serve wires the backend together and blocks until ctx is canceled or the
// server fails.
func serve(ctx context.Context, c cmdServe, stdout, stderr io.Writer) error {
	level, err := parseLogLevel(c.LogLevel)
	if err != nil {
		return err
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	logger.Info("starting xiaoshubao backend",
		slog.String("version", version.Parse()),
		slog.String("address", c.Addr),
		slog.String("config_dir", c.ConfigDir))

	pprof.Run(ctx, logger.With(slog.String("component", "pprof")))

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	promReader, err := otelprom.New(otelprom.WithRegisterer(promRegistry))
	if err != nil {
		return fmt.Errorf("failed to create prometheus reader: %w", err)
	}
	meter, metricsShutdown, err := metrics.NewMetricsFromEnv(ctx, stdout, promReader)
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}
	traces, err := tracing.NewTracingFromEnv(ctx, stdout)
	if err != nil {
		return fmt.Errorf("failed to create tracing: %w", err)
	}

	registry, err := newRegistry(ctx, c, logger)
	if err != nil {
		return err
	}
	catalogStore, err := newCatalog(ctx, c, logger)
	if err != nil {
		return err
	}

	srv := server.New(server.Options{
		Logger:         logger,
		ConfigDir:      c.ConfigDir,
		Registry:       registry,
		Catalog:        catalogStore,
		ImageMetrics:   metrics.NewGenerationFactory(meter),
		OutlineMetrics: metrics.NewOutlineFactory(meter),
		Tracer:         traces.GenerationTracer(),
		MetricsHandler: promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}),
	})
	if err := server.StartConfigWatcher(ctx, c.ConfigDir, srv, logger.With(slog.String("component", "watcher")), c.WatchInterval); err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:              c.Addr,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shut down http server", slog.String("error", err.Error()))
	}
	if err := metricsShutdown(shutdownCtx); err != nil {
		logger.Error("failed to shut down metrics", slog.String("error", err.Error()))
	}
	if err := traces.Shutdown(shutdownCtx); err != nil {
		logger.Error("failed to shut down tracing", slog.String("error", err.Error()))
	}
	return nil
}

// newRegistry picks the task state backend: Redis when an address is
// configured, in-memory otherwise.
func newRegistry(ctx context.Context, c cmdServe, logger *slog.Logger) (taskstate.Registry, error) {
	if c.RedisAddr == "" {
		logger.Info("using in-memory task state registry")
		return taskstate.NewInMemory(), nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: c.RedisAddr})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", c.RedisAddr, err)
	}
	logger.Info("using redis task state registry", slog.String("addr", c.RedisAddr))
	return taskstate.NewRedis(rdb)
}

// newCatalog picks the history backend: Mongo when a URI is configured,
// in-memory otherwise.
func newCatalog(ctx context.Context, c cmdServe, logger *slog.Logger) (catalog.Store, error) {
	if c.MongoURI == "" {
		logger.Info("using in-memory history catalog")
		return catalog.NewInMemory(), nil
	}
	store, err := catalog.NewMongo(ctx, c.MongoURI, c.MongoDatabase)
	if err != nil {
		return nil, err
	}
	logger.Info("using mongo history catalog", slog.String("database", c.MongoDatabase))
	return store, nil
}

// parseLogLevel maps the CLI log level flag to a slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch level {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, errors.New("unknown log level " + level)
	}
}
