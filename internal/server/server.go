// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package server exposes the picture-book backend over HTTP: outline and
// image generation as server-sent-event streams, task inspection, the history
// catalog and the configuration admin API.
//
// The server holds one configuration snapshot at a time. The engine and the
// outline service are rebuilt when the snapshot changes; requests already in
// flight keep the services they started with.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/n1n-api/xiaoshubao/configapi"
	"github.com/n1n-api/xiaoshubao/internal/catalog"
	"github.com/n1n-api/xiaoshubao/internal/engine"
	"github.com/n1n-api/xiaoshubao/internal/metrics"
	"github.com/n1n-api/xiaoshubao/internal/objectstore"
	"github.com/n1n-api/xiaoshubao/internal/outline"
	"github.com/n1n-api/xiaoshubao/internal/taskstate"
	"github.com/n1n-api/xiaoshubao/internal/tracing"
)

// keepAliveInterval is how often comment frames are written on an SSE stream
// while a long operation is still running. 5s stays under common intermediary
// idle timeouts.
const keepAliveInterval = 5 * time.Second

// Options configures a Server.
type Options struct {
	Logger *slog.Logger
	// ConfigDir is the directory config updates are written back to.
	ConfigDir string
	// Registry holds per-task generation state.
	Registry taskstate.Registry
	// Catalog persists history records.
	Catalog catalog.Store
	// ImageMetrics and OutlineMetrics create per-task metric recorders.
	ImageMetrics   metrics.GenerationMetricsFactory
	OutlineMetrics metrics.GenerationMetricsFactory
	// Tracer traces generation tasks.
	Tracer tracing.GenerationTracer
	// MetricsHandler serves GET /metrics. Optional.
	MetricsHandler http.Handler
}

// Server is the HTTP API of the backend. It implements ConfigReceiver so the
// config watcher can swap the configuration snapshot at runtime.
type Server struct {
	logger         *slog.Logger
	configDir      string
	registry       taskstate.Registry
	catalog        catalog.Store
	imageMetrics   metrics.GenerationMetricsFactory
	outlineMetrics metrics.GenerationMetricsFactory
	tracer         tracing.GenerationTracer
	metricsHandler http.Handler

	// keepAlive is overridden in tests to avoid real 5s waits.
	keepAlive time.Duration

	mu          sync.RWMutex
	cfg         *configapi.Config
	store       objectstore.Store
	images      *engine.Service
	imagesErr   error
	outlines    *outline.Service
	outlinesErr error
}

// New builds a Server. The configuration is loaded separately via LoadConfig,
// normally through the config watcher.
func New(opts Options) *Server {
	return &Server{
		logger:         opts.Logger,
		configDir:      opts.ConfigDir,
		registry:       opts.Registry,
		catalog:        opts.Catalog,
		imageMetrics:   opts.ImageMetrics,
		outlineMetrics: opts.OutlineMetrics,
		tracer:         opts.Tracer,
		metricsHandler: opts.MetricsHandler,
		keepAlive:      keepAliveInterval,
		cfg:            configapi.MustLoadDefaultConfig(),
	}
}

// LoadConfig swaps the configuration snapshot and rebuilds the services on
// it. A provider that cannot be constructed does not fail the load: the
// server keeps running and the affected endpoints report the configuration
// error, so the backend can be configured through the admin API.
func (s *Server) LoadConfig(ctx context.Context, cfg *configapi.Config) error {
	store, err := objectstore.FromConfig(ctx, &cfg.Storage, s.logger.With(slog.String("component", "objectstore")))
	if err != nil {
		return err
	}
	images, imagesErr := engine.New(ctx, cfg, store, s.registry,
		s.imageMetrics, s.tracer, s.logger.With(slog.String("component", "engine")))
	if imagesErr != nil {
		s.logger.Warn("image generation unavailable", slog.String("error", imagesErr.Error()))
	}
	outlines, outlinesErr := outline.New(ctx, cfg,
		s.outlineMetrics, s.logger.With(slog.String("component", "outline")))
	if outlinesErr != nil {
		s.logger.Warn("outline generation unavailable", slog.String("error", outlinesErr.Error()))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	s.store = store
	s.images, s.imagesErr = images, imagesErr
	s.outlines, s.outlinesErr = outlines, outlinesErr
	return nil
}

// Router returns the HTTP routes of the server.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	api := r.PathPrefix("/api").Subrouter()

	api.HandleFunc("/outline", s.handleOutline).Methods(http.MethodPost)

	api.HandleFunc("/generate/images", s.handleGenerateImages).Methods(http.MethodPost)
	api.HandleFunc("/generate/retry", s.handleRetry).Methods(http.MethodPost)
	api.HandleFunc("/generate/regenerate", s.handleRegenerate).Methods(http.MethodPost)
	api.HandleFunc("/generate/retry-failed", s.handleRetryFailed).Methods(http.MethodPost)

	api.HandleFunc("/tasks/{taskID}", s.handleGetTask).Methods(http.MethodGet)
	api.HandleFunc("/tasks/{taskID}", s.handleDeleteTask).Methods(http.MethodDelete)
	api.HandleFunc("/images/{taskID}/{filename}", s.handleImage).Methods(http.MethodGet)

	api.HandleFunc("/config", s.handleGetConfig).Methods(http.MethodGet)
	api.HandleFunc("/config", s.handleUpdateConfig).Methods(http.MethodPost)
	api.HandleFunc("/config/test", s.handleTestConfig).Methods(http.MethodPost)

	api.HandleFunc("/history", s.handleListHistory).Methods(http.MethodGet)
	api.HandleFunc("/history", s.handleCreateHistory).Methods(http.MethodPost)
	api.HandleFunc("/history/search", s.handleSearchHistory).Methods(http.MethodGet)
	api.HandleFunc("/history/statistics", s.handleHistoryStatistics).Methods(http.MethodGet)
	api.HandleFunc("/history/{id}", s.handleGetHistory).Methods(http.MethodGet)
	api.HandleFunc("/history/{id}", s.handleUpdateHistory).Methods(http.MethodPut)
	api.HandleFunc("/history/{id}", s.handleDeleteHistory).Methods(http.MethodDelete)
	api.HandleFunc("/history/{id}/sync", s.handleSyncHistory).Methods(http.MethodPost)

	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	if s.metricsHandler != nil {
		r.Handle("/metrics", s.metricsHandler).Methods(http.MethodGet)
	}
	return r
}

// engineService returns the current engine, or the error explaining why no
// engine is available.
func (s *Server) engineService() (*engine.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.images == nil {
		if s.imagesErr != nil {
			return nil, s.imagesErr
		}
		return nil, &engine.ConfigError{Message: "image provider is not configured"}
	}
	return s.images, nil
}

// outlineService returns the current outline service, or the error explaining
// why none is available.
func (s *Server) outlineService() (*outline.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.outlines == nil {
		if s.outlinesErr != nil {
			return nil, s.outlinesErr
		}
		return nil, &outline.ConfigError{Message: "text provider is not configured"}
	}
	return s.outlines, nil
}

// objectStore returns the current object store.
func (s *Server) objectStore() objectstore.Store {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.store
}

// config returns the current configuration snapshot.
func (s *Server) config() *configapi.Config {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON writes v as the JSON response body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps the error taxonomy to HTTP statuses: input and
// configuration problems are the client's to fix, everything else is a 500.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var inputErr *engine.InputError
	var cfgErr *engine.ConfigError
	var outlineInputErr *outline.InputError
	var outlineCfgErr *outline.ConfigError
	if errors.As(err, &inputErr) || errors.As(err, &outlineInputErr) ||
		errors.As(err, &cfgErr) || errors.As(err, &outlineCfgErr) {
		status = http.StatusBadRequest
	}
	writeJSON(w, status, map[string]any{"success": false, "error": err.Error()})
}
