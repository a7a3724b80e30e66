// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/n1n-api/xiaoshubao/configapi"
	"github.com/n1n-api/xiaoshubao/internal/generator"
	"github.com/n1n-api/xiaoshubao/internal/outline"
)

// connectionTestTimeout bounds one admin connection test.
const connectionTestTimeout = 30 * time.Second

// configView is the wire shape of the admin config API. Secrets are masked on
// GET; on POST, blank or masked secrets mean "keep the stored value".
type configView struct {
	TextProviders  textProvidersView  `json:"text_providers"`
	ImageProviders imageProvidersView `json:"image_providers"`
	Storage        storageView        `json:"storage"`
}

type textProvidersView struct {
	ActiveProvider string                      `json:"active_provider"`
	Providers      map[string]textProviderView `json:"providers"`
}

type textProviderView struct {
	Type    string `json:"type"`
	APIKey  string `json:"api_key"`
	BaseURL string `json:"base_url,omitempty"`
	Model   string `json:"model,omitempty"`
}

type imageProvidersView struct {
	ActiveProvider string                       `json:"active_provider"`
	Providers      map[string]imageProviderView `json:"providers"`
}

type imageProviderView struct {
	Type               string   `json:"type"`
	APIKey             string   `json:"api_key"`
	BaseURL            string   `json:"base_url,omitempty"`
	Model              string   `json:"model,omitempty"`
	DefaultAspectRatio string   `json:"default_aspect_ratio,omitempty"`
	DefaultSize        string   `json:"default_size,omitempty"`
	Temperature        *float64 `json:"temperature,omitempty"`
	Quality            string   `json:"quality,omitempty"`
	ShortPrompt        bool     `json:"short_prompt,omitempty"`
	HighConcurrency    bool     `json:"high_concurrency,omitempty"`
}

type storageView struct {
	EndpointURL     string `json:"endpoint_url"`
	AccessKeyID     string `json:"access_key_id"`
	SecretAccessKey string `json:"secret_access_key,omitempty"`
	BucketName      string `json:"bucket_name"`
	PublicDomain    string `json:"public_domain,omitempty"`
}

// handleGetConfig returns the current configuration with secrets masked.
func (s *Server) handleGetConfig(w http.ResponseWriter, _ *http.Request) {
	cfg := s.config()
	view := configView{
		TextProviders: textProvidersView{
			ActiveProvider: cfg.TextProviders.ActiveProvider,
			Providers:      make(map[string]textProviderView, len(cfg.TextProviders.Providers)),
		},
		ImageProviders: imageProvidersView{
			ActiveProvider: cfg.ImageProviders.ActiveProvider,
			Providers:      make(map[string]imageProviderView, len(cfg.ImageProviders.Providers)),
		},
		Storage: storageView{
			EndpointURL:  cfg.Storage.EndpointURL,
			AccessKeyID:  maskKey(cfg.Storage.AccessKeyID),
			BucketName:   cfg.Storage.BucketName,
			PublicDomain: cfg.Storage.PublicDomain,
		},
	}
	for name, p := range cfg.TextProviders.Providers {
		view.TextProviders.Providers[name] = textProviderView{
			Type:    string(p.Type),
			APIKey:  maskKey(p.APIKey),
			BaseURL: p.BaseURL,
			Model:   p.Model,
		}
	}
	for name, p := range cfg.ImageProviders.Providers {
		view.ImageProviders.Providers[name] = imageProviderView{
			Type:               string(p.Type),
			APIKey:             maskKey(p.APIKey),
			BaseURL:            p.BaseURL,
			Model:              p.Model,
			DefaultAspectRatio: p.DefaultAspectRatio,
			DefaultSize:        p.DefaultSize,
			Temperature:        p.Temperature,
			Quality:            p.Quality,
			ShortPrompt:        p.ShortPrompt,
			HighConcurrency:    p.HighConcurrency,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "config": view})
}

// handleUpdateConfig merges the submitted configuration with the stored one,
// persists it to the config directory and reloads the services. Secrets that
// arrive blank or masked keep their stored values, so the admin UI can round
// trip the GET response.
func (s *Server) handleUpdateConfig(w http.ResponseWriter, r *http.Request) {
	var view configView
	if err := json.NewDecoder(r.Body).Decode(&view); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": fmt.Sprintf("failed to parse request body: %v", err)})
		return
	}

	current := s.config()
	cfg := &configapi.Config{
		ImageProviders: configapi.ImageProviders{
			ActiveProvider: view.ImageProviders.ActiveProvider,
			Providers:      make(map[string]*configapi.ImageProvider, len(view.ImageProviders.Providers)),
		},
		TextProviders: configapi.TextProviders{
			ActiveProvider: view.TextProviders.ActiveProvider,
			Providers:      make(map[string]*configapi.TextProvider, len(view.TextProviders.Providers)),
		},
		Storage: configapi.Storage{
			EndpointURL:     view.Storage.EndpointURL,
			AccessKeyID:     view.Storage.AccessKeyID,
			SecretAccessKey: view.Storage.SecretAccessKey,
			BucketName:      view.Storage.BucketName,
			PublicDomain:    view.Storage.PublicDomain,
		},
		Prompts: current.Prompts,
	}
	for name, p := range view.ImageProviders.Providers {
		apiKey := p.APIKey
		if isMasked(apiKey) {
			if old, ok := current.ImageProviders.Providers[name]; ok {
				apiKey = old.APIKey
			} else {
				apiKey = ""
			}
		}
		cfg.ImageProviders.Providers[name] = &configapi.ImageProvider{
			Type:               configapi.ImageProviderType(p.Type),
			APIKey:             apiKey,
			BaseURL:            p.BaseURL,
			Model:              p.Model,
			DefaultAspectRatio: p.DefaultAspectRatio,
			DefaultSize:        p.DefaultSize,
			Temperature:        p.Temperature,
			Quality:            p.Quality,
			ShortPrompt:        p.ShortPrompt,
			HighConcurrency:    p.HighConcurrency,
		}
	}
	for name, p := range view.TextProviders.Providers {
		apiKey := p.APIKey
		if isMasked(apiKey) {
			if old, ok := current.TextProviders.Providers[name]; ok {
				apiKey = old.APIKey
			} else {
				apiKey = ""
			}
		}
		cfg.TextProviders.Providers[name] = &configapi.TextProvider{
			Type:    configapi.TextProviderType(p.Type),
			APIKey:  apiKey,
			BaseURL: p.BaseURL,
			Model:   p.Model,
		}
	}
	// Masked storage credentials keep both halves of the stored pair; a
	// stale access key with a fresh secret (or vice versa) is never right.
	if isMasked(view.Storage.AccessKeyID) {
		cfg.Storage.AccessKeyID = current.Storage.AccessKeyID
		cfg.Storage.SecretAccessKey = current.Storage.SecretAccessKey
	} else if view.Storage.SecretAccessKey == "" {
		cfg.Storage.SecretAccessKey = current.Storage.SecretAccessKey
	}

	if err := cfg.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": err.Error()})
		return
	}
	if err := cfg.WriteDir(s.configDir); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": err.Error()})
		return
	}
	// Reload through LoadDir so env overlays and prompt files apply the same
	// way they do for the watcher.
	loaded, err := configapi.LoadDir(s.configDir)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": err.Error()})
		return
	}
	if err := s.LoadConfig(r.Context(), loaded); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]any{"success": false, "error": err.Error()})
		return
	}
	s.logger.Info("configuration updated through admin API")
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "configuration saved"})
}

// testConfigRequest is the JSON body of POST /api/config/test. Blank or
// masked fields fall back to the stored provider named provider_name.
type testConfigRequest struct {
	Type         string `json:"type"`
	ProviderName string `json:"provider_name"`
	APIKey       string `json:"api_key"`
	BaseURL      string `json:"base_url"`
	Model        string `json:"model"`
}

// handleTestConfig runs a connection test against a provider without saving
// anything.
func (s *Server) handleTestConfig(w http.ResponseWriter, r *http.Request) {
	var req testConfigRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": fmt.Sprintf("failed to parse request body: %v", err)})
		return
	}
	if req.Type == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "type is required"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), connectionTestTimeout)
	defer cancel()
	message, err := s.testProvider(ctx, req)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": message})
}

// testProvider dispatches a connection test by provider type. Image types go
// through the generator's test, text types through the outline service's.
func (s *Server) testProvider(ctx context.Context, req testConfigRequest) (string, error) {
	cfg := s.config()
	switch configapi.ImageProviderType(req.Type) {
	case configapi.ImageProviderNativeMultimodal, "google_genai", configapi.ImageProviderImageAPI:
		provider := &configapi.ImageProvider{
			Type:    configapi.ImageProviderType(req.Type),
			APIKey:  req.APIKey,
			BaseURL: req.BaseURL,
			Model:   req.Model,
		}
		if provider.Type == "google_genai" {
			provider.Type = configapi.ImageProviderNativeMultimodal
		}
		if saved, ok := cfg.ImageProviders.Providers[req.ProviderName]; ok {
			if isMasked(provider.APIKey) {
				provider.APIKey = saved.APIKey
			}
			if provider.BaseURL == "" {
				provider.BaseURL = saved.BaseURL
			}
			if provider.Model == "" {
				provider.Model = saved.Model
			}
		}
		if provider.APIKey == "" {
			return "", fmt.Errorf("api_key is not configured")
		}
		return generator.TestConnection(ctx, provider)
	}

	switch configapi.TextProviderType(req.Type) {
	case configapi.TextProviderGoogleGemini, configapi.TextProviderOpenAICompatible, configapi.TextProviderAnthropic:
		provider := &configapi.TextProvider{
			Type:    configapi.TextProviderType(req.Type),
			APIKey:  req.APIKey,
			BaseURL: req.BaseURL,
			Model:   req.Model,
		}
		if saved, ok := cfg.TextProviders.Providers[req.ProviderName]; ok {
			if isMasked(provider.APIKey) {
				provider.APIKey = saved.APIKey
			}
			if provider.BaseURL == "" {
				provider.BaseURL = saved.BaseURL
			}
			if provider.Model == "" {
				provider.Model = saved.Model
			}
		}
		if provider.APIKey == "" {
			return "", fmt.Errorf("api_key is not configured")
		}
		return outline.TestConnection(ctx, provider)
	}
	return "", fmt.Errorf("unsupported provider type %q", req.Type)
}

// maskKey hides the middle of a secret, keeping enough of both ends to tell
// keys apart in the admin UI.
func maskKey(key string) string {
	if key == "" {
		return ""
	}
	if len(key) <= 8 {
		return "***"
	}
	return key[:4] + "***" + key[len(key)-4:]
}

// isMasked reports whether a submitted secret is blank or a masked echo of
// the stored one, both of which mean "keep what is saved".
func isMasked(key string) bool {
	return key == "" || strings.Contains(key, "*")
}
