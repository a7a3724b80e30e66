// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package outline turns a free-form topic into a structured picture-book
// outline by prompting the active text provider. Three wire protocols are
// supported: the Gemini generate-content API, the OpenAI chat completions API
// and the Anthropic messages API. Providers reply with prose around a JSON
// object; the parser extracts and validates that object.
package outline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/n1n-api/xiaoshubao/configapi"
	"github.com/n1n-api/xiaoshubao/internal/metrics"
	"github.com/n1n-api/xiaoshubao/internal/prompt"
	"github.com/n1n-api/xiaoshubao/internal/taskstate"
)

// Defaults applied when the provider configuration leaves the model empty.
const (
	defaultGeminiModel    = "gemini-2.0-flash-exp"
	defaultChatModel      = "gpt-3.5-turbo"
	defaultAnthropicModel = "claude-sonnet-4-20250514"
)

// connectionTestPrompt is sent verbatim when testing connectivity. Any
// non-empty reply counts as success.
const connectionTestPrompt = "请回复'你好'"

// InputError reports request input that cannot produce an outline, such as an
// empty topic.
type InputError struct {
	Message string
}

// Error implements error.
func (e *InputError) Error() string { return e.Message }

// ConfigError reports provider or template configuration that cannot produce
// a working service.
type ConfigError struct {
	Message string
}

// Error implements error.
func (e *ConfigError) Error() string { return e.Message }

// Outline is the structured outline parsed from the provider's reply.
type Outline struct {
	// Title is the picture-book title.
	Title string `json:"title"`
	// Pages are the pages to illustrate, cover included.
	Pages []taskstate.Page `json:"pages"`
}

// Result carries the parsed outline plus its pretty-printed JSON form, which
// downstream image prompts receive as the full outline context.
type Result struct {
	Outline     Outline
	FullOutline string
}

// textClient produces one completion per call. Implementations that cannot
// forward reference images ignore them.
type textClient interface {
	Complete(ctx context.Context, prompt string, refs [][]byte) (string, error)
}

// Service generates outlines with the active text provider.
type Service struct {
	providerName   string
	provider       *configapi.TextProvider
	template       string
	client         textClient
	metricsFactory metrics.GenerationMetricsFactory
	logger         *slog.Logger
}

// New constructs the outline service from the loaded configuration. The
// active text provider must exist and carry an api key; the outline prompt
// template is checked per request so the service can be constructed before
// the template is installed.
func New(ctx context.Context, cfg *configapi.Config, metricsFactory metrics.GenerationMetricsFactory, logger *slog.Logger) (*Service, error) {
	provider, ok := cfg.TextProviders.Active()
	if !ok {
		return nil, &ConfigError{Message: fmt.Sprintf("text provider %q is not configured", cfg.TextProviders.ActiveProvider)}
	}
	if provider.APIKey == "" {
		return nil, &ConfigError{Message: fmt.Sprintf("text provider %q has no api_key configured", cfg.TextProviders.ActiveProvider)}
	}
	client, err := newClient(ctx, provider)
	if err != nil {
		return nil, &ConfigError{Message: err.Error()}
	}

	s := &Service{
		providerName:   cfg.TextProviders.ActiveProvider,
		provider:       provider,
		template:       cfg.Prompts.Outline,
		client:         client,
		metricsFactory: metricsFactory,
		logger:         logger,
	}
	s.logger.Info("outline service ready",
		slog.String("provider", s.providerName),
		slog.String("type", string(provider.Type)))
	return s, nil
}

// Generate renders the outline prompt for the topic, asks the provider and
// parses the JSON outline out of the reply. Reference images are forwarded to
// providers that accept them.
func (s *Service) Generate(ctx context.Context, topic string, refs [][]byte) (*Result, error) {
	if strings.TrimSpace(topic) == "" {
		return nil, &InputError{Message: "topic must not be empty"}
	}
	p, err := prompt.Outline(s.template, topic)
	if err != nil {
		return nil, &ConfigError{Message: err.Error()}
	}

	s.logger.Info("generating outline",
		slog.String("provider", s.providerName),
		slog.Int("reference_images", len(refs)))

	m := s.metricsFactory()
	m.StartRequest()
	m.SetModel(modelName(s.provider))
	m.SetProvider(metrics.TextProviderName(s.provider.Type))

	start := time.Now()
	reply, err := s.client.Complete(ctx, p, refs)
	m.RecordPageGeneration(ctx, err == nil, "", time.Since(start))
	if err != nil {
		m.RecordRequestCompletion(ctx, false)
		return nil, fmt.Errorf("failed to generate outline: %w", err)
	}

	result, err := parseOutline(reply)
	m.RecordRequestCompletion(ctx, err == nil)
	if err != nil {
		return nil, err
	}

	s.logger.Info("outline generated",
		slog.String("title", result.Outline.Title),
		slog.Int("pages", len(result.Outline.Pages)))
	return result, nil
}

// TestConnection verifies that the given text provider is reachable by asking
// for a short completion. A nil error means the test passed; the message
// carries the beginning of the reply.
func TestConnection(ctx context.Context, provider *configapi.TextProvider) (string, error) {
	client, err := newClient(ctx, provider)
	if err != nil {
		return "", err
	}
	reply, err := client.Complete(ctx, connectionTestPrompt, nil)
	if err != nil {
		return "", fmt.Errorf("connection test failed: %w", err)
	}
	if strings.TrimSpace(reply) == "" {
		return "", errors.New("connection succeeded but the response was empty")
	}
	return fmt.Sprintf("connection succeeded, response: %s", truncate(reply, 100)), nil
}

// newClient constructs the text client for the given provider configuration.
func newClient(ctx context.Context, provider *configapi.TextProvider) (textClient, error) {
	switch provider.Type {
	case configapi.TextProviderGoogleGemini:
		return newGemini(ctx, provider)
	case configapi.TextProviderOpenAICompatible:
		return newOpenAIChat(provider), nil
	case configapi.TextProviderAnthropic:
		return newAnthropic(provider), nil
	default:
		return nil, fmt.Errorf("unsupported text provider type %q", provider.Type)
	}
}

// modelName returns the model the provider configuration will request,
// falling back to the protocol default when unset.
func modelName(provider *configapi.TextProvider) string {
	if provider.Model != "" {
		return provider.Model
	}
	switch provider.Type {
	case configapi.TextProviderGoogleGemini:
		return defaultGeminiModel
	case configapi.TextProviderOpenAICompatible:
		return defaultChatModel
	case configapi.TextProviderAnthropic:
		return defaultAnthropicModel
	default:
		return ""
	}
}

// parseOutline extracts the outline JSON object from the reply. Providers
// routinely wrap the JSON in markdown fences or prose, so everything outside
// the outermost braces is discarded.
func parseOutline(reply string) (*Result, error) {
	raw := extractJSON(reply)
	if raw == "" {
		return nil, fmt.Errorf("no JSON object in outline reply %q", truncate(reply, 200))
	}

	var o Outline
	if err := json.Unmarshal([]byte(raw), &o); err != nil {
		return nil, fmt.Errorf("failed to parse outline JSON: %w", err)
	}
	if len(o.Pages) == 0 {
		return nil, errors.New("outline has no pages")
	}

	full, err := json.MarshalIndent(o, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal outline: %w", err)
	}
	return &Result{Outline: o, FullOutline: string(full)}, nil
}

// extractJSON returns the substring from the first '{' to the last '}', or ""
// when the text contains no braced object.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

// normalizeBaseURL strips a trailing slash and a trailing /v1 so that
// versioned paths can be appended regardless of how the endpoint was
// configured.
func normalizeBaseURL(base string) string {
	return strings.TrimSuffix(strings.TrimSuffix(base, "/"), "/v1")
}

// truncate limits s to at most n runes for inclusion in messages.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
