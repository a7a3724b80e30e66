// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package outline

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/n1n-api/xiaoshubao/configapi"
	"github.com/n1n-api/xiaoshubao/internal/metrics"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testFactory() metrics.GenerationMetricsFactory {
	return metrics.NewOutlineFactory(noop.NewMeterProvider().Meter("test"))
}

// chatServer fakes the OpenAI chat completions endpoint.
func chatServer(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.Equal(t, "Bearer sk-chat-123456789", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		reply := map[string]any{
			"id":     "chatcmpl-test",
			"object": "chat.completion",
			"model":  "gpt-4o",
			"choices": []map[string]any{
				{"index": 0, "message": map[string]any{"role": "assistant", "content": content}, "finish_reason": "stop"},
			},
		}
		require.NoError(t, json.NewEncoder(w).Encode(reply))
	}))
}

func chatConfig(baseURL string) *configapi.Config {
	return &configapi.Config{
		TextProviders: configapi.TextProviders{
			ActiveProvider: "chat",
			Providers: map[string]*configapi.TextProvider{
				"chat": {
					Type:    configapi.TextProviderOpenAICompatible,
					APIKey:  "sk-chat-123456789",
					BaseURL: baseURL,
				},
			},
		},
		Prompts: configapi.Prompts{Outline: "为主题 {topic} 生成绘本大纲"},
	}
}

func TestNewConfigErrors(t *testing.T) {
	t.Run("no active provider", func(t *testing.T) {
		cfg := &configapi.Config{}
		_, err := New(t.Context(), cfg, testFactory(), testLogger())
		var cfgErr *ConfigError
		require.ErrorAs(t, err, &cfgErr)
		require.Contains(t, err.Error(), "not configured")
	})

	t.Run("missing api key", func(t *testing.T) {
		cfg := chatConfig("")
		cfg.TextProviders.Providers["chat"].APIKey = ""
		_, err := New(t.Context(), cfg, testFactory(), testLogger())
		var cfgErr *ConfigError
		require.ErrorAs(t, err, &cfgErr)
		require.Contains(t, err.Error(), "no api_key")
	})

	t.Run("unsupported type", func(t *testing.T) {
		cfg := chatConfig("")
		cfg.TextProviders.Providers["chat"].Type = "mystery"
		_, err := New(t.Context(), cfg, testFactory(), testLogger())
		var cfgErr *ConfigError
		require.ErrorAs(t, err, &cfgErr)
	})
}

func TestGenerate(t *testing.T) {
	ts := chatServer(t, "Sure!\n```json\n{\"title\":\"小猫的一天\",\"pages\":[{\"index\":1,\"type\":\"cover\",\"content\":\"封面\"},{\"index\":2,\"type\":\"content\",\"content\":\"出门\"}]}\n```")
	defer ts.Close()

	svc, err := New(t.Context(), chatConfig(ts.URL), testFactory(), testLogger())
	require.NoError(t, err)

	result, err := svc.Generate(t.Context(), "小猫的一天", nil)
	require.NoError(t, err)
	require.Equal(t, "小猫的一天", result.Outline.Title)
	require.Len(t, result.Outline.Pages, 2)
	require.Equal(t, 1, result.Outline.Pages[0].Index)
	require.Equal(t, "cover", result.Outline.Pages[0].Type)
	// FullOutline is the pretty-printed JSON fed into downstream prompts.
	var roundTrip Outline
	require.NoError(t, json.Unmarshal([]byte(result.FullOutline), &roundTrip))
	require.Equal(t, result.Outline, roundTrip)
}

func TestGenerateEmptyTopic(t *testing.T) {
	svc, err := New(t.Context(), chatConfig("http://localhost:1"), testFactory(), testLogger())
	require.NoError(t, err)

	_, err = svc.Generate(t.Context(), "   ", nil)
	var inputErr *InputError
	require.ErrorAs(t, err, &inputErr)
}

func TestGenerateMissingTemplate(t *testing.T) {
	cfg := chatConfig("http://localhost:1")
	cfg.Prompts.Outline = ""
	svc, err := New(t.Context(), cfg, testFactory(), testLogger())
	require.NoError(t, err, "the service can exist before the template is installed")

	_, err = svc.Generate(t.Context(), "小猫", nil)
	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	require.Contains(t, err.Error(), "outline prompt template is missing")
}

func TestGenerateUnparsableReply(t *testing.T) {
	ts := chatServer(t, "I cannot help with that.")
	defer ts.Close()

	svc, err := New(t.Context(), chatConfig(ts.URL), testFactory(), testLogger())
	require.NoError(t, err)

	_, err = svc.Generate(t.Context(), "小猫", nil)
	require.ErrorContains(t, err, "no JSON object")
}

func TestTestConnection(t *testing.T) {
	ts := chatServer(t, "你好")
	defer ts.Close()

	msg, err := TestConnection(t.Context(), &configapi.TextProvider{
		Type:    configapi.TextProviderOpenAICompatible,
		APIKey:  "sk-chat-123456789",
		BaseURL: ts.URL,
	})
	require.NoError(t, err)
	require.Contains(t, msg, "connection succeeded")
	require.Contains(t, msg, "你好")
}

func TestTestConnectionFailure(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":{"message":"invalid api key"}}`, http.StatusUnauthorized)
	}))
	defer ts.Close()

	_, err := TestConnection(t.Context(), &configapi.TextProvider{
		Type:    configapi.TextProviderOpenAICompatible,
		APIKey:  "sk-chat-123456789",
		BaseURL: ts.URL,
	})
	require.ErrorContains(t, err, "connection test failed")
}

func TestParseOutline(t *testing.T) {
	t.Run("bare json", func(t *testing.T) {
		result, err := parseOutline(`{"title":"t","pages":[{"index":1,"type":"cover","content":"c"}]}`)
		require.NoError(t, err)
		require.Equal(t, "t", result.Outline.Title)
	})

	t.Run("fenced json with prose", func(t *testing.T) {
		reply := "Here is the outline you asked for:\n```json\n" +
			`{"title":"t","pages":[{"index":1,"type":"cover","content":"c"}]}` +
			"\n```\nLet me know if you want changes."
		result, err := parseOutline(reply)
		require.NoError(t, err)
		require.Equal(t, "t", result.Outline.Title)
		require.Len(t, result.Outline.Pages, 1)
	})

	t.Run("no json", func(t *testing.T) {
		_, err := parseOutline("plain prose")
		require.ErrorContains(t, err, "no JSON object")
	})

	t.Run("invalid json", func(t *testing.T) {
		_, err := parseOutline(`{"title": }`)
		require.ErrorContains(t, err, "failed to parse outline JSON")
	})

	t.Run("no pages", func(t *testing.T) {
		_, err := parseOutline(`{"title":"t","pages":[]}`)
		require.ErrorContains(t, err, "outline has no pages")
	})
}

func TestExtractJSON(t *testing.T) {
	require.Equal(t, `{"a":1}`, extractJSON(`before {"a":1} after`))
	require.Equal(t, `{"a":{"b":2}}`, extractJSON(`{"a":{"b":2}}`))
	require.Empty(t, extractJSON("no braces"))
	require.Empty(t, extractJSON("}{"))
}

func TestNormalizeBaseURL(t *testing.T) {
	for in, want := range map[string]string{
		"https://api.example.com":     "https://api.example.com",
		"https://api.example.com/":    "https://api.example.com",
		"https://api.example.com/v1":  "https://api.example.com",
		"https://api.example.com/v1/": "https://api.example.com",
	} {
		require.Equal(t, want, normalizeBaseURL(in), "normalizeBaseURL(%q)", in)
	}
}

func TestModelName(t *testing.T) {
	require.Equal(t, "custom", modelName(&configapi.TextProvider{Type: configapi.TextProviderAnthropic, Model: "custom"}))
	require.Equal(t, defaultGeminiModel, modelName(&configapi.TextProvider{Type: configapi.TextProviderGoogleGemini}))
	require.Equal(t, defaultChatModel, modelName(&configapi.TextProvider{Type: configapi.TextProviderOpenAICompatible}))
	require.Equal(t, defaultAnthropicModel, modelName(&configapi.TextProvider{Type: configapi.TextProviderAnthropic}))
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "短", truncate("短", 5))
	require.Equal(t, "一二三", truncate("一二三四五", 3))
	require.Equal(t, strings.Repeat("a", 3), truncate(strings.Repeat("a", 10), 3))
}
