// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package configapi_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/n1n-api/xiaoshubao/configapi"
)

func TestMustLoadDefaultConfig(t *testing.T) {
	cfg := configapi.MustLoadDefaultConfig()
	require.Equal(t, "google_genai", cfg.ImageProviders.ActiveProvider)
	require.Empty(t, cfg.ImageProviders.Providers)
	require.Equal(t, "google_gemini", cfg.TextProviders.ActiveProvider)
	require.Empty(t, cfg.TextProviders.Providers)
	require.False(t, cfg.Storage.Configured())

	_, ok := cfg.ImageProviders.Active()
	require.False(t, ok)
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, configapi.ImageProvidersFile, `
active_provider: google_genai
providers:
  google_genai:
    type: google_genai
    api_key: img-key
    model: gemini-3-pro-image-preview
    default_aspect_ratio: "3:4"
    temperature: 0.7
    high_concurrency: true
  fallback:
    type: image_api
    api_key: fb-key
    base_url: https://img.example.com
`)
	writeConfigFile(t, dir, configapi.TextProvidersFile, `
active_provider: claude
providers:
  claude:
    type: anthropic
    api_key: text-key
    model: claude-sonnet-4-5
`)
	writeConfigFile(t, dir, configapi.StorageFile, `
endpoint_url: https://acct.r2.cloudflarestorage.com
access_key_id: ak
secret_access_key: sk
bucket_name: pages
public_domain: https://img.example.net
`)
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "prompts"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "prompts", configapi.ImagePromptFile), []byte("full {page_content}"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "prompts", configapi.OutlinePromptFile), []byte("outline {topic}"), 0o600))

	cfg, err := configapi.LoadDir(dir)
	require.NoError(t, err)

	active, ok := cfg.ImageProviders.Active()
	require.True(t, ok)
	// The legacy type spelling is normalized on load.
	require.Equal(t, configapi.ImageProviderNativeMultimodal, active.Type)
	require.Equal(t, "img-key", active.APIKey)
	require.NotNil(t, active.Temperature)
	require.InDelta(t, 0.7, *active.Temperature, 1e-9)
	require.True(t, active.HighConcurrency)
	require.Equal(t, configapi.ImageProviderImageAPI, cfg.ImageProviders.Providers["fallback"].Type)

	text, ok := cfg.TextProviders.Active()
	require.True(t, ok)
	require.Equal(t, configapi.TextProviderAnthropic, text.Type)

	require.True(t, cfg.Storage.Configured())
	require.Equal(t, "pages", cfg.Storage.BucketName)

	require.Equal(t, "full {page_content}", cfg.Prompts.Image)
	require.Empty(t, cfg.Prompts.ImageShort)
	require.Equal(t, "outline {topic}", cfg.Prompts.Outline)

	t.Run("missing directory yields defaults", func(t *testing.T) {
		cfg, err := configapi.LoadDir(filepath.Join(t.TempDir(), "not-found"))
		require.NoError(t, err)
		require.Equal(t, "google_genai", cfg.ImageProviders.ActiveProvider)
		require.Empty(t, cfg.ImageProviders.Providers)
	})
	t.Run("invalid yaml", func(t *testing.T) {
		dir := t.TempDir()
		writeConfigFile(t, dir, configapi.ImageProvidersFile, `{wefaf3q20,9u,f02`)
		_, err := configapi.LoadDir(dir)
		require.Error(t, err)
	})
	t.Run("unknown provider type", func(t *testing.T) {
		dir := t.TempDir()
		writeConfigFile(t, dir, configapi.ImageProvidersFile, `
active_provider: bad
providers:
  bad: {type: dalle_legacy, api_key: k}
`)
		_, err := configapi.LoadDir(dir)
		require.ErrorContains(t, err, `unsupported type "dalle_legacy"`)
	})
	t.Run("unknown quality", func(t *testing.T) {
		dir := t.TempDir()
		writeConfigFile(t, dir, configapi.ImageProvidersFile, `
active_provider: p
providers:
  p: {type: openai_compatible, api_key: k, quality: ultra}
`)
		_, err := configapi.LoadDir(dir)
		require.ErrorContains(t, err, `unsupported quality "ultra"`)
	})
}

func TestLoadDirStorageEnvOverride(t *testing.T) {
	dir := t.TempDir()
	writeConfigFile(t, dir, configapi.StorageFile, `
endpoint_url: https://file.example.com
access_key_id: file-ak
secret_access_key: file-sk
bucket_name: file-bucket
`)
	t.Setenv("R2_ENDPOINT_URL", "https://env.example.com")
	t.Setenv("R2_ACCESS_KEY_ID", "env-ak")
	t.Setenv("R2_SECRET_ACCESS_KEY", "env-sk")

	cfg, err := configapi.LoadDir(dir)
	require.NoError(t, err)
	require.Equal(t, "https://env.example.com", cfg.Storage.EndpointURL)
	require.Equal(t, "env-ak", cfg.Storage.AccessKeyID)
	require.Equal(t, "env-sk", cfg.Storage.SecretAccessKey)
	// Fields without an env override keep the file values.
	require.Equal(t, "file-bucket", cfg.Storage.BucketName)
}

func TestWriteDir(t *testing.T) {
	dir := t.TempDir()
	cfg := configapi.MustLoadDefaultConfig()
	cfg.ImageProviders.Providers = map[string]*configapi.ImageProvider{
		"google_genai": {Type: configapi.ImageProviderNativeMultimodal, APIKey: "k1", Model: "gemini-3-pro-image-preview"},
	}
	cfg.TextProviders.Providers = map[string]*configapi.TextProvider{
		"google_gemini": {Type: configapi.TextProviderGoogleGemini, APIKey: "k2"},
	}
	cfg.Storage = configapi.Storage{
		EndpointURL:     "https://acct.r2.cloudflarestorage.com",
		AccessKeyID:     "ak",
		SecretAccessKey: "sk",
		BucketName:      "pages",
	}
	require.NoError(t, cfg.WriteDir(dir))

	reloaded, err := configapi.LoadDir(dir)
	require.NoError(t, err)
	require.Empty(t, cmp.Diff(cfg.ImageProviders, reloaded.ImageProviders))
	require.Empty(t, cmp.Diff(cfg.TextProviders, reloaded.TextProviders))
	require.Empty(t, cmp.Diff(cfg.Storage, reloaded.Storage))
}

func writeConfigFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}
