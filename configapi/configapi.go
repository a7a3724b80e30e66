// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package configapi provides the configuration for the picture-book generation
// backend: image providers, text providers, object storage and prompt templates.
//
// This is a public package so that the engine and the HTTP server can be
// testable without a real config directory, and so that the schema can be used
// by external tooling that prepares config files.
//
// The configuration is deliberately decoupled from any particular provider
// SDK: it only describes which wire protocol a provider speaks and the
// parameters to use, so it can be validated and iterated without network
// access.
package configapi

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config file names under the config directory. Prompt templates live in the
// prompts/ subdirectory.
const (
	ImageProvidersFile = "image_providers.yaml"
	TextProvidersFile  = "text_providers.yaml"
	StorageFile        = "storage.yaml"

	promptsDir           = "prompts"
	ImagePromptFile      = "image_prompt.txt"
	ImagePromptShortFile = "image_prompt_short.txt"
	OutlinePromptFile    = "outline_prompt.txt"
)

// DefaultImageProviders is the default image provider configuration used as a
// fallback when the configuration is not explicitly provided.
const DefaultImageProviders = `
active_provider: google_genai
providers: {}
`

// DefaultTextProviders is the default text provider configuration used as a
// fallback when the configuration is not explicitly provided.
const DefaultTextProviders = `
active_provider: google_gemini
providers: {}
`

// Config is the full configuration snapshot loaded from a config directory.
type Config struct {
	// ImageProviders configures the providers used for page image generation.
	ImageProviders ImageProviders `yaml:"image_providers"`
	// TextProviders configures the providers used for outline generation.
	TextProviders TextProviders `yaml:"text_providers"`
	// Storage configures the S3-compatible object store for generated images.
	Storage Storage `yaml:"storage"`
	// Prompts holds the prompt templates read from the prompts/ subdirectory.
	Prompts Prompts `yaml:"-"`
}

// ImageProviders selects the active image provider among the configured ones.
type ImageProviders struct {
	// ActiveProvider is the key in Providers used for generation requests.
	ActiveProvider string `yaml:"active_provider"`
	// Providers is the set of configured providers keyed by name.
	Providers map[string]*ImageProvider `yaml:"providers"`
}

// Active returns the active image provider, or false when the active name is
// not configured.
func (p *ImageProviders) Active() (*ImageProvider, bool) {
	prov, ok := p.Providers[p.ActiveProvider]
	return prov, ok && prov != nil
}

// ImageProviderType is the wire protocol an image provider speaks.
type ImageProviderType string

const (
	// ImageProviderNativeMultimodal is the Gemini-style multimodal API where
	// images come back as inline parts of a generate-content response.
	ImageProviderNativeMultimodal ImageProviderType = "native_multimodal"
	// ImageProviderOpenAICompatible is the OpenAI images API.
	ImageProviderOpenAICompatible ImageProviderType = "openai_compatible"
	// ImageProviderImageAPI is the generic bearer-token images/generations API
	// that returns either base64 data or a fetchable URL.
	ImageProviderImageAPI ImageProviderType = "image_api"

	// legacyGoogleGenAI is accepted in config files written by older releases
	// and normalized to ImageProviderNativeMultimodal on load.
	legacyGoogleGenAI ImageProviderType = "google_genai"
)

// ImageProvider is the configuration of a single image provider.
type ImageProvider struct {
	// Type is the wire protocol this provider speaks.
	Type ImageProviderType `yaml:"type"`
	// APIKey authenticates requests to the provider.
	APIKey string `yaml:"api_key,omitempty"`
	// BaseURL overrides the provider's default endpoint. Optional.
	BaseURL string `yaml:"base_url,omitempty"`
	// Model is the model name. Defaults depend on Type.
	Model string `yaml:"model,omitempty"`
	// DefaultAspectRatio is the aspect ratio for native_multimodal and
	// image_api providers, e.g. "3:4".
	DefaultAspectRatio string `yaml:"default_aspect_ratio,omitempty"`
	// DefaultSize is the image size for openai_compatible providers,
	// e.g. "1024x1024".
	DefaultSize string `yaml:"default_size,omitempty"`
	// Temperature is the sampling temperature for providers that accept one.
	// Nil means the provider default.
	Temperature *float64 `yaml:"temperature,omitempty"`
	// Quality is the image quality for openai_compatible providers,
	// "standard" or "hd".
	Quality string `yaml:"quality,omitempty"`
	// ShortPrompt selects the short image prompt template when true.
	ShortPrompt bool `yaml:"short_prompt,omitempty"`
	// HighConcurrency generates content pages in parallel when true,
	// serially otherwise.
	HighConcurrency bool `yaml:"high_concurrency,omitempty"`
}

// TextProviders selects the active text provider among the configured ones.
type TextProviders struct {
	// ActiveProvider is the key in Providers used for outline requests.
	ActiveProvider string `yaml:"active_provider"`
	// Providers is the set of configured providers keyed by name.
	Providers map[string]*TextProvider `yaml:"providers"`
}

// Active returns the active text provider, or false when the active name is
// not configured.
func (p *TextProviders) Active() (*TextProvider, bool) {
	prov, ok := p.Providers[p.ActiveProvider]
	return prov, ok && prov != nil
}

// TextProviderType is the wire protocol a text provider speaks.
type TextProviderType string

const (
	// TextProviderGoogleGemini is the Gemini generate-content API.
	TextProviderGoogleGemini TextProviderType = "google_gemini"
	// TextProviderOpenAICompatible is the OpenAI chat completions API.
	TextProviderOpenAICompatible TextProviderType = "openai_compatible"
	// TextProviderAnthropic is the Anthropic messages API.
	TextProviderAnthropic TextProviderType = "anthropic"
)

// TextProvider is the configuration of a single text provider.
type TextProvider struct {
	// Type is the wire protocol this provider speaks.
	Type TextProviderType `yaml:"type"`
	// APIKey authenticates requests to the provider.
	APIKey string `yaml:"api_key,omitempty"`
	// BaseURL overrides the provider's default endpoint. Optional.
	BaseURL string `yaml:"base_url,omitempty"`
	// Model is the model name. Defaults depend on Type.
	Model string `yaml:"model,omitempty"`
}

// Storage configures the S3-compatible object store holding generated images.
// The R2_* environment variables take precedence over the file values so that
// deployments can keep credentials out of the config directory.
type Storage struct {
	// EndpointURL is the S3-compatible endpoint, e.g. an R2 account endpoint.
	EndpointURL string `yaml:"endpoint_url,omitempty"`
	// AccessKeyID is the access key id.
	AccessKeyID string `yaml:"access_key_id,omitempty"`
	// SecretAccessKey is the secret access key.
	SecretAccessKey string `yaml:"secret_access_key,omitempty"`
	// BucketName is the bucket receiving the uploads.
	BucketName string `yaml:"bucket_name,omitempty"`
	// PublicDomain is the public base URL serving the bucket. Optional; when
	// empty, object URLs are built from EndpointURL and BucketName.
	PublicDomain string `yaml:"public_domain,omitempty"`
}

// Configured reports whether the storage settings are complete enough to
// upload. When false, the backend runs without persistence and image URLs are
// empty.
func (s *Storage) Configured() bool {
	return s.EndpointURL != "" && s.AccessKeyID != "" && s.SecretAccessKey != "" && s.BucketName != ""
}

// applyEnv overlays the R2_* environment variables onto the file values.
func (s *Storage) applyEnv() {
	if v := os.Getenv("R2_ENDPOINT_URL"); v != "" {
		s.EndpointURL = v
	}
	if v := os.Getenv("R2_ACCESS_KEY_ID"); v != "" {
		s.AccessKeyID = v
	}
	if v := os.Getenv("R2_SECRET_ACCESS_KEY"); v != "" {
		s.SecretAccessKey = v
	}
	if v := os.Getenv("R2_BUCKET_NAME"); v != "" {
		s.BucketName = v
	}
	if v := os.Getenv("R2_PUBLIC_DOMAIN"); v != "" {
		s.PublicDomain = v
	}
}

// Prompts holds the prompt templates. Empty fields mean the template file was
// not present; whether that is an error depends on the operation.
type Prompts struct {
	// Image is the full image prompt template.
	Image string
	// ImageShort is the short image prompt template used when the active
	// provider sets short_prompt.
	ImageShort string
	// Outline is the outline prompt template.
	Outline string
}

// LoadDir reads the config directory and returns the configuration snapshot.
// Missing files fall back to defaults; a missing directory yields the default
// configuration. Storage settings are overlaid with the R2_* environment
// variables. The returned configuration is validated.
func LoadDir(dir string) (*Config, error) {
	cfg := MustLoadDefaultConfig()

	if err := unmarshalFileYaml(filepath.Join(dir, ImageProvidersFile), &cfg.ImageProviders); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", ImageProvidersFile, err)
	}
	if err := unmarshalFileYaml(filepath.Join(dir, TextProvidersFile), &cfg.TextProviders); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", TextProvidersFile, err)
	}
	if err := unmarshalFileYaml(filepath.Join(dir, StorageFile), &cfg.Storage); err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", StorageFile, err)
	}
	cfg.Storage.applyEnv()

	var err error
	if cfg.Prompts.Image, err = readOptionalFile(filepath.Join(dir, promptsDir, ImagePromptFile)); err != nil {
		return nil, err
	}
	if cfg.Prompts.ImageShort, err = readOptionalFile(filepath.Join(dir, promptsDir, ImagePromptShortFile)); err != nil {
		return nil, err
	}
	if cfg.Prompts.Outline, err = readOptionalFile(filepath.Join(dir, promptsDir, OutlinePromptFile)); err != nil {
		return nil, err
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MustLoadDefaultConfig loads the default configuration.
// This panics if the configuration fails to be loaded.
func MustLoadDefaultConfig() *Config {
	var cfg Config
	if err := yaml.Unmarshal([]byte(DefaultImageProviders), &cfg.ImageProviders); err != nil {
		panic(err)
	}
	if err := yaml.Unmarshal([]byte(DefaultTextProviders), &cfg.TextProviders); err != nil {
		panic(err)
	}
	cfg.Storage.applyEnv()
	return &cfg
}

// normalize rewrites legacy spellings kept for config files written by older
// releases.
func (c *Config) normalize() {
	for _, prov := range c.ImageProviders.Providers {
		if prov != nil && prov.Type == legacyGoogleGenAI {
			prov.Type = ImageProviderNativeMultimodal
		}
	}
}

// Validate checks the structural validity of the configuration: provider type
// spellings and quality values. Completeness of the active provider (api key,
// model) is checked per operation by the engine so that the server can start
// with an empty configuration and be configured through the admin API.
func (c *Config) Validate() error {
	for name, prov := range c.ImageProviders.Providers {
		if prov == nil {
			return fmt.Errorf("image provider %q is empty", name)
		}
		switch prov.Type {
		case ImageProviderNativeMultimodal, ImageProviderOpenAICompatible, ImageProviderImageAPI:
		default:
			return fmt.Errorf("image provider %q has unsupported type %q", name, prov.Type)
		}
		switch prov.Quality {
		case "", "standard", "hd":
		default:
			return fmt.Errorf("image provider %q has unsupported quality %q", name, prov.Quality)
		}
	}
	for name, prov := range c.TextProviders.Providers {
		if prov == nil {
			return fmt.Errorf("text provider %q is empty", name)
		}
		switch prov.Type {
		case TextProviderGoogleGemini, TextProviderOpenAICompatible, TextProviderAnthropic:
		default:
			return fmt.Errorf("text provider %q has unsupported type %q", name, prov.Type)
		}
	}
	return nil
}

// WriteDir persists the provider and storage files back to the config
// directory. Each file is written atomically via rename so a concurrent
// watcher never observes a partial write. Prompt templates are not written;
// they are maintained by hand.
func (c *Config) WriteDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	for _, f := range []struct {
		name string
		val  any
	}{
		{ImageProvidersFile, &c.ImageProviders},
		{TextProvidersFile, &c.TextProviders},
		{StorageFile, &c.Storage},
	} {
		raw, err := yaml.Marshal(f.val)
		if err != nil {
			return fmt.Errorf("failed to marshal %s: %w", f.name, err)
		}
		if err := atomicWriteFile(filepath.Join(dir, f.name), raw); err != nil {
			return fmt.Errorf("failed to write %s: %w", f.name, err)
		}
	}
	return nil
}

// unmarshalFileYaml reads the file at the given path and unmarshals it into
// dst. A missing file leaves dst untouched.
func unmarshalFileYaml(path string, dst any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	return yaml.Unmarshal(raw, dst)
}

// readOptionalFile returns the file contents, or "" when the file is missing.
func readOptionalFile(path string) (string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	return string(raw), nil
}

func atomicWriteFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	return os.Rename(tmpName, path)
}
