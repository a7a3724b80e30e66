// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package generator abstracts the image-producing providers behind a single
// capability: given a prompt and optional reference images, return image
// bytes or fail. Three wire protocols are supported: the Gemini-style
// multimodal API, the OpenAI images API and a generic bearer-token
// images/generations API.
package generator

import (
	"context"
	"fmt"
	"strings"

	"github.com/n1n-api/xiaoshubao/configapi"
)

// Defaults applied when the provider configuration leaves a field empty.
const (
	defaultNativeModel   = "gemini-3-pro-image-preview"
	defaultImageAPIModel = "nano-banana-2"
	defaultAspectRatio   = "3:4"
	defaultSize          = "1024x1024"
	defaultQuality       = "standard"
	defaultTemperature   = 1.0
)

// connectionTestPrompt is sent verbatim to chat-style providers when testing
// connectivity. Any non-empty reply counts as success.
const connectionTestPrompt = "请回复'你好'"

// Request is a single image generation request. Which fields a variant sends
// upstream depends on its wire protocol: the native multimodal variant sends
// Reference inline, the image_api variant sends UserReferences followed by
// Reference as data URLs, and the OpenAI variant sends the prompt alone.
type Request struct {
	// Prompt is the rendered prompt text.
	Prompt string
	// Reference is the style reference image, typically the compressed cover.
	Reference []byte
	// UserReferences are reference images supplied by the user with the job.
	UserReferences [][]byte
}

// Generator produces one image per call.
type Generator interface {
	// GenerateImage returns the raw image bytes for the request. Errors from
	// the underlying SDK or HTTP call are returned as-is for the caller to
	// classify.
	GenerateImage(ctx context.Context, req Request) ([]byte, error)
}

// New constructs the generator for the given provider configuration.
func New(ctx context.Context, provider *configapi.ImageProvider) (Generator, error) {
	switch provider.Type {
	case configapi.ImageProviderNativeMultimodal:
		return newNative(ctx, provider)
	case configapi.ImageProviderOpenAICompatible:
		return newOpenAICompat(provider), nil
	case configapi.ImageProviderImageAPI:
		return newImageAPI(provider), nil
	default:
		return nil, fmt.Errorf("unsupported image provider type %q", provider.Type)
	}
}

// ModelName returns the model the provider configuration will request,
// falling back to the variant default when unset.
func ModelName(provider *configapi.ImageProvider) string {
	if provider.Model != "" {
		return provider.Model
	}
	switch provider.Type {
	case configapi.ImageProviderNativeMultimodal:
		return defaultNativeModel
	case configapi.ImageProviderImageAPI:
		return defaultImageAPIModel
	default:
		return ""
	}
}

// TestConnection verifies that the given image provider is reachable and
// returns a human readable success message. A nil error means the test
// passed; the message explains what was actually verified.
func TestConnection(ctx context.Context, provider *configapi.ImageProvider) (string, error) {
	switch provider.Type {
	case configapi.ImageProviderNativeMultimodal:
		return testNative(ctx, provider)
	case configapi.ImageProviderOpenAICompatible:
		return testChat(ctx, provider.APIKey, provider.BaseURL, provider.Model)
	case configapi.ImageProviderImageAPI:
		return testImageAPI(ctx, provider)
	default:
		return "", fmt.Errorf("unsupported image provider type %q", provider.Type)
	}
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

// snippet limits b to at most n bytes for inclusion in error messages.
func snippet(b []byte, n int) string {
	if len(b) > n {
		b = b[:n]
	}
	return string(b)
}
