// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package generator

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/n1n-api/xiaoshubao/configapi"
)

// native speaks the Gemini multimodal API: the prompt and an optional inline
// reference image go in as user content parts, and the generated image comes
// back as an inline-data part of the first candidate.
type native struct {
	client      *genai.Client
	model       string
	aspectRatio string
	temperature float64
}

func newNative(ctx context.Context, provider *configapi.ImageProvider) (*native, error) {
	client, err := genai.NewClient(ctx, nativeClientConfig(provider))
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	g := &native{
		client:      client,
		model:       provider.Model,
		aspectRatio: provider.DefaultAspectRatio,
		temperature: defaultTemperature,
	}
	if g.model == "" {
		g.model = defaultNativeModel
	}
	if g.aspectRatio == "" {
		g.aspectRatio = defaultAspectRatio
	}
	if provider.Temperature != nil {
		g.temperature = *provider.Temperature
	}
	return g, nil
}

func nativeClientConfig(provider *configapi.ImageProvider) *genai.ClientConfig {
	cc := &genai.ClientConfig{
		APIKey:  provider.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if provider.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: provider.BaseURL, APIVersion: "v1beta"}
	}
	return cc
}

// GenerateImage implements [Generator.GenerateImage].
func (g *native) GenerateImage(ctx context.Context, req Request) ([]byte, error) {
	parts := []*genai.Part{genai.NewPartFromText(req.Prompt)}
	if len(req.Reference) > 0 {
		parts = append(parts, genai.NewPartFromBytes(req.Reference, "image/png"))
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)},
		&genai.GenerateContentConfig{
			Temperature:        genai.Ptr(float32(g.temperature)),
			ResponseModalities: []string{"TEXT", "IMAGE"},
			ImageConfig:        &genai.ImageConfig{AspectRatio: g.aspectRatio},
		})
	if err != nil {
		return nil, fmt.Errorf("failed to generate content: %w", err)
	}

	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return part.InlineData.Data, nil
			}
		}
	}
	return nil, errors.New("no image data in response")
}

// testNative lists models when a base URL is configured. Without one the
// provider is assumed to be Vertex AI, which cannot be verified with an API
// key alone, so the test passes with an explanatory message.
func testNative(ctx context.Context, provider *configapi.ImageProvider) (string, error) {
	if provider.BaseURL == "" {
		return "Vertex AI cannot be tested with an API key (OAuth2 is required); verify the configuration by generating an image", nil
	}

	client, err := genai.NewClient(ctx, nativeClientConfig(provider))
	if err != nil {
		return "", fmt.Errorf("failed to create genai client: %w", err)
	}
	if _, err := client.Models.List(ctx, &genai.ListModelsConfig{}); err != nil {
		return "", fmt.Errorf("connection test failed: %w", err)
	}
	return "connection succeeded; this verifies connectivity only, not image generation support", nil
}
