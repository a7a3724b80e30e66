// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package generator

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/n1n-api/xiaoshubao/configapi"
)

// openAICompat speaks the OpenAI images API. It requests a single base64
// encoded image and never sends reference images.
type openAICompat struct {
	client  openai.Client
	model   string
	size    string
	quality string
}

func newOpenAICompat(provider *configapi.ImageProvider) *openAICompat {
	opts := []option.RequestOption{option.WithAPIKey(provider.APIKey)}
	if provider.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(normalizeBaseURL(provider.BaseURL)+"/v1/"))
	}

	g := &openAICompat{
		client:  openai.NewClient(opts...),
		model:   provider.Model,
		size:    provider.DefaultSize,
		quality: provider.Quality,
	}
	if g.size == "" {
		g.size = defaultSize
	}
	if g.quality == "" {
		g.quality = defaultQuality
	}
	return g
}

// GenerateImage implements [Generator.GenerateImage].
func (g *openAICompat) GenerateImage(ctx context.Context, req Request) ([]byte, error) {
	resp, err := g.client.Images.Generate(ctx, openai.ImageGenerateParams{
		Prompt:         req.Prompt,
		Model:          g.model,
		Size:           openai.ImageGenerateParamsSize(g.size),
		Quality:        openai.ImageGenerateParamsQuality(g.quality),
		ResponseFormat: openai.ImageGenerateParamsResponseFormatB64JSON,
		N:              openai.Int(1),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate image: %w", err)
	}
	if len(resp.Data) == 0 || resp.Data[0].B64JSON == "" {
		return nil, errors.New("no image data in response")
	}

	data, err := base64.StdEncoding.DecodeString(resp.Data[0].B64JSON)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image data: %w", err)
	}
	return data, nil
}

// testChat sends a fixed prompt through the chat completions API and treats
// any non-empty reply as success. It serves both image and text providers of
// the openai_compatible type.
func testChat(ctx context.Context, apiKey, baseURL, model string) (string, error) {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(normalizeBaseURL(baseURL)+"/v1/"))
	}
	if model == "" {
		model = "gpt-3.5-turbo"
	}

	client := openai.NewClient(opts...)
	completion, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages:  []openai.ChatCompletionMessageParamUnion{openai.UserMessage(connectionTestPrompt)},
		Model:     model,
		MaxTokens: openai.Int(50),
	})
	if err != nil {
		return "", fmt.Errorf("connection test failed: %w", err)
	}
	if len(completion.Choices) == 0 || strings.TrimSpace(completion.Choices[0].Message.Content) == "" {
		return "", errors.New("connection succeeded but the response was empty")
	}
	return fmt.Sprintf("connection succeeded, response: %s", truncate(completion.Choices[0].Message.Content, 100)), nil
}
