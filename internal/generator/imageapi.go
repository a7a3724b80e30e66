// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package generator

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/tidwall/gjson"

	"github.com/n1n-api/xiaoshubao/configapi"
)

// imageAPI speaks a generic bearer-token images/generations API. Reference
// images are sent as data URLs, user references ahead of the style reference.
// Responses carry either base64 data or a URL to fetch.
type imageAPI struct {
	httpClient  *http.Client
	baseURL     string
	apiKey      string
	model       string
	aspectRatio string
	temperature float64
}

func newImageAPI(provider *configapi.ImageProvider) *imageAPI {
	g := &imageAPI{
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		baseURL:     normalizeBaseURL(provider.BaseURL),
		apiKey:      provider.APIKey,
		model:       provider.Model,
		aspectRatio: provider.DefaultAspectRatio,
		temperature: defaultTemperature,
	}
	if g.model == "" {
		g.model = defaultImageAPIModel
	}
	if g.aspectRatio == "" {
		g.aspectRatio = defaultAspectRatio
	}
	if provider.Temperature != nil {
		g.temperature = *provider.Temperature
	}
	return g
}

type imageAPIRequest struct {
	Model       string   `json:"model"`
	Prompt      string   `json:"prompt"`
	AspectRatio string   `json:"aspect_ratio"`
	Temperature float64  `json:"temperature"`
	Image       []string `json:"image,omitempty"`
}

// GenerateImage implements [Generator.GenerateImage].
func (g *imageAPI) GenerateImage(ctx context.Context, req Request) ([]byte, error) {
	body := imageAPIRequest{
		Model:       g.model,
		Prompt:      req.Prompt,
		AspectRatio: g.aspectRatio,
		Temperature: g.temperature,
	}
	for _, ref := range req.UserReferences {
		body.Image = append(body.Image, dataURL(ref))
	}
	if len(req.Reference) > 0 {
		body.Image = append(body.Image, dataURL(req.Reference))
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/images/generations", bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+g.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to call image api: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image api returned status %d: %s", resp.StatusCode, snippet(respBody, 200))
	}

	if b64 := gjson.GetBytes(respBody, "data.0.b64_json").String(); b64 != "" {
		data, err := base64.StdEncoding.DecodeString(b64)
		if err != nil {
			return nil, fmt.Errorf("failed to decode image data: %w", err)
		}
		return data, nil
	}
	if url := gjson.GetBytes(respBody, "data.0.url").String(); url != "" {
		return g.fetch(ctx, url)
	}
	return nil, errors.New("no image data in response")
}

// fetch downloads a generated image the provider returned by URL.
func (g *imageAPI) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch image: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image fetch returned status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	return data, nil
}

func dataURL(image []byte) string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(image)
}

// testImageAPI probes the provider's model listing endpoint.
func testImageAPI(ctx context.Context, provider *configapi.ImageProvider) (string, error) {
	base := "https://api.openai.com"
	if provider.BaseURL != "" {
		base = normalizeBaseURL(provider.BaseURL)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+"/v1/models", nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+provider.APIKey)

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("connection test failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("image api returned status %d: %s", resp.StatusCode, snippet(body, 200))
	}
	return "connection succeeded; this verifies connectivity only, not image generation support", nil
}
