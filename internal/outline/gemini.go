// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package outline

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/genai"

	"github.com/n1n-api/xiaoshubao/configapi"
)

// gemini speaks the Gemini generate-content API. With a base URL it targets a
// Gemini-compatible endpoint directly; without one it goes through Vertex AI
// in express mode, authenticated by the api key alone.
type gemini struct {
	client *genai.Client
	model  string
}

func newGemini(ctx context.Context, provider *configapi.TextProvider) (*gemini, error) {
	cc := &genai.ClientConfig{APIKey: provider.APIKey}
	if provider.BaseURL != "" {
		cc.Backend = genai.BackendGeminiAPI
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: provider.BaseURL, APIVersion: "v1beta"}
	} else {
		cc.Backend = genai.BackendVertexAI
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to create genai client: %w", err)
	}

	g := &gemini{client: client, model: provider.Model}
	if g.model == "" {
		g.model = defaultGeminiModel
	}
	return g, nil
}

// Complete implements [textClient]. Reference images go in as inline parts
// ahead of the prompt so the model can work their content into the outline.
func (g *gemini) Complete(ctx context.Context, prompt string, refs [][]byte) (string, error) {
	parts := make([]*genai.Part, 0, len(refs)+1)
	for _, ref := range refs {
		parts = append(parts, genai.NewPartFromBytes(ref, "image/png"))
	}
	parts = append(parts, genai.NewPartFromText(prompt))

	resp, err := g.client.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part != nil && part.Text != "" {
				return part.Text, nil
			}
		}
	}
	return "", errors.New("no text in response")
}
