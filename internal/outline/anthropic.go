// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package outline

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/n1n-api/xiaoshubao/configapi"
)

// anthropicMaxTokens caps the completion length. Outlines with a dozen pages
// of Chinese text fit comfortably.
const anthropicMaxTokens = 8192

// anthropicChat speaks the Anthropic messages API.
type anthropicChat struct {
	client anthropic.Client
	model  string
}

func newAnthropic(provider *configapi.TextProvider) *anthropicChat {
	opts := []option.RequestOption{option.WithAPIKey(provider.APIKey)}
	if provider.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(provider.BaseURL))
	}

	c := &anthropicChat{client: anthropic.NewClient(opts...), model: provider.Model}
	if c.model == "" {
		c.model = defaultAnthropicModel
	}
	return c
}

// Complete implements [textClient]. This wire protocol takes no reference
// images; they are ignored.
func (c *anthropicChat) Complete(ctx context.Context, prompt string, _ [][]byte) (string, error) {
	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: anthropicMaxTokens,
		Messages:  []anthropic.MessageParam{anthropic.NewUserMessage(anthropic.NewTextBlock(prompt))},
	})
	if err != nil {
		return "", fmt.Errorf("failed to create message: %w", err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	if sb.Len() == 0 {
		return "", errors.New("no text in response")
	}
	return sb.String(), nil
}
