// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package outline

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/n1n-api/xiaoshubao/configapi"
)

// openAIChat speaks the OpenAI chat completions API.
type openAIChat struct {
	client openai.Client
	model  string
}

func newOpenAIChat(provider *configapi.TextProvider) *openAIChat {
	opts := []option.RequestOption{option.WithAPIKey(provider.APIKey)}
	if provider.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(normalizeBaseURL(provider.BaseURL)+"/v1/"))
	}

	c := &openAIChat{client: openai.NewClient(opts...), model: provider.Model}
	if c.model == "" {
		c.model = defaultChatModel
	}
	return c
}

// Complete implements [textClient]. This wire protocol takes no reference
// images; they are ignored.
func (c *openAIChat) Complete(ctx context.Context, prompt string, _ [][]byte) (string, error) {
	completion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage(prompt)},
		Model:    c.model,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return "", errors.New("no choices in response")
	}
	return completion.Choices[0].Message.Content, nil
}
