// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package prompt renders the prompt templates fed to image and text
// providers. Templates use {name} placeholders.
package prompt

import (
	"fmt"
	"strings"
)

// emptyTopic is substituted for {user_topic} when the user provided none.
const emptyTopic = "未提供"

// Templates holds the raw image prompt templates from the config directory.
type Templates struct {
	// Full is the complete template carrying outline and topic context.
	Full string
	// Short is the reduced template carrying only the page itself. Optional.
	Short string
}

// Data carries the per-page values substituted into an image template.
type Data struct {
	PageContent string
	PageType    string
	FullOutline string
	UserTopic   string
}

// Image renders the prompt for one page. When useShort is set and a short
// template is present, the short form wins and receives only the page type
// and content. Otherwise the full template is required.
func Image(tpl Templates, useShort bool, d Data) (string, error) {
	if useShort && tpl.Short != "" {
		return strings.NewReplacer(
			"{page_content}", d.PageContent,
			"{page_type}", d.PageType,
		).Replace(tpl.Short), nil
	}
	if tpl.Full == "" {
		return "", fmt.Errorf("image prompt template is missing")
	}
	topic := d.UserTopic
	if topic == "" {
		topic = emptyTopic
	}
	return strings.NewReplacer(
		"{page_content}", d.PageContent,
		"{page_type}", d.PageType,
		"{full_outline}", d.FullOutline,
		"{user_topic}", topic,
	).Replace(tpl.Full), nil
}

// Outline renders the outline prompt for a topic.
func Outline(tpl, topic string) (string, error) {
	if tpl == "" {
		return "", fmt.Errorf("outline prompt template is missing")
	}
	return strings.ReplaceAll(tpl, "{topic}", topic), nil
}
