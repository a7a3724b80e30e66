// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package prompt

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestImage(t *testing.T) {
	tpl := Templates{
		Full:  "page={page_content} type={page_type} outline={full_outline} topic={user_topic}",
		Short: "page={page_content} type={page_type}",
	}
	d := Data{
		PageContent: "小猫出门",
		PageType:    "content",
		FullOutline: `{"title":"小猫"}`,
		UserTopic:   "一只勇敢的小猫",
	}

	t.Run("full template", func(t *testing.T) {
		got, err := Image(tpl, false, d)
		require.NoError(t, err)
		require.Equal(t, `page=小猫出门 type=content outline={"title":"小猫"} topic=一只勇敢的小猫`, got)
	})
	t.Run("short template", func(t *testing.T) {
		got, err := Image(tpl, true, d)
		require.NoError(t, err)
		require.Equal(t, "page=小猫出门 type=content", got)
	})
	t.Run("short requested but absent falls back to full", func(t *testing.T) {
		got, err := Image(Templates{Full: tpl.Full}, true, d)
		require.NoError(t, err)
		require.Contains(t, got, "outline=")
	})
	t.Run("empty topic placeholder", func(t *testing.T) {
		d := d
		d.UserTopic = ""
		got, err := Image(tpl, false, d)
		require.NoError(t, err)
		require.Contains(t, got, "topic=未提供")
	})
	t.Run("missing full template", func(t *testing.T) {
		_, err := Image(Templates{}, false, d)
		require.ErrorContains(t, err, "image prompt template is missing")
	})
}

func TestOutline(t *testing.T) {
	got, err := Outline("为主题《{topic}》生成绘本大纲", "小猫")
	require.NoError(t, err)
	require.Equal(t, "为主题《小猫》生成绘本大纲", got)

	_, err = Outline("", "小猫")
	require.ErrorContains(t, err, "outline prompt template is missing")
}
