// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package taskstate holds the per-task bookkeeping that makes targeted retry
// and regeneration possible after the generation stream has ended.
package taskstate

// Page is one page of an outline to illustrate.
type Page struct {
	// Index is the 1-based page number used in object keys and events.
	Index int `json:"index"`
	// Type is the page kind, PageTypeCover or PageTypeContent.
	Type string `json:"type"`
	// Content is the page text the image is generated from.
	Content string `json:"content"`
}

// Page types. Anything that is not a cover is treated as content.
const (
	PageTypeCover   = "cover"
	PageTypeContent = "content"
)

// State is the bookkeeping for one generation task. A page index appears in
// at most one of Generated and Failed at any time.
type State struct {
	// Pages is the input page list.
	Pages []Page `json:"pages"`
	// Generated maps page index to the stored filename.
	Generated map[int]string `json:"generated"`
	// Failed maps page index to the last error message.
	Failed map[int]string `json:"failed"`
	// CoverImage is the compressed cover bytes used as the reference for
	// content pages. Nil until the cover succeeds.
	CoverImage []byte `json:"cover_image,omitempty"`
	// FullOutline is the outline JSON fed into image prompts.
	FullOutline string `json:"full_outline"`
	// UserImages are the compressed reference photos uploaded by the user.
	UserImages [][]byte `json:"user_images,omitempty"`
	// UserTopic is the free-form topic text provided by the user.
	UserTopic string `json:"user_topic"`
}

// NewState initializes the bookkeeping for the given pages.
func NewState(pages []Page, fullOutline string, userImages [][]byte, userTopic string) *State {
	return &State{
		Pages:       pages,
		Generated:   make(map[int]string),
		Failed:      make(map[int]string),
		FullOutline: fullOutline,
		UserImages:  userImages,
		UserTopic:   userTopic,
	}
}

// clone returns a copy of s whose maps and page slice are independent of the
// original. Byte slices are shared; callers treat them as immutable.
func (s *State) clone() *State {
	cp := &State{
		Pages:       make([]Page, len(s.Pages)),
		Generated:   make(map[int]string, len(s.Generated)),
		Failed:      make(map[int]string, len(s.Failed)),
		CoverImage:  s.CoverImage,
		FullOutline: s.FullOutline,
		UserTopic:   s.UserTopic,
	}
	copy(cp.Pages, s.Pages)
	for k, v := range s.Generated {
		cp.Generated[k] = v
	}
	for k, v := range s.Failed {
		cp.Failed[k] = v
	}
	if s.UserImages != nil {
		cp.UserImages = make([][]byte, len(s.UserImages))
		copy(cp.UserImages, s.UserImages)
	}
	return cp
}

// Snapshot is the JSON-safe projection of a State: byte blobs are reduced to
// presence flags so the transport never serializes image data.
type Snapshot struct {
	TaskID      string         `json:"task_id"`
	Pages       []Page         `json:"pages"`
	Generated   map[int]string `json:"generated"`
	Failed      map[int]string `json:"failed"`
	HasCover    bool           `json:"has_cover_image"`
	FullOutline string         `json:"full_outline"`
	UserTopic   string         `json:"user_topic"`
}

// Snapshot projects the state for the given task id.
func (s *State) Snapshot(taskID string) Snapshot {
	cp := s.clone()
	return Snapshot{
		TaskID:      taskID,
		Pages:       cp.Pages,
		Generated:   cp.Generated,
		Failed:      cp.Failed,
		HasCover:    len(s.CoverImage) > 0,
		FullOutline: s.FullOutline,
		UserTopic:   s.UserTopic,
	}
}
