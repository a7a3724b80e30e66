// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package server

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/n1n-api/xiaoshubao/internal/engine"
	"github.com/n1n-api/xiaoshubao/internal/taskstate"
)

// maxUploadBytes bounds multipart request bodies. Reference photos are
// compressed server side, but the raw upload still has to fit in memory.
const maxUploadBytes = 32 << 20

// generateRequest is the JSON body of POST /api/generate/images.
type generateRequest struct {
	Pages       []taskstate.Page `json:"pages"`
	TaskID      string           `json:"task_id"`
	FullOutline string           `json:"full_outline"`
	UserTopic   string           `json:"user_topic"`
	// Images are base64 reference photos, with or without a data-URL prefix.
	Images []string `json:"images"`
}

// parseGenerateRequest reads a generation request from either a JSON body or
// a multipart form (fields pages/task_id/full_outline/user_topic plus images
// file parts).
func parseGenerateRequest(r *http.Request) (engine.GenerateRequest, error) {
	var out engine.GenerateRequest
	if isMultipart(r) {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return out, fmt.Errorf("failed to parse form: %w", err)
		}
		if raw := r.FormValue("pages"); raw != "" {
			if err := json.Unmarshal([]byte(raw), &out.Pages); err != nil {
				return out, fmt.Errorf("failed to parse pages: %w", err)
			}
		}
		out.TaskID = r.FormValue("task_id")
		out.FullOutline = r.FormValue("full_outline")
		out.UserTopic = r.FormValue("user_topic")
		images, err := formImages(r)
		if err != nil {
			return out, err
		}
		out.UserImages = images
		return out, nil
	}

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return out, fmt.Errorf("failed to parse request body: %w", err)
	}
	images, err := decodeBase64Images(req.Images)
	if err != nil {
		return out, err
	}
	return engine.GenerateRequest{
		Pages:       req.Pages,
		TaskID:      req.TaskID,
		FullOutline: req.FullOutline,
		UserTopic:   req.UserTopic,
		UserImages:  images,
	}, nil
}

// outlineRequest is the JSON body of POST /api/outline.
type outlineRequest struct {
	Topic  string   `json:"topic"`
	Images []string `json:"images"`
}

// parseOutlineRequest reads a topic and optional reference photos from either
// a JSON body or a multipart form.
func parseOutlineRequest(r *http.Request) (string, [][]byte, error) {
	if isMultipart(r) {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			return "", nil, fmt.Errorf("failed to parse form: %w", err)
		}
		images, err := formImages(r)
		if err != nil {
			return "", nil, err
		}
		return r.FormValue("topic"), images, nil
	}

	var req outlineRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return "", nil, fmt.Errorf("failed to parse request body: %w", err)
	}
	images, err := decodeBase64Images(req.Images)
	if err != nil {
		return "", nil, err
	}
	return req.Topic, images, nil
}

// isMultipart reports whether the request carries a multipart form.
func isMultipart(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Content-Type"), "multipart/form-data")
}

// formImages reads the uploaded images parts of a parsed multipart form.
func formImages(r *http.Request) ([][]byte, error) {
	if r.MultipartForm == nil {
		return nil, nil
	}
	files := r.MultipartForm.File["images"]
	if len(files) == 0 {
		return nil, nil
	}
	images := make([][]byte, 0, len(files))
	for _, fh := range files {
		f, err := fh.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open upload %q: %w", fh.Filename, err)
		}
		data, err := io.ReadAll(f)
		_ = f.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read upload %q: %w", fh.Filename, err)
		}
		if len(data) > 0 {
			images = append(images, data)
		}
	}
	return images, nil
}

// decodeBase64Images decodes base64 image payloads, tolerating data-URL
// prefixes like "data:image/png;base64,".
func decodeBase64Images(encoded []string) ([][]byte, error) {
	if len(encoded) == 0 {
		return nil, nil
	}
	images := make([][]byte, 0, len(encoded))
	for i, s := range encoded {
		if idx := strings.IndexByte(s, ','); idx >= 0 {
			s = s[idx+1:]
		}
		data, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("failed to decode image %d: %w", i+1, err)
		}
		if len(data) > 0 {
			images = append(images, data)
		}
	}
	return images, nil
}

// headerMap flattens request headers for trace context propagation.
func headerMap(r *http.Request) map[string]string {
	out := make(map[string]string, len(r.Header))
	for k := range r.Header {
		out[k] = r.Header.Get(k)
	}
	return out
}
