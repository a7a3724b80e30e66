// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/n1n-api/xiaoshubao/internal/outline"
)

// outlineComplete is the payload of the final frame of an outline stream.
type outlineComplete struct {
	Success     bool            `json:"success"`
	Outline     outline.Outline `json:"outline"`
	FullOutline string          `json:"full_outline"`
}

// outlineError is the payload of an outline stream error frame.
type outlineError struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// handleOutline generates an outline for a topic. The response is an SSE
// stream even though it carries a single result: outline generation takes
// long enough that intermediaries would otherwise time the request out, so
// keep-alive comments flow while the provider is thinking.
func (s *Server) handleOutline(w http.ResponseWriter, r *http.Request) {
	svc, err := s.outlineService()
	if err != nil {
		writeError(w, err)
		return
	}
	topic, images, err := parseOutlineRequest(r)
	if err != nil {
		writeError(w, &outline.InputError{Message: err.Error()})
		return
	}
	if strings.TrimSpace(topic) == "" {
		writeError(w, &outline.InputError{Message: "topic must not be empty"})
		return
	}

	stream, err := startSSE(w)
	if err != nil {
		writeError(w, err)
		return
	}

	type outcome struct {
		result *outline.Result
		err    error
	}
	done := make(chan outcome, 1)
	go func() {
		result, err := svc.Generate(r.Context(), topic, images)
		done <- outcome{result: result, err: err}
	}()

	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			stream.keepAlive()
		case out := <-done:
			if out.err != nil {
				_ = stream.event("error", outlineError{Error: out.err.Error()})
				return
			}
			_ = stream.event("complete", outlineComplete{
				Success:     true,
				Outline:     out.result.Outline,
				FullOutline: out.result.FullOutline,
			})
			return
		}
	}
}
