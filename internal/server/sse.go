// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/n1n-api/xiaoshubao/internal/engine"
)

// sseStream writes server-sent-event frames, flushing after every frame so
// the client sees progress immediately.
type sseStream struct {
	w http.ResponseWriter
	f http.Flusher
}

// startSSE sets the stream headers and returns the stream writer. It fails
// when the response writer cannot flush, which would silently buffer the
// whole stream.
func startSSE(w http.ResponseWriter) (*sseStream, error) {
	f, ok := w.(http.Flusher)
	if !ok {
		return nil, errors.New("streaming is not supported by this connection")
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	f.Flush()
	return &sseStream{w: w, f: f}, nil
}

// event writes one `event:`/`data:` frame with a JSON payload.
func (s *sseStream) event(kind string, data any) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}
	if _, err := fmt.Fprintf(s.w, "event: %s\ndata: %s\n\n", kind, payload); err != nil {
		return err
	}
	s.f.Flush()
	return nil
}

// keepAlive writes a comment frame that keeps intermediaries from timing out
// an idle connection.
func (s *sseStream) keepAlive() {
	_, _ = fmt.Fprint(s.w, ": keep-alive\n\n")
	s.f.Flush()
}

// relayEvents forwards engine events onto the stream until the channel closes
// or the client goes away, interleaving keep-alive comments while the engine
// is quiet.
func (s *Server) relayEvents(ctx context.Context, stream *sseStream, events <-chan engine.Event) {
	ticker := time.NewTicker(s.keepAlive)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stream.keepAlive()
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := stream.event(string(ev.Kind), ev.Data); err != nil {
				// The write path is broken; the engine notices via ctx.
				return
			}
		}
	}
}
