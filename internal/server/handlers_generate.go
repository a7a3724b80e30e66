// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/n1n-api/xiaoshubao/internal/engine"
	"github.com/n1n-api/xiaoshubao/internal/taskstate"
)

// handleGenerateImages starts a generation task and relays its events as an
// SSE stream. Input and configuration problems surface as a plain JSON error
// before the stream starts.
func (s *Server) handleGenerateImages(w http.ResponseWriter, r *http.Request) {
	svc, err := s.engineService()
	if err != nil {
		writeError(w, err)
		return
	}
	req, err := parseGenerateRequest(r)
	if err != nil {
		writeError(w, &engine.InputError{Message: err.Error()})
		return
	}
	req.Headers = headerMap(r)

	events, err := svc.Generate(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	stream, err := startSSE(w)
	if err != nil {
		writeError(w, err)
		return
	}
	s.relayEvents(r.Context(), stream, events)
}

// retryRequest is the JSON body of the retry and regenerate endpoints.
type retryRequest struct {
	TaskID string         `json:"task_id"`
	Page   taskstate.Page `json:"page"`
	// UseReference defaults to true: retried pages normally keep the cover
	// as their style reference.
	UseReference *bool  `json:"use_reference"`
	FullOutline  string `json:"full_outline"`
	UserTopic    string `json:"user_topic"`
}

func (s *Server) handleRetry(w http.ResponseWriter, r *http.Request) {
	s.retrySingle(w, r, (*engine.Service).RetrySingle)
}

func (s *Server) handleRegenerate(w http.ResponseWriter, r *http.Request) {
	s.retrySingle(w, r, (*engine.Service).Regenerate)
}

// retrySingle runs a synchronous single-page regeneration. A failed page is a
// normal 200 response with success=false; only broken requests and missing
// state are HTTP errors.
func (s *Server) retrySingle(w http.ResponseWriter, r *http.Request,
	run func(*engine.Service, context.Context, engine.RetryRequest) (engine.RetryResult, error),
) {
	svc, err := s.engineService()
	if err != nil {
		writeError(w, err)
		return
	}
	var req retryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &engine.InputError{Message: fmt.Sprintf("failed to parse request body: %v", err)})
		return
	}
	if req.TaskID == "" || req.Page.Index == 0 {
		writeError(w, &engine.InputError{Message: "task_id and page are required"})
		return
	}
	useReference := true
	if req.UseReference != nil {
		useReference = *req.UseReference
	}

	result, err := run(svc, r.Context(), engine.RetryRequest{
		TaskID:       req.TaskID,
		Page:         req.Page,
		UseReference: useReference,
		FullOutline:  req.FullOutline,
		UserTopic:    req.UserTopic,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// retryFailedRequest is the JSON body of POST /api/generate/retry-failed.
type retryFailedRequest struct {
	TaskID string           `json:"task_id"`
	Pages  []taskstate.Page `json:"pages"`
}

// handleRetryFailed retries a batch of failed pages and relays the retry
// event stream.
func (s *Server) handleRetryFailed(w http.ResponseWriter, r *http.Request) {
	svc, err := s.engineService()
	if err != nil {
		writeError(w, err)
		return
	}
	var req retryFailedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, &engine.InputError{Message: fmt.Sprintf("failed to parse request body: %v", err)})
		return
	}
	if req.TaskID == "" || len(req.Pages) == 0 {
		writeError(w, &engine.InputError{Message: "task_id and pages are required"})
		return
	}

	events, err := svc.RetryFailed(r.Context(), req.TaskID, req.Pages)
	if err != nil {
		writeError(w, err)
		return
	}
	stream, err := startSSE(w)
	if err != nil {
		writeError(w, err)
		return
	}
	s.relayEvents(r.Context(), stream, events)
}

// handleGetTask returns the JSON snapshot of a task's state.
func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	svc, err := s.engineService()
	if err != nil {
		writeError(w, err)
		return
	}
	taskID := mux.Vars(r)["taskID"]
	snapshot, ok, err := svc.TaskState(r.Context(), taskID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "error": fmt.Sprintf("task %q not found", taskID)})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "task": snapshot})
}

// handleDeleteTask drops a task's state from the registry.
func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	svc, err := s.engineService()
	if err != nil {
		writeError(w, err)
		return
	}
	taskID := mux.Vars(r)["taskID"]
	if err := svc.CleanupTask(r.Context(), taskID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

// handleImage redirects to the object-store URL of a stored image.
func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	store := s.objectStore()
	if store == nil {
		http.NotFound(w, r)
		return
	}
	vars := mux.Vars(r)
	url := store.URL(vars["taskID"] + "/" + vars["filename"])
	if url == "" {
		http.NotFound(w, r)
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}
