// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHealthcheck(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/healthz", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	}))
	defer ts.Close()

	var stdout bytes.Buffer
	err := healthcheck(t.Context(), cmdHealthcheck{Addr: strings.TrimPrefix(ts.URL, "http://")}, &stdout)
	require.NoError(t, err)
	require.JSONEq(t, `{"status":"ok"}`, stdout.String())
}

func TestHealthcheckUnhealthy(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	}))
	defer ts.Close()

	var stdout bytes.Buffer
	err := healthcheck(t.Context(), cmdHealthcheck{Addr: strings.TrimPrefix(ts.URL, "http://")}, &stdout)
	require.ErrorContains(t, err, "status 503")
}

func TestHealthcheckConnectionRefused(t *testing.T) {
	var stdout bytes.Buffer
	err := healthcheck(t.Context(), cmdHealthcheck{Addr: "localhost:1"}, &stdout)
	require.ErrorContains(t, err, "failed to connect")
}
