// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package server

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/n1n-api/xiaoshubao/configapi"
	"github.com/n1n-api/xiaoshubao/internal/catalog"
	"github.com/n1n-api/xiaoshubao/internal/metrics"
	"github.com/n1n-api/xiaoshubao/internal/objectstore"
	"github.com/n1n-api/xiaoshubao/internal/taskstate"
	"github.com/n1n-api/xiaoshubao/internal/tracing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestServer builds a Server on in-memory backends with a short SSE
// keep-alive. The configuration is loaded separately per test.
func newTestServer(t *testing.T) *Server {
	t.Helper()
	meter := noop.NewMeterProvider().Meter("test")
	s := New(Options{
		Logger:         testLogger(),
		ConfigDir:      t.TempDir(),
		Registry:       taskstate.NewInMemory(),
		Catalog:        catalog.NewInMemory(),
		ImageMetrics:   metrics.NewGenerationFactory(meter),
		OutlineMetrics: metrics.NewOutlineFactory(meter),
		Tracer:         tracing.NoopGenerationTracer{},
	})
	s.keepAlive = 20 * time.Millisecond
	return s
}

// testConfig returns a configuration whose active image provider speaks the
// generic image API against the given base URL.
func testConfig(imageBaseURL string) *configapi.Config {
	cfg := configapi.MustLoadDefaultConfig()
	cfg.ImageProviders = configapi.ImageProviders{
		ActiveProvider: "test",
		Providers: map[string]*configapi.ImageProvider{
			"test": {
				Type:    configapi.ImageProviderImageAPI,
				APIKey:  "sk-test-1234567890",
				BaseURL: imageBaseURL,
			},
		},
	}
	cfg.Prompts.Image = "Illustrate {page_content} ({page_type}) for {user_topic}.\n{full_outline}"
	cfg.Prompts.Outline = "Outline for {topic}"
	return cfg
}

// imageAPIServer fakes the images/generations endpoint, replying with a valid
// PNG so downstream thumbnailing succeeds.
func imageAPIServer(t *testing.T) *httptest.Server {
	t.Helper()
	b64 := base64.StdEncoding.EncodeToString(testPNG(t))
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/images/generations", r.URL.Path)
		require.Equal(t, "Bearer sk-test-1234567890", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"data":[{"b64_json":%q}]}`, b64)
	}))
}

func testPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type sseFrame struct {
	kind string
	data json.RawMessage
}

// parseSSE splits a fully buffered SSE response into event frames, dropping
// keep-alive comments.
func parseSSE(t *testing.T, body string) []sseFrame {
	t.Helper()
	var frames []sseFrame
	for _, chunk := range strings.Split(body, "\n\n") {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" || strings.HasPrefix(chunk, ":") {
			continue
		}
		lines := strings.SplitN(chunk, "\n", 2)
		require.Len(t, lines, 2, "malformed frame %q", chunk)
		require.True(t, strings.HasPrefix(lines[0], "event: "), "malformed frame %q", chunk)
		require.True(t, strings.HasPrefix(lines[1], "data: "), "malformed frame %q", chunk)
		frames = append(frames, sseFrame{
			kind: strings.TrimPrefix(lines[0], "event: "),
			data: json.RawMessage(strings.TrimPrefix(lines[1], "data: ")),
		})
	}
	return frames
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer func() { _ = resp.Body.Close() }()
	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestGenerateImagesUnconfigured(t *testing.T) {
	s := newTestServer(t)
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/generate/images",
		strings.NewReader(`{"pages":[{"index":1,"type":"cover","content":"c"}]}`))
	s.Router().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, `"success":false`)
	require.Contains(t, body, "not configured")
}

func TestGenerateImagesBadRequest(t *testing.T) {
	upstream := imageAPIServer(t)
	defer upstream.Close()
	s := newTestServer(t)
	require.NoError(t, s.LoadConfig(t.Context(), testConfig(upstream.URL)))

	for name, body := range map[string]string{
		"malformed json": `{"pages":`,
		"no pages":       `{"pages":[]}`,
		"bad image":      `{"pages":[{"index":1,"type":"cover","content":"c"}],"images":["!!!"]}`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/generate/images", strings.NewReader(body))
			s.Router().ServeHTTP(rec, req)
			require.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

// TestGenerateImagesStream drives a full generation through the HTTP surface:
// the SSE stream, the task snapshot, single-page retry, batch retry and task
// cleanup.
func TestGenerateImagesStream(t *testing.T) {
	upstream := imageAPIServer(t)
	defer upstream.Close()
	s := newTestServer(t)
	require.NoError(t, s.LoadConfig(t.Context(), testConfig(upstream.URL)))
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/api/generate/images", `{
		"pages": [
			{"index": 1, "type": "cover", "content": "一只小猫"},
			{"index": 2, "type": "content", "content": "小猫出门"},
			{"index": 3, "type": "content", "content": "小猫回家"}
		],
		"user_topic": "小猫的一天",
		"full_outline": "{\"title\":\"小猫的一天\"}"
	}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	require.Equal(t, "no", resp.Header.Get("X-Accel-Buffering"))
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()

	frames := parseSSE(t, string(raw))
	require.NotEmpty(t, frames)
	require.Equal(t, "progress", frames[0].kind)
	require.Contains(t, string(frames[0].data), "cover")

	last := frames[len(frames)-1]
	require.Equal(t, "finish", last.kind)
	var fin struct {
		Success   bool     `json:"success"`
		TaskID    string   `json:"task_id"`
		Images    []string `json:"images"`
		Total     int      `json:"total"`
		Completed int      `json:"completed"`
		Failed    int      `json:"failed"`
	}
	require.NoError(t, json.Unmarshal(last.data, &fin))
	require.True(t, fin.Success)
	require.NotEmpty(t, fin.TaskID)
	require.Equal(t, 3, fin.Total)
	require.Equal(t, 3, fin.Completed)
	require.Zero(t, fin.Failed)
	require.Len(t, fin.Images, 3)

	var completes int
	for _, f := range frames {
		if f.kind == "complete" {
			completes++
			require.Contains(t, string(f.data), "/api/images/"+fin.TaskID+"/")
		}
	}
	require.Equal(t, 3, completes)

	// The task snapshot reflects the finished run.
	getResp, err := http.Get(ts.URL + "/api/tasks/" + fin.TaskID)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, getResp.StatusCode)
	snapshot := decodeBody(t, getResp)
	require.Equal(t, true, snapshot["success"])
	task := snapshot["task"].(map[string]any)
	require.Equal(t, fin.TaskID, task["task_id"])
	require.Len(t, task["generated"].(map[string]any), 3)
	require.Equal(t, true, task["has_cover_image"])

	// A single page can be regenerated synchronously.
	retryResp := postJSON(t, ts.URL+"/api/generate/retry", fmt.Sprintf(
		`{"task_id":%q,"page":{"index":2,"type":"content","content":"小猫出门"}}`, fin.TaskID))
	require.Equal(t, http.StatusOK, retryResp.StatusCode)
	retry := decodeBody(t, retryResp)
	require.Equal(t, true, retry["success"])
	require.Equal(t, float64(2), retry["index"])
	require.Contains(t, retry["image_url"], "/api/images/"+fin.TaskID+"/")

	// Batch retry streams retry_start/complete/retry_finish.
	rfResp := postJSON(t, ts.URL+"/api/generate/retry-failed", fmt.Sprintf(
		`{"task_id":%q,"pages":[{"index":3,"type":"content","content":"小猫回家"}]}`, fin.TaskID))
	require.Equal(t, http.StatusOK, rfResp.StatusCode)
	rfRaw, err := io.ReadAll(rfResp.Body)
	require.NoError(t, err)
	_ = rfResp.Body.Close()
	rfFrames := parseSSE(t, string(rfRaw))
	require.Equal(t, "retry_start", rfFrames[0].kind)
	require.Equal(t, "retry_finish", rfFrames[len(rfFrames)-1].kind)
	require.Contains(t, string(rfFrames[len(rfFrames)-1].data), `"success":true`)

	// Cleanup drops the state; the snapshot is gone afterwards.
	delReq, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/tasks/"+fin.TaskID, nil)
	require.NoError(t, err)
	delResp, err := http.DefaultClient.Do(delReq)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, delResp.StatusCode)
	_ = delResp.Body.Close()

	goneResp, err := http.Get(ts.URL + "/api/tasks/" + fin.TaskID)
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, goneResp.StatusCode)
	_ = goneResp.Body.Close()
}

func TestRetryValidation(t *testing.T) {
	upstream := imageAPIServer(t)
	defer upstream.Close()
	s := newTestServer(t)
	require.NoError(t, s.LoadConfig(t.Context(), testConfig(upstream.URL)))

	for name, body := range map[string]string{
		"missing task": `{"page":{"index":2,"type":"content","content":"c"}}`,
		"missing page": `{"task_id":"task_1"}`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/generate/retry", strings.NewReader(body))
			s.Router().ServeHTTP(rec, req)
			require.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestImageRedirect(t *testing.T) {
	s := newTestServer(t)

	// No store configured yet.
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/images/task_1/1.png", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	s.mu.Lock()
	s.store = objectstore.NewMemory()
	s.mu.Unlock()

	rec = httptest.NewRecorder()
	s.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/images/task_1/1.png", nil))
	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "memory://task_1/1.png", rec.Header().Get("Location"))
}

func TestGenerateImagesMultipart(t *testing.T) {
	upstream := imageAPIServer(t)
	defer upstream.Close()
	s := newTestServer(t)
	require.NoError(t, s.LoadConfig(t.Context(), testConfig(upstream.URL)))
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	var buf bytes.Buffer
	mw := newMultipart(t, &buf, map[string]string{
		"pages":      `[{"index":1,"type":"cover","content":"封面"}]`,
		"user_topic": "多部分上传",
	}, map[string][]byte{"photo.png": testPNG(t)})

	resp, err := http.Post(ts.URL+"/api/generate/images", mw, &buf)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()

	frames := parseSSE(t, string(raw))
	last := frames[len(frames)-1]
	require.Equal(t, "finish", last.kind)
	require.Contains(t, string(last.data), `"success":true`)
}
