// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package objectstore persists generated images in an S3-compatible bucket
// and builds the public URLs they are served from.
package objectstore

import (
	"context"
	"log/slog"

	"github.com/n1n-api/xiaoshubao/configapi"
)

// Store uploads image bytes under deterministic keys and returns retrievable
// URLs.
type Store interface {
	// Upload writes data under key with the given content type and returns
	// the public URL of the object. Implementations overwrite existing keys.
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
	// URL returns the public URL for key without uploading anything.
	URL(key string) string
}

// FromConfig returns the S3 store when the storage settings are complete, and
// the disabled store otherwise so that generation can proceed without
// persistence.
func FromConfig(ctx context.Context, cfg *configapi.Storage, logger *slog.Logger) (Store, error) {
	if !cfg.Configured() {
		logger.Warn("object store not configured; generated images will not be persisted")
		return NewDisabled(logger), nil
	}
	return NewS3(ctx, cfg)
}

// Disabled is the store used when no storage is configured. Uploads are
// skipped and URLs are empty.
type Disabled struct {
	logger *slog.Logger
}

// NewDisabled returns a store that skips all uploads.
func NewDisabled(logger *slog.Logger) *Disabled {
	return &Disabled{logger: logger}
}

// Upload implements Store by logging and returning an empty URL.
func (d *Disabled) Upload(_ context.Context, key string, _ []byte, _ string) (string, error) {
	d.logger.Warn("object store not configured; skipping upload", slog.String("key", key))
	return "", nil
}

// URL implements Store.
func (d *Disabled) URL(string) string { return "" }
