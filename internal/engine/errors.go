// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package engine

// InputError reports request input that cannot start a task, such as an empty
// page list. It is returned synchronously before any task state exists.
type InputError struct {
	Message string
}

// Error implements error.
func (e *InputError) Error() string { return e.Message }

// ConfigError reports provider or template configuration that cannot produce
// a working service.
type ConfigError struct {
	Message string
}

// Error implements error.
func (e *ConfigError) Error() string { return e.Message }

// ProviderError reports a failed upstream generation call. Provider failures
// are retried automatically up to the attempt budget.
type ProviderError struct {
	Err error
}

// Error implements error. The upstream message is surfaced verbatim because
// it is what ends up in page error events.
func (e *ProviderError) Error() string { return e.Err.Error() }

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error { return e.Err }

// StorageError reports a failed image upload. Uploads are not retried; the
// failure surfaces on the page without consuming further generation attempts.
type StorageError struct {
	Err error
}

// Error implements error.
func (e *StorageError) Error() string {
	return "image upload failed: " + e.Err.Error() + " (check the R2 configuration)"
}

// Unwrap returns the underlying error.
func (e *StorageError) Unwrap() error { return e.Err }
