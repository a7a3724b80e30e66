// Copyright Envoy AI Gateway Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

package version

// version is the current version of build. This is populated by the Go linker.
var version string

// Parse returns the service's version string, or "dev" for builds made
// without the release tooling.
func Parse() string {
	if version == "" {
		return "dev"
	}
	return version
}
