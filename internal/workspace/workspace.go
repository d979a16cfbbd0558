// Copyright 2023 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package workspace resolves the environment variables the driving build
// tool sets at the process boundary: the workspace root used to resolve
// workspace-relative CLI arguments, and the directory (if any) to write
// Chrome trace-event profiles to.
package workspace

import "os"

// Dir returns the workspace root the driving build tool invoked this
// process from, or "" if it wasn't invoked that way (e.g. a bare `go run`
// during development).
func Dir() string {
	return os.Getenv("BUILD_WORKSPACE_DIRECTORY")
}

// ProfilesDir returns the directory to write Chrome trace-event profiles
// to, or "" if profiling wasn't requested.
func ProfilesDir() string {
	return os.Getenv("ALCHEMY_PROFILES_DIR")
}
