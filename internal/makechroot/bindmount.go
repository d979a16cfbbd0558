// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package makechroot

import (
	"fmt"
	"strings"
)

// BindMount describes one host path to bind-mount into the container.
type BindMount struct {
	MountPath string
	Source    string
	RW        bool
}

// ParseBindMountSpec parses a list of "<mountpoint>=<source>[:rw]" specs, as
// accepted by the --bind-mount flag. Mounts are read-only unless ":rw" is
// appended.
func ParseBindMountSpec(specs []string) ([]BindMount, error) {
	var mounts []BindMount
	for _, spec := range specs {
		mountPath, rest, ok := strings.Cut(spec, "=")
		if !ok {
			return nil, fmt.Errorf("invalid bind mount spec: %s", spec)
		}

		source := rest
		rw := false
		if s, ok := strings.CutSuffix(rest, ":rw"); ok {
			source, rw = s, true
		}

		mounts = append(mounts, BindMount{
			MountPath: mountPath,
			Source:    source,
			RW:        rw,
		})
	}
	return mounts, nil
}
