// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package mountsdk

import "cros.local/alchemist/internal/makechroot"

// MappedDualPath is similar to fileutil.DualPath in shape, but the
// semantics differ: HostPath's contents are mapped to SDKPath on the
// inside, but to reach them from the outside once mounted you need the
// path relative to the SDK root (RootDir.Add(SDKPath)), not HostPath
// itself.
type MappedDualPath struct {
	// HostPath is the file or directory to be mounted, e.g.
	// bazel-out/.../my_dir.
	HostPath string
	// SDKPath is where HostPath will be visible from inside, e.g.
	// /mnt/host/my_dir.
	SDKPath string
}

// Config collects everything needed to assemble and enter a build
// container. A single Config builds both the outer "what gets mounted
// where" request (Overlays/CopyToSDK/Remounts) and the lower-level overlay
// and bind-mount settings the container entry point itself understands
// (BindMounts/LoginMode), so callers don't need to juggle two structs that
// describe overlapping concerns.
type Config struct {
	// Overlays are directories mapped wholesale into the SDK root.
	Overlays []MappedDualPath
	// CopyToSDK are individual files copied (not mounted) into the SDK
	// root before it is entered.
	CopyToSDK []MappedDualPath
	// Remounts lists absolute paths inside the SDK root that must be
	// re-exposed from the host even though an enclosing directory was
	// already overlaid by one of Overlays.
	Remounts []string
	// RunInContainerExtraArgs are passed through to the run_in_container
	// invocation verbatim, ahead of the final command.
	RunInContainerExtraArgs []string

	// BindMounts are host paths bind-mounted directly into the container,
	// independent of the SDK root overlay.
	BindMounts []makechroot.BindMount
	// LoginMode requests an interactive shell at a particular point in the
	// build instead of running straight through; it enables the FIFO
	// control channel used to reset the controlling terminal's process
	// group.
	LoginMode LoginMode
	// KeepHostMount keeps the pre-pivot root bind-mounted at /host inside
	// the container, for debugging.
	KeepHostMount bool

	// Output, if set, is where the container's upper directory is
	// promoted to once the command inside it exits successfully. It must
	// be set for any command whose point is to produce output, since the
	// upper directory itself lives on a tmpfs private to the container
	// process and disappears when that process exits.
	Output string
	// DurableTree converts Output into a durable tree (see
	// internal/durabletree) after promotion, instead of leaving it as a
	// plain directory.
	DurableTree bool
}
