// Copyright 2023 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package durabletree

import "time"

const (
	// markerFileName is the empty file that identifies a directory as a
	// durable tree.
	markerFileName = "DURABLE_TREE"

	// rawDirName holds every regular file and directory of the original
	// tree, with non-regular files (symlinks, whiteouts) removed and every
	// remaining entry's mode normalized to 0o755 (the original modes are
	// kept in the manifest; user xattrs are left in place).
	rawDirName = "raw"

	// manifestFileName records every entry's FileEntry, keyed by its path
	// relative to the raw directory.
	manifestFileName = "manifest.json"

	// extraTarballFileName holds the symlinks and whiteouts that cannot be
	// represented as Bazel tree artifact entries.
	extraTarballFileName = "extra.tar.zst"

	// restoredXattr marks the root directory once expand has finished
	// restoring permissions and xattrs from the manifest, so repeated
	// expands of the same tree are cheap.
	restoredXattr = "user.restored"

	// modeMask strips the file-type bits off a syscall.Stat_t.Mode value,
	// leaving only permission and setuid/setgid/sticky bits.
	modeMask = 0o7777

	// settleTimeout bounds how long expand waits for a cache layer to
	// finish asynchronously chmod'ing directories to 0o555 after checkout.
	settleTimeout = 60 * time.Second
)
