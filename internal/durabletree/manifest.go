// Copyright 2023 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package durabletree

// entryKind is the tag of a FileEntry's variant.
type entryKind string

const (
	entryRegular   entryKind = "regular"
	entryDirectory entryKind = "directory"
	entrySymlink   entryKind = "symlink"
	entryWhiteout  entryKind = "whiteout"
)

// FileEntry describes one path recorded in manifest.json. Exactly the
// fields relevant to Kind are populated; the others are left zero.
type FileEntry struct {
	Kind       entryKind         `json:"kind"`
	Mode       uint32            `json:"mode,omitempty"`
	UserXattrs map[string][]byte `json:"user_xattrs,omitempty"`
	Target     string            `json:"target,omitempty"`
}

// manifest is the top-level manifest.json document: an ordered map from a
// path relative to the raw directory to its FileEntry. encoding/json
// marshals map[string]V sorted by key, which keeps the file deterministic.
type manifest struct {
	Files map[string]FileEntry `json:"files"`
}

func newManifest() *manifest {
	return &manifest{Files: make(map[string]FileEntry)}
}
