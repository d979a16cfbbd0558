// Copyright 2023 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package durabletree implements the durable tree directory format: a way
// to encode an arbitrary directory tree (including symlinks, character
// devices, permissions and user xattrs) as plain regular-file payloads that
// survive a round trip through a content-addressed remote cache.
//
// # Layout
//
//   - DURABLE_TREE: an empty marker file.
//   - raw/: regular files and directories only.
//   - manifest.json: records the original mode/xattrs/symlink target of
//     every entry under raw/.
//   - extra.tar.zst: the symlinks and whiteouts removed from raw/.
//
// # Layer ordering
//
// The same relative path might be recorded in both raw/ and the extra
// tarball's ancestor-directory entries (the tarball's directory entries
// exist only to make the archive self-contained; it never contains any
// directory as a terminal leaf other than their mode). Because the tarball
// cannot carry xattrs, raw/ must always be mounted as the higher-priority
// overlayfs layer.
package durabletree

import (
	"fmt"
	"os"
	"path/filepath"
)

// DurableTree is an expanded durable tree, ready to be mounted with
// overlayfs. Call Close to tear down its tmpfs-backed extra directory.
type DurableTree struct {
	rawDir string
	extra  *extraDir
}

// TryExists reports whether rootDir is a directory and is a durable tree.
func TryExists(rootDir string) (bool, error) {
	fi, err := os.Stat(rootDir)
	if err != nil {
		return false, err
	}
	if !fi.IsDir() {
		return false, nil
	}
	_, err = os.Stat(filepath.Join(rootDir, markerFileName))
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Convert converts a plain directory tree into a durable tree in place. It
// is an error to convert a directory that is already a durable tree.
func Convert(rootDir string) error {
	return convertImpl(rootDir)
}

// Expand expands a durable tree, restoring any metadata a cache layer
// dropped and extracting its extra tarball. It is safe to call concurrently
// from multiple processes on the same tree: restoration happens at most
// once, serialized by an flock on rootDir.
func Expand(rootDir string) (*DurableTree, error) {
	extra, err := expandImpl(rootDir)
	if err != nil {
		return nil, fmt.Errorf("expanding durable tree %s: %w", rootDir, err)
	}
	return &DurableTree{
		rawDir: filepath.Join(rootDir, rawDirName),
		extra:  extra,
	}, nil
}

// Layers returns the directories to mount with overlayfs, in mount order
// (a former directory is overridden by a latter one). raw/ is always last
// so it takes precedence over the extra directory, which lacks xattrs.
func (t *DurableTree) Layers() []string {
	return []string{t.extra.Path(), t.rawDir}
}

// Close unmounts the tmpfs backing the extra directory.
func (t *DurableTree) Close() error {
	return t.extra.Close()
}
