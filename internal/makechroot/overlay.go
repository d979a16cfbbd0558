// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package makechroot assembles the overlayfs lower-layer stack and bind
// mounts that make up a container's root filesystem, and prunes
// build-nonhermetic cruft out of the resulting upper directory once the
// container exits.
package makechroot

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"cros.local/alchemist/internal/durabletree"
)

// OverlayType identifies how an overlay's image path should be turned into
// a directory to feed to overlayfs as a lower layer.
type OverlayType int

const (
	// OverlayDir is a plain directory, used as-is as a lower layer.
	OverlayDir OverlayType = iota
	// OverlaySquashfs is a squashfs image, mounted with squashfuse.
	OverlaySquashfs
	// OverlayTar is a tarball, extracted into a scratch directory.
	OverlayTar
	// OverlayDurableTree is a durabletree.Convert output, expanded into
	// its two constituent directories (extras, then raw).
	OverlayDurableTree
)

// OverlayInfo describes one overlayfs lower layer. MountDir is the path,
// relative to the container root, that this layer (and any other
// OverlayInfo sharing the same MountDir) should be mounted at; the empty
// string means the container's root itself. Layers sharing a MountDir are
// composed into a single overlayfs mount, in the order they were supplied
// (earlier entries are the higher, i.e. more visible, layers).
type OverlayInfo struct {
	MountDir  string
	ImagePath string
}

// ParseOverlaySpecs parses a list of "[<mountdir>=]<path>" specs, as
// accepted by the --overlay flag. A spec with no "=" overlays the root.
func ParseOverlaySpecs(specs []string) ([]OverlayInfo, error) {
	var overlays []OverlayInfo
	for _, spec := range specs {
		mountDir, imagePath, ok := strings.Cut(spec, "=")
		if !ok {
			mountDir, imagePath = "", mountDir
		}
		overlays = append(overlays, OverlayInfo{
			MountDir:  strings.Trim(mountDir, "/"),
			ImagePath: imagePath,
		})
	}
	return overlays, nil
}

var (
	squashfsMagic = []byte{0x68, 0x73, 0x71, 0x73} // "hsqs"
)

// DetectOverlayType inspects path to determine how it should be mounted.
func DetectOverlayType(path string) (OverlayType, error) {
	if ok, err := durabletree.TryExists(path); err != nil {
		return 0, err
	} else if ok {
		return OverlayDurableTree, nil
	}

	fi, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("detecting overlay type of %s: %w", path, err)
	}
	if fi.IsDir() {
		return OverlayDir, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	magic := make([]byte, 4)
	if _, err := f.Read(magic); err == nil && bytes.Equal(magic, squashfsMagic) {
		return OverlaySquashfs, nil
	}

	switch {
	case strings.HasSuffix(path, ".tar"),
		strings.HasSuffix(path, ".tar.gz"),
		strings.HasSuffix(path, ".tar.zst"),
		strings.HasSuffix(path, ".tbz2"):
		return OverlayTar, nil
	}

	return 0, fmt.Errorf("%s: cannot determine overlay type", path)
}
