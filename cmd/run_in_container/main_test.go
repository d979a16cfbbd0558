// Copyright 2023 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestResolveOverlaySourcePathPlainDir(t *testing.T) {
	dir := t.TempDir()
	got, err := resolveOverlaySourcePath(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got != dir {
		t.Errorf("resolveOverlaySourcePath(%q) = %q, want %q", dir, got, dir)
	}
}

func TestResolveOverlaySourcePathSymlink(t *testing.T) {
	dir := t.TempDir()
	real := filepath.Join(dir, "real")
	if err := os.Mkdir(real, 0o755); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "link")
	if err := os.Symlink(real, link); err != nil {
		t.Fatal(err)
	}

	got, err := resolveOverlaySourcePath(link)
	if err != nil {
		t.Fatal(err)
	}
	if got != real {
		t.Errorf("resolveOverlaySourcePath(%q) = %q, want %q", link, got, real)
	}
}

func TestResolveOverlaySourcePathSymlinkForest(t *testing.T) {
	dir := t.TempDir()
	real := filepath.Join(dir, "execroot", "pkg", "output")
	if err := os.MkdirAll(real, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(real, "file.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	forest := filepath.Join(dir, "forest")
	if err := os.Mkdir(forest, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink(filepath.Join(real, "file.txt"), filepath.Join(forest, "file.txt")); err != nil {
		t.Fatal(err)
	}

	got, err := resolveOverlaySourcePath(forest)
	if err != nil {
		t.Fatal(err)
	}
	if got != real {
		t.Errorf("resolveOverlaySourcePath(%q) = %q, want %q", forest, got, real)
	}
}
