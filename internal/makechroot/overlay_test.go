// Copyright 2023 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package makechroot_test

import (
	"os"
	"path/filepath"
	"testing"

	"cros.local/alchemist/internal/makechroot"
)

func TestParseOverlaySpecs(t *testing.T) {
	for _, tc := range []struct {
		spec     string
		wantDir  string
		wantPath string
	}{
		{"/foo/bar.squashfs", "", "/foo/bar.squashfs"},
		{"build/board=/foo/bar.squashfs", "build/board", "/foo/bar.squashfs"},
		{"/build/board/=/foo/bar", "build/board", "/foo/bar"},
	} {
		overlays, err := makechroot.ParseOverlaySpecs([]string{tc.spec})
		if err != nil {
			t.Fatalf("ParseOverlaySpecs(%q): %v", tc.spec, err)
		}
		if len(overlays) != 1 {
			t.Fatalf("ParseOverlaySpecs(%q): got %d overlays, want 1", tc.spec, len(overlays))
		}
		if got := overlays[0]; got.MountDir != tc.wantDir || got.ImagePath != tc.wantPath {
			t.Errorf("ParseOverlaySpecs(%q) = %+v, want {MountDir: %q, ImagePath: %q}", tc.spec, got, tc.wantDir, tc.wantPath)
		}
	}
}

func TestDetectOverlayType(t *testing.T) {
	dir := t.TempDir()

	plainDir := filepath.Join(dir, "plain")
	if err := os.Mkdir(plainDir, 0o755); err != nil {
		t.Fatal(err)
	}

	squashfsFile := filepath.Join(dir, "image.squashfs")
	if err := os.WriteFile(squashfsFile, []byte{0x68, 0x73, 0x71, 0x73, 0, 0, 0, 0}, 0o644); err != nil {
		t.Fatal(err)
	}

	tarFile := filepath.Join(dir, "image.tar.zst")
	if err := os.WriteFile(tarFile, []byte("not actually a tarball"), 0o644); err != nil {
		t.Fatal(err)
	}

	for _, tc := range []struct {
		path string
		want makechroot.OverlayType
	}{
		{plainDir, makechroot.OverlayDir},
		{squashfsFile, makechroot.OverlaySquashfs},
		{tarFile, makechroot.OverlayTar},
	} {
		got, err := makechroot.DetectOverlayType(tc.path)
		if err != nil {
			t.Errorf("DetectOverlayType(%q): %v", tc.path, err)
			continue
		}
		if got != tc.want {
			t.Errorf("DetectOverlayType(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}

func TestDetectOverlayTypeUnknown(t *testing.T) {
	dir := t.TempDir()
	junk := filepath.Join(dir, "junk.bin")
	if err := os.WriteFile(junk, []byte("nope"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := makechroot.DetectOverlayType(junk); err == nil {
		t.Error("DetectOverlayType of an unrecognizable file unexpectedly succeeded")
	}
}
