// Copyright 2023 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package vdb

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cros.local/alchemist/internal/binarypackage"
)

func TestDir(t *testing.T) {
	got := Dir("/build/arm64-generic/root", "app-editors/nano-6.4")
	want := "/build/arm64-generic/root/var/db/pkg/app-editors/nano-6.4"
	if got != want {
		t.Errorf("Dir = %q, want %q", got, want)
	}
}

func TestWriteProducesRequiredFiles(t *testing.T) {
	dir := t.TempDir()
	xpak := binarypackage.XPAK{
		"CATEGORY": []byte("app-editors\n"),
		"PF":       []byte("nano-6.4\n"),
	}
	entries := []ContentEntry{
		{Type: EntryDir, Path: "/usr/bin"},
		{Type: EntryObj, Path: "/usr/bin/nano", MD5: "d41d8cd98f00b204e9800998ecf8427e"},
		{Type: EntrySym, Path: "/usr/bin/pico", Target: "nano"},
	}

	if err := Write(dir, xpak, entries); err != nil {
		t.Fatalf("Write: %v", err)
	}

	for _, name := range []string{"CATEGORY", "PF", "COUNTER", "CONTENTS"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}

	counter, err := os.ReadFile(filepath.Join(dir, "COUNTER"))
	if err != nil {
		t.Fatal(err)
	}
	if string(counter) != "0" {
		t.Errorf("COUNTER = %q, want %q", counter, "0")
	}

	contents, err := os.ReadFile(filepath.Join(dir, "CONTENTS"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimRight(string(contents), "\n"), "\n")
	want := []string{
		"dir /usr/bin",
		"obj /usr/bin/nano d41d8cd98f00b204e9800998ecf8427e 0",
		"sym /usr/bin/pico -> nano 0",
	}
	if len(lines) != len(want) {
		t.Fatalf("CONTENTS has %d lines, want %d:\n%s", len(lines), len(want), contents)
	}
	for i := range want {
		if lines[i] != want[i] {
			t.Errorf("CONTENTS line %d = %q, want %q", i, lines[i], want[i])
		}
	}
}

func TestBuildContentsWalksTree(t *testing.T) {
	root := t.TempDir()
	if err := os.MkdirAll(filepath.Join(root, "usr/bin"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(root, "usr/bin/nano"), []byte("x"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("nano", filepath.Join(root, "usr/bin/pico")); err != nil {
		t.Fatal(err)
	}

	entries, err := BuildContents(root)
	if err != nil {
		t.Fatalf("BuildContents: %v", err)
	}

	byPath := make(map[string]ContentEntry)
	for _, e := range entries {
		byPath[e.Path] = e
	}

	if byPath["/usr/bin"].Type != EntryDir {
		t.Errorf("/usr/bin type = %q, want dir", byPath["/usr/bin"].Type)
	}
	if byPath["/usr/bin/nano"].Type != EntryObj || byPath["/usr/bin/nano"].MD5 == "" {
		t.Errorf("/usr/bin/nano = %+v, want obj entry with md5", byPath["/usr/bin/nano"])
	}
	if got := byPath["/usr/bin/pico"]; got.Type != EntrySym || got.Target != "nano" {
		t.Errorf("/usr/bin/pico = %+v, want sym entry targeting nano", got)
	}
}
