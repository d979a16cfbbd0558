// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"cros.local/alchemist/internal/repository"
)

func writeTestOverlay(t *testing.T, root string) string {
	t.Helper()

	overlay := filepath.Join(root, "overlay")
	for _, dir := range []string{
		filepath.Join(overlay, "profiles"),
		filepath.Join(overlay, "app-editors", "nano"),
		filepath.Join(overlay, "metadata"),
	} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(overlay, "profiles", "repo_name"), []byte("test\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(overlay, "app-editors", "nano", "nano-6.4.ebuild"), []byte(""), 0o644); err != nil {
		t.Fatal(err)
	}
	// A package directory with no ebuild should not be discovered.
	if err := os.MkdirAll(filepath.Join(overlay, "app-editors", "empty"), 0o755); err != nil {
		t.Fatal(err)
	}
	return overlay
}

func TestDiscoverPackageNames(t *testing.T) {
	root := t.TempDir()
	overlay := writeTestOverlay(t, root)

	repos, err := repository.NewRepoSet([]string{overlay})
	if err != nil {
		t.Fatalf("NewRepoSet: %v", err)
	}

	got, err := discoverPackageNames(repos)
	if err != nil {
		t.Fatalf("discoverPackageNames: %v", err)
	}

	want := []string{"app-editors/nano"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("discoverPackageNames = %v, want %v", got, want)
	}
}

func TestSortedEnabledUses(t *testing.T) {
	got := sortedEnabledUses(map[string]bool{"b": true, "a": true, "c": false})
	want := []string{"a", "b"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("sortedEnabledUses = %v, want %v", got, want)
	}
}

func TestWriteJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.json")

	if err := writeJSON(path, map[string]int{"a": 1}); err != nil {
		t.Fatalf("writeJSON: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(data), "{\n  \"a\": 1\n}\n"; got != want {
		t.Errorf("writeJSON contents = %q, want %q", got, want)
	}
}
