// Copyright 2023 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package durabletree

import (
	"encoding/json"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
)

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func buildSampleTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	mustWriteFile(t, filepath.Join(root, "a", "regular.txt"), "hello")
	if err := os.Chmod(filepath.Join(root, "a", "regular.txt"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(filepath.Join(root, "empty"), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.Symlink("regular.txt", filepath.Join(root, "a", "link")); err != nil {
		t.Fatal(err)
	}
	return root
}

func TestConvertProducesLayout(t *testing.T) {
	root := buildSampleTree(t)

	if err := convertImpl(root); err != nil {
		t.Fatalf("convertImpl: %v", err)
	}

	for _, name := range []string{markerFileName, rawDirName, manifestFileName, extraTarballFileName} {
		if _, err := os.Stat(filepath.Join(root, name)); err != nil {
			t.Errorf("missing %s: %v", name, err)
		}
	}

	if _, err := os.Stat(filepath.Join(root, rawDirName, "a", "link")); !os.IsNotExist(err) {
		t.Errorf("symlink should have been moved out of raw/, got err=%v", err)
	}
	if _, err := os.Stat(filepath.Join(root, rawDirName, "a", "regular.txt")); err != nil {
		t.Errorf("regular file should remain in raw/: %v", err)
	}
}

func TestConvertTwiceFails(t *testing.T) {
	root := buildSampleTree(t)
	if err := convertImpl(root); err != nil {
		t.Fatalf("convertImpl: %v", err)
	}
	if err := convertImpl(root); err == nil {
		t.Error("expected second convertImpl to fail, got nil")
	}
}

func TestManifestRecordsEveryEntry(t *testing.T) {
	root := buildSampleTree(t)
	if err := convertImpl(root); err != nil {
		t.Fatalf("convertImpl: %v", err)
	}

	f, err := os.Open(filepath.Join(root, manifestFileName))
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	var m manifest
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		t.Fatal(err)
	}

	want := map[string]entryKind{
		".":             entryDirectory,
		"a":             entryDirectory,
		"a/regular.txt": entryRegular,
		"a/link":        entrySymlink,
		"empty":         entryDirectory,
	}
	for path, kind := range want {
		entry, ok := m.Files[path]
		if !ok {
			t.Errorf("manifest missing entry for %q", path)
			continue
		}
		if entry.Kind != kind {
			t.Errorf("manifest[%q].Kind = %q, want %q", path, entry.Kind, kind)
		}
	}

	if got := m.Files["a/regular.txt"].Mode; got != 0o600 {
		t.Errorf("a/regular.txt mode = %o, want 0600", got)
	}
	if got := m.Files["a/link"].Target; got != "regular.txt" {
		t.Errorf("a/link target = %q, want %q", got, "regular.txt")
	}
}

func TestConvertLeavesTreeHotAndUnrestored(t *testing.T) {
	root := buildSampleTree(t)
	if err := convertImpl(root); err != nil {
		t.Fatalf("convertImpl: %v", err)
	}

	fi, err := os.Stat(root)
	if err != nil {
		t.Fatal(err)
	}
	if got := fi.Mode().Perm(); got != 0o700 {
		t.Errorf("root mode after convertImpl = %o, want 0700", got)
	}
	if restored, err := hasXattr(root, restoredXattr); err != nil {
		t.Fatal(err)
	} else if restored {
		t.Error("convertImpl must not mark the tree as restored; that is expandImpl's job")
	}
}

func TestExpandRejectsTreeJustConverted(t *testing.T) {
	root := buildSampleTree(t)
	if err := convertImpl(root); err != nil {
		t.Fatalf("convertImpl: %v", err)
	}

	// Calling expandImpl on the exact directory convertImpl just produced,
	// without anything normalizing its mode away from 0700 in between, is
	// the same-action reuse bug the hot-tree check exists to catch.
	if _, err := expandImpl(root); err == nil {
		t.Error("expected expandImpl to refuse a tree still at mode 0700, got nil")
	}
}

func TestMaybeRestoreRawDirectoryAfterCacheNormalizesMode(t *testing.T) {
	root := buildSampleTree(t)
	if err := convertImpl(root); err != nil {
		t.Fatalf("convertImpl: %v", err)
	}

	// Simulate the external distribution/cache layer that checks a durable
	// tree out with its hot 0700 mode already gone by the time a later,
	// independent build action expands it. Such a checkout also leaves
	// every directory under raw/ read-only (0555).
	if err := os.Chmod(root, 0o555); err != nil {
		t.Fatal(err)
	}
	if err := filepath.WalkDir(filepath.Join(root, rawDirName), func(path string, d fs.DirEntry, err error) error {
		if err != nil || !d.IsDir() {
			return err
		}
		return os.Chmod(path, 0o555)
	}); err != nil {
		t.Fatal(err)
	}

	if err := maybeRestoreRawDirectory(root); err != nil {
		t.Fatalf("maybeRestoreRawDirectory: %v", err)
	}

	fi, err := os.Stat(root)
	if err != nil {
		t.Fatal(err)
	}
	if got := fi.Mode().Perm(); got != 0o755 {
		t.Errorf("root mode after restore = %o, want 0755", got)
	}
	if restored, err := hasXattr(root, restoredXattr); err != nil {
		t.Fatal(err)
	} else if !restored {
		t.Error("expected restoredXattr to be set after restore")
	}

	regularPath := filepath.Join(root, rawDirName, "a", "regular.txt")
	fi, err = os.Stat(regularPath)
	if err != nil {
		t.Fatal(err)
	}
	if got := fi.Mode().Perm(); got != 0o600 {
		t.Errorf("restored regular.txt mode = %o, want 0600", got)
	}

	// A second restore pass must be a no-op rather than trying (and
	// failing, since nothing was actually dropped) to recreate anything.
	if err := maybeRestoreRawDirectory(root); err != nil {
		t.Fatalf("second maybeRestoreRawDirectory: %v", err)
	}
}

func TestExpandRejectsNonDurableTree(t *testing.T) {
	root := t.TempDir()
	if _, err := expandImpl(root); err == nil {
		t.Error("expected expandImpl to refuse a plain directory, got nil")
	}
}
