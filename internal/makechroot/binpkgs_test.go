// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package makechroot

import (
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"cros.local/alchemist/internal/binarypackage"
)

func writeTestBinaryPackage(t *testing.T, path, category, pf string) {
	t.Helper()

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	xp := binarypackage.XPAK{
		"CATEGORY": []byte(category + "\n"),
		"PF":       []byte(pf + "\n"),
	}
	if err := binarypackage.WriteTBZ2(f, bytes.NewReader([]byte("content")), xp); err != nil {
		t.Fatal(err)
	}
}

func TestCopyBinaryPackages(t *testing.T) {
	srcDir := t.TempDir()
	nanoPath := filepath.Join(srcDir, "nano.tbz2")
	writeTestBinaryPackage(t, nanoPath, "app-editors", "nano-6.4")

	destDir := t.TempDir()
	atoms, err := CopyBinaryPackages(destDir, []string{nanoPath})
	if err != nil {
		t.Fatalf("CopyBinaryPackages: %v", err)
	}

	wantAtoms := []string{"=app-editors/nano-6.4"}
	if !reflect.DeepEqual(atoms, wantAtoms) {
		t.Errorf("atoms = %v, want %v", atoms, wantAtoms)
	}

	copied := filepath.Join(destDir, "app-editors", "nano-6.4.tbz2")
	if _, err := os.Stat(copied); err != nil {
		t.Errorf("expected copy at %s: %v", copied, err)
	}
}

func TestCopyBinaryPackagesNoPackages(t *testing.T) {
	destDir := t.TempDir()
	atoms, err := CopyBinaryPackages(destDir, nil)
	if err != nil {
		t.Fatalf("CopyBinaryPackages: %v", err)
	}
	if len(atoms) != 0 {
		t.Errorf("atoms = %v, want empty", atoms)
	}
}
