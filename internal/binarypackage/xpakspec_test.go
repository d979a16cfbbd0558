// Copyright 2022 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package binarypackage

import (
	"archive/tar"
	"bytes"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestParseXpakSpecs(t *testing.T) {
	got, err := ParseXpakSpecs([]string{"CATEGORY=/out/category", "SLOT=?/out/slot"})
	if err != nil {
		t.Fatalf("ParseXpakSpecs: %v", err)
	}
	want := []XpakSpec{
		{XpakHeader: "CATEGORY", TargetPath: "/out/category", Optional: false},
		{XpakHeader: "SLOT", TargetPath: "/out/slot", Optional: true},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseXpakSpecs = %+v, want %+v", got, want)
	}
}

func TestParseXpakSpecsInvalid(t *testing.T) {
	if _, err := ParseXpakSpecs([]string{"no-equals-sign"}); err == nil {
		t.Error("expected an error for a spec without '='")
	}
}

func TestParseOutputFileSpecs(t *testing.T) {
	got, err := ParseOutputFileSpecs([]string{"/inside/path=/out/path"})
	if err != nil {
		t.Fatalf("ParseOutputFileSpecs: %v", err)
	}
	want := []OutputFileSpec{{InsidePath: "/inside/path", TargetPath: "/out/path"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("ParseOutputFileSpecs = %+v, want %+v", got, want)
	}
}

func TestParseOutputFileSpecsRejectsRelativeInsidePath(t *testing.T) {
	if _, err := ParseOutputFileSpecs([]string{"relative/path=/out/path"}); err == nil {
		t.Error("expected an error for a non-absolute inside path")
	}
}

func TestParseOutputFileSpecsInvalid(t *testing.T) {
	if _, err := ParseOutputFileSpecs([]string{"no-equals-sign"}); err == nil {
		t.Error("expected an error for a spec without '='")
	}
}

func TestExtractXpakFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pkg.tbz2")
	writeTestBinaryPackageFile(t, path, XPAK{
		"CATEGORY": []byte("app-editors\n"),
	})

	bp, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer bp.Close()

	categoryOut := filepath.Join(dir, "category")
	slotOut := filepath.Join(dir, "slot")
	specs := []XpakSpec{
		{XpakHeader: "CATEGORY", TargetPath: categoryOut},
		{XpakHeader: "SLOT", TargetPath: slotOut, Optional: true},
	}
	if err := ExtractXpakFiles(bp, specs); err != nil {
		t.Fatalf("ExtractXpakFiles: %v", err)
	}

	got, err := os.ReadFile(categoryOut)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "app-editors\n" {
		t.Errorf("CATEGORY = %q, want %q", got, "app-editors\n")
	}

	got, err = os.ReadFile(slotOut)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Errorf("missing optional SLOT key should write an empty file, got %q", got)
	}
}

func TestExtractXpakFilesMissingRequiredKey(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pkg.tbz2")
	writeTestBinaryPackageFile(t, path, XPAK{"CATEGORY": []byte("app-editors\n")})

	bp, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer bp.Close()

	err = ExtractXpakFiles(bp, []XpakSpec{{XpakHeader: "SLOT", TargetPath: filepath.Join(dir, "slot")}})
	if err == nil {
		t.Error("expected an error for a missing required XPAK key")
	}
}

func TestExtractOutFiles(t *testing.T) {
	var tarBuf bytes.Buffer
	tw := tar.NewWriter(&tarBuf)
	content := []byte("hello")
	if err := tw.WriteHeader(&tar.Header{Name: "./usr/bin/tool", Mode: 0o755, Size: int64(len(content))}); err != nil {
		t.Fatal(err)
	}
	if _, err := tw.Write(content); err != nil {
		t.Fatal(err)
	}
	if err := tw.Close(); err != nil {
		t.Fatal(err)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "pkg.tbz2")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := WriteTBZ2(f, bytes.NewReader(tarBuf.Bytes()), XPAK{}); err != nil {
		t.Fatal(err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	bp, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer bp.Close()

	outPath := filepath.Join(dir, "tool")
	specs := []OutputFileSpec{{InsidePath: "/usr/bin/tool", TargetPath: outPath}}
	if err := ExtractOutFiles(bp, specs); err != nil {
		t.Fatalf("ExtractOutFiles: %v", err)
	}

	got, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "hello" {
		t.Errorf("extracted file = %q, want %q", got, "hello")
	}
}

func writeTestBinaryPackageFile(t *testing.T, path string, xpak XPAK) {
	t.Helper()
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if err := WriteTBZ2(f, bytes.NewReader(nil), xpak); err != nil {
		t.Fatal(err)
	}
}
