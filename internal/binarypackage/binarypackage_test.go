// Copyright 2023 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package binarypackage

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/klauspost/compress/zstd"
)

func TestWriteTBZ2RoundTrip(t *testing.T) {
	wantXpak := XPAK{
		"CATEGORY": []byte("app-editors\n"),
		"PF":       []byte("nano-6.4\n"),
		"SLOT":     []byte("0/0\n"),
	}
	wantContent := []byte("content")

	dir := t.TempDir()
	path := filepath.Join(dir, "nano-6.4.tbz2")

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := WriteTBZ2(f, bytes.NewReader(wantContent), wantXpak); err != nil {
		t.Fatalf("WriteTBZ2: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	bp, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer bp.Close()

	gotXpak, err := bp.Xpak()
	if err != nil {
		t.Fatalf("Xpak: %v", err)
	}
	if diff := cmp.Diff(wantXpak, gotXpak); diff != "" {
		t.Errorf("Xpak mismatch (-want +got):\n%s", diff)
	}

	tarball, err := bp.TarballReader()
	if err != nil {
		t.Fatalf("TarballReader: %v", err)
	}
	defer tarball.Close()

	dec, err := zstd.NewReader(tarball)
	if err != nil {
		t.Fatal(err)
	}
	defer dec.Close()

	gotContent, err := io.ReadAll(dec)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(gotContent, wantContent) {
		t.Errorf("tarball content = %q, want %q", gotContent, wantContent)
	}
}

func TestXpakKeysAreSortedForReproducibility(t *testing.T) {
	xpak := XPAK{
		"SLOT":     []byte("0\n"),
		"CATEGORY": []byte("app-editors\n"),
		"PF":       []byte("nano-6.4\n"),
	}
	blob1 := buildXpakBlob(xpak)
	blob2 := buildXpakBlob(xpak)
	if !bytes.Equal(blob1, blob2) {
		t.Error("buildXpakBlob is not deterministic across calls")
	}
	if i, j, k := bytes.Index(blob1, []byte("CATEGORY")), bytes.Index(blob1, []byte("PF")), bytes.Index(blob1, []byte("SLOT")); !(i >= 0 && i < j && j < k) {
		t.Errorf("XPAK index keys not in sorted order: CATEGORY@%d PF@%d SLOT@%d", i, j, k)
	}
}

func TestReplaceXpakKeepsTarballRewritesMetadata(t *testing.T) {
	wantContent := []byte("content")
	dir := t.TempDir()
	path := filepath.Join(dir, "nano-6.4.tbz2")

	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := WriteTBZ2(f, bytes.NewReader(wantContent), XPAK{"SLOT": []byte("0\n")}); err != nil {
		t.Fatalf("WriteTBZ2: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	newXpak := XPAK{"SLOT": []byte("1\n"), "CATEGORY": []byte("app-editors\n")}
	if err := ReplaceXpak(path, newXpak); err != nil {
		t.Fatalf("ReplaceXpak: %v", err)
	}

	bp, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer bp.Close()

	gotXpak, err := bp.Xpak()
	if err != nil {
		t.Fatalf("Xpak: %v", err)
	}
	if diff := cmp.Diff(newXpak, gotXpak); diff != "" {
		t.Errorf("Xpak mismatch (-want +got):\n%s", diff)
	}

	tarball, err := bp.TarballReader()
	if err != nil {
		t.Fatalf("TarballReader: %v", err)
	}
	defer tarball.Close()

	dec, err := zstd.NewReader(tarball)
	if err != nil {
		t.Fatal(err)
	}
	defer dec.Close()

	gotContent, err := io.ReadAll(dec)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(gotContent, wantContent) {
		t.Errorf("tarball content = %q, want %q", gotContent, wantContent)
	}
}

func TestReadXpakRejectsTruncatedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "truncated.tbz2")
	if err := os.WriteFile(path, []byte("too short"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadXpak(path); err == nil {
		t.Error("expected ReadXpak to reject a truncated file")
	}
}
