// Copyright 2023 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package vdb writes the installed-package database layout Portage expects
// at var/db/pkg/<cpf>/ inside a target root.
package vdb

import (
	"bytes"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"cros.local/alchemist/internal/binarypackage"
)

// Dir returns the path of the VDB entry for cpf (a "category/pf" string)
// inside rootDir.
func Dir(rootDir, cpf string) string {
	return filepath.Join(rootDir, "var/db/pkg", cpf)
}

// EntryType is the first field of a CONTENTS line.
type EntryType string

const (
	EntryDir EntryType = "dir"
	EntryObj EntryType = "obj"
	EntrySym EntryType = "sym"
)

// ContentEntry is one installed file, directory, or symlink recorded in
// CONTENTS.
type ContentEntry struct {
	Type   EntryType
	Path   string
	MD5    string // set for EntryObj
	Target string // set for EntrySym
}

func (e ContentEntry) format() (string, error) {
	switch e.Type {
	case EntryDir:
		return fmt.Sprintf("dir %s", e.Path), nil
	case EntryObj:
		return fmt.Sprintf("obj %s %s 0", e.Path, e.MD5), nil
	case EntrySym:
		return fmt.Sprintf("sym %s -> %s 0", e.Path, e.Target), nil
	default:
		return "", fmt.Errorf("unknown CONTENTS entry type %q", e.Type)
	}
}

// BuildContents walks root and records one ContentEntry per file, directory
// and symlink found, with paths relative to root.
func BuildContents(root string) ([]ContentEntry, error) {
	var entries []ContentEntry

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if relPath == "." {
			return nil
		}
		vdbPath := "/" + relPath

		switch {
		case d.Type()&fs.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				return err
			}
			entries = append(entries, ContentEntry{Type: EntrySym, Path: vdbPath, Target: target})
		case d.IsDir():
			entries = append(entries, ContentEntry{Type: EntryDir, Path: vdbPath})
		default:
			sum, err := md5sum(path)
			if err != nil {
				return err
			}
			entries = append(entries, ContentEntry{Type: EntryObj, Path: vdbPath, MD5: sum})
		}
		return nil
	})
	return entries, err
}

func md5sum(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Write writes the var/db/pkg/<cpf>/ layout to dir: every XPAK key as a
// file (value bytes verbatim), COUNTER zeroed, and CONTENTS built from
// entries sorted by path so the result is reproducible regardless of the
// order the caller discovered them in.
func Write(dir string, xpak binarypackage.XPAK, entries []ContentEntry) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	for key, value := range xpak {
		if err := os.WriteFile(filepath.Join(dir, key), value, 0o644); err != nil {
			return fmt.Errorf("writing XPAK key %s: %w", key, err)
		}
	}

	if err := os.WriteFile(filepath.Join(dir, "COUNTER"), []byte("0"), 0o644); err != nil {
		return err
	}

	sorted := append([]ContentEntry(nil), entries...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	var buf bytes.Buffer
	for _, e := range sorted {
		line, err := e.format()
		if err != nil {
			return err
		}
		buf.WriteString(line)
		buf.WriteByte('\n')
	}

	return os.WriteFile(filepath.Join(dir, "CONTENTS"), buf.Bytes(), 0o644)
}
