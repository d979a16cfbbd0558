// Copyright 2023 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package durabletree

import (
	"archive/tar"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"syscall"

	"cros.local/alchemist/internal/fileutil"
	"github.com/klauspost/compress/zstd"
)

// extraTarballBuilder appends symlinks and whiteouts removed from the raw
// directory into extra.tar.zst, writing each entry's ancestor directories
// first so the tarball can be extracted on its own.
type extraTarballBuilder struct {
	rawDir      string
	file        *os.File
	zstdEncoder *zstd.Encoder
	tarWriter   *tar.Writer
	writtenDirs map[string]bool
}

func newExtraTarballBuilder(rootDir string) (*extraTarballBuilder, error) {
	f, err := os.Create(filepath.Join(rootDir, extraTarballFileName))
	if err != nil {
		return nil, err
	}
	enc, err := zstd.NewWriter(f)
	if err != nil {
		f.Close()
		return nil, err
	}

	b := &extraTarballBuilder{
		rawDir:      filepath.Join(rootDir, rawDirName),
		file:        f,
		zstdEncoder: enc,
		tarWriter:   tar.NewWriter(enc),
		writtenDirs: make(map[string]bool),
	}

	// Always record the root directory so expand never infers a wrong mode
	// for it from the tmpfs default.
	if err := b.writeDirHeader("."); err != nil {
		b.abort()
		return nil, err
	}
	b.writtenDirs["."] = true
	return b, nil
}

// writeDirHeader writes a tar directory header for dir (relative to the raw
// directory), using its current mode on disk.
func (b *extraTarballBuilder) writeDirHeader(dir string) error {
	fi, err := os.Lstat(filepath.Join(b.rawDir, dir))
	if err != nil {
		return err
	}
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return fmt.Errorf("%s: cannot read raw stat info", dir)
	}
	name := filepath.Join(".", dir)
	if name != "." {
		name += "/"
	}
	return b.tarWriter.WriteHeader(&tar.Header{
		Typeflag: tar.TypeDir,
		Name:     name,
		Mode:     int64(st.Mode & modeMask),
	})
}

func (b *extraTarballBuilder) abort() {
	b.tarWriter.Close()
	b.zstdEncoder.Close()
	b.file.Close()
}

func (b *extraTarballBuilder) finish() error {
	if err := b.tarWriter.Close(); err != nil {
		return err
	}
	if err := b.zstdEncoder.Close(); err != nil {
		return err
	}
	if err := b.file.Sync(); err != nil {
		return err
	}
	return b.file.Close()
}

// ensureAncestors writes a tar directory header for every as-yet-unwritten
// ancestor of relPath, parents before children.
func (b *extraTarballBuilder) ensureAncestors(relPath string) error {
	var ancestors []string
	for dir := filepath.Dir(relPath); dir != "." && dir != "/"; dir = filepath.Dir(dir) {
		if b.writtenDirs[dir] {
			break
		}
		ancestors = append(ancestors, dir)
	}

	for i := len(ancestors) - 1; i >= 0; i-- {
		dir := ancestors[i]
		if err := b.writeDirHeader(dir); err != nil {
			return err
		}
		b.writtenDirs[dir] = true
	}
	return nil
}

// moveIntoTarball appends the non-regular file at relPath to the tarball
// and removes it from the raw directory.
func (b *extraTarballBuilder) moveIntoTarball(relPath string, mode fs.FileMode, rdev uint64) error {
	if err := b.ensureAncestors(relPath); err != nil {
		return err
	}
	dotPath := filepath.Join(".", relPath)
	absPath := filepath.Join(b.rawDir, relPath)

	switch {
	case mode&fs.ModeSymlink != 0:
		target, err := os.Readlink(absPath)
		if err != nil {
			return err
		}
		if err := b.tarWriter.WriteHeader(&tar.Header{
			Typeflag: tar.TypeSymlink,
			Name:     dotPath,
			Linkname: target,
			Mode:     int64(mode.Perm()),
		}); err != nil {
			return err
		}
	case mode&fs.ModeCharDevice != 0:
		if rdev != 0 {
			return fmt.Errorf("%s: unsupported character device (rdev=0x%x); only whiteouts (rdev=0) are allowed", relPath, rdev)
		}
		if err := b.tarWriter.WriteHeader(&tar.Header{
			Typeflag: tar.TypeChar,
			Name:     dotPath,
			Mode:     int64(mode.Perm()),
			Devmajor: 0,
			Devminor: 0,
		}); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%s: unsupported file type %v", relPath, mode)
	}

	return fileutil.RemoveWithChmod(absPath)
}

// pivotToRawSubdir atomically renames rootDir to rootDir/raw, by way of a
// sibling temporary directory, so that directory metadata (mode, xattrs)
// survives the move.
func pivotToRawSubdir(rootDir string) error {
	parent := filepath.Dir(rootDir)
	tmp, err := os.MkdirTemp(parent, ".durabletree-convert-*")
	if err != nil {
		return fmt.Errorf("creating scratch dir under %s: %w", parent, err)
	}

	if err := os.Rename(rootDir, filepath.Join(tmp, rawDirName)); err != nil {
		os.RemoveAll(tmp)
		return err
	}
	return os.Rename(tmp, rootDir)
}

// buildManifestAndExtraTarball walks the raw directory in sorted order,
// recording every entry in manifest.json and moving symlinks and
// whiteouts into extra.tar.zst.
func buildManifestAndExtraTarball(rootDir string) error {
	rawDir := filepath.Join(rootDir, rawDirName)

	m := newManifest()
	extra, err := newExtraTarballBuilder(rootDir)
	if err != nil {
		return err
	}

	var paths []string
	if err := filepath.WalkDir(rawDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		paths = append(paths, path)
		return nil
	}); err != nil {
		extra.abort()
		return err
	}
	sort.Strings(paths)

	for _, path := range paths {
		relPath, err := filepath.Rel(rawDir, path)
		if err != nil {
			extra.abort()
			return err
		}

		fi, err := os.Lstat(path)
		if err != nil {
			extra.abort()
			return err
		}

		switch mode := fi.Mode(); {
		case mode.IsRegular(), mode.IsDir():
			xattrs, err := getUserXattrs(path)
			if err != nil {
				extra.abort()
				return err
			}
			kind := entryRegular
			if mode.IsDir() {
				kind = entryDirectory
			}
			m.Files[relPath] = FileEntry{
				Kind:       kind,
				Mode:       uint32(mode.Perm()),
				UserXattrs: xattrs,
			}
			// Normalize now so the mode survives cache round trips; the
			// manifest above already captured the real mode.
			if err := os.Chmod(path, 0o755); err != nil {
				extra.abort()
				return err
			}
		case mode&fs.ModeSymlink != 0:
			target, err := os.Readlink(path)
			if err != nil {
				extra.abort()
				return err
			}
			m.Files[relPath] = FileEntry{Kind: entrySymlink, Target: target}
			if err := extra.moveIntoTarball(relPath, mode, 0); err != nil {
				extra.abort()
				return err
			}
		case mode&fs.ModeCharDevice != 0:
			st, ok := fi.Sys().(*syscall.Stat_t)
			if !ok || st.Rdev != 0 {
				extra.abort()
				return fmt.Errorf("%s: character devices must have rdev 0 to be a valid whiteout", relPath)
			}
			m.Files[relPath] = FileEntry{Kind: entryWhiteout}
			if err := extra.moveIntoTarball(relPath, mode, 0); err != nil {
				extra.abort()
				return err
			}
		default:
			extra.abort()
			return fmt.Errorf("%s: unsupported file type %v", relPath, mode)
		}
	}

	mf, err := os.Create(filepath.Join(rootDir, manifestFileName))
	if err != nil {
		extra.abort()
		return err
	}
	enc := json.NewEncoder(mf)
	if err := enc.Encode(m); err != nil {
		mf.Close()
		extra.abort()
		return err
	}
	if err := mf.Close(); err != nil {
		extra.abort()
		return err
	}

	return extra.finish()
}

// convertImpl converts an arbitrary directory tree into a durable tree in
// place.
func convertImpl(rootDir string) error {
	lock, err := lockDir(rootDir)
	if err != nil {
		return fmt.Errorf("locking %s: %w", rootDir, err)
	}
	defer lock.Close()

	if _, err := os.Stat(filepath.Join(rootDir, markerFileName)); err == nil {
		return fmt.Errorf("%s is already a durable tree", rootDir)
	} else if !os.IsNotExist(err) {
		return err
	}

	// Mark the directory "hot": a concurrent expand must refuse to touch a
	// tree that is still mid-convert.
	if err := os.Chmod(rootDir, 0o700); err != nil {
		return err
	}

	if err := pivotToRawSubdir(rootDir); err != nil {
		return err
	}
	if err := buildManifestAndExtraTarball(rootDir); err != nil {
		return err
	}

	// Stay hot: convert leaves the root at 0700, unrestored, and never
	// touches it again. expandImpl refuses to act on a tree still at 0700
	// so that expanding the very directory convert just produced, within
	// the same build action, is caught as a reuse bug rather than
	// silently restoring a tree nothing ever archived and re-checked-out.
	f, err := os.Create(filepath.Join(rootDir, markerFileName))
	if err != nil {
		return err
	}
	return f.Close()
}
