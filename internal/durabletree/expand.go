// Copyright 2023 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package durabletree

import (
	"archive/tar"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/klauspost/compress/zstd"
	"golang.org/x/sys/unix"
)

// extraDir is a tmpfs-backed scratch directory holding the symlinks and
// whiteouts extracted from extra.tar.zst. Its tmpfs mount is torn down by
// Close.
type extraDir struct {
	path string
}

func (d *extraDir) Path() string { return d.path }

func (d *extraDir) Close() error {
	return unix.Unmount(d.path, unix.MNT_DETACH)
}

// maybeRestoreRawDirectory restores permissions and xattrs recorded in
// manifest.json onto the raw directory, recreating any empty directories
// the cache layer dropped. It is a no-op once the restoredXattr marker is
// present.
func maybeRestoreRawDirectory(rootDir string) error {
	lock, err := lockDir(rootDir)
	if err != nil {
		return fmt.Errorf("locking %s: %w", rootDir, err)
	}
	defer lock.Close()

	if restored, err := hasXattr(rootDir, restoredXattr); err != nil {
		return err
	} else if restored {
		return nil
	}

	rawDir := filepath.Join(rootDir, rawDirName)

	if err := waitForSettledPermissions(rawDir, settleTimeout); err != nil {
		return err
	}

	f, err := os.Open(filepath.Join(rootDir, manifestFileName))
	if err != nil {
		return err
	}
	var m manifest
	err = json.NewDecoder(f).Decode(&m)
	f.Close()
	if err != nil {
		return fmt.Errorf("parsing %s: %w", manifestFileName, err)
	}

	// Sort for deterministic error messages and so parent directories are
	// (re)created before their children are touched.
	paths := make([]string, 0, len(m.Files))
	for p := range m.Files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, relPath := range paths {
		entry := m.Files[relPath]
		if entry.Kind != entryRegular && entry.Kind != entryDirectory {
			continue
		}

		path := filepath.Join(rawDir, relPath)
		if _, err := os.Lstat(path); errors.Is(err, os.ErrNotExist) {
			if entry.Kind != entryDirectory {
				return fmt.Errorf("%s: missing from raw directory but manifest says it is a file", relPath)
			}
			if err := os.Mkdir(path, 0o755); err != nil {
				return fmt.Errorf("restoring directory %s: %w", relPath, err)
			}
		} else if err != nil {
			return err
		}

		if err := os.Chmod(path, fs.FileMode(entry.Mode)); err != nil {
			return fmt.Errorf("setting permissions on %s: %w", relPath, err)
		}
		if err := setUserXattrs(path, entry.UserXattrs); err != nil {
			return fmt.Errorf("setting xattrs on %s: %w", relPath, err)
		}
	}

	if err := os.Chmod(rootDir, 0o755); err != nil {
		return err
	}
	return setUserXattrs(rootDir, map[string][]byte{restoredXattr: nil})
}

// waitForSettledPermissions polls dir's subtree until every directory has
// settled to the 0o555 mode a remote cache checkout eventually converges
// on, working around asynchronous chmods some cache layers apply after
// files are already visible.
func waitForSettledPermissions(dir string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for {
		var pending []string
		if err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if !d.IsDir() {
				return nil
			}
			fi, err := d.Info()
			if err != nil {
				return err
			}
			if fi.Mode().Perm() != 0o555 {
				pending = append(pending, path)
			}
			return nil
		}); err != nil {
			return err
		}

		if len(pending) == 0 {
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("durable tree directories did not settle to mode 0o555 after %s:\n%s", timeout, joinLines(pending))
		}
		time.Sleep(time.Second)
	}
}

func joinLines(lines []string) string {
	out := ""
	for i, l := range lines {
		if i > 0 {
			out += "\n"
		}
		out += l
	}
	return out
}

// extractExtraFiles extracts extra.tar.zst into a freshly tmpfs-mounted
// scratch directory.
func extractExtraFiles(rootDir string) (*extraDir, error) {
	dir, err := os.MkdirTemp("", "durabletree-extra-*")
	if err != nil {
		return nil, err
	}

	if err := unix.Mount("", dir, "tmpfs", 0, "mode=0755"); err != nil {
		os.Remove(dir)
		return nil, fmt.Errorf("mounting tmpfs for extra dir: %w", err)
	}
	extra := &extraDir{path: dir}

	f, err := os.Open(filepath.Join(rootDir, extraTarballFileName))
	if err != nil {
		extra.Close()
		return nil, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		extra.Close()
		return nil, err
	}
	defer dec.Close()

	if err := extractTarPreservingMode(dec, dir); err != nil {
		extra.Close()
		return nil, err
	}

	return extra, nil
}

// extractTarPreservingMode extracts a tar stream containing only
// directories, symlinks, and character devices (the contents extra.tar.zst
// is restricted to), preserving each entry's mode.
func extractTarPreservingMode(r io.Reader, dest string) error {
	tr := tar.NewReader(r)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			return nil
		} else if err != nil {
			return fmt.Errorf("reading extra tarball: %w", err)
		}

		path := filepath.Join(dest, header.Name)
		switch header.Typeflag {
		case tar.TypeDir:
			if header.Name == "./" || header.Name == "." {
				if err := os.Chmod(dest, fs.FileMode(header.Mode)); err != nil {
					return err
				}
				continue
			}
			if err := os.MkdirAll(path, 0o755); err != nil {
				return err
			}
			if err := os.Chmod(path, fs.FileMode(header.Mode)); err != nil {
				return err
			}
		case tar.TypeSymlink:
			if err := os.Symlink(header.Linkname, path); err != nil {
				return err
			}
		case tar.TypeChar:
			if err := unix.Mknod(path, unix.S_IFCHR|uint32(header.Mode), 0); err != nil {
				return fmt.Errorf("creating whiteout %s: %w", header.Name, err)
			}
		default:
			return fmt.Errorf("%s: unexpected entry type %v in extra tarball", header.Name, header.Typeflag)
		}
	}
}

// expandImpl expands a durable tree, restoring raw/'s metadata if
// necessary and extracting extra.tar.zst into a scratch directory.
func expandImpl(rootDir string) (*extraDir, error) {
	if _, err := os.Stat(filepath.Join(rootDir, markerFileName)); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s is not a durable tree", rootDir)
		}
		return nil, err
	}

	rootInfo, err := os.Stat(rootDir)
	if err != nil {
		return nil, err
	}
	if rootInfo.Mode().Perm() == 0o700 {
		return nil, fmt.Errorf("%s: convert is still in progress (root directory is mode 0700)", rootDir)
	}

	if err := maybeRestoreRawDirectory(rootDir); err != nil {
		return nil, err
	}

	return extractExtraFiles(rootDir)
}
