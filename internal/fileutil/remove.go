// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package fileutil

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
)

// RemoveWithChmod calls os.Remove after setting the parent directory's
// mode to 0700 (owner rwx), restoring its original mode afterward.
func RemoveWithChmod(path string) error {
	parent := filepath.Dir(path)
	stat, err := os.Stat(parent)
	if err != nil {
		return err
	}
	if err := os.Chmod(parent, 0700); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return err
	}
	return os.Chmod(parent, stat.Mode())
}

// RemoveAllWithChmod calls os.RemoveAll after setting every directory
// under path that lacks owner rwx to mode 0700, so files with restrictive
// permissions can still be unlinked.
func RemoveAllWithChmod(path string) error {
	if _, err := os.Lstat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	} else if err != nil {
		return err
	}

	if err := filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
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
		if fi.Mode().Perm()&0700 == 0700 {
			return nil
		}
		return os.Chmod(p, 0700)
	}); err != nil {
		return err
	}

	parent := filepath.Dir(path)
	stat, err := os.Stat(parent)
	if err != nil {
		return err
	}
	if err := os.Chmod(parent, 0700); err != nil {
		return err
	}
	if err := os.RemoveAll(path); err != nil {
		return err
	}
	return os.Chmod(parent, stat.Mode())
}
