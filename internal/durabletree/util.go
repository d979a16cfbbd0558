// Copyright 2023 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package durabletree

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"golang.org/x/sys/unix"
)

// dirLock is an exclusive flock(2) held on a directory for the lifetime of
// the process, released by Close.
type dirLock struct {
	f *os.File
}

// lockDir acquires an exclusive lock on dir, blocking until it is
// available.
func lockDir(dir string) (*dirLock, error) {
	f, err := os.Open(dir)
	if err != nil {
		return nil, err
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX); err != nil {
		f.Close()
		return nil, fmt.Errorf("flock %s: %w", dir, err)
	}
	return &dirLock{f: f}, nil
}

func (l *dirLock) Close() error {
	defer l.f.Close()
	return unix.Flock(int(l.f.Fd()), unix.LOCK_UN)
}

// listUserXattrs returns the "user." namespaced xattr names set on path.
func listUserXattrs(path string) ([]string, error) {
	size, err := unix.Listxattr(path, nil)
	if err != nil {
		return nil, fmt.Errorf("listxattr %s: %w", path, err)
	}
	if size == 0 {
		return nil, nil
	}
	buf := make([]byte, size)
	n, err := unix.Listxattr(path, buf)
	if err != nil {
		return nil, fmt.Errorf("listxattr %s: %w", path, err)
	}

	var names []string
	for _, raw := range strings.Split(string(buf[:n]), "\x00") {
		if strings.HasPrefix(raw, "user.") {
			names = append(names, raw)
		}
	}
	sort.Strings(names)
	return names, nil
}

// getUserXattrs returns every "user." namespaced xattr of path as a map.
func getUserXattrs(path string) (map[string][]byte, error) {
	names, err := listUserXattrs(path)
	if err != nil {
		return nil, err
	}
	if len(names) == 0 {
		return nil, nil
	}

	out := make(map[string][]byte, len(names))
	for _, name := range names {
		size, err := unix.Getxattr(path, name, nil)
		if err != nil {
			return nil, fmt.Errorf("getxattr %s %s: %w", path, name, err)
		}
		buf := make([]byte, size)
		if size > 0 {
			if _, err := unix.Getxattr(path, name, buf); err != nil {
				return nil, fmt.Errorf("getxattr %s %s: %w", path, name, err)
			}
		}
		out[name] = buf
	}
	return out, nil
}

// setUserXattrs sets every entry of xattrs on path.
func setUserXattrs(path string, xattrs map[string][]byte) error {
	for name, value := range xattrs {
		if err := unix.Setxattr(path, name, value, 0); err != nil {
			return fmt.Errorf("setxattr %s %s: %w", path, name, err)
		}
	}
	return nil
}

// hasXattr reports whether path has name set, tolerating the "not set"
// error that unix.Getxattr reports as ENODATA/ENOATTR.
func hasXattr(path, name string) (bool, error) {
	_, err := unix.Getxattr(path, name, nil)
	if err == nil {
		return true, nil
	}
	if err == unix.ENODATA {
		return false, nil
	}
	return false, fmt.Errorf("getxattr %s %s: %w", path, name, err)
}
