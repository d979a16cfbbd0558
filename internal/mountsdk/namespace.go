// Copyright 2023 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package mountsdk

import (
	"fmt"
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

func ensureSingleThreaded() error {
	entries, err := os.ReadDir("/proc/self/task")
	if err != nil {
		return err
	}
	if len(entries) != 1 {
		return fmt.Errorf("the current process is multi-threaded (%d tasks)", len(entries))
	}
	return nil
}

func enterUnprivilegedUserNamespace() error {
	uid := os.Getuid()
	gid := os.Getgid()

	if err := unix.Unshare(unix.CLONE_NEWUSER); err != nil {
		return fmt.Errorf("creating an unprivileged user namespace: %w", err)
	}
	if err := os.WriteFile("/proc/self/setgroups", []byte("deny"), 0o644); err != nil {
		return fmt.Errorf("writing /proc/self/setgroups: %w", err)
	}
	if err := os.WriteFile("/proc/self/uid_map", []byte("0 "+strconv.Itoa(uid)+" 1\n"), 0o644); err != nil {
		return fmt.Errorf("writing /proc/self/uid_map: %w", err)
	}
	if err := os.WriteFile("/proc/self/gid_map", []byte("0 "+strconv.Itoa(gid)+" 1\n"), 0o644); err != nil {
		return fmt.Errorf("writing /proc/self/gid_map: %w", err)
	}
	return nil
}

// EnterMountNamespace enters a mount namespace so the calling process can
// mount file systems such as tmpfs and overlayfs without touching the
// host's.
//
// If the caller is unprivileged, it first enters an unprivileged user
// namespace mapping its current uid/gid to 0/0. Because multi-threaded
// processes cannot join a new user namespace, the caller must invoke this
// before spawning any goroutine that might land on its own OS thread, and
// should call runtime.LockOSThread beforehand: it is always an error to
// call this after the runtime has started additional threads, regardless
// of whether the process is privileged enough to skip the user namespace
// step.
func EnterMountNamespace() error {
	if err := ensureSingleThreaded(); err != nil {
		return err
	}

	err := unix.Unshare(unix.CLONE_NEWNS)
	if err == unix.EPERM {
		if err := enterUnprivilegedUserNamespace(); err != nil {
			return err
		}
		err = unix.Unshare(unix.CLONE_NEWNS)
	}
	if err != nil {
		return fmt.Errorf("entering a mount namespace: %w", err)
	}

	// Remount everything as private so nothing we do here leaks back to the
	// namespace we came from.
	if err := unix.Mount("", "/", "", unix.MS_PRIVATE|unix.MS_REC, ""); err != nil {
		return fmt.Errorf("remounting / as private: %w", err)
	}
	return nil
}
