// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package fileutil

import (
	"os"
	"os/exec"
)

// Copy copies a single file, preserving its mode bits.
func Copy(src, dst string) error {
	cmd := exec.Command("/bin/cp", "--", src, dst)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}

// CopyDir recursively copies a directory tree, preserving mode bits.
func CopyDir(src, dst string) error {
	cmd := exec.Command("/bin/cp", "-r", "--", src, dst)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
