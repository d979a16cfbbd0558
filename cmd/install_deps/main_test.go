// Copyright 2023 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import "testing"

func TestTargetPackagesDir(t *testing.T) {
	for _, tc := range []struct {
		board string
		want  string
	}{
		{"", "/var/lib/portage/pkgs"},
		{"arm64-generic", "/build/arm64-generic/packages"},
	} {
		if got := targetPackagesDir(tc.board); got != tc.want {
			t.Errorf("targetPackagesDir(%q) = %q, want %q", tc.board, got, tc.want)
		}
	}
}
