// Copyright 2023 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package makechroot_test

import (
	"testing"

	"cros.local/alchemist/internal/makechroot"
)

func TestParseBindMountSpec(t *testing.T) {
	for _, tc := range []struct {
		spec string
		want makechroot.BindMount
	}{
		{"/hello=/tmp/hello", makechroot.BindMount{MountPath: "/hello", Source: "/tmp/hello"}},
		{"/hello=/tmp/hello:rw", makechroot.BindMount{MountPath: "/hello", Source: "/tmp/hello", RW: true}},
	} {
		mounts, err := makechroot.ParseBindMountSpec([]string{tc.spec})
		if err != nil {
			t.Fatalf("ParseBindMountSpec(%q): %v", tc.spec, err)
		}
		if len(mounts) != 1 || mounts[0] != tc.want {
			t.Errorf("ParseBindMountSpec(%q) = %+v, want [%+v]", tc.spec, mounts, tc.want)
		}
	}
}

func TestParseBindMountSpecRejectsMissingEquals(t *testing.T) {
	if _, err := makechroot.ParseBindMountSpec([]string{"/hello"}); err == nil {
		t.Error("ParseBindMountSpec of a spec with no '=' unexpectedly succeeded")
	}
}
