// Copyright 2023 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package mountsdk

import "testing"

func TestParseLoginMode(t *testing.T) {
	for _, tc := range []struct {
		value   string
		want    LoginMode
		wantErr bool
	}{
		{"", LoginNever, false},
		{"before", LoginBefore, false},
		{"after", LoginAfter, false},
		{"after-fail", LoginAfterFail, false},
		{"bogus", "", true},
	} {
		got, err := parseLoginMode(tc.value)
		if (err != nil) != tc.wantErr {
			t.Errorf("parseLoginMode(%q) error = %v, wantErr %v", tc.value, err, tc.wantErr)
			continue
		}
		if err == nil && got != tc.want {
			t.Errorf("parseLoginMode(%q) = %q, want %q", tc.value, got, tc.want)
		}
	}
}

func TestSplitOverlaySpec(t *testing.T) {
	for _, tc := range []struct {
		spec       string
		wantInside string
		wantOut    string
		wantOk     bool
	}{
		{"/mnt/host/source=/some/path", "/mnt/host/source", "/some/path", true},
		{"noequals", "", "", false},
	} {
		inside, outside, ok := splitOverlaySpec(tc.spec)
		if ok != tc.wantOk || inside != tc.wantInside || outside != tc.wantOut {
			t.Errorf("splitOverlaySpec(%q) = (%q, %q, %v), want (%q, %q, %v)",
				tc.spec, inside, outside, ok, tc.wantInside, tc.wantOut, tc.wantOk)
		}
	}
}
