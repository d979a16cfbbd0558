// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package ebuild

import "testing"

func TestIsStableForArch(t *testing.T) {
	for _, tc := range []struct {
		name     string
		metadata Metadata
		want     bool
	}{
		{"plain arch keyword", Metadata{"ARCH": "amd64", "KEYWORDS": "amd64 arm64"}, true},
		{"glob keyword", Metadata{"ARCH": "amd64", "KEYWORDS": "*"}, true},
		{"testing keyword only", Metadata{"ARCH": "amd64", "KEYWORDS": "~amd64"}, false},
		{"broken keyword", Metadata{"ARCH": "amd64", "KEYWORDS": "-amd64"}, false},
		{"no keywords", Metadata{"ARCH": "amd64", "KEYWORDS": ""}, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			if got := isStableForArch(tc.metadata); got != tc.want {
				t.Errorf("isStableForArch(%v) = %v, want %v", tc.metadata, got, tc.want)
			}
		})
	}
}

func TestParseIUSEDefaults(t *testing.T) {
	got := parseIUSEDefaults("+foo -bar baz +qux")
	if want := "foo qux"; got != want {
		t.Errorf("parseIUSEDefaults() = %q, want %q", got, want)
	}
}
