// Copyright 2023 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"strings"
	"testing"

	"cros.local/alchemist/internal/binarypackage"
)

func TestReaderContentsEqual(t *testing.T) {
	for _, tc := range []struct {
		name string
		a, b string
		want bool
	}{
		{"equal", "hello", "hello", true},
		{"different", "hello", "world", false},
		{"different length", "hello", "hello!", false},
		{"both empty", "", "", true},
	} {
		t.Run(tc.name, func(t *testing.T) {
			got, err := readerContentsEqual(strings.NewReader(tc.a), strings.NewReader(tc.b))
			if err != nil {
				t.Fatalf("readerContentsEqual: %v", err)
			}
			if got != tc.want {
				t.Errorf("readerContentsEqual(%q, %q) = %v, want %v", tc.a, tc.b, got, tc.want)
			}
		})
	}
}

func TestXpakEquivalent(t *testing.T) {
	a := binarypackage.XPAK{"CATEGORY": []byte("app-editors\n"), "SLOT": []byte("0\n")}
	b := binarypackage.XPAK{"CATEGORY": []byte("app-editors\n"), "SLOT": []byte("0\n")}
	if !xpakEquivalent(a, b) {
		t.Error("expected identical XPAK maps to be equivalent")
	}

	c := binarypackage.XPAK{"CATEGORY": []byte("app-editors\n"), "SLOT": []byte("1\n")}
	if xpakEquivalent(a, c) {
		t.Error("expected differing SLOT values to not be equivalent")
	}

	d := binarypackage.XPAK{"CATEGORY": []byte("app-editors\n")}
	if xpakEquivalent(a, d) {
		t.Error("expected differing key sets to not be equivalent")
	}
}

func TestValidateUseFlagsMatch(t *testing.T) {
	xpak := binarypackage.XPAK{"USE": []byte("ssl static")}
	if err := validateUseFlags(xpak, "+ssl,+static,-debug"); err != nil {
		t.Errorf("validateUseFlags: %v", err)
	}
}

func TestValidateUseFlagsMismatch(t *testing.T) {
	xpak := binarypackage.XPAK{"USE": []byte("ssl")}
	err := validateUseFlags(xpak, "+ssl,+static")
	if err == nil {
		t.Fatal("expected an error for a missing USE flag")
	}
	if !strings.Contains(err.Error(), "missing=static") {
		t.Errorf("error = %q, want it to mention missing=static", err)
	}
}

func TestValidateUseFlagsMissingUSEEntry(t *testing.T) {
	xpak := binarypackage.XPAK{}
	if err := validateUseFlags(xpak, "+ssl"); err == nil {
		t.Error("expected an error when the package has no recorded USE entry")
	}
}
