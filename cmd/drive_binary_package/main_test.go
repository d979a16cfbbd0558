// Copyright 2023 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cros.local/alchemist/internal/vdb"
)

const testCPF = "foo/bar-1.2.3"

func writeTestVDB(t *testing.T, root, extra string) {
	t.Helper()
	dir := vdb.Dir(root, testCPF)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	content := "EAPI=7\nPF=bar-1.2.3\n" + extra
	if err := os.WriteFile(filepath.Join(dir, "environment.raw"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestDrivePhasesNoHooks(t *testing.T) {
	root := t.TempDir()
	image := filepath.Join(root, ".image")
	if err := os.MkdirAll(image, 0o755); err != nil {
		t.Fatal(err)
	}
	writeTestVDB(t, root, "")

	if err := drivePhases(context.Background(), root, image, t.TempDir(), testCPF,
		[]string{"setup", "preinst", "postinst"}); err != nil {
		t.Fatalf("drivePhases: %v", err)
	}
}

func TestDrivePhasesModifiesFileSystem(t *testing.T) {
	root := t.TempDir()
	image := filepath.Join(root, ".image")
	if err := os.MkdirAll(image, 0o755); err != nil {
		t.Fatal(err)
	}
	writeTestVDB(t, root, `
pkg_setup() {
	touch "${ROOT}/pkg_setup"
}
pkg_preinst() {
	touch "${ROOT}/pkg_preinst"
	touch "${D}/pkg_preinst_d"
}
pkg_postinst() {
	touch "${ROOT}/pkg_postinst"
}
`)

	if err := drivePhases(context.Background(), root, image, t.TempDir(), testCPF,
		[]string{"setup", "preinst", "postinst"}); err != nil {
		t.Fatalf("drivePhases: %v", err)
	}

	for _, path := range []string{
		filepath.Join(root, "pkg_setup"),
		filepath.Join(root, "pkg_preinst"),
		filepath.Join(root, "pkg_postinst"),
		filepath.Join(image, "pkg_preinst_d"),
	} {
		if _, err := os.Stat(path); err != nil {
			t.Errorf("expected %s to exist: %v", path, err)
		}
	}
}

// TestDrivePhasesKeepsEnvironment mirrors how the real tool is actually
// invoked: once per phase, as a separate process, relying on
// environment.raw to carry state between calls.
func TestDrivePhasesKeepsEnvironment(t *testing.T) {
	root := t.TempDir()
	image := filepath.Join(root, ".image")
	if err := os.MkdirAll(image, 0o755); err != nil {
		t.Fatal(err)
	}
	writeTestVDB(t, root, `
MY_COUNTER=0
pkg_setup() {
	if [ "${MY_COUNTER}" != "0" ]; then exit 1; fi
	MY_COUNTER=1
}
pkg_preinst() {
	if [ "${MY_COUNTER}" != "1" ]; then exit 1; fi
	MY_COUNTER=2
}
pkg_postinst() {
	if [ "${MY_COUNTER}" != "2" ]; then exit 1; fi
	MY_COUNTER=3
}
`)

	for _, phase := range []string{"setup", "preinst", "postinst"} {
		if err := drivePhases(context.Background(), root, image, t.TempDir(), testCPF, []string{phase}); err != nil {
			t.Fatalf("drivePhases(%s): %v", phase, err)
		}
	}

	raw, err := os.ReadFile(filepath.Join(vdb.Dir(root, testCPF), "environment.raw"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), "MY_COUNTER=3") {
		t.Errorf("environment.raw = %q, want it to contain MY_COUNTER=3", raw)
	}
}
