// Copyright 2023 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package mountsdk

import (
	"os"
	"path/filepath"
	"testing"
)

func TestFindSiblingToolFallsBackToPath(t *testing.T) {
	dir := t.TempDir()
	script := filepath.Join(dir, "a-tool-not-next-to-the-test-binary.sh")
	if err := os.WriteFile(script, []byte("#!/bin/sh\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	oldPath := os.Getenv("PATH")
	defer os.Setenv("PATH", oldPath)
	os.Setenv("PATH", dir)

	got, err := FindSiblingTool("a-tool-not-next-to-the-test-binary.sh")
	if err != nil {
		t.Fatalf("FindSiblingTool: %v", err)
	}
	if got != script {
		t.Errorf("FindSiblingTool = %q, want %q", got, script)
	}
}

func TestFindSiblingToolNotFound(t *testing.T) {
	oldPath := os.Getenv("PATH")
	defer os.Setenv("PATH", oldPath)
	os.Setenv("PATH", t.TempDir())

	if _, err := FindSiblingTool("definitely-does-not-exist.sh"); err == nil {
		t.Error("expected an error for a tool that exists neither next to the executable nor on PATH")
	}
}
