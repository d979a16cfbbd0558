// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package repository

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadFromReposConfOrdersByPriority(t *testing.T) {
	root := t.TempDir()

	overlayA := filepath.Join(root, "overlay-a")
	overlayB := filepath.Join(root, "overlay-b")
	for _, dir := range []string{overlayA, overlayB} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatal(err)
		}
	}

	reposConfDir := filepath.Join(root, "etc/portage/repos.conf")
	if err := os.MkdirAll(reposConfDir, 0o755); err != nil {
		t.Fatal(err)
	}
	conf := "[a]\nlocation = " + overlayA + "\npriority = 10\n\n" +
		"[b]\nlocation = " + overlayB + "\npriority = -10\n"
	if err := os.WriteFile(filepath.Join(reposConfDir, "default.conf"), []byte(conf), 0o644); err != nil {
		t.Fatal(err)
	}

	repos, err := LoadFromReposConf(root)
	if err != nil {
		t.Fatalf("LoadFromReposConf: %v", err)
	}

	got := repos.Repos()
	if len(got) != 2 {
		t.Fatalf("got %d repos, want 2", len(got))
	}
	if got[0].RootDir() != overlayB || got[1].RootDir() != overlayA {
		t.Errorf("repos in order %v, want overlay-b (priority -10) before overlay-a (priority 10)", got)
	}
}

func TestLoadFromReposConfMissingDirectory(t *testing.T) {
	root := t.TempDir()
	if _, err := LoadFromReposConf(root); err == nil {
		t.Error("expected an error for a missing repos.conf")
	}
}
