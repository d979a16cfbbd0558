// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"cros.local/alchemist/internal/repository"
	"cros.local/alchemist/internal/resolver"
)

func newTestSession(t *testing.T, overlay string) *session {
	t.Helper()

	repos, err := repository.NewRepoSet([]string{overlay})
	if err != nil {
		t.Fatalf("NewRepoSet: %v", err)
	}
	return &session{rootDir: t.TempDir(), repos: repos, res: (*resolver.Resolver)(nil)}
}

func TestDigestRepoDeterministic(t *testing.T) {
	root := t.TempDir()
	overlay := writeTestOverlay(t, root)
	s := newTestSession(t, overlay)

	got1, err := digestRepo(s)
	if err != nil {
		t.Fatalf("digestRepo: %v", err)
	}
	got2, err := digestRepo(s)
	if err != nil {
		t.Fatalf("digestRepo: %v", err)
	}
	if got1 != got2 {
		t.Errorf("digestRepo is not deterministic: %q != %q", got1, got2)
	}
}

func TestDigestRepoChangesWithMtime(t *testing.T) {
	root := t.TempDir()
	overlay := writeTestOverlay(t, root)
	s := newTestSession(t, overlay)

	before, err := digestRepo(s)
	if err != nil {
		t.Fatalf("digestRepo: %v", err)
	}

	ebuild := filepath.Join(overlay, "app-editors", "nano", "nano-6.4.ebuild")
	newTime := time.Now().Add(time.Hour)
	if err := os.Chtimes(ebuild, newTime, newTime); err != nil {
		t.Fatal(err)
	}

	after, err := digestRepo(s)
	if err != nil {
		t.Fatalf("digestRepo: %v", err)
	}

	if before == after {
		t.Error("digestRepo did not change after an mtime update")
	}
}
