// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"cros.local/alchemist/internal/standard/profile"
)

func mustWriteProfileFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestProfileSourceStableMaskAndForceOnlyApplyWhenStable(t *testing.T) {
	dir := t.TempDir()
	mustWriteProfileFile(t, dir, "use.stable.mask", "stablemasked\n")
	mustWriteProfileFile(t, dir, "use.stable.force", "stableforced\n")
	mustWriteProfileFile(t, dir, "package.use.stable.mask", "app-misc/foo pkgstablemasked\n")

	p, err := profile.Load(dir, "test", nil)
	if err != nil {
		t.Fatal(err)
	}
	parsed, err := p.Parse()
	if err != nil {
		t.Fatal(err)
	}

	src := NewProfileSource(parsed)
	pkg := &Package{Name: "app-misc/foo"}

	masks := make(map[string]bool)
	forces := make(map[string]bool)
	if err := src.UseMasksAndForces(pkg, false, masks, forces); err != nil {
		t.Fatal(err)
	}
	if masks["stablemasked"] || masks["pkgstablemasked"] || forces["stableforced"] {
		t.Errorf("stable overrides must not apply when the package is not stable: masks=%v forces=%v", masks, forces)
	}

	masks = make(map[string]bool)
	forces = make(map[string]bool)
	if err := src.UseMasksAndForces(pkg, true, masks, forces); err != nil {
		t.Fatal(err)
	}
	if !masks["stablemasked"] {
		t.Error("expected use.stable.mask to apply when the package is stable")
	}
	if !masks["pkgstablemasked"] {
		t.Error("expected package.use.stable.mask to apply when the package is stable")
	}
	if !forces["stableforced"] {
		t.Error("expected use.stable.force to apply when the package is stable")
	}
}
