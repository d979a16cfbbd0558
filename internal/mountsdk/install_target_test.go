// Copyright 2023 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package mountsdk

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"cros.local/alchemist/internal/binarypackage"
)

func writeFakeBinpkg(t *testing.T, dir, category, pf string) string {
	t.Helper()
	path := filepath.Join(dir, pf+binaryExt)
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	xpak := binarypackage.XPAK{
		"CATEGORY": []byte(category),
		"PF":       []byte(pf),
	}
	if err := binarypackage.WriteTBZ2(f, bytes.NewReader(nil), xpak); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestPreparePackages(t *testing.T) {
	dir := t.TempDir()
	nano := writeFakeBinpkg(t, dir, "app-editors", "nano-6.4")

	mounts, atoms, err := preparePackages([]string{nano}, "/packages")
	if err != nil {
		t.Fatalf("preparePackages: %v", err)
	}
	if len(mounts) != 1 || mounts[0].MountPath != filepath.Join("/packages", "app-editors", "nano-6.4"+binaryExt) {
		t.Errorf("preparePackages mounts = %+v", mounts)
	}
	if len(atoms) != 1 || atoms[0] != "=app-editors/nano-6.4" {
		t.Errorf("preparePackages atoms = %v, want [=app-editors/nano-6.4]", atoms)
	}
}

func TestAddInstallTargetsToConfig(t *testing.T) {
	dir := t.TempDir()
	nano := writeFakeBinpkg(t, dir, "app-editors", "nano-6.4")
	vim := writeFakeBinpkg(t, dir, "app-editors", "vim-9.0")

	cfg := &Config{}
	extraEnv, err := AddInstallTargetsToConfig([]string{nano + ":" + vim}, "/packages", cfg)
	if err != nil {
		t.Fatalf("AddInstallTargetsToConfig: %v", err)
	}
	if len(cfg.BindMounts) != 2 {
		t.Errorf("got %d bind mounts, want 2", len(cfg.BindMounts))
	}
	if len(extraEnv) != 1 || extraEnv[0] != "INSTALL_ATOMS_TARGET_0==app-editors/nano-6.4 =app-editors/vim-9.0" {
		t.Errorf("extraEnv = %v", extraEnv)
	}
}
