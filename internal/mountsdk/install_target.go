// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package mountsdk

import (
	"fmt"
	"path/filepath"
	"strings"

	"cros.local/alchemist/internal/binarypackage"
	"cros.local/alchemist/internal/makechroot"
	"github.com/urfave/cli/v2"
)

const binaryExt = ".tbz2"

// FlagInstallTarget accepts one or more groups of binary packages to
// install in parallel; groups are separated by repeating the flag, and
// packages within a group by ":".
var FlagInstallTarget = &cli.StringSliceFlag{
	Name:  "install-target",
	Usage: "<binpkg>[:<binpkg>]+: all binpkgs specified will be installed in parallel",
}

func preparePackages(installPaths []string, dir string) (mounts []makechroot.BindMount, atoms []string, err error) {
	for _, installPath := range installPaths {
		xp, err := binarypackage.ReadXpak(installPath)
		if err != nil {
			return nil, nil, fmt.Errorf("reading %s: %w", filepath.Base(installPath), err)
		}
		category := strings.TrimSpace(string(xp["CATEGORY"]))
		pf := strings.TrimSpace(string(xp["PF"]))

		mounts = append(mounts, makechroot.BindMount{
			Source:    installPath,
			MountPath: filepath.Join(dir, category, pf+binaryExt),
		})
		atoms = append(atoms, fmt.Sprintf("=%s/%s", category, pf))
	}
	return mounts, atoms, nil
}

func preparePackageGroups(installGroups [][]string, dir string) (mounts []makechroot.BindMount, atomGroups [][]string, err error) {
	for _, installGroup := range installGroups {
		packageMounts, atoms, err := preparePackages(installGroup, dir)
		if err != nil {
			return nil, nil, err
		}
		mounts = append(mounts, packageMounts...)
		atomGroups = append(atomGroups, atoms)
	}
	return mounts, atomGroups, nil
}

// AddInstallTargetsToConfig appends bind mounts for each install target's
// binary packages to cfg, and returns the INSTALL_ATOMS_TARGET_<i>
// environment variables the in-container installer reads to know which
// atoms belong to which parallel group.
func AddInstallTargetsToConfig(installTargetsUnparsed []string, targetPackagesDir string, cfg *Config) (extraEnv []string, err error) {
	var targetInstallGroups [][]string
	for _, group := range installTargetsUnparsed {
		targetInstallGroups = append(targetInstallGroups, strings.Split(group, ":"))
	}

	packageMounts, targetInstallAtomGroups, err := preparePackageGroups(targetInstallGroups, targetPackagesDir)
	if err != nil {
		return nil, err
	}
	cfg.BindMounts = append(cfg.BindMounts, packageMounts...)

	for i, atomGroup := range targetInstallAtomGroups {
		extraEnv = append(extraEnv, fmt.Sprintf("INSTALL_ATOMS_TARGET_%d=%s", i, strings.Join(atomGroup, " ")))
	}
	return extraEnv, nil
}
