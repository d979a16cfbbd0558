// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package ebuild

import (
	"sort"
	"strings"

	"cros.local/alchemist/internal/config"
	"cros.local/alchemist/internal/standard/makevars"
)

func computeUseFlags(pkg *config.Package, cfg config.Source, metadata Metadata) (map[string]bool, error) {
	env := make(makevars.Vars)
	varsList, err := cfg.EvalPackageVars(pkg, env)
	if err != nil {
		return nil, err
	}

	varsList = append([]makevars.Vars{
		{"USE": parseIUSEDefaults(metadata["IUSE"])},
	}, varsList...)

	vars := makevars.Finalize(varsList)

	masks := make(map[string]bool)
	forces := make(map[string]bool)
	if err := cfg.UseMasksAndForces(pkg, isStableForArch(metadata), masks, forces); err != nil {
		return nil, err
	}

	uses := make(map[string]bool)
	for _, u := range strings.Fields(vars["USE"]) {
		if masks[u] {
			continue
		}
		uses[u] = true
	}
	for u, on := range forces {
		if !on || masks[u] {
			continue
		}
		uses[u] = true
	}

	return uses, nil
}

// isStableForArch reports whether metadata's KEYWORDS mark the package
// stable for its ARCH (PMS section 8.2.4.3: a bare "arch" or "*"
// keyword, as opposed to "~arch" testing or "-arch"/"-*" broken), the
// condition use.stable.mask/force and their package.* variants gate on.
func isStableForArch(metadata Metadata) bool {
	arch := metadata["ARCH"]
	for _, k := range strings.Fields(metadata["KEYWORDS"]) {
		if k == arch || k == "*" {
			return true
		}
	}
	return false
}

// parseIUSEDefaults extracts the "+flag" default-enabled subset of IUSE
// as a USE string (PMS section 8.1.1: IUSE's leading "+"/"-" set the
// flag's default polarity, not whether it may be toggled at all).
func parseIUSEDefaults(iuse string) string {
	var uses []string
	for _, use := range strings.Fields(iuse) {
		if strings.HasPrefix(use, "+") {
			uses = append(uses, strings.TrimPrefix(use, "+"))
		}
	}
	sort.Strings(uses)
	return strings.Join(uses, " ")
}
