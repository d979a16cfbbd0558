// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package packages holds Details, the fully-resolved view of one
// ebuild: its metadata, chosen USE flags, and derived stability.
package packages

import (
	"strings"

	"cros.local/alchemist/internal/ebuild"
	"cros.local/alchemist/internal/standard/dependency"
	"cros.local/alchemist/internal/standard/version"
)

// Details is a fully evaluated ebuild: path, raw metadata, and the
// resolved target (name/version/slot/USE) it was evaluated against.
type Details struct {
	path     string
	metadata ebuild.Metadata
	target   *dependency.TargetPackage
}

func NewDetails(path string, metadata ebuild.Metadata, target *dependency.TargetPackage) *Details {
	return &Details{path: path, metadata: metadata, target: target}
}

func (p *Details) Path() string                             { return p.path }
func (p *Details) Name() string                              { return p.target.Name }
func (p *Details) Category() string                          { return strings.Split(p.target.Name, "/")[0] }
func (p *Details) Version() *version.Version                 { return p.target.Version }
func (p *Details) Uses() map[string]bool                     { return p.target.Uses }
func (p *Details) Metadata() ebuild.Metadata                 { return p.metadata }
func (p *Details) TargetPackage() *dependency.TargetPackage  { return p.target }

func (p *Details) MainSlot() string {
	return strings.SplitN(p.metadata["SLOT"], "/", 2)[0]
}

func (p *Details) SubSlot() string {
	parts := strings.SplitN(p.metadata["SLOT"], "/", 2)
	if len(parts) == 2 {
		return parts[1]
	}
	return parts[0]
}

func (p *Details) Stability() Stability {
	arch := p.metadata["ARCH"]
	keywordSet := make(map[string]struct{})
	for _, k := range strings.Fields(p.metadata["KEYWORDS"]) {
		keywordSet[k] = struct{}{}
	}

	for _, s := range []string{arch, "*"} {
		if _, ok := keywordSet[s]; ok {
			return StabilityStable
		}
		if _, ok := keywordSet["~"+s]; ok {
			return StabilityTesting
		}
		if _, ok := keywordSet["-"+s]; ok {
			return StabilityBroken
		}
	}
	return StabilityTesting
}

func (p *Details) UsesEclass(eclass string) bool {
	for _, used := range strings.Split(p.metadata["USED_ECLASSES"], "|") {
		if used == eclass {
			return true
		}
	}
	return false
}

// RestrictTree parses this package's RESTRICT metadata.
func (p *Details) RestrictTree() (*dependency.RestrictTree, error) {
	return dependency.ParseRestrict(p.metadata["RESTRICT"])
}

// RequiredUseTree parses this package's REQUIRED_USE metadata.
func (p *Details) RequiredUseTree() (*dependency.RequiredUseTree, error) {
	if p.metadata["REQUIRED_USE"] == "" {
		return dependency.NewTree[*dependency.UseFlagRef](dependency.NewAllOf[*dependency.UseFlagRef](nil)), nil
	}
	return dependency.ParseRequiredUse(p.metadata["REQUIRED_USE"])
}

// DependTree parses one of the five dependency-string metadata keys
// (DEPEND/RDEPEND/BDEPEND/PDEPEND/IDEPEND).
func (p *Details) DependTree(key string) (*dependency.PackageTree, error) {
	return dependency.ParsePackage(p.metadata[key])
}

// SrcURITree parses SRC_URI.
func (p *Details) SrcURITree() (*dependency.URITree, error) {
	return dependency.ParseURI(p.metadata["SRC_URI"])
}
