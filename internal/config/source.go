// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package config implements the Portage configuration cascade: an
// ordered pipeline of Source values (profile parent chain, make.conf,
// /etc/portage overrides) that together determine global and
// per-package make variables, USE flag polarity, and package masking.
package config

import (
	"cros.local/alchemist/internal/standard/dependency"
	"cros.local/alchemist/internal/standard/makevars"
	"cros.local/alchemist/internal/standard/version"
)

// Package represents a package to compute configurations for. It only
// carries data extractable without evaluating the ebuild itself, since
// configuration is a prerequisite to evaluating the ebuild.
type Package struct {
	Name    string
	Version *version.Version
}

// Source is one layer of the config cascade. Layers are evaluated in
// increasing order of precedence (profile defaults first, user overrides
// last); see Bundle.
type Source interface {
	EvalGlobalVars(env makevars.Vars) ([]makevars.Vars, error)
	EvalPackageVars(pkg *Package, env makevars.Vars) ([]makevars.Vars, error)
	// UseMasksAndForces adds this source's USE mask/force contributions for
	// pkg into masks/forces. stable reports whether pkg is keyworded stable
	// for the target ARCH (PMS section 8.2.4.3): use.stable.mask/force and
	// their package.* variants only apply when it is.
	UseMasksAndForces(pkg *Package, stable bool, masks map[string]bool, forces map[string]bool) error
	PackageMasks() ([]*dependency.Atom, error)
	PackageUnmasks() ([]*dependency.Atom, error)
	ProvidedPackages() ([]*Package, error)
}

// Bundle is an ordered stack of Sources evaluated together, from least to
// most specific (profile parents, then the leaf profile, then
// make.conf, then /etc/portage overrides).
type Bundle []Source

var _ Source = Bundle{}

func (ss Bundle) EvalGlobalVars(env makevars.Vars) ([]makevars.Vars, error) {
	var varsList []makevars.Vars
	for _, s := range ss {
		subVarsList, err := s.EvalGlobalVars(env)
		if err != nil {
			return nil, err
		}
		varsList = append(varsList, subVarsList...)
	}
	return varsList, nil
}

func (ss Bundle) EvalPackageVars(pkg *Package, env makevars.Vars) ([]makevars.Vars, error) {
	var varsList []makevars.Vars
	for _, s := range ss {
		subVarsList, err := s.EvalPackageVars(pkg, env)
		if err != nil {
			return nil, err
		}
		varsList = append(varsList, subVarsList...)
	}
	return varsList, nil
}

func (ss Bundle) UseMasksAndForces(pkg *Package, stable bool, masks map[string]bool, forces map[string]bool) error {
	for _, s := range ss {
		if err := s.UseMasksAndForces(pkg, stable, masks, forces); err != nil {
			return err
		}
	}
	return nil
}

func (ss Bundle) PackageMasks() ([]*dependency.Atom, error) {
	var atoms []*dependency.Atom
	for _, s := range ss {
		subatoms, err := s.PackageMasks()
		if err != nil {
			return nil, err
		}
		atoms = append(atoms, subatoms...)
	}
	return atoms, nil
}

func (ss Bundle) PackageUnmasks() ([]*dependency.Atom, error) {
	var atoms []*dependency.Atom
	for _, s := range ss {
		subatoms, err := s.PackageUnmasks()
		if err != nil {
			return nil, err
		}
		atoms = append(atoms, subatoms...)
	}
	return atoms, nil
}

func (ss Bundle) ProvidedPackages() ([]*Package, error) {
	var pkgs []*Package
	for _, s := range ss {
		subpkgs, err := s.ProvidedPackages()
		if err != nil {
			return nil, err
		}
		pkgs = append(pkgs, subpkgs...)
	}
	return pkgs, nil
}

// OverrideSource holds a fixed USE setting and a fixed list of provided
// packages, supplied without reading any on-disk profile. It is used in
// tests and as the last layer of cmd/alchemist's config cascade. It
// reports no package masks or unmasks and no USE masks or forces.
type OverrideSource struct {
	use      string
	provided []*Package
}

var _ Source = &OverrideSource{}

func NewOverrideSource(use string, provided []*Package) *OverrideSource {
	return &OverrideSource{use: use, provided: provided}
}

func (s *OverrideSource) EvalGlobalVars(env makevars.Vars) ([]makevars.Vars, error) {
	env["USE"] = s.use
	return []makevars.Vars{{"USE": s.use}}, nil
}

func (s *OverrideSource) EvalPackageVars(pkg *Package, env makevars.Vars) ([]makevars.Vars, error) {
	return s.EvalGlobalVars(env)
}

func (s *OverrideSource) UseMasksAndForces(pkg *Package, stable bool, masks map[string]bool, forces map[string]bool) error {
	return nil
}

func (s *OverrideSource) PackageMasks() ([]*dependency.Atom, error)   { return nil, nil }
func (s *OverrideSource) PackageUnmasks() ([]*dependency.Atom, error) { return nil, nil }

func (s *OverrideSource) ProvidedPackages() ([]*Package, error) {
	return append([]*Package(nil), s.provided...), nil
}
