// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package config

import (
	"cros.local/alchemist/internal/standard/dependency"
	"cros.local/alchemist/internal/standard/makevars"
	"cros.local/alchemist/internal/standard/profile"
)

// ProfileSource adapts a parsed profile chain (make.defaults,
// package.use and siblings, package.provided) into a config.Source.
type ProfileSource struct {
	parsed *profile.ParsedProfile
}

var _ Source = &ProfileSource{}

func NewProfileSource(parsed *profile.ParsedProfile) *ProfileSource {
	return &ProfileSource{parsed: parsed}
}

func (s *ProfileSource) EvalGlobalVars(env makevars.Vars) ([]makevars.Vars, error) {
	vars := s.parsed.Vars()
	env.Merge(vars)
	return []makevars.Vars{vars}, nil
}

func (s *ProfileSource) EvalPackageVars(pkg *Package, env makevars.Vars) ([]makevars.Vars, error) {
	varsList, err := s.EvalGlobalVars(env)
	if err != nil {
		return nil, err
	}

	po := s.parsed.Overrides().ForPackage(pkg.Name, pkg.Version)
	if use := po.Use(); use != "" {
		packageVars := makevars.Vars{"USE": use}
		env.Merge(packageVars)
		varsList = append(varsList, packageVars)
	}
	return varsList, nil
}

func (s *ProfileSource) UseMasksAndForces(pkg *Package, stable bool, masks map[string]bool, forces map[string]bool) error {
	po := s.parsed.Overrides().ForPackage(pkg.Name, pkg.Version)
	for _, f := range po.UseMask() {
		masks[f] = true
	}
	for _, f := range po.UseForce() {
		forces[f] = true
	}
	if stable {
		for _, f := range po.UseStableMask() {
			masks[f] = true
		}
		for _, f := range po.UseStableForce() {
			forces[f] = true
		}
	}
	return nil
}

func (s *ProfileSource) PackageMasks() ([]*dependency.Atom, error) {
	return s.parsed.Overrides().PackageMask(), nil
}

func (s *ProfileSource) PackageUnmasks() ([]*dependency.Atom, error) {
	return s.parsed.Overrides().PackageUnmask(), nil
}

func (s *ProfileSource) ProvidedPackages() ([]*Package, error) {
	var pkgs []*Package
	for _, p := range s.parsed.Provided() {
		pkgs = append(pkgs, &Package{Name: p.Name(), Version: p.Version()})
	}
	return pkgs, nil
}
