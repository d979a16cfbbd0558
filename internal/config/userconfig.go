// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"cros.local/alchemist/internal/standard/dependency"
	"cros.local/alchemist/internal/standard/makevars"
)

// UserConfigSource reads /etc/make.conf, /etc/portage/make.conf, and the
// /etc/portage/* override directory tree (package.use, package.mask,
// package.unmask, profile/package.provided, and
// profile.bashrc/package.bashrc, which are sourced for their side effect
// on exported variables rather than parsed as a list format).
// package.accept_keywords is not read.
type UserConfigSource struct {
	rootDir string
}

var _ Source = &UserConfigSource{}

func NewUserConfigSource(rootDir string) *UserConfigSource {
	return &UserConfigSource{rootDir: rootDir}
}

func (s *UserConfigSource) EvalGlobalVars(env makevars.Vars) ([]makevars.Vars, error) {
	var varsList []makevars.Vars
	for _, relPath := range []string{"etc/make.conf", "etc/portage/make.conf"} {
		path := filepath.Join(s.rootDir, relPath)
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			continue
		}
		vars, err := makevars.Eval(path, env, true)
		if err != nil {
			return nil, err
		}
		varsList = append(varsList, vars)
	}

	if bashrcVars, err := s.evalBashrcDir("etc/portage/profile.bashrc", env); err != nil {
		return nil, err
	} else {
		varsList = append(varsList, bashrcVars...)
	}

	return varsList, nil
}

func (s *UserConfigSource) EvalPackageVars(pkg *Package, env makevars.Vars) ([]makevars.Vars, error) {
	varsList, err := s.EvalGlobalVars(env)
	if err != nil {
		return nil, err
	}

	packageUse, err := ParsePackageUseList(filepath.Join(s.rootDir, "etc/portage/package.use"))
	if err != nil {
		return nil, err
	}

	target := &dependency.TargetPackage{Name: pkg.Name, Version: pkg.Version}
	var uses []string
	for _, pu := range packageUse {
		if pu.Atom.Match(target) {
			uses = append(uses, pu.Uses...)
		}
	}
	if len(uses) > 0 {
		vars := makevars.Vars{"USE": strings.Join(uses, " ")}
		env.Merge(vars)
		varsList = append(varsList, vars)
	}

	bashrcVars, err := s.evalBashrcDir("etc/portage/package.bashrc", env)
	if err != nil {
		return nil, err
	}
	varsList = append(varsList, bashrcVars...)

	return varsList, nil
}

// evalBashrcDir evaluates every file directly under dir relative to
// rootDir, in directory order, as an Eval-style bash side-effect file.
// Profiles and /etc/portage both support a single bashrc file OR a
// directory of them; this tree accepts either, since the teacher's
// config cascade already distinguishes "file" vs. "directory" config
// sources nowhere explicitly but PMS documents both as valid.
func (s *UserConfigSource) evalBashrcDir(relPath string, env makevars.Vars) ([]makevars.Vars, error) {
	path := filepath.Join(s.rootDir, relPath)
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if !info.IsDir() {
		vars, err := makevars.Eval(path, env, true)
		if err != nil {
			return nil, err
		}
		return []makevars.Vars{vars}, nil
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, err
	}
	var varsList []makevars.Vars
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		vars, err := makevars.Eval(filepath.Join(path, entry.Name()), env, true)
		if err != nil {
			return nil, err
		}
		varsList = append(varsList, vars)
	}
	return varsList, nil
}

func (s *UserConfigSource) UseMasksAndForces(pkg *Package, stable bool, masks map[string]bool, forces map[string]bool) error {
	return nil
}

func (s *UserConfigSource) PackageMasks() ([]*dependency.Atom, error) {
	return ParsePackageAtomList(filepath.Join(s.rootDir, "etc/portage/package.mask"))
}

func (s *UserConfigSource) PackageUnmasks() ([]*dependency.Atom, error) {
	return ParsePackageAtomList(filepath.Join(s.rootDir, "etc/portage/package.unmask"))
}

func (s *UserConfigSource) ProvidedPackages() ([]*Package, error) {
	return ParsePackageProvided(filepath.Join(s.rootDir, "etc/portage/profile/package.provided"))
}
