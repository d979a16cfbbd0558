// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package profile implements Portage profile parent-chain resolution:
// walking a profile's "parent" file to build its ancestor chain, then
// cascading make.defaults, package.use and friends, and
// package.provided down from the root ancestor to the leaf profile.
package profile

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"cros.local/alchemist/internal/standard/dependency"
	"cros.local/alchemist/internal/standard/makevars"
	"cros.local/alchemist/internal/standard/version"
)

const makeDefaults = "make.defaults"

// Resolver resolves a profile "parent" line (which may be a relative
// path or a repository-qualified path like "overlay:path") against the
// profile that references it.
type Resolver interface {
	ResolveProfile(path, base string) (*Profile, error)
}

type Profile struct {
	name    string
	path    string
	parents []*Profile
}

func Load(path string, name string, resolver Resolver) (*Profile, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("profile %s: not found", name)
		}
		return nil, fmt.Errorf("profile %s: %w", name, err)
	}

	parentPaths, err := readLines(filepath.Join(path, "parent"))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("profile %s: reading parents: %w", name, err)
	}

	var parents []*Profile
	for _, parentPath := range parentPaths {
		parent, err := resolver.ResolveProfile(parentPath, path)
		if err != nil {
			return nil, fmt.Errorf("profile %s: %w", name, err)
		}
		parents = append(parents, parent)
	}

	return &Profile{name: name, path: path, parents: parents}, nil
}

func (p *Profile) Name() string        { return p.name }
func (p *Profile) Path() string        { return p.path }
func (p *Profile) Parents() []*Profile { return append([]*Profile(nil), p.parents...) }

// Parse walks the full ancestor chain (parents before self, matching
// PMS's "least specific first" cascade order) and returns the merged
// result.
func (p *Profile) Parse() (*ParsedProfile, error) {
	vars := makevars.Vars{}
	if err := p.parseVars(vars); err != nil {
		return nil, err
	}

	overrides := newOverrides()
	if err := p.parseOverrides(overrides); err != nil {
		return nil, err
	}

	var provided []*ProvidedPackage
	if err := p.parseProvided(&provided); err != nil {
		return nil, err
	}

	return &ParsedProfile{profile: p, vars: vars, overrides: overrides, provided: provided}, nil
}

func (p *Profile) parseVars(vars makevars.Vars) error {
	for _, parent := range p.parents {
		if err := parent.parseVars(vars); err != nil {
			return err
		}
	}
	if err := makevars.ParseMakeDefaults(filepath.Join(p.path, makeDefaults), vars); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (p *Profile) parseOverrides(overrides *Overrides) error {
	for _, parent := range p.parents {
		if err := parent.parseOverrides(overrides); err != nil {
			return err
		}
	}

	if err := readPackageAtomList(filepath.Join(p.path, "package.mask"), &overrides.packageMask); err != nil {
		return err
	}
	if err := readPackageAtomList(filepath.Join(p.path, "package.unmask"), &overrides.packageUnmask); err != nil {
		return err
	}
	if err := readFlagList(filepath.Join(p.path, "use.mask"), &overrides.useMask); err != nil {
		return err
	}
	if err := readFlagList(filepath.Join(p.path, "use.force"), &overrides.useForce); err != nil {
		return err
	}
	if err := readFlagList(filepath.Join(p.path, "use.stable.mask"), &overrides.useStableMask); err != nil {
		return err
	}
	if err := readFlagList(filepath.Join(p.path, "use.stable.force"), &overrides.useStableForce); err != nil {
		return err
	}
	if err := readPackageUse(filepath.Join(p.path, "package.use"), overrides.packageUse); err != nil {
		return err
	}
	if err := readPackageFlagList(filepath.Join(p.path, "package.use.mask"), overrides.packageUseMask); err != nil {
		return err
	}
	if err := readPackageFlagList(filepath.Join(p.path, "package.use.force"), overrides.packageUseForce); err != nil {
		return err
	}
	if err := readPackageFlagList(filepath.Join(p.path, "package.use.stable.mask"), overrides.packageUseStableMask); err != nil {
		return err
	}
	if err := readPackageFlagList(filepath.Join(p.path, "package.use.stable.force"), overrides.packageUseStableForce); err != nil {
		return err
	}
	if err := readPackageFlagList(filepath.Join(p.path, "package.accept_keywords"), overrides.packageAcceptKeywords); err != nil {
		return err
	}
	return nil
}

func (p *Profile) parseProvided(provided *[]*ProvidedPackage) error {
	for _, parent := range p.parents {
		if err := parent.parseProvided(provided); err != nil {
			return err
		}
	}
	return readPackageProvided(filepath.Join(p.path, "package.provided"), provided)
}

// ParsedProfile is the flattened result of cascading a profile and all
// its ancestors.
type ParsedProfile struct {
	profile   *Profile
	vars      makevars.Vars
	overrides *Overrides
	provided  []*ProvidedPackage
}

func (p *ParsedProfile) Vars() makevars.Vars       { return p.vars.Copy() }
func (p *ParsedProfile) Overrides() *Overrides     { return p.overrides }
func (p *ParsedProfile) Provided() []*ProvidedPackage { return p.provided }

// Overrides is the flattened package.*/use.* state contributed by a
// profile chain.
type Overrides struct {
	packageMask   []*dependency.Atom
	packageUnmask []*dependency.Atom

	useMask        map[string]bool
	useForce       map[string]bool
	useStableMask  map[string]bool
	useStableForce map[string]bool

	packageUse            map[string]string
	packageUseMask        map[string][]string
	packageUseForce       map[string][]string
	packageUseStableMask  map[string][]string
	packageUseStableForce map[string][]string
	packageAcceptKeywords map[string][]string
}

func newOverrides() *Overrides {
	return &Overrides{
		useMask:               make(map[string]bool),
		useForce:              make(map[string]bool),
		useStableMask:         make(map[string]bool),
		useStableForce:        make(map[string]bool),
		packageUse:            make(map[string]string),
		packageUseMask:        make(map[string][]string),
		packageUseForce:       make(map[string][]string),
		packageUseStableMask:  make(map[string][]string),
		packageUseStableForce: make(map[string][]string),
		packageAcceptKeywords: make(map[string][]string),
	}
}

func (o *Overrides) PackageMask() []*dependency.Atom   { return o.packageMask }
func (o *Overrides) PackageUnmask() []*dependency.Atom { return o.packageUnmask }

// ForPackage resolves every override bucket down to what applies to one
// specific package, keyed by its bare "cat/pkg" name (package.use.* in
// PMS matches by atom, but this tree's callers have already narrowed to
// the owning package by the time they consult overrides).
func (o *Overrides) ForPackage(packageName string, ver *version.Version) *PackageOverrides {
	return &PackageOverrides{
		use:                o.packageUse[packageName],
		useMask:            append(append([]string(nil), mapKeys(o.useMask)...), o.packageUseMask[packageName]...),
		useForce:           append(append([]string(nil), mapKeys(o.useForce)...), o.packageUseForce[packageName]...),
		useStableMask:      append(append([]string(nil), mapKeys(o.useStableMask)...), o.packageUseStableMask[packageName]...),
		useStableForce:     append(append([]string(nil), mapKeys(o.useStableForce)...), o.packageUseStableForce[packageName]...),
		acceptKeywords:     o.packageAcceptKeywords[packageName],
	}
}

func mapKeys(m map[string]bool) []string {
	var out []string
	for k, v := range m {
		if v {
			out = append(out, k)
		}
	}
	return out
}

// PackageOverrides is the per-package view of Overrides.
type PackageOverrides struct {
	use            string
	useMask        []string
	useForce       []string
	useStableMask  []string
	useStableForce []string
	acceptKeywords []string
}

func (po *PackageOverrides) Use() string                 { return po.use }
func (po *PackageOverrides) UseMask() []string            { return po.useMask }
func (po *PackageOverrides) UseForce() []string           { return po.useForce }
func (po *PackageOverrides) UseStableMask() []string       { return po.useStableMask }
func (po *PackageOverrides) UseStableForce() []string      { return po.useStableForce }
func (po *PackageOverrides) AcceptKeywords() []string      { return po.acceptKeywords }

type ProvidedPackage struct {
	name string
	ver  *version.Version
}

func (pp *ProvidedPackage) Name() string            { return pp.name }
func (pp *ProvidedPackage) Version() *version.Version { return pp.ver }

func readPackageUse(path string, dest map[string]string) error {
	lines, err := readLines(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		dest[fields[0]] = strings.TrimSpace(dest[fields[0]] + " " + strings.Join(fields[1:], " "))
	}
	return nil
}

// readPackageFlagList parses the common "atom flag flag..." shape shared
// by package.use.mask, package.use.force, package.use.stable.mask,
// package.use.stable.force, and package.accept_keywords.
func readPackageFlagList(path string, dest map[string][]string) error {
	lines, err := readLines(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		dest[fields[0]] = append(dest[fields[0]], fields[1:]...)
	}
	return nil
}

func readFlagList(path string, dest map[string]bool) error {
	lines, err := readLines(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, line := range lines {
		for _, flag := range strings.Fields(line) {
			dest[flag] = true
		}
	}
	return nil
}

func readPackageAtomList(path string, dest *[]*dependency.Atom) error {
	lines, err := readLines(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		atom, err := dependency.ParseAtom(fields[0])
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		*dest = append(*dest, atom)
	}
	return nil
}

func readPackageProvided(path string, provided *[]*ProvidedPackage) error {
	lines, err := readLines(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}

	for _, line := range lines {
		prefix, ver, err := version.ExtractSuffix(line)
		if err != nil {
			return fmt.Errorf("invalid provided package spec: %s: %w", line, err)
		}
		const hyphen = "-"
		if !strings.HasSuffix(prefix, hyphen) {
			return fmt.Errorf("invalid provided package spec: %s", line)
		}
		name := strings.TrimSuffix(prefix, hyphen)
		*provided = append(*provided, &ProvidedPackage{name: name, ver: ver})
	}
	return nil
}

func readLines(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var lines []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines, nil
}
