// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package resolver answers "which ebuild satisfies this atom" queries by
// combining a repository.RepoSet (where ebuilds live) with a
// config.Source (USE flags, masks) and an ebuild.CachedProcessor (what
// an ebuild evaluates to).
package resolver

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/sync/errgroup"

	"cros.local/alchemist/internal/config"
	"cros.local/alchemist/internal/ebuild"
	"cros.local/alchemist/internal/packages"
	"cros.local/alchemist/internal/repository"
	"cros.local/alchemist/internal/standard/dependency"
	"cros.local/alchemist/internal/standard/version"
)

// Resolver answers atom queries against a fixed RepoSet/config.Source
// pair. It is safe for concurrent use: loads are deduplicated by the
// underlying CachedProcessor.
type Resolver struct {
	repos     *repository.RepoSet
	cfg       config.Source
	processor *ebuild.CachedProcessor
}

func New(repos *repository.RepoSet, cfg config.Source, processor *ebuild.CachedProcessor) *Resolver {
	return &Resolver{repos: repos, cfg: cfg, processor: processor}
}

// FindPackages loads every ebuild for A's package name across every
// repo, in priority order (lowest first), and returns those matching A.
// Ebuilds that fail to evaluate are silently dropped: PMS treats a
// broken ebuild as invisible to dependency resolution, not a hard error.
func (r *Resolver) FindPackages(a *dependency.Atom) ([]*packages.Details, error) {
	entries, err := r.repos.Packages(a.PackageName())
	if err != nil {
		return nil, fmt.Errorf("finding packages for %s: %w", a.String(), err)
	}

	details := make([]*packages.Details, len(entries))

	var eg errgroup.Group
	for i, entry := range entries {
		i, entry := i, entry
		eg.Go(func() error {
			d, err := r.loadDetails(a.PackageName(), entry)
			if err != nil {
				return nil // evaluation failure: invisible, not fatal
			}
			details[i] = d
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	var matched []*packages.Details
	for _, d := range details {
		if d == nil {
			continue
		}
		if !a.Match(d.TargetPackage()) {
			continue
		}
		masked, err := r.isMasked(d)
		if err != nil {
			return nil, err
		}
		if masked {
			continue
		}
		matched = append(matched, d)
	}
	return matched, nil
}

func (r *Resolver) loadDetails(packageName string, entry *repository.Package) (*packages.Details, error) {
	info, err := r.processor.Read(entry.Path)
	if err != nil {
		return nil, err
	}

	mainSlot, subSlot := splitSlot(info.Metadata["SLOT"])
	target := &dependency.TargetPackage{
		Name:     packageName,
		Version:  entry.Version,
		MainSlot: mainSlot,
		SubSlot:  subSlot,
		Uses:     info.Uses,
	}
	return packages.NewDetails(entry.Path, ebuild.Metadata(info.Metadata), target), nil
}

func splitSlot(slot string) (main, sub string) {
	parts := strings.SplitN(slot, "/", 2)
	if len(parts) == 2 {
		return parts[0], parts[1]
	}
	return parts[0], parts[0]
}

func (r *Resolver) isMasked(d *packages.Details) (bool, error) {
	masks, err := r.cfg.PackageMasks()
	if err != nil {
		return false, err
	}
	unmasks, err := r.cfg.PackageUnmasks()
	if err != nil {
		return false, err
	}

	masked := false
	for _, m := range masks {
		if m.Match(d.TargetPackage()) {
			masked = true
			break
		}
	}
	if !masked {
		return false, nil
	}
	for _, u := range unmasks {
		if u.Match(d.TargetPackage()) {
			return false, nil
		}
	}
	return true, nil
}

// ErrNoCandidates is returned by SelectBestVersion when every candidate
// was filtered out (evaluation failure or masking).
var ErrNoCandidates = errors.New("no candidate packages")

// SelectBestVersion returns the highest-versioned package in pkgs,
// breaking ties by preferring later entries (pkgs is expected in
// repository priority order, lowest first, so a tie favors the
// highest-priority overlay).
func SelectBestVersion(pkgs []*packages.Details) (*packages.Details, error) {
	if len(pkgs) == 0 {
		return nil, ErrNoCandidates
	}
	best := pkgs[0]
	for _, p := range pkgs[1:] {
		if p.Version().Compare(best.Version()) >= 0 {
			best = p
		}
	}
	return best, nil
}

// FindBestPackageDependency resolves A the same way FindPackages does,
// additionally evaluating any USE-conditional ("flag?"/"flag=") clauses
// in A's use-dependency list against sourceUses (the depending
// package's own USE selection) before matching, then returns the single
// best candidate.
func (r *Resolver) FindBestPackageDependency(sourceUses map[string]bool, a *dependency.Atom) (*packages.Details, error) {
	pkgs, err := r.FindPackages(a.ResolveUseDeps(sourceUses))
	if err != nil {
		return nil, err
	}
	return SelectBestVersion(pkgs)
}

// FindProvidedPackages filters the config cascade's package.provided
// entries to those matching A (PMS's now-deprecated but still-supported
// mechanism for declaring a package satisfied without an ebuild, e.g. a
// virtual satisfied by the toolchain itself).
func (r *Resolver) FindProvidedPackages(a *dependency.Atom) ([]*config.Package, error) {
	provided, err := r.cfg.ProvidedPackages()
	if err != nil {
		return nil, err
	}

	var matched []*config.Package
	for _, p := range provided {
		t := &dependency.TargetPackage{Name: p.Name, Version: p.Version}
		if a.Match(t) {
			matched = append(matched, p)
		}
	}
	return matched, nil
}

// IsProvided is an exact (name, version) membership test against
// package.provided, used by the install-set reducer to drop a
// dependency edge that's already satisfied without needing a build.
func (r *Resolver) IsProvided(name string, ver *version.Version) (bool, error) {
	provided, err := r.cfg.ProvidedPackages()
	if err != nil {
		return false, err
	}
	for _, p := range provided {
		if p.Name == name && p.Version.Compare(ver) == 0 {
			return true, nil
		}
	}
	return false, nil
}
