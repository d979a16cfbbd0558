// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package analyzer

import (
	"fmt"
	"sort"
	"sync"

	"cros.local/alchemist/internal/packages"
	"cros.local/alchemist/internal/resolver"
	"cros.local/alchemist/internal/standard/dependency"
)

// FlattenDependencies resolves a dependency tree the same way
// AnalyzeDependencies does, but returns the concrete packages chosen for
// each surviving atom instead of the atoms themselves. allowList, when
// non-nil, restricts which package names are honored (used for BDEPEND
// on EAPI<7 ebuilds, which predate BDEPEND and only support a small
// bootstrap allow-list).
func FlattenDependencies(tree *dependency.PackageTree, uses map[string]bool, res *resolver.Resolver, allowList map[string]bool) ([]*packages.Details, error) {
	atoms, err := resolveAtomsAllowing(tree, uses, res, allowList)
	if err != nil {
		return nil, err
	}

	out := make([]*packages.Details, len(atoms))
	for i, atom := range atoms {
		d, err := res.FindBestPackageDependency(uses, atom)
		if err != nil {
			return nil, fmt.Errorf("resolving %s after it was already selected: %w", atom, err)
		}
		out[i] = d
	}
	return out, nil
}

// DirectDependencies is a package's direct dependencies, already
// resolved to concrete packages and split by the kind of edge they
// contribute to build/install graphs.
type DirectDependencies struct {
	BuildTarget []*packages.Details // DEPEND
	RunTarget   []*packages.Details // RDEPEND
	PostTarget  []*packages.Details // PDEPEND
	BuildHost   []*packages.Details // BDEPEND
	InstallHost []*packages.Details // IDEPEND
}

// AnalyzeDirectDependencies is AnalyzeDependencies's sibling that
// resolves straight to packages instead of atoms, for building the
// dependency graph the transitive closures below walk.
func AnalyzeDirectDependencies(pkg *packages.Details, res *resolver.Resolver) (*DirectDependencies, error) {
	build := func(varName string) ([]*packages.Details, error) {
		raw := pkg.Metadata()[varName]
		if extra := extraDependencies(pkg.Name(), varName); extra != "" {
			raw = raw + " " + extra
		}
		tree, err := dependency.ParsePackage(raw)
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", varName, err)
		}
		pkgs, err := FlattenDependencies(tree, pkg.Uses(), res, nil)
		if err != nil {
			return nil, fmt.Errorf("resolving %s for %s-%s: %w", varName, pkg.Name(), pkg.Version(), err)
		}
		return pkgs, nil
	}

	buildTarget, err := build("DEPEND")
	if err != nil {
		return nil, err
	}
	runTarget, err := build("RDEPEND")
	if err != nil {
		return nil, err
	}
	postTarget, err := build("PDEPEND")
	if err != nil {
		return nil, err
	}
	buildHost, err := build("BDEPEND")
	if err != nil {
		return nil, err
	}
	installHost, err := build("IDEPEND")
	if err != nil {
		return nil, err
	}

	return &DirectDependencies{
		BuildTarget: buildTarget,
		RunTarget:   runTarget,
		PostTarget:  postTarget,
		BuildHost:   buildHost,
		InstallHost: installHost,
	}, nil
}

// DirectDependenciesOf looks up (and lazily computes and caches) a
// package's DirectDependencies, keyed by ebuild path. It is the
// collaborator ComputeIndirectDependencies walks the graph through.
type DirectDependenciesOf interface {
	Get(pkg *packages.Details) (*DirectDependencies, error)
}

// CachedDirectDependencies is a DirectDependenciesOf backed by a
// resolver, memoizing one DirectDependencies computation per ebuild
// path so a diamond-shaped dependency graph is only walked once.
type CachedDirectDependencies struct {
	res *resolver.Resolver

	mu    sync.Mutex
	cache map[string]*DirectDependencies
}

func NewCachedDirectDependencies(res *resolver.Resolver) *CachedDirectDependencies {
	return &CachedDirectDependencies{res: res, cache: make(map[string]*DirectDependencies)}
}

func (c *CachedDirectDependencies) Get(pkg *packages.Details) (*DirectDependencies, error) {
	c.mu.Lock()
	if dd, ok := c.cache[pkg.Path()]; ok {
		c.mu.Unlock()
		return dd, nil
	}
	c.mu.Unlock()

	dd, err := AnalyzeDirectDependencies(pkg, c.res)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[pkg.Path()] = dd
	c.mu.Unlock()
	return dd, nil
}

// IndirectDependencies is the transitive closure of a package's
// dependencies, computed per spec.md section 4.5.
type IndirectDependencies struct {
	// InstallSet is every package that must be installed alongside this
	// one: the transitive closure over RDEPEND and PDEPEND edges,
	// including the seed package itself.
	InstallSet []*packages.Details

	// BuildHostSet is every host-side package needed to build this
	// package: its own BDEPEND, plus the IDEPEND of every package in the
	// transitive RDEPEND closure of its DEPEND (build-target) set. This
	// is intentionally not a full transitive closure (see the original
	// rationale: it would unnecessarily complicate the calculation for
	// marginal benefit, since the build environment setup already walks
	// further transitive deps on its own).
	BuildHostSet []*packages.Details
}

func comparePackages(a, b *packages.Details) bool {
	if a.Name() != b.Name() {
		return a.Name() < b.Name()
	}
	return a.Version().Compare(b.Version()) < 0
}

// collectTransitiveDependencies walks the dependency graph from seeds
// via the given accessor, depth-first, returning every reached package
// (including the seeds) deduplicated by ebuild path and sorted by
// (name, version).
func collectTransitiveDependencies(seeds []*packages.Details, direct DirectDependenciesOf, next func(*DirectDependencies) []*packages.Details) ([]*packages.Details, error) {
	visited := make(map[string]*packages.Details)
	stack := append([]*packages.Details(nil), seeds...)

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if _, ok := visited[cur.Path()]; ok {
			continue
		}
		visited[cur.Path()] = cur

		dd, err := direct.Get(cur)
		if err != nil {
			return nil, fmt.Errorf("analyzing %s-%s: %w", cur.Name(), cur.Version(), err)
		}
		stack = append(stack, next(dd)...)
	}

	out := make([]*packages.Details, 0, len(visited))
	for _, p := range visited {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return comparePackages(out[i], out[j]) })
	return out, nil
}

func collectDirectHostInstallDependencies(pkgs []*packages.Details, direct DirectDependenciesOf) ([]*packages.Details, error) {
	visited := make(map[string]*packages.Details)
	for _, p := range pkgs {
		dd, err := direct.Get(p)
		if err != nil {
			return nil, fmt.Errorf("analyzing %s-%s: %w", p.Name(), p.Version(), err)
		}
		for _, ih := range dd.InstallHost {
			visited[ih.Path()] = ih
		}
	}

	out := make([]*packages.Details, 0, len(visited))
	for _, p := range visited {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return comparePackages(out[i], out[j]) })
	return out, nil
}

// ComputeIndirectDependencies computes start's IndirectDependencies,
// using direct to resolve (and cache) each visited package's direct
// dependencies.
func ComputeIndirectDependencies(start *packages.Details, direct DirectDependenciesOf) (*IndirectDependencies, error) {
	startDD, err := direct.Get(start)
	if err != nil {
		return nil, err
	}

	installSet, err := collectTransitiveDependencies(
		[]*packages.Details{start}, direct,
		func(dd *DirectDependencies) []*packages.Details {
			return append(append([]*packages.Details(nil), dd.RunTarget...), dd.PostTarget...)
		},
	)
	if err != nil {
		return nil, err
	}

	transitiveBuildTargetDeps, err := collectTransitiveDependencies(
		startDD.BuildTarget, direct,
		func(dd *DirectDependencies) []*packages.Details { return dd.RunTarget },
	)
	if err != nil {
		return nil, err
	}

	buildHostSet := append([]*packages.Details(nil), startDD.BuildHost...)
	extraHost, err := collectDirectHostInstallDependencies(transitiveBuildTargetDeps, direct)
	if err != nil {
		return nil, err
	}
	buildHostSet = append(buildHostSet, extraHost...)
	sort.Slice(buildHostSet, func(i, j int) bool { return comparePackages(buildHostSet[i], buildHostSet[j]) })

	return &IndirectDependencies{
		InstallSet:   installSet,
		BuildHostSet: buildHostSet,
	}, nil
}
