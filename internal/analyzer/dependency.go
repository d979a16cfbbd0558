// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package analyzer computes a package's resolved dependency closure: the
// five DEPEND-family atom sets, RESTRICT tokens, the sub-slot rebuild
// rewrite, and the transitive install/build-host closures. None of this
// exists in the teacher's Bazel-oriented pipeline (Bazel computes
// closures itself there); it is grounded on the Rust rewrite's analyze
// package instead, re-expressed with the generic dependency tree above.
package analyzer

import (
	"fmt"
	"sort"

	"cros.local/alchemist/internal/packages"
	"cros.local/alchemist/internal/resolver"
	"cros.local/alchemist/internal/standard/dependency"
)

// PackageDependencies is a package's dependencies, split by DEPEND-family
// variable and reduced to plain atoms (no blocks, no any-of, no USE
// conditions: those have all been resolved away by AnalyzeDependencies).
type PackageDependencies struct {
	BuildHostDeps   []*dependency.Atom // BDEPEND
	InstallHostDeps []*dependency.Atom // IDEPEND
	BuildDeps       []*dependency.Atom // DEPEND
	RuntimeDeps     []*dependency.Atom // RDEPEND
	PostDeps        []*dependency.Atom // PDEPEND
}

// unsatisfiableError records why a dependency branch could not be
// resolved; it propagates up through AllOf (any false child fails the
// whole group) and is what AnyOf tries to avoid by picking another
// branch.
type unsatisfiableError struct{ reason string }

func (e *unsatisfiableError) Error() string { return e.reason }

// resolveAtoms implements spec.md section 4.5 steps 2-6 for a single
// dependency tree: elide USE conditions, drop blocks and provided
// packages, fail branches with no satisfying package, resolve any-of by
// picking the first satisfiable child (the historical Portage
// convention), and flatten to a sorted, deduplicated atom list.
func resolveAtoms(tree *dependency.PackageTree, uses map[string]bool, res *resolver.Resolver) ([]*dependency.Atom, error) {
	return resolveAtomsAllowing(tree, uses, res, nil)
}

// resolveAtomsAllowing is resolveAtoms with an optional allow-list
// (non-nil only for BDEPEND on EAPI<7 ebuilds, which don't support
// BDEPEND natively and so only honor a fixed set of bootstrap tools
// passed in separately).
func resolveAtomsAllowing(tree *dependency.PackageTree, uses map[string]bool, res *resolver.Resolver, allowList map[string]bool) ([]*dependency.Atom, error) {
	simplified := dependency.Simplify(tree, uses)

	atoms, err := resolveGroup(simplified.Expr().Children, uses, res, allowList)
	if err != nil {
		return nil, err
	}

	sort.Slice(atoms, func(i, j int) bool { return atoms[i].String() < atoms[j].String() })
	atoms = dedupAtoms(atoms)
	return atoms, nil
}

// resolveGroup resolves an AllOf's children: every child must be
// satisfiable (dropping ones that are vacuously true), or the whole
// group fails with the first encountered reason.
func resolveGroup(children []dependency.Node[*dependency.Atom], uses map[string]bool, res *resolver.Resolver, allowList map[string]bool) ([]*dependency.Atom, error) {
	var atoms []*dependency.Atom
	for _, c := range children {
		sub, err := resolveNode(c, uses, res, allowList)
		if err != nil {
			return nil, err
		}
		atoms = append(atoms, sub...)
	}
	return atoms, nil
}

func resolveNode(n dependency.Node[*dependency.Atom], uses map[string]bool, res *resolver.Resolver, allowList map[string]bool) ([]*dependency.Atom, error) {
	switch v := n.(type) {
	case *dependency.LeafNode[*dependency.Atom]:
		return resolveLeaf(v, uses, res, allowList)
	case *dependency.AllOf[*dependency.Atom]:
		return resolveGroup(v.Children, uses, res, allowList)
	case *dependency.AnyOf[*dependency.Atom]:
		return resolveAnyOf(v.Children, uses, res, allowList)
	case *dependency.ExactlyOneOf[*dependency.Atom], *dependency.AtMostOneOf[*dependency.Atom]:
		return nil, fmt.Errorf("^^ / ?? groups are not valid in package dependency specifications")
	default:
		return nil, fmt.Errorf("unexpected dependency node %v", n)
	}
}

func resolveLeaf(leaf *dependency.LeafNode[*dependency.Atom], uses map[string]bool, res *resolver.Resolver, allowList map[string]bool) ([]*dependency.Atom, error) {
	atom := leaf.Value

	if leaf.Blocks > 0 {
		return nil, nil // package block: ignored, not a real dependency edge
	}

	if allowList != nil && !allowList[atom.PackageName()] {
		return nil, nil
	}

	provided, err := res.FindProvidedPackages(atom)
	if err != nil {
		return nil, err
	}
	if len(provided) > 0 {
		return nil, nil
	}

	if _, err := res.FindBestPackageDependency(uses, atom); err != nil {
		if err == resolver.ErrNoCandidates {
			return nil, &unsatisfiableError{reason: fmt.Sprintf("no package satisfies %s", atom)}
		}
		return nil, err
	}

	return []*dependency.Atom{atom}, nil
}

// resolveAnyOf tries each child in order, returning the first
// satisfiable one's result. This mirrors Portage's historical
// any-of-resolution convention of committing to the first listed
// alternative rather than picking the "best" one by any other measure.
func resolveAnyOf(children []dependency.Node[*dependency.Atom], uses map[string]bool, res *resolver.Resolver, allowList map[string]bool) ([]*dependency.Atom, error) {
	var reasons []string
	for _, c := range children {
		atoms, err := resolveNode(c, uses, res, allowList)
		if err == nil {
			return atoms, nil
		}
		if ue, ok := err.(*unsatisfiableError); ok {
			reasons = append(reasons, ue.reason)
			continue
		}
		return nil, err
	}
	return nil, &unsatisfiableError{reason: fmt.Sprintf("any-of ( %v )", reasons)}
}

func dedupAtoms(atoms []*dependency.Atom) []*dependency.Atom {
	var out []*dependency.Atom
	for i, a := range atoms {
		if i > 0 && a.String() == atoms[i-1].String() {
			continue
		}
		out = append(out, a)
	}
	return out
}

// extraDependencies works around a small number of ebuilds with
// incomplete dependency declarations, mirroring a short allow-listed
// patch table carried from the original implementation rather than
// fixing the ebuilds themselves.
func extraDependencies(packageName, varName string) string {
	switch {
	case packageName == "app-text/poppler" && varName == "DEPEND":
		return "dev-libs/boost"
	case packageName == "dev-python/m2crypto" && varName == "DEPEND":
		return "dev-lang/python:3.6"
	case packageName == "x11-libs/libXau" && varName == "RDEPEND":
		return "x11-base/xorg-proto"
	default:
		return ""
	}
}

func extractDependencies(pkg *packages.Details, varName string, res *resolver.Resolver) ([]*dependency.Atom, error) {
	raw := pkg.Metadata()[varName]
	if extra := extraDependencies(pkg.Name(), varName); extra != "" {
		raw = raw + " " + extra
	}

	tree, err := dependency.ParsePackage(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", varName, err)
	}

	atoms, err := resolveAtoms(tree, pkg.Uses(), res)
	if err != nil {
		return nil, fmt.Errorf("resolving %s for %s-%s: %w", varName, pkg.Name(), pkg.Version(), err)
	}
	return atoms, nil
}

// AnalyzeDependencies computes pkg's PackageDependencies by parsing and
// resolving each DEPEND-family metadata key.
func AnalyzeDependencies(pkg *packages.Details, res *resolver.Resolver) (*PackageDependencies, error) {
	buildHostDeps, err := extractDependencies(pkg, "BDEPEND", res)
	if err != nil {
		return nil, err
	}
	installHostDeps, err := extractDependencies(pkg, "IDEPEND", res)
	if err != nil {
		return nil, err
	}
	buildDeps, err := extractDependencies(pkg, "DEPEND", res)
	if err != nil {
		return nil, err
	}
	runtimeDeps, err := extractDependencies(pkg, "RDEPEND", res)
	if err != nil {
		return nil, err
	}
	postDeps, err := extractDependencies(pkg, "PDEPEND", res)
	if err != nil {
		return nil, err
	}

	// Rust source packages without their own src_compile sometimes list
	// their dependencies only under DEPEND; cros-rust packages still need
	// them pulled in as transitive runtime deps.
	if isRustSourcePackage(pkg) {
		merged := append(append([]*dependency.Atom(nil), runtimeDeps...), buildDeps...)
		sort.Slice(merged, func(i, j int) bool { return merged[i].String() < merged[j].String() })
		runtimeDeps = dedupAtoms(merged)
	}

	return &PackageDependencies{
		BuildHostDeps:   buildHostDeps,
		InstallHostDeps: installHostDeps,
		BuildDeps:       buildDeps,
		RuntimeDeps:     runtimeDeps,
		PostDeps:        postDeps,
	}, nil
}

func isRustSourcePackage(pkg *packages.Details) bool {
	return pkg.UsesEclass("cros-rust") && !pkg.UsesEclass("cros-workon") && pkg.Metadata()["HAS_SRC_COMPILE"] != "1"
}

// RewriteSubslotDeps rewrites every atom in tree that carries the ":="
// sub-slot rebuild operator, substituting the main/sub slot of whichever
// package currently satisfies it. The result is a dependency-expression
// string, suitable for storing in a binary package's XPAK so rebuilds
// trigger on sub-slot change (PMS section 8.2.6.4).
func RewriteSubslotDeps(tree *dependency.PackageTree, uses map[string]bool, res *resolver.Resolver) (string, error) {
	simplified := dependency.Simplify(tree, uses)

	rewritten, err := rewriteGroup(simplified.Expr().Children, uses, res)
	if err != nil {
		return "", err
	}

	out := dependency.NewTree(dependency.NewAllOf(rewritten))
	return out.String(), nil
}

func rewriteGroup(children []dependency.Node[*dependency.Atom], uses map[string]bool, res *resolver.Resolver) ([]dependency.Node[*dependency.Atom], error) {
	var out []dependency.Node[*dependency.Atom]
	for _, c := range children {
		rc, err := rewriteNode(c, uses, res)
		if err != nil {
			return nil, err
		}
		out = append(out, rc)
	}
	return out, nil
}

func rewriteNode(n dependency.Node[*dependency.Atom], uses map[string]bool, res *resolver.Resolver) (dependency.Node[*dependency.Atom], error) {
	switch v := n.(type) {
	case *dependency.LeafNode[*dependency.Atom]:
		return rewriteLeaf(v, uses, res)
	case *dependency.AllOf[*dependency.Atom]:
		children, err := rewriteGroup(v.Children, uses, res)
		if err != nil {
			return nil, err
		}
		return dependency.NewAllOf(children), nil
	case *dependency.AnyOf[*dependency.Atom]:
		children, err := rewriteGroup(v.Children, uses, res)
		if err != nil {
			return nil, err
		}
		return dependency.NewAnyOf(children), nil
	default:
		return n, nil
	}
}

func rewriteLeaf(leaf *dependency.LeafNode[*dependency.Atom], uses map[string]bool, res *resolver.Resolver) (dependency.Node[*dependency.Atom], error) {
	atom := leaf.Value
	if !atom.RebuildOnSlotChange() {
		return leaf, nil
	}

	if provided, err := res.FindProvidedPackages(atom); err != nil {
		return nil, err
	} else if len(provided) > 0 {
		return leaf, nil
	}

	target, err := res.FindBestPackageDependency(uses, atom)
	if err != nil {
		if err == resolver.ErrNoCandidates {
			return leaf, nil // unsatisfied any-of branch: leave as-is
		}
		return nil, err
	}

	rewritten := dependency.NewAtom(
		atom.PackageName(), atom.VersionOperator(), atom.Version(), atom.Wildcard(),
		fmt.Sprintf("%s/%s=", target.MainSlot(), target.SubSlot()), atom.UseDeps(),
	)
	return &dependency.LeafNode[*dependency.Atom]{Value: rewritten, Blocks: leaf.Blocks}, nil
}
