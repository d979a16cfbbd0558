// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package dependency_test

import (
	"testing"

	"cros.local/alchemist/internal/standard/dependency"
	"cros.local/alchemist/internal/standard/version"
)

func TestParsePackageRoundTrip(t *testing.T) {
	for _, s := range []string{
		"app-misc/foo",
		">=app-misc/foo-1.2.3:0=",
		"|| ( app-misc/foo app-misc/bar )",
		"foo? ( app-misc/foo !app-misc/bar )",
		"!app-misc/conflict",
	} {
		tree, err := dependency.ParsePackage(s)
		if err != nil {
			t.Fatalf("ParsePackage(%q): %v", s, err)
		}
		if got := tree.String(); got != s {
			t.Errorf("ParsePackage(%q).String() = %q, want %q", s, got, s)
		}
	}
}

func TestParsePackageBlocks(t *testing.T) {
	tree, err := dependency.ParsePackage("!!app-misc/foo")
	if err != nil {
		t.Fatal(err)
	}
	leaves := dependency.Leaves(tree)
	if len(leaves) != 1 || leaves[0].PackageName() != "app-misc/foo" {
		t.Fatalf("unexpected leaves: %+v", leaves)
	}
}

func TestSimplifyUseConditional(t *testing.T) {
	tree, err := dependency.ParsePackage("foo? ( app-misc/foo ) !foo? ( app-misc/bar )")
	if err != nil {
		t.Fatal(err)
	}
	simplified := dependency.Simplify(tree, dependency.UseMap{"foo": true})
	atoms := dependency.Leaves(simplified)
	if len(atoms) != 1 || atoms[0].PackageName() != "app-misc/foo" {
		t.Fatalf("unexpected atoms after Simplify: %+v", atoms)
	}
}

func TestElideRejectsNondeterministicAnyOf(t *testing.T) {
	tree, err := dependency.ParsePackage("|| ( app-misc/foo app-misc/bar )")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := dependency.Elide(tree); err == nil {
		t.Fatal("expected Elide to reject a two-way || ( )")
	}
}

func TestParseURIRename(t *testing.T) {
	tree, err := dependency.ParseURI("https://example.com/foo.tar.gz -> foo-1.0.tar.gz")
	if err != nil {
		t.Fatal(err)
	}
	leaves := dependency.Leaves(tree)
	if len(leaves) != 1 {
		t.Fatalf("expected 1 URI leaf, got %d", len(leaves))
	}
	if leaves[0].Filename() != "foo-1.0.tar.gz" {
		t.Errorf("Filename() = %q, want foo-1.0.tar.gz", leaves[0].Filename())
	}
}

func TestParseRequiredUseSatisfiedBy(t *testing.T) {
	tree, err := dependency.ParseRequiredUse("foo? ( bar ) ^^ ( baz qux )")
	if err != nil {
		t.Fatal(err)
	}
	if dependency.SatisfiedBy(tree, dependency.UseMap{"foo": true, "bar": false, "baz": true}) {
		t.Error("expected not satisfied: foo set but bar unset")
	}
	if !dependency.SatisfiedBy(tree, dependency.UseMap{"foo": true, "bar": true, "baz": true}) {
		t.Error("expected satisfied")
	}
}

func TestParseRestrict(t *testing.T) {
	tree, err := dependency.ParseRestrict("test !bindist")
	if err != nil {
		t.Fatal(err)
	}
	leaves := dependency.Leaves(tree)
	if len(leaves) != 2 || leaves[0].Name != "test" || !leaves[1].Negate {
		t.Fatalf("unexpected leaves: %+v", leaves)
	}
}

func TestAtomMatch(t *testing.T) {
	atom, err := dependency.ParseAtom(">=app-misc/foo-1.2")
	if err != nil {
		t.Fatal(err)
	}
	ver, err := version.Parse("1.3")
	if err != nil {
		t.Fatal(err)
	}
	if !atom.Match(&dependency.TargetPackage{Name: "app-misc/foo", Version: ver, MainSlot: "0"}) {
		t.Error("expected atom to match version 1.3")
	}
}

func TestAtomMatchSubSlot(t *testing.T) {
	atom, err := dependency.ParseAtom("app-misc/foo:0/2")
	if err != nil {
		t.Fatal(err)
	}
	target := &dependency.TargetPackage{Name: "app-misc/foo", MainSlot: "0", SubSlot: "2"}
	if !atom.Match(target) {
		t.Error("expected atom to match a target with the requested main/sub slot")
	}

	target.SubSlot = "3"
	if atom.Match(target) {
		t.Error("expected atom not to match a target with a different sub-slot")
	}
}
