// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package analyzer_test

import (
	"os"
	"path/filepath"
	"testing"

	"cros.local/alchemist/internal/analyzer"
	"cros.local/alchemist/internal/config"
	"cros.local/alchemist/internal/ebuild"
	"cros.local/alchemist/internal/packages"
	"cros.local/alchemist/internal/repository"
	"cros.local/alchemist/internal/resolver"
	"cros.local/alchemist/internal/standard/dependency"
)

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTestResolver(t *testing.T) *resolver.Resolver {
	t.Helper()
	root := t.TempDir()

	mustWriteFile(t, filepath.Join(root, "profiles", "repo_name"), "test\n")
	mustWriteFile(t, filepath.Join(root, "profiles", "eapi"), "7\n")

	mustWriteFile(t, filepath.Join(root, "app-misc", "bar", "bar-1.0.ebuild"), `SLOT="0/1"
KEYWORDS="~amd64"
IUSE=""
`)
	mustWriteFile(t, filepath.Join(root, "app-misc", "foo", "foo-1.0.ebuild"), `SLOT="0"
KEYWORDS="~amd64"
IUSE="bindist"
DEPEND="app-misc/bar"
RDEPEND="app-misc/bar:=  bindist? ( app-misc/missing )"
RESTRICT="mirror bindist? ( bindist )"
`)

	repos, err := repository.NewRepoSet([]string{root})
	if err != nil {
		t.Fatal(err)
	}

	cfg := config.NewOverrideSource("", nil)
	proc := ebuild.NewCachedProcessor(ebuild.NewProcessor(cfg, repos.EClassDirs()))
	return resolver.New(repos, cfg, proc)
}

func loadPackage(t *testing.T, res *resolver.Resolver, name string) *packages.Details {
	t.Helper()
	atom, err := dependency.ParseAtom(name)
	if err != nil {
		t.Fatal(err)
	}
	pkgs, err := res.FindPackages(atom)
	if err != nil {
		t.Fatal(err)
	}
	if len(pkgs) != 1 {
		t.Fatalf("got %d packages for %s, want 1", len(pkgs), name)
	}
	return pkgs[0]
}

func TestAnalyzeDependencies(t *testing.T) {
	res := newTestResolver(t)
	foo := loadPackage(t, res, "app-misc/foo")

	deps, err := analyzer.AnalyzeDependencies(foo, res)
	if err != nil {
		t.Fatal(err)
	}

	if len(deps.BuildDeps) != 1 || deps.BuildDeps[0].PackageName() != "app-misc/bar" {
		t.Errorf("BuildDeps = %v, want [app-misc/bar]", deps.BuildDeps)
	}
	// bindist is disabled by default (IUSE="bindist" has no "+"), so the
	// USE-conditional branch dependency on the nonexistent package should
	// be elided away, leaving only the unconditional bar dependency.
	if len(deps.RuntimeDeps) != 1 || deps.RuntimeDeps[0].PackageName() != "app-misc/bar" {
		t.Errorf("RuntimeDeps = %v, want [app-misc/bar]", deps.RuntimeDeps)
	}
}

func TestAnalyzeRestricts(t *testing.T) {
	res := newTestResolver(t)
	foo := loadPackage(t, res, "app-misc/foo")

	restricts, err := analyzer.AnalyzeRestricts(foo)
	if err != nil {
		t.Fatal(err)
	}
	if len(restricts) != 1 || restricts[0] != "mirror" {
		t.Errorf("AnalyzeRestricts = %v, want [mirror]", restricts)
	}
}

func TestRewriteSubslotDeps(t *testing.T) {
	res := newTestResolver(t)
	foo := loadPackage(t, res, "app-misc/foo")

	tree, err := foo.DependTree("RDEPEND")
	if err != nil {
		t.Fatal(err)
	}

	rewritten, err := analyzer.RewriteSubslotDeps(tree, foo.Uses(), res)
	if err != nil {
		t.Fatal(err)
	}
	if want := "app-misc/bar:0/1="; rewritten != want {
		t.Errorf("RewriteSubslotDeps = %q, want %q", rewritten, want)
	}
}

func TestComputeIndirectDependencies(t *testing.T) {
	res := newTestResolver(t)
	foo := loadPackage(t, res, "app-misc/foo")

	direct := analyzer.NewCachedDirectDependencies(res)
	indirect, err := analyzer.ComputeIndirectDependencies(foo, direct)
	if err != nil {
		t.Fatal(err)
	}

	if len(indirect.InstallSet) != 2 {
		t.Errorf("InstallSet = %v, want 2 packages (foo, bar)", indirect.InstallSet)
	}
}
