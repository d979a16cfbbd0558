// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package resolver_test

import (
	"os"
	"path/filepath"
	"testing"

	"cros.local/alchemist/internal/config"
	"cros.local/alchemist/internal/ebuild"
	"cros.local/alchemist/internal/repository"
	"cros.local/alchemist/internal/resolver"
	"cros.local/alchemist/internal/standard/dependency"
	"cros.local/alchemist/internal/standard/version"
)

func mustParseVersion(t *testing.T, s string) *version.Version {
	t.Helper()
	v, err := version.Parse(s)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func mustWriteFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newTestRepo(t *testing.T) *repository.RepoSet {
	t.Helper()
	root := t.TempDir()

	mustWriteFile(t, filepath.Join(root, "profiles", "repo_name"), "test\n")
	mustWriteFile(t, filepath.Join(root, "profiles", "eapi"), "7\n")

	mustWriteFile(t, filepath.Join(root, "app-misc", "foo", "foo-1.0.ebuild"), `SLOT="0"
KEYWORDS="~amd64"
IUSE=""
RDEPEND=""
`)
	mustWriteFile(t, filepath.Join(root, "app-misc", "foo", "foo-2.0.ebuild"), `SLOT="0"
KEYWORDS="~amd64"
IUSE=""
RDEPEND=""
`)

	repos, err := repository.NewRepoSet([]string{root})
	if err != nil {
		t.Fatal(err)
	}
	return repos
}

func newTestResolver(t *testing.T) *resolver.Resolver {
	t.Helper()
	repos := newTestRepo(t)
	cfg := config.NewOverrideSource("", nil)
	proc := ebuild.NewCachedProcessor(ebuild.NewProcessor(cfg, repos.EClassDirs()))
	return resolver.New(repos, cfg, proc)
}

func TestFindPackagesSelectsBestVersion(t *testing.T) {
	r := newTestResolver(t)

	atom, err := dependency.ParseAtom("app-misc/foo")
	if err != nil {
		t.Fatal(err)
	}

	pkgs, err := r.FindPackages(atom)
	if err != nil {
		t.Fatal(err)
	}
	if len(pkgs) != 2 {
		t.Fatalf("got %d packages, want 2", len(pkgs))
	}

	best, err := resolver.SelectBestVersion(pkgs)
	if err != nil {
		t.Fatal(err)
	}
	if got := best.Version().String(); got != "2.0" {
		t.Errorf("SelectBestVersion = %s, want 2.0", got)
	}
}

func TestFindPackagesVersionConstraint(t *testing.T) {
	r := newTestResolver(t)

	atom, err := dependency.ParseAtom("<app-misc/foo-2.0")
	if err != nil {
		t.Fatal(err)
	}

	pkgs, err := r.FindPackages(atom)
	if err != nil {
		t.Fatal(err)
	}
	if len(pkgs) != 1 || pkgs[0].Version().String() != "1.0" {
		t.Fatalf("unexpected matches: %+v", pkgs)
	}
}

func TestIsProvided(t *testing.T) {
	repos := newTestRepo(t)
	cfg := config.NewOverrideSource("", []*config.Package{
		{Name: "app-misc/virtual-foo", Version: mustParseVersion(t, "1")},
	})
	proc := ebuild.NewCachedProcessor(ebuild.NewProcessor(cfg, repos.EClassDirs()))
	r := resolver.New(repos, cfg, proc)

	ok, err := r.IsProvided("app-misc/virtual-foo", mustParseVersion(t, "1"))
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Error("IsProvided = false, want true")
	}

	ok, err = r.IsProvided("app-misc/virtual-foo", mustParseVersion(t, "2"))
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("IsProvided = true, want false")
	}
}
