// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/urfave/cli/v2"

	"cros.local/alchemist/internal/analyzer"
	"cros.local/alchemist/internal/packages"
	"cros.local/alchemist/internal/repository"
	"cros.local/alchemist/internal/standard/dependency"
)

var flagGenerateRepoOutput = &cli.StringFlag{
	Name:     "output",
	Aliases:  []string{"o"},
	Required: true,
	Usage:    "directory to write the repository manifest to",
}

var flagGenerateRepoVerbose = &cli.BoolFlag{
	Name:    "verbose",
	Aliases: []string{"v"},
	Usage:   "log each package as it is resolved",
}

var generateRepoCommand = &cli.Command{
	Name:  "generate-repo",
	Usage: "generates a dependency-graph manifest of a board's overlays and packages",
	Flags: []cli.Flag{flagGenerateRepoOutput, flagGenerateRepoVerbose},
	Action: func(c *cli.Context) error {
		s, err := newSession(c)
		if err != nil {
			return err
		}
		return generateRepo(s, c.String(flagGenerateRepoOutput.Name), c.Bool(flagGenerateRepoVerbose.Name))
	},
}

// overlayManifest is one entry of overlays.json: an ordered overlay in
// the board's repository stack.
type overlayManifest struct {
	Name    string `json:"name"`
	RootDir string `json:"rootDir"`
	EAPI    string `json:"eapi"`
}

// packageManifest is one entry of packages.json: a fully resolved
// package and its direct dependency edges, named the way DEPEND/RDEPEND/
// etc. are named in an ebuild.
type packageManifest struct {
	Name     string              `json:"name"`
	Category string              `json:"category"`
	Version  string              `json:"version"`
	Slot     string              `json:"slot"`
	EbuildPath string            `json:"ebuildPath"`
	Stability  string            `json:"stability"`
	Uses       []string          `json:"uses"`
	Deps       map[string][]string `json:"deps"`
}

// generateRepo resolves every package reachable from the board's
// overlays and writes the result as two manifests: overlays.json (the
// ordered overlay stack) and packages.json (resolved packages and their
// direct dependency edges), the stable interface a Bazel repository rule
// consuming this output would read.
func generateRepo(s *session, outDir string, verbose bool) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}

	overlays := make([]overlayManifest, 0, len(s.repos.Repos()))
	for _, repo := range s.repos.Repos() {
		overlays = append(overlays, overlayManifest{Name: repo.Name(), RootDir: repo.RootDir(), EAPI: repo.EAPI()})
	}
	if err := writeJSON(filepath.Join(outDir, "overlays.json"), overlays); err != nil {
		return err
	}

	names, err := discoverPackageNames(s.repos)
	if err != nil {
		return err
	}

	direct := analyzer.NewCachedDirectDependencies(s.res)

	var manifests []packageManifest
	for _, name := range names {
		if verbose {
			fmt.Fprintf(os.Stderr, "resolving %s\n", name)
		}

		atom, err := dependency.ParseAtom(name)
		if err != nil {
			return fmt.Errorf("parsing discovered package name %q: %w", name, err)
		}
		pkgs, err := s.res.FindPackages(atom)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", name, err)
		}

		for _, pkg := range pkgs {
			dd, err := direct.Get(pkg)
			if err != nil {
				return fmt.Errorf("analyzing dependencies of %s: %w", pkg.Path(), err)
			}

			manifests = append(manifests, packageManifest{
				Name:       pkg.Name(),
				Category:   pkg.Category(),
				Version:    pkg.Version().String(),
				Slot:       pkg.Metadata()["SLOT"],
				EbuildPath: pkg.Path(),
				Stability:  string(pkg.Stability()),
				Uses:       sortedEnabledUses(pkg.Uses()),
				Deps: map[string][]string{
					"BDEPEND": packageLabels(dd.BuildHost),
					"IDEPEND": packageLabels(dd.InstallHost),
					"DEPEND":  packageLabels(dd.BuildTarget),
					"RDEPEND": packageLabels(dd.RunTarget),
					"PDEPEND": packageLabels(dd.PostTarget),
				},
			})
		}
	}

	sort.Slice(manifests, func(i, j int) bool {
		if manifests[i].Name != manifests[j].Name {
			return manifests[i].Name < manifests[j].Name
		}
		return manifests[i].Version < manifests[j].Version
	})

	return writeJSON(filepath.Join(outDir, "packages.json"), manifests)
}

func sortedEnabledUses(uses map[string]bool) []string {
	var names []string
	for name, enabled := range uses {
		if enabled {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

func packageLabels(deps []*packages.Details) []string {
	labels := make([]string, len(deps))
	for i, dep := range deps {
		labels[i] = fmt.Sprintf("%s-%s", dep.Name(), dep.Version())
	}
	return labels
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

// packageDirSkip lists overlay top-level directories that are never
// category directories, so discoverPackageNames doesn't waste time
// descending into them.
var packageDirSkip = map[string]bool{
	"profiles": true, "eclass": true, "metadata": true,
	"licenses": true, "scripts": true, "eclass-manpages": true,
}

// discoverPackageNames walks every overlay looking for "category/name"
// directories that contain at least one ebuild, returning the union
// across all overlays, deduplicated and sorted.
func discoverPackageNames(repos *repository.RepoSet) ([]string, error) {
	seen := make(map[string]bool)

	for _, repo := range repos.Repos() {
		categories, err := os.ReadDir(repo.RootDir())
		if err != nil {
			return nil, err
		}
		for _, category := range categories {
			if !category.IsDir() || strings.HasPrefix(category.Name(), ".") || packageDirSkip[category.Name()] {
				continue
			}
			categoryDir := filepath.Join(repo.RootDir(), category.Name())
			pkgDirs, err := os.ReadDir(categoryDir)
			if err != nil {
				return nil, err
			}
			for _, pkgDir := range pkgDirs {
				if !pkgDir.IsDir() {
					continue
				}
				name := category.Name() + "/" + pkgDir.Name()
				if seen[name] {
					continue
				}
				hasEbuild, err := containsEbuild(filepath.Join(categoryDir, pkgDir.Name()))
				if err != nil {
					return nil, err
				}
				if hasEbuild {
					seen[name] = true
				}
			}
		}
	}

	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func containsEbuild(dir string) (bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".ebuild") {
			return true, nil
		}
	}
	return false, nil
}
