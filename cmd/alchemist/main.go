// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Command alchemist analyzes a board's Portage tree: resolving packages
// and their dependency graphs, generating a dependency-graph manifest of
// a board's overlays and packages, and fingerprinting the overlay tree so
// callers can tell whether either needs to be regenerated.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/urfave/cli/v2"

	"cros.local/alchemist/internal/analyzer"
	"cros.local/alchemist/internal/cliutil"
	"cros.local/alchemist/internal/config"
	"cros.local/alchemist/internal/ebuild"
	"cros.local/alchemist/internal/packages"
	"cros.local/alchemist/internal/repository"
	"cros.local/alchemist/internal/resolver"
	"cros.local/alchemist/internal/standard/dependency"
	"cros.local/alchemist/internal/standard/profile"
)

var flagBoard = &cli.StringFlag{
	Name:     "board",
	Aliases:  []string{"b"},
	Required: true,
	Usage:    "board to analyze the Portage tree for",
}

var flagSourceDir = &cli.StringFlag{
	Name:    "source-dir",
	Aliases: []string{"s"},
	Usage:   "path to the source checkout root; inferred from the working directory if unset",
}

var app = &cli.App{
	Name:  "alchemist",
	Usage: "analyzes Portage trees",
	Flags: []cli.Flag{flagBoard, flagSourceDir},
	Commands: []*cli.Command{
		dumpPackageCommand,
		generateRepoCommand,
		digestRepoCommand,
	},
}

// session is the board analysis context every subcommand (digest-repo
// included) shares: the overlay stack, the evaluated configuration
// cascade, and the resolver built from both.
type session struct {
	rootDir string
	repos   *repository.RepoSet
	res     *resolver.Resolver
}

func newSession(c *cli.Context) (*session, error) {
	if _, err := resolveSourceDir(c.String(flagSourceDir.Name)); err != nil {
		return nil, err
	}

	rootDir := filepath.Join("/build", c.String(flagBoard.Name))

	repos, err := repository.LoadFromReposConf(rootDir)
	if err != nil {
		return nil, fmt.Errorf("loading overlays: %w", err)
	}

	parsedProfile, err := loadDefaultProfile(rootDir, repos)
	if err != nil {
		return nil, fmt.Errorf("loading profile: %w", err)
	}

	cfg := config.Bundle{
		config.NewProfileSource(parsedProfile),
		config.NewUserConfigSource(rootDir),
		config.NewOverrideSource("", nil),
	}

	processor := ebuild.NewCachedProcessor(ebuild.NewProcessor(cfg, repos.EClassDirs()))
	res := resolver.New(repos, cfg, processor)

	return &session{rootDir: rootDir, repos: repos, res: res}, nil
}

// resolveSourceDir returns explicit if set, otherwise walks up from the
// working directory looking for the ".repo" directory a source checkout
// root carries.
func resolveSourceDir(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, ".repo")); err == nil {
			return dir, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("cannot locate the source checkout root from the working directory; pass --source-dir")
		}
		dir = parent
	}
}

// loadDefaultProfile is shorthand for loading rootDir's
// etc/portage/make.profile symlink target as a profile.
func loadDefaultProfile(rootDir string, repos *repository.RepoSet) (*profile.ParsedProfile, error) {
	symlinkPath := filepath.Join(rootDir, "etc/portage/make.profile")
	target, err := os.Readlink(symlinkPath)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", symlinkPath, err)
	}
	if !filepath.IsAbs(target) {
		target = filepath.Join(filepath.Dir(symlinkPath), target)
	}

	prof, err := repos.ProfileByPath(filepath.Clean(target))
	if err != nil {
		return nil, err
	}
	return prof.Parse()
}

var flagDumpEnv = &cli.BoolFlag{
	Name:    "env",
	Aliases: []string{"e"},
	Usage:   "also dump each package's evaluated build environment",
}

var dumpPackageCommand = &cli.Command{
	Name:      "dump-package",
	Usage:     "shows version, USE flag, and dependency information for packages",
	ArgsUsage: "ATOM...",
	Flags:     []cli.Flag{flagDumpEnv},
	Action: func(c *cli.Context) error {
		if c.Args().Len() == 0 {
			return fmt.Errorf("dump-package takes at least one atom")
		}

		s, err := newSession(c)
		if err != nil {
			return err
		}
		direct := analyzer.NewCachedDirectDependencies(s.res)

		for _, raw := range c.Args().Slice() {
			atom, err := dependency.ParseAtom(raw)
			if err != nil {
				return fmt.Errorf("parsing %q: %w", raw, err)
			}
			if err := dumpPackage(s, direct, raw, atom, c.Bool(flagDumpEnv.Name)); err != nil {
				return err
			}
		}
		return nil
	},
}

func dumpPackage(s *session, direct *analyzer.CachedDirectDependencies, label string, atom *dependency.Atom, withEnv bool) error {
	pkgs, err := s.res.FindPackages(atom)
	if err != nil {
		return err
	}
	best, err := resolver.SelectBestVersion(pkgs)
	if err != nil {
		return err
	}

	sorted := append([]*packages.Details(nil), pkgs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Version().Compare(sorted[j].Version()) > 0 })

	fmt.Printf("=======\t%s\n", label)
	for i, pkg := range sorted {
		if i > 0 {
			fmt.Println()
		}

		isDefault := best != nil && best.Path() == pkg.Path()
		defaultSuffix := ""
		if isDefault {
			defaultSuffix = " (Default)"
		}

		fmt.Printf("Path:\t\t%s\n", pkg.Path())
		fmt.Printf("Package:\t%s\n", pkg.Name())
		fmt.Printf("Version:\t%s%s\n", pkg.Version(), defaultSuffix)
		fmt.Printf("Slot:\t\t%s\n", pkg.Metadata()["SLOT"])
		fmt.Printf("Stability:\t%s\n", pkg.Stability())
		fmt.Printf("USE:\t\t%s\n", formatUses(pkg.Uses()))

		dd, err := direct.Get(pkg)
		if err != nil {
			return fmt.Errorf("analyzing dependencies of %s: %w", pkg.Path(), err)
		}
		dumpDeps("BDEPEND", dd.BuildHost)
		dumpDeps("IDEPEND", dd.InstallHost)
		dumpDeps("DEPEND", dd.BuildTarget)
		dumpDeps("RDEPEND", dd.RunTarget)
		dumpDeps("PDEPEND", dd.PostTarget)

		if withEnv {
			fmt.Println("Env:")
			meta := pkg.Metadata()
			keys := make([]string, 0, len(meta))
			for k := range meta {
				keys = append(keys, k)
			}
			sort.Strings(keys)
			for _, k := range keys {
				fmt.Printf("  %q: %q\n", k, meta[k])
			}
		}
	}
	return nil
}

func formatUses(uses map[string]bool) string {
	names := make([]string, 0, len(uses))
	for name := range uses {
		names = append(names, name)
	}
	sort.Strings(names)

	out := ""
	for i, name := range names {
		if i > 0 {
			out += " "
		}
		if uses[name] {
			out += "+" + name
		} else {
			out += "-" + name
		}
	}
	return out
}

func dumpDeps(label string, deps []*packages.Details) {
	fmt.Printf("%s:\n", label)
	for _, dep := range deps {
		fmt.Printf("  %s-%s\n", dep.Name(), dep.Version())
	}
}

func main() {
	cliutil.Exit(app.Run(os.Args))
}
