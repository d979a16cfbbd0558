// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package ebuild evaluates .ebuild files (which are themselves bash) in
// a sandboxed bash subprocess to recover their metadata (SLOT, KEYWORDS,
// IUSE, dependency strings, ...) without running any build phase.
package ebuild

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"cros.local/alchemist/internal/config"
	"cros.local/alchemist/internal/standard/bashutil"
	"cros.local/alchemist/internal/standard/makevars"
	"cros.local/alchemist/internal/standard/version"
)

// Metadata is the flat set of variables an ebuild assigns at the top
// level (SLOT, KEYWORDS, IUSE, DEPEND, RDEPEND, SRC_URI, RESTRICT,
// REQUIRED_USE, ...).
type Metadata map[string]string

// Info is the result of evaluating one ebuild: its raw metadata plus the
// resolved USE flag selection used to compute it.
type Info struct {
	Metadata Metadata
	Uses     map[string]bool
}

// Processor evaluates ebuilds against a fixed config.Source and eclass
// search path.
type Processor struct {
	config     config.Source
	eclassDirs []string
}

func NewProcessor(cfg config.Source, eclassDirs []string) *Processor {
	return &Processor{config: cfg, eclassDirs: eclassDirs}
}

func (p *Processor) Read(ebuildPath string) (*Info, error) {
	absPath, err := filepath.Abs(ebuildPath)
	if err != nil {
		return nil, fmt.Errorf("reading ebuild metadata: %s: %w", ebuildPath, err)
	}

	pkg, err := extractPackage(absPath)
	if err != nil {
		return nil, fmt.Errorf("reading ebuild metadata: %s: %w", absPath, err)
	}

	env := make(makevars.Vars)
	if _, err := p.config.EvalGlobalVars(env); err != nil {
		return nil, fmt.Errorf("reading ebuild metadata: %s: %w", absPath, err)
	}
	env.Merge(computePackageVars(pkg))

	metadata, err := runEbuild(absPath, env, p.eclassDirs)
	if err != nil {
		return nil, fmt.Errorf("reading ebuild metadata: %s: %w", absPath, err)
	}

	uses, err := computeUseFlags(pkg, p.config, metadata)
	if err != nil {
		return nil, fmt.Errorf("reading ebuild metadata: %s: %w", absPath, err)
	}

	return &Info{Metadata: metadata, Uses: uses}, nil
}

func extractPackage(absPath string) (*config.Package, error) {
	const suffix = ".ebuild"
	if !strings.HasSuffix(absPath, suffix) {
		return nil, fmt.Errorf("must have suffix %s", suffix)
	}

	packageShortNameAndVersion := filepath.Base(strings.TrimSuffix(absPath, suffix))
	packageShortName := filepath.Base(filepath.Dir(absPath))
	categoryName := filepath.Base(filepath.Dir(filepath.Dir(absPath)))

	prefix, ver, err := version.ExtractSuffix(packageShortNameAndVersion)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(prefix, "-") {
		return nil, errors.New("invalid package name")
	}
	if strings.TrimSuffix(prefix, "-") != packageShortName {
		return nil, errors.New("ebuild name mismatch with directory name")
	}

	return &config.Package{Name: path.Join(categoryName, packageShortName), Version: ver}, nil
}

func computePackageVars(pkg *config.Package) makevars.Vars {
	categoryName := path.Dir(pkg.Name)
	packageShortName := path.Base(pkg.Name)

	return makevars.Vars{
		"P":        fmt.Sprintf("%s-%s", packageShortName, pkg.Version.DropRevision().String()),
		"PF":       fmt.Sprintf("%s-%s", packageShortName, pkg.Version.String()),
		"PN":       packageShortName,
		"CATEGORY": categoryName,
		"PV":       pkg.Version.DropRevision().String(),
		"PR":       fmt.Sprintf("r%s", pkg.Version.ImplicitRevision()),
		"PVR":      pkg.Version.String(),
	}
}

func runEbuild(absPath string, env makevars.Vars, eclassDirs []string) (Metadata, error) {
	tempDir, err := os.MkdirTemp("", "xbuild.*")
	if err != nil {
		return nil, err
	}
	defer os.RemoveAll(tempDir)

	workDir := filepath.Join(tempDir, "work")
	if err := os.Mkdir(workDir, 0o700); err != nil {
		return nil, err
	}

	outPath := filepath.Join(tempDir, "vars.txt")

	vars := make(makevars.Vars)
	vars.Merge(env)
	vars.Merge(makevars.Vars{
		"__xbuild_in_ebuild":      absPath,
		"__xbuild_in_eclass_dirs": strings.Join(eclassDirs, "\n") + "\n",
		"__xbuild_in_output_vars": outPath,
	})

	cmd := exec.Command("bash")
	cmd.Stdin = bytes.NewBuffer(preludeCode)
	cmd.Env = vars.Environ()
	cmd.Dir = workDir
	if out, err := cmd.CombinedOutput(); len(out) > 0 {
		os.Stderr.Write(out)
		return nil, errors.New("ebuild printed errors to stdout/stderr (see logs)")
	} else if err != nil {
		return nil, fmt.Errorf("bash: %w", err)
	}

	b, err := os.ReadFile(outPath)
	if err != nil {
		return nil, err
	}

	out, err := bashutil.ParseSetOutput(bytes.NewBuffer(b))
	if err != nil {
		return nil, fmt.Errorf("reading output: %w", err)
	}

	outVars := Metadata(out)
	for name := range outVars {
		if strings.HasPrefix(name, "__xbuild_") {
			delete(outVars, name)
		}
	}
	return outVars, nil
}

type readResult struct {
	info *Info
	err  error
}

// CachedProcessor memoizes Processor.Read per ebuild path using a
// sync.Once-guarded cell per key, so concurrent callers resolving the
// same ebuild block on one evaluation instead of racing duplicate bash
// subprocesses.
type CachedProcessor struct {
	p     *Processor
	cells sync.Map // path -> *onceCell
}

type onceCell struct {
	once   sync.Once
	result readResult
}

func NewCachedProcessor(p *Processor) *CachedProcessor {
	return &CachedProcessor{p: p}
}

func (c *CachedProcessor) Read(ebuildPath string) (*Info, error) {
	v, _ := c.cells.LoadOrStore(ebuildPath, &onceCell{})
	cell := v.(*onceCell)
	cell.once.Do(func() {
		cell.result.info, cell.result.err = c.p.Read(ebuildPath)
	})
	return cell.result.info, cell.result.err
}
