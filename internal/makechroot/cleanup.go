// Copyright 2023 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package makechroot

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cros.local/alchemist/internal/fileutil"
)

// findFiles walks root looking for files whose base name matches pattern.
// filepath.Glob doesn't support "**", so a container's output tree (which
// can be arbitrarily deep) needs an explicit walk instead.
func findFiles(root string, pattern string) ([]string, error) {
	var matches []string

	if err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if path == root && errors.Is(err, fs.ErrNotExist) {
			return fs.SkipDir
		} else if err != nil {
			return err
		}

		if match, err := filepath.Match(pattern, filepath.Base(path)); err != nil {
			return nil
		} else if match {
			matches = append(matches, path)
		}

		return nil
	}); err != nil {
		return nil, err
	}

	return matches, nil
}

// sortContents rewrites every CONTENTS file so its lines are sorted.
// Portage regenerates CONTENTS in install order when a binary package is
// unpacked, which is nonhermetic; sorting it makes the output reproducible.
func sortContents(pkgDir string) error {
	matches, err := findFiles(pkgDir, "CONTENTS")
	if err != nil {
		return err
	}

	for _, match := range matches {
		contents, err := os.ReadFile(match)
		if err != nil {
			return err
		}

		lines := strings.Split(string(contents), "\n")
		if len(lines) > 0 && lines[len(lines)-1] == "" {
			lines = lines[:len(lines)-1]
		}
		sort.Strings(lines)

		if err := os.WriteFile(match, []byte(strings.Join(lines, "\n")), 0); err != nil {
			return err
		}
	}
	return nil
}

// zeroCounter overwrites every COUNTER file with "0". COUNTER otherwise
// varies run to run because packages are installed in parallel.
func zeroCounter(pkgDir string) error {
	matches, err := findFiles(pkgDir, "COUNTER")
	if err != nil {
		return err
	}
	for _, match := range matches {
		if err := os.WriteFile(match, []byte("0"), 0); err != nil {
			return err
		}
	}
	return nil
}

// truncateEnvironment empties every environment.bz2 file, which otherwise
// embeds EPOCHTIME/SRANDOM from the moment the package was installed.
// Deleting the file instead of truncating it would create an overlayfs
// whiteout in the output, which downstream tooling doesn't expect.
func truncateEnvironment(pkgDir string) error {
	matches, err := findFiles(pkgDir, "environment.bz2")
	if err != nil {
		return err
	}
	for _, match := range matches {
		if err := os.WriteFile(match, nil, 0); err != nil {
			return err
		}
	}
	return nil
}

// CleanLayer removes and normalizes build-nonhermetic artifacts from a
// container's promoted output directory so that two otherwise-identical
// builds produce byte-identical trees.
func CleanLayer(board string, outputDir string) error {
	rmDirs := []string{
		"mnt/host",
		"run",
		"stage",
		"tmp",
		"var/cache",
		"var/lib/portage/pkgs",
		"var/log",
		"var/tmp",
	}
	if board != "" {
		rmDirs = append(rmDirs,
			filepath.Join("build", board, "tmp"),
			filepath.Join("build", board, "var/cache"),
			filepath.Join("build", board, "packages"))
	}

	for _, rel := range rmDirs {
		if err := fileutil.RemoveAllWithChmod(filepath.Join(outputDir, rel)); err != nil {
			return err
		}
	}

	matches, err := findFiles(filepath.Join(outputDir, "usr/lib64/python3.6/site-packages"), "*.pyc")
	if err != nil {
		return err
	}
	for _, match := range matches {
		if err := fileutil.RemoveWithChmod(match); err != nil {
			return err
		}
	}

	roots := []string{outputDir}
	if board != "" {
		roots = append(roots, filepath.Join(outputDir, "build", board))
	}
	for _, root := range roots {
		pkgDir := filepath.Join(root, "var/db/pkg")

		if err := truncateEnvironment(pkgDir); err != nil {
			return err
		}
		if err := zeroCounter(pkgDir); err != nil {
			return err
		}
		if err := sortContents(pkgDir); err != nil {
			return err
		}
	}

	return nil
}
