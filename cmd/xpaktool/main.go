// Copyright 2023 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Command xpaktool inspects and edits Portage binary packages: dumping or
// listing their XPAK metadata, diffing two packages byte-for-byte, editing
// XPAK keys in place, and validating a package's recorded USE flags.
package main

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/urfave/cli/v2"

	"cros.local/alchemist/internal/binarypackage"
	"cros.local/alchemist/internal/cliutil"
)

var app = &cli.App{
	Commands: []*cli.Command{
		extractXpakCommand,
		comparePackagesCommand,
		updateXpakCommand,
		validatePackageCommand,
	},
}

var extractXpakCommand = &cli.Command{
	Name:  "extract-xpak",
	Usage: "shows or dumps a package's XPAK entries",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "dump",
			Usage: "directory to write each XPAK entry to as its own file, instead of printing them",
		},
	},
	Action: func(c *cli.Context) error {
		if c.Args().Len() != 1 {
			return fmt.Errorf("extract-xpak takes exactly one package path")
		}
		xpak, err := binarypackage.ReadXpak(c.Args().First())
		if err != nil {
			return err
		}

		if dumpDir := c.String("dump"); dumpDir != "" {
			if err := os.MkdirAll(dumpDir, 0o755); err != nil {
				return err
			}
			for key, value := range xpak {
				if err := os.WriteFile(dumpDir+"/"+key, value, 0o644); err != nil {
					return err
				}
			}
			return nil
		}

		keys := make([]string, 0, len(xpak))
		for key := range xpak {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			fmt.Printf("%s:\n", key)
			value := strings.TrimSuffix(string(xpak[key]), "\n")
			for _, line := range strings.Split(value, "\n") {
				fmt.Printf("\t%s\n", line)
			}
		}
		return nil
	},
}

// readerContentsEqual drains both readers fully and reports whether their
// bytes match; it reads a and b to completion either way.
func readerContentsEqual(a, b io.Reader) (bool, error) {
	dataA, err := io.ReadAll(a)
	if err != nil {
		return false, err
	}
	dataB, err := io.ReadAll(b)
	if err != nil {
		return false, err
	}
	return bytes.Equal(dataA, dataB), nil
}

var comparePackagesCommand = &cli.Command{
	Name:      "compare-packages",
	Usage:     "compares two packages' tarball payload and XPAK metadata",
	ArgsUsage: "PACKAGE-A PACKAGE-B",
	Action: func(c *cli.Context) error {
		if c.Args().Len() != 2 {
			return fmt.Errorf("compare-packages takes exactly two package paths")
		}
		pathA, pathB := c.Args().Get(0), c.Args().Get(1)

		bpA, err := binarypackage.Open(pathA)
		if err != nil {
			return err
		}
		defer bpA.Close()
		bpB, err := binarypackage.Open(pathB)
		if err != nil {
			return err
		}
		defer bpB.Close()

		tarballA, err := bpA.TarballReader()
		if err != nil {
			return err
		}
		defer tarballA.Close()
		tarballB, err := bpB.TarballReader()
		if err != nil {
			return err
		}
		defer tarballB.Close()

		tarballsEqual, err := readerContentsEqual(tarballA, tarballB)
		if err != nil {
			return err
		}
		if tarballsEqual {
			fmt.Println("tarball contents equal")
		} else {
			fmt.Println("tarball contents differ")
		}

		xpakA, err := bpA.Xpak()
		if err != nil {
			return err
		}
		xpakB, err := bpB.Xpak()
		if err != nil {
			return err
		}
		xpakEqual := xpakEquivalent(xpakA, xpakB)
		if xpakEqual {
			fmt.Println("XPAK contents equal")
		} else {
			fmt.Println("XPAK contents differ")
		}

		if !tarballsEqual || !xpakEqual {
			return fmt.Errorf("packages are not equal")
		}
		return nil
	},
}

func xpakEquivalent(a, b binarypackage.XPAK) bool {
	if len(a) != len(b) {
		return false
	}
	for key, value := range a {
		other, ok := b[key]
		if !ok || !bytes.Equal(value, other) {
			return false
		}
	}
	return true
}

var updateXpakCommand = &cli.Command{
	Name:      "update-xpak",
	Usage:     "overrides XPAK keys of a package in place",
	ArgsUsage: "KEY=VALUE...",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "binpkg",
			Required: true,
		},
	},
	Action: func(c *cli.Context) error {
		binpkg := c.String("binpkg")

		xpak, err := binarypackage.ReadXpak(binpkg)
		if err != nil {
			return err
		}

		for _, kv := range c.Args().Slice() {
			key, value, ok := strings.Cut(kv, "=")
			if !ok {
				return fmt.Errorf("invalid key=value: %q", kv)
			}
			xpak[key] = []byte(value)
		}

		return binarypackage.ReplaceXpak(binpkg, xpak)
	},
}

var validatePackageCommand = &cli.Command{
	Name:  "validate-package",
	Usage: "validates a package's recorded USE flags",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "package",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "use-flags",
			Usage: "comma-separated +flag/-flag list the package should have been built with",
		},
		&cli.StringFlag{
			Name:   "touch",
			Hidden: true,
		},
	},
	Action: func(c *cli.Context) error {
		xpak, err := binarypackage.ReadXpak(c.String("package"))
		if err != nil {
			return err
		}

		if spec := c.String("use-flags"); spec != "" {
			if err := validateUseFlags(xpak, spec); err != nil {
				return err
			}
		}

		if touch := c.String("touch"); touch != "" {
			if err := os.WriteFile(touch, nil, 0o644); err != nil {
				return err
			}
		}
		return nil
	},
}

func validateUseFlags(xpak binarypackage.XPAK, spec string) error {
	expected := map[string]bool{}
	for _, flag := range strings.Split(spec, ",") {
		if flag == "" {
			continue
		}
		switch {
		case strings.HasPrefix(flag, "+"):
			expected[flag[1:]] = true
		case strings.HasPrefix(flag, "-"):
			expected[flag[1:]] = false
		default:
			expected[flag] = true
		}
	}

	raw, ok := xpak["USE"]
	if !ok {
		return fmt.Errorf("USE XPAK entry not found")
	}
	actual := map[string]bool{}
	for _, flag := range strings.Fields(string(raw)) {
		actual[flag] = true
	}

	wantEnabled := map[string]bool{}
	for flag, enabled := range expected {
		if enabled {
			wantEnabled[flag] = true
		}
	}

	if len(actual) == len(wantEnabled) {
		match := true
		for flag := range wantEnabled {
			if !actual[flag] {
				match = false
				break
			}
		}
		if match {
			return nil
		}
	}

	var extra, missing []string
	for flag := range actual {
		if !wantEnabled[flag] {
			extra = append(extra, flag)
		}
	}
	for flag := range wantEnabled {
		if !actual[flag] {
			missing = append(missing, flag)
		}
	}
	sort.Strings(extra)
	sort.Strings(missing)
	return fmt.Errorf("USE flag mismatch: extra=%s missing=%s", strings.Join(extra, ","), strings.Join(missing, ","))
}

func main() {
	cliutil.Exit(app.Run(os.Args))
}
