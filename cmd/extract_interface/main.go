// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Command extract_interface pulls specific XPAK keys and tarball payload
// files out of a binary package without unpacking the whole thing, so
// downstream build steps can depend on just the slice of a package they
// actually need.
package main

import (
	"os"

	"github.com/urfave/cli/v2"

	"cros.local/alchemist/internal/binarypackage"
	"cros.local/alchemist/internal/cliutil"
)

var flagBinpkg = &cli.StringFlag{
	Name:     "binpkg",
	Required: true,
}

var flagXpak = &cli.StringSliceFlag{
	Name: "xpak",
	Usage: "<XPAK key>=[?]<outside path>: writes the XPAK key's value to the outside path; " +
		"=? makes a missing key write an empty file instead of failing",
}

var flagOutputFile = &cli.StringSliceFlag{
	Name:  "output-file",
	Usage: "<inside path>=<outside path>: extracts a file from the binpkg's tarball payload",
}

var app = &cli.App{
	Flags: []cli.Flag{
		flagBinpkg,
		flagXpak,
		flagOutputFile,
	},
	Action: func(c *cli.Context) error {
		xpakSpecs, err := binarypackage.ParseXpakSpecs(c.StringSlice(flagXpak.Name))
		if err != nil {
			return err
		}
		outputFileSpecs, err := binarypackage.ParseOutputFileSpecs(c.StringSlice(flagOutputFile.Name))
		if err != nil {
			return err
		}
		if len(xpakSpecs) == 0 && len(outputFileSpecs) == 0 {
			return nil
		}

		bp, err := binarypackage.Open(c.String(flagBinpkg.Name))
		if err != nil {
			return err
		}
		defer bp.Close()

		if err := binarypackage.ExtractXpakFiles(bp, xpakSpecs); err != nil {
			return err
		}
		return binarypackage.ExtractOutFiles(bp, outputFileSpecs)
	},
}

func main() {
	cliutil.Exit(app.Run(os.Args))
}
