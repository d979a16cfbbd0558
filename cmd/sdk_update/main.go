// Copyright 2023 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Command sdk_update stages a set of tarballs into an existing SDK and
// runs its update script, writing the result as a durable tree.
package main

import (
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"

	"github.com/urfave/cli/v2"
	"golang.org/x/sys/unix"

	"cros.local/alchemist/internal/cliutil"
	"cros.local/alchemist/internal/makechroot"
	"cros.local/alchemist/internal/mountsdk"
	"cros.local/alchemist/internal/processes"
)

const (
	mainScript  = "/mnt/host/.sdk_update/setup.sh"
	tarballsDir = "/stage/tarballs"
)

var flagOutput = &cli.StringFlag{
	Name:     "output",
	Usage:    "path to write the output durable tree to",
	Required: true,
}

var flagInstallTarball = &cli.StringSliceFlag{
	Name:  "install-tarball",
	Usage: "tarball to extract into the SDK before running its update script",
}

var app = &cli.App{
	Flags: append(mountsdk.CLIFlags,
		flagOutput,
		flagInstallTarball,
	),
	Action: func(c *cli.Context) error {
		output := c.String(flagOutput.Name)
		tarballPaths := c.StringSlice(flagInstallTarball.Name)

		ctx, cancel := signal.NotifyContext(c.Context, unix.SIGINT, unix.SIGTERM)
		defer cancel()

		cfg, err := mountsdk.GetMountConfigFromCLI(c)
		if err != nil {
			return err
		}
		cfg.Output = output
		cfg.DurableTree = true

		for _, tarball := range tarballPaths {
			cfg.BindMounts = append(cfg.BindMounts, makechroot.BindMount{
				Source:    tarball,
				MountPath: filepath.Join(tarballsDir, filepath.Base(tarball)),
			})
		}

		script, err := mountsdk.FindSiblingTool("sdk_update.sh")
		if err != nil {
			return fmt.Errorf("locating sdk_update.sh: %w", err)
		}
		cfg.BindMounts = append(cfg.BindMounts, makechroot.BindMount{
			Source:    script,
			MountPath: mainScript,
		})

		if err := mountsdk.RunInSDK(cfg, func(s *mountsdk.MountedSDK) error {
			return processes.Run(ctx, s.Command(mainScript))
		}); err != nil {
			if exitErr, ok := err.(*exec.ExitError); ok {
				return cliutil.ExitCode(exitErr.ExitCode())
			}
			return err
		}
		return nil
	},
}

func main() {
	cliutil.Exit(app.Run(os.Args))
}
