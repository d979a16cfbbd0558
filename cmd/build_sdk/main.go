// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Command build_sdk assembles a board's SDK sysroot from a base SDK, a set
// of overlays, and a set of host/target binary packages to pre-install,
// and writes the result as a durable tree.
package main

import (
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/urfave/cli/v2"
	"golang.org/x/sys/unix"

	"cros.local/alchemist/internal/cliutil"
	"cros.local/alchemist/internal/fileutil"
	"cros.local/alchemist/internal/makechroot"
	"cros.local/alchemist/internal/mountsdk"
	"cros.local/alchemist/internal/processes"
)

const mainScript = "/mnt/host/.build_sdk/build_sdk.sh"

var flagBoard = &cli.StringFlag{
	Name:     "board",
	Required: true,
}

var flagOutput = &cli.StringFlag{
	Name:     "output",
	Usage:    "path to write the output durable tree to",
	Required: true,
}

var flagInstallHost = &cli.StringSliceFlag{
	Name:  "install-host",
	Usage: "binary packages to pre-install into the host SDK",
}

var flagInstallTarget = &cli.StringSliceFlag{
	Name:  "install-target",
	Usage: "binary packages to pre-install into the board sysroot",
}

var app = &cli.App{
	Flags: append(mountsdk.CLIFlags,
		flagBoard,
		flagOutput,
		flagInstallHost,
		flagInstallTarget,
	),
	Action: func(c *cli.Context) error {
		board := c.String(flagBoard.Name)
		output := c.String(flagOutput.Name)
		hostInstallPaths := c.StringSlice(flagInstallHost.Name)
		targetInstallPaths := c.StringSlice(flagInstallTarget.Name)

		ctx, cancel := signal.NotifyContext(c.Context, unix.SIGINT, unix.SIGTERM)
		defer cancel()

		cfg, err := mountsdk.GetMountConfigFromCLI(c)
		if err != nil {
			return err
		}
		cfg.Output = output
		cfg.DurableTree = true

		tmpDir, err := os.MkdirTemp("", "build_sdk.*")
		if err != nil {
			return err
		}
		defer fileutil.RemoveAllWithChmod(tmpDir)

		hostPackagesDir := filepath.Join(tmpDir, "host-packages")
		targetPackagesDir := filepath.Join(tmpDir, "target-packages")

		hostInstallAtoms, err := makechroot.CopyBinaryPackages(hostPackagesDir, hostInstallPaths)
		if err != nil {
			return err
		}
		targetInstallAtoms, err := makechroot.CopyBinaryPackages(targetPackagesDir, targetInstallPaths)
		if err != nil {
			return err
		}

		cfg.BindMounts = append(cfg.BindMounts,
			makechroot.BindMount{Source: hostPackagesDir, MountPath: "/var/lib/portage/pkgs"},
			makechroot.BindMount{Source: targetPackagesDir, MountPath: filepath.Join("/build", board, "packages")},
		)

		script, err := mountsdk.FindSiblingTool("build_sdk.sh")
		if err != nil {
			return fmt.Errorf("locating build_sdk.sh: %w", err)
		}
		cfg.BindMounts = append(cfg.BindMounts, makechroot.BindMount{
			Source:    script,
			MountPath: mainScript,
		})

		if err := mountsdk.RunInSDK(cfg, func(s *mountsdk.MountedSDK) error {
			cmd := s.Command(mainScript)
			cmd.Env = append(cmd.Env,
				"BOARD="+board,
				"INSTALL_ATOMS_HOST="+strings.Join(hostInstallAtoms, " "),
				"INSTALL_ATOMS_TARGET="+strings.Join(targetInstallAtoms, " "),
			)
			return processes.Run(ctx, cmd)
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
