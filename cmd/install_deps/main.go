// Copyright 2023 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Command install_deps stages a set of binary packages into a fresh SDK
// overlay, runs the board's (or host's) dependency installer against them,
// and writes the resulting durable tree.
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

const mainScript = "/mnt/host/.install_deps/install_deps.sh"

var flagBoard = &cli.StringFlag{
	Name:  "board",
	Usage: "target board; omit to install into the host SDK's own root",
}

var flagOutput = &cli.StringFlag{
	Name:     "output",
	Usage:    "path to write the output durable tree to",
	Required: true,
}

var app = &cli.App{
	Flags: append(mountsdk.CLIFlags,
		flagBoard,
		mountsdk.FlagInstallTarget,
		flagOutput,
	),
	Action: func(c *cli.Context) error {
		board := c.String(flagBoard.Name)
		output := c.String(flagOutput.Name)
		installTargetsUnparsed := c.StringSlice(mountsdk.FlagInstallTarget.Name)

		// The build action wrapping this process grants
		// "supports-graceful-termination", so a cancellation arrives as
		// SIGTERM, not SIGKILL.
		ctx, cancel := signal.NotifyContext(c.Context, unix.SIGINT, unix.SIGTERM)
		defer cancel()

		cfg, err := mountsdk.GetMountConfigFromCLI(c)
		if err != nil {
			return err
		}
		cfg.Output = output
		cfg.DurableTree = true

		script, err := mountsdk.FindSiblingTool("install_deps.sh")
		if err != nil {
			return fmt.Errorf("locating install_deps.sh: %w", err)
		}
		cfg.BindMounts = append(cfg.BindMounts, makechroot.BindMount{
			Source:    script,
			MountPath: mainScript,
		})

		installTargetsEnv, err := mountsdk.AddInstallTargetsToConfig(installTargetsUnparsed, targetPackagesDir(board), cfg)
		if err != nil {
			return err
		}

		if err := mountsdk.RunInSDK(cfg, func(s *mountsdk.MountedSDK) error {
			cmd := s.Command(mainScript)
			cmd.Env = append(cmd.Env, installTargetsEnv...)
			if board != "" {
				cmd.Env = append(cmd.Env, "BOARD="+board)
			}
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

// targetPackagesDir returns where a board's (or, if board is empty, the
// host SDK's own) binary packages live.
func targetPackagesDir(board string) string {
	if board == "" {
		return "/var/lib/portage/pkgs"
	}
	return filepath.Join("/build", board, "packages")
}

func main() {
	cliutil.Exit(app.Run(os.Args))
}
