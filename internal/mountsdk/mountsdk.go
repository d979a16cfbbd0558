// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package mountsdk builds the command line for, and then drives,
// cmd/run_in_container: the process that assembles a hermetic SDK root out
// of overlays and bind mounts and executes a command inside it.
package mountsdk

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"cros.local/alchemist/internal/fileutil"
)

// Action runs inside the prepared SDK; RunInSDK calls it once sdk.Command
// is ready to use.
type Action = func(sdk *MountedSDK) error

// SourceDir is the well-known path source overlays are mounted at inside
// the SDK.
const SourceDir = "/mnt/host/source"

// MountedSDK holds the assembled run_in_container invocation for one SDK
// session.
type MountedSDK struct {
	Config *Config

	// RootDir is a host-side scratch directory fed to run_in_container as
	// its highest-priority overlay layer; CopyToSDK files are staged here
	// before the container starts.
	RootDir fileutil.DualPath

	args []string
	env  []string
}

// findRunInContainer locates the run_in_container binary: next to the
// current executable first (the layout a built alchemist distribution
// ships), falling back to $PATH.
func findRunInContainer() (string, error) {
	return FindSiblingTool("run_in_container")
}

// FindSiblingTool locates a payload binary or script the caller only
// stages and invokes: next to the current executable first (the layout a
// built alchemist distribution ships), falling back to $PATH. This is how
// build_sdk, install_deps, and sdk_update find the shell scripts they run
// inside the SDK; this package has no opinion on what those scripts do.
func FindSiblingTool(name string) (string, error) {
	if exe, err := os.Executable(); err == nil {
		candidate := filepath.Join(filepath.Dir(exe), name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return exec.LookPath(name)
}

// RunInSDK prepares a scratch SDK root per cfg (copying in CopyToSDK files,
// computing the --overlay/--bind-mount arguments run_in_container needs)
// and calls action with a MountedSDK ready to spawn commands in it. If
// cfg.Output is set, the container's upper directory is promoted there
// (and converted to a durable tree if cfg.DurableTree is set) once
// action's command exits successfully; run_in_container does this itself,
// since the upper directory lives on a tmpfs private to its own mount
// namespace and would otherwise vanish when it exits.
func RunInSDK(cfg *Config, action Action) error {
	sdk := MountedSDK{Config: cfg}

	runInContainerPath, err := findRunInContainer()
	if err != nil {
		return fmt.Errorf("locating run_in_container: %w", err)
	}

	tmpDir, err := os.MkdirTemp("", "mountsdk.*")
	if err != nil {
		return err
	}
	defer fileutil.RemoveAllWithChmod(tmpDir)

	scratchDir := filepath.Join(tmpDir, "scratch")
	sdk.RootDir = fileutil.NewDualPath(filepath.Join(tmpDir, "root"), "/")
	bazelBuildDir := sdk.RootDir.Add("mnt/host/bazel-build")

	if err := os.MkdirAll(bazelBuildDir.Outside(), 0o755); err != nil {
		return err
	}

	for _, file := range cfg.CopyToSDK {
		path := sdk.RootDir.Add(file.SDKPath).Outside()
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := fileutil.Copy(file.HostPath, path); err != nil {
			return err
		}
	}

	args := []string{
		runInContainerPath,
		"--scratch-dir=" + scratchDir,
		"--overlay=/=" + sdk.RootDir.Outside(),
	}
	args = append(args, cfg.RunInContainerExtraArgs...)

	for _, remount := range cfg.Remounts {
		if !filepath.IsAbs(remount) {
			return fmt.Errorf("remounts must be absolute paths: got %s", remount)
		}
		dualPath := sdk.RootDir.Add(remount[1:])
		args = append(args, "--overlay="+dualPath.Inside()+"="+dualPath.Outside())
	}

	for _, overlay := range cfg.Overlays {
		args = append(args, "--overlay="+overlay.SDKPath+"="+overlay.HostPath)
	}

	for _, mount := range cfg.BindMounts {
		spec := mount.MountPath + "=" + mount.Source
		if mount.RW {
			spec += ":rw"
		}
		args = append(args, "--bind-mount="+spec)
	}

	if cfg.KeepHostMount {
		args = append(args, "--keep-host-mount")
	}

	if cfg.Output != "" {
		args = append(args, "--output="+cfg.Output)
		if cfg.DurableTree {
			args = append(args, "--durable-tree")
		}
	}

	sdk.args = args
	sdk.env = append(os.Environ(), "PATH=/usr/sbin:/usr/bin:/sbin:/bin")
	return action(&sdk)
}

// Command builds an exec.Cmd that runs name/args inside the SDK. It must
// be run with processes.Run, not cmd.Run, so a cancelled context gives
// run_in_container a chance to tear its container down gracefully instead
// of being killed outright.
func (s *MountedSDK) Command(name string, args ...string) *exec.Cmd {
	cmd := exec.Command(s.args[0], append(append(append([]string(nil), s.args[1:]...), name), args...)...)
	cmd.Env = append(cmd.Env, s.env...)
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd
}
