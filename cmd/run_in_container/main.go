// Copyright 2023 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Command run_in_container assembles a hermetic root file system out of
// overlayfs lower layers and bind mounts, then runs a command inside it.
// It is normally invoked by mountsdk, not directly.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"

	"github.com/urfave/cli/v2"

	"cros.local/alchemist/internal/cliutil"
	"cros.local/alchemist/internal/makechroot"
	"cros.local/alchemist/internal/mountsdk"
	"cros.local/alchemist/internal/tar"
)

// resolveOverlaySourcePath undoes a bazel-style symlink forest: when
// source is a directory entirely made of symlinks into a real tree, this
// returns the directory those symlinks actually point into, so the whole
// execroot need not be bind-mounted to resolve them.
func resolveOverlaySourcePath(source string) (string, error) {
	info, err := os.Lstat(source)
	if err != nil {
		return "", err
	}

	if info.Mode()&fs.ModeSymlink != 0 {
		return filepath.EvalSymlinks(source)
	}
	if !info.IsDir() {
		return source, nil
	}

	done := errors.New("done")
	resolved := source
	err = filepath.WalkDir(source, func(path string, entry fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if entry.IsDir() {
			return nil
		}
		target := path
		if entry.Type()&fs.ModeSymlink != 0 {
			target, err = os.Readlink(path)
			if err != nil {
				return err
			}
		}
		insidePath := strings.TrimPrefix(path, source)
		resolved = strings.TrimSuffix(target, insidePath)
		return done
	})
	if err != nil && err != done {
		return "", err
	}
	return resolved, nil
}

var flagScratchDir = &cli.StringFlag{
	Name:     "scratch-dir",
	Required: true,
	Usage:    "tmpfs-backed directory used to assemble the overlayfs mount; its merged/ subdirectory becomes the container root",
}

var flagChdir = &cli.StringFlag{
	Name:  "chdir",
	Value: "/",
}

var flagOverlay = &cli.StringSliceFlag{
	Name: "overlay",
	Usage: "[<inside>=]<squashfs file | directory | tar.* | durable tree>. " +
		"Mounts a layer at the given path inside the container, or at the " +
		"root if no inside path is given. May be repeated; earlier overlays " +
		"are the higher, more visible layers.",
	Required: true,
}

var flagBindMount = &cli.StringSliceFlag{
	Name:  "bind-mount",
	Usage: "<mountpoint>=<source>[:rw]. Bind-mounts source at mountpoint.",
}

var flagKeepHostMount = &cli.BoolFlag{
	Name:  "keep-host-mount",
	Usage: "bind-mount the pre-assembly root at /host inside the container",
}

var flagControlFifo = &cli.StringFlag{
	Name:  "control-fifo",
	Value: "/run/alchemist_control",
	Usage: "path, inside the container, of the FIFO used to request privileged operations from the entry point",
}

var flagOutput = &cli.StringFlag{
	Name:  "output",
	Usage: "if set, the container's upper directory is promoted here once the command exits successfully",
}

var flagDurableTree = &cli.BoolFlag{
	Name:  "durable-tree",
	Usage: "convert --output into a durable tree after promotion",
}

var app = &cli.App{
	Flags: []cli.Flag{
		flagScratchDir,
		flagChdir,
		flagOverlay,
		flagBindMount,
		flagKeepHostMount,
		flagControlFifo,
		flagOutput,
		flagDurableTree,
	},
	Before: func(c *cli.Context) error {
		if c.Args().Len() == 0 {
			return errors.New("positional arguments missing")
		}
		if _, err := makechroot.ParseOverlaySpecs(c.StringSlice(flagOverlay.Name)); err != nil {
			return err
		}
		if _, err := makechroot.ParseBindMountSpec(c.StringSlice(flagBindMount.Name)); err != nil {
			return err
		}
		return nil
	},
	Action: run,
}

// layerContribution is either a plain directory (dir != "") or a durable
// tree root (durableTree != "") waiting to be fed to a Settings in the
// right priority order.
type layerContribution struct {
	dir         string
	durableTree string
}

// resolveOverlayLayers turns one mountDir's overlays into the scratch
// directories (or durable tree roots) overlayfs should stack, mounting or
// extracting each source as its type demands.
func resolveOverlayLayers(overlays []makechroot.OverlayInfo, scratchDir string) ([]layerContribution, error) {
	var layers []layerContribution
	for i, overlay := range overlays {
		sourcePath, err := resolveOverlaySourcePath(overlay.ImagePath)
		if err != nil {
			return nil, err
		}

		overlayType, err := makechroot.DetectOverlayType(sourcePath)
		if err != nil {
			return nil, err
		}

		switch overlayType {
		case makechroot.OverlayDir:
			layers = append(layers, layerContribution{dir: sourcePath})
		case makechroot.OverlayDurableTree:
			layers = append(layers, layerContribution{durableTree: sourcePath})
		case makechroot.OverlaySquashfs:
			mountDir := filepath.Join(scratchDir, "squashfs", strconv.Itoa(i))
			if err := os.MkdirAll(mountDir, 0o755); err != nil {
				return nil, err
			}
			squashfusePath, err := exec.LookPath("squashfuse")
			if err != nil {
				return nil, fmt.Errorf("locating squashfuse: %w", err)
			}
			cmd := exec.Command(squashfusePath, sourcePath, mountDir)
			cmd.Stdout = os.Stdout
			cmd.Stderr = os.Stderr
			if err := cmd.Run(); err != nil {
				return nil, fmt.Errorf("mounting %s: %w", sourcePath, err)
			}
			layers = append(layers, layerContribution{dir: mountDir})
		case makechroot.OverlayTar:
			extractDir := filepath.Join(scratchDir, "tar", strconv.Itoa(i))
			if err := os.MkdirAll(extractDir, 0o755); err != nil {
				return nil, err
			}
			if err := tar.Extract(sourcePath, extractDir); err != nil {
				return nil, fmt.Errorf("extracting %s: %w", sourcePath, err)
			}
			layers = append(layers, layerContribution{dir: extractDir})
		default:
			return nil, fmt.Errorf("unknown overlay type %d for %s", overlayType, sourcePath)
		}
	}
	return layers, nil
}

// addLayersToSettings feeds layers into settings. OverlayInfo lists earlier
// overlays as higher priority, but Settings.AddLowerLayer treats later
// calls as higher priority, so layers are fed in reverse.
func addLayersToSettings(settings *mountsdk.Settings, layers []layerContribution) error {
	for i := len(layers) - 1; i >= 0; i-- {
		layer := layers[i]
		if layer.durableTree != "" {
			if err := settings.AddDurableTreeLayer(layer.durableTree); err != nil {
				return err
			}
			continue
		}
		settings.AddLowerLayer(layer.dir)
	}
	return nil
}

func run(c *cli.Context) error {
	if err := mountsdk.EnterMountNamespace(); err != nil {
		return fmt.Errorf("entering mount namespace: %w", err)
	}

	scratchDir, err := filepath.Abs(c.String(flagScratchDir.Name))
	if err != nil {
		return err
	}

	overlays, err := makechroot.ParseOverlaySpecs(c.StringSlice(flagOverlay.Name))
	if err != nil {
		return err
	}
	bindMounts, err := makechroot.ParseBindMountSpec(c.StringSlice(flagBindMount.Name))
	if err != nil {
		return err
	}

	overlaysByMountDir := map[string][]makechroot.OverlayInfo{}
	for _, overlay := range overlays {
		overlaysByMountDir[overlay.MountDir] = append(overlaysByMountDir[overlay.MountDir], overlay)
	}

	rootSettings := &mountsdk.Settings{
		MutableBaseDir:  filepath.Join(scratchDir, "root"),
		KeepHostMount:   c.Bool(flagKeepHostMount.Name),
		ControlFifoPath: c.String(flagControlFifo.Name),
		OwnsUpperDir:    c.Bool(flagDurableTree.Name),
	}
	rootLayers, err := resolveOverlayLayers(overlaysByMountDir[""], filepath.Join(scratchDir, "root-sources"))
	if err != nil {
		return err
	}
	if err := addLayersToSettings(rootSettings, rootLayers); err != nil {
		return err
	}
	for _, mount := range bindMounts {
		rootSettings.AddBindMount(mount)
	}

	root, err := rootSettings.Assemble()
	if err != nil {
		return fmt.Errorf("assembling container root: %w", err)
	}
	defer root.Close()

	// Subpath overlays (e.g. a board sysroot mounted below /) get their own
	// independent overlayfs stack, bind-mounted read-only into the root
	// tree once it exists.
	var subMountDirs []string
	for mountDir := range overlaysByMountDir {
		if mountDir != "" {
			subMountDirs = append(subMountDirs, mountDir)
		}
	}
	sort.Strings(subMountDirs)

	for i, mountDir := range subMountDirs {
		subSettings := &mountsdk.Settings{
			MutableBaseDir: filepath.Join(scratchDir, "sub", strconv.Itoa(i)),
		}
		layers, err := resolveOverlayLayers(overlaysByMountDir[mountDir], filepath.Join(scratchDir, "sub-sources", strconv.Itoa(i)))
		if err != nil {
			return err
		}
		if err := addLayersToSettings(subSettings, layers); err != nil {
			return err
		}
		sub, err := subSettings.Assemble()
		if err != nil {
			return fmt.Errorf("assembling overlay at %s: %w", mountDir, err)
		}
		defer sub.Close()

		target := filepath.Join(root.MergedDir(), mountDir)
		if err := os.MkdirAll(target, 0o755); err != nil {
			return err
		}
		if err := makechroot.BindReadOnly(sub.MergedDir(), target); err != nil {
			return err
		}
	}

	for _, envVarName := range []string{"RUNFILES_DIR", "RUNFILES_MANIFEST_FILE"} {
		os.Unsetenv(envVarName)
	}

	if err := mountsdk.InstallSeccompFilter(); err != nil {
		return err
	}

	args := c.Args().Slice()
	if err := root.Exec(context.Background(), c.String(flagChdir.Name), os.Environ(), args[0], args[1:]); err != nil {
		return err
	}

	if output := c.String(flagOutput.Name); output != "" {
		if err := root.Promote(output); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	// EnterMountNamespace must run before the runtime spawns any other OS
	// thread; locking here as early as possible narrows that window.
	runtime.LockOSThread()
}

func main() {
	cliutil.Exit(app.Run(os.Args))
}
