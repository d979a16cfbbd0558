// Copyright 2023 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package mountsdk

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"cros.local/alchemist/internal/cliutil"
	"cros.local/alchemist/internal/durabletree"
	"cros.local/alchemist/internal/fileutil"
	"cros.local/alchemist/internal/makechroot"
	"cros.local/alchemist/internal/processes"
	"golang.org/x/sys/unix"
)

// Settings collects the pieces needed to assemble one container's root
// file system: a stack of overlayfs lower layers, a set of bind mounts, and
// the scratch directory the writable upper layer and mount targets live
// under. Call AddLowerLayer/AddDurableTreeLayer/AddBindMount to populate it,
// then Assemble to mount everything.
type Settings struct {
	// MutableBaseDir is where the tmpfs-backed scratch tree (lower_compose/,
	// upper/, work/, merged/) is created.
	MutableBaseDir string
	// KeepHostMount bind-mounts the pre-assembly root at /host inside the
	// container instead of unmounting it, for debugging.
	KeepHostMount bool
	// ControlFifoPath, if set, is where the FIFO control channel is
	// created so an in-container process can request privileged
	// operations (currently just resetting the controlling terminal).
	ControlFifoPath string
	// OwnsUpperDir marks that this process is responsible for converting
	// its promoted output into a durable tree once the container exits.
	OwnsUpperDir bool

	lowerLayers  []string
	bindMounts   []makechroot.BindMount
	durableTrees []*durabletree.DurableTree
}

// AddLowerLayer appends a plain directory as a lower layer. Layers are
// listed in "later overrides former" order: a later AddLowerLayer call
// wins over an earlier one for any path they both provide, matching
// durabletree.DurableTree.Layers' convention.
func (s *Settings) AddLowerLayer(path string) {
	s.lowerLayers = append(s.lowerLayers, path)
}

// AddDurableTreeLayer expands the durable tree at rootDir and appends both
// of its constituent directories as lower layers, in the order
// DurableTree.Layers specifies (extras, then raw, so raw's xattrs win).
func (s *Settings) AddDurableTreeLayer(rootDir string) error {
	tree, err := durabletree.Expand(rootDir)
	if err != nil {
		return err
	}
	s.durableTrees = append(s.durableTrees, tree)
	s.lowerLayers = append(s.lowerLayers, tree.Layers()...)
	return nil
}

// AddBindMount registers a host path to be bind-mounted directly into the
// container, independent of the overlay stack.
func (s *Settings) AddBindMount(mount makechroot.BindMount) {
	s.bindMounts = append(s.bindMounts, mount)
}

// Mounted is an assembled, mounted container root, ready for Exec.
type Mounted struct {
	mergedDir    string
	upperDir     string
	stopControl  func()
	durableTrees []*durabletree.DurableTree
	ownsUpperDir bool
}

// Assemble mounts s's lower layers as one overlayfs, applies its bind
// mounts, mounts the essential pseudo file systems, and (if configured)
// starts the FIFO control channel. The returned Mounted's MergedDir is
// ready to chroot into.
func (s *Settings) Assemble() (*Mounted, error) {
	lowerCompose := filepath.Join(s.MutableBaseDir, "lower_compose")
	upperDir := filepath.Join(s.MutableBaseDir, "upper")
	workDir := filepath.Join(s.MutableBaseDir, "work")
	mergedDir := filepath.Join(s.MutableBaseDir, "merged")

	for _, dir := range []string{lowerCompose, upperDir, workDir, mergedDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	if err := unix.Mount("tmpfs", s.MutableBaseDir, "tmpfs", 0, ""); err != nil {
		return nil, fmt.Errorf("mounting tmpfs scratch dir: %w", err)
	}
	// Re-create the subdirectories the tmpfs mount just shadowed.
	for _, dir := range []string{lowerCompose, upperDir, workDir, mergedDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	if len(s.lowerLayers) == 0 {
		return nil, errors.New("no lower layers configured")
	}

	// Change into lowerCompose to keep the mount(2) option string short:
	// overlayfs's lowerdir option has a fixed maximum length, and absolute
	// bazel-out paths routinely blow past it.
	prevDir, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	if err := os.Chdir(lowerCompose); err != nil {
		return nil, err
	}
	defer os.Chdir(prevDir)

	// overlayfs wants the highest-priority layer first; our own layers are
	// listed lowest-priority first, so reverse them.
	reversed := make([]string, len(s.lowerLayers))
	for i, layer := range s.lowerLayers {
		reversed[len(s.lowerLayers)-1-i] = shortenRelative(lowerCompose, layer)
	}

	overlayOptions := fmt.Sprintf("upperdir=%s,workdir=%s,lowerdir=%s",
		shortenRelative(lowerCompose, upperDir),
		shortenRelative(lowerCompose, workDir),
		strings.Join(reversed, ":"))
	if err := unix.Mount("none", mergedDir, "overlay", 0, overlayOptions); err != nil {
		return nil, fmt.Errorf("mounting overlayfs: %w", err)
	}

	if err := os.Chdir(prevDir); err != nil {
		return nil, err
	}

	for _, name := range []string{"dev", "proc", "sys"} {
		if err := os.MkdirAll(filepath.Join(mergedDir, name), 0o755); err != nil {
			return nil, err
		}
	}
	if err := unix.Mount("/dev", filepath.Join(mergedDir, "dev"), "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
		return nil, fmt.Errorf("bind-mounting /dev: %w", err)
	}
	if err := unix.Mount("proc", filepath.Join(mergedDir, "proc"), "proc", 0, ""); err != nil {
		return nil, fmt.Errorf("mounting /proc: %w", err)
	}
	if err := unix.Mount("/sys", filepath.Join(mergedDir, "sys"), "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
		return nil, fmt.Errorf("bind-mounting /sys: %w", err)
	}

	if s.KeepHostMount {
		hostDir := filepath.Join(mergedDir, "host")
		if err := os.MkdirAll(hostDir, 0o755); err != nil {
			return nil, err
		}
		if err := unix.Mount("/", hostDir, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
			return nil, fmt.Errorf("bind-mounting /host: %w", err)
		}
	}

	sort.Slice(s.bindMounts, func(i, j int) bool { return s.bindMounts[i].MountPath < s.bindMounts[j].MountPath })
	for _, mount := range s.bindMounts {
		if err := mountBind(mergedDir, mount); err != nil {
			return nil, err
		}
	}

	var stopControl func()
	if s.ControlFifoPath != "" {
		stop, err := StartControlChannel(filepath.Join(mergedDir, strings.TrimPrefix(s.ControlFifoPath, "/")))
		if err != nil {
			return nil, fmt.Errorf("starting control channel: %w", err)
		}
		stopControl = stop
	}

	return &Mounted{
		mergedDir:    mergedDir,
		upperDir:     upperDir,
		stopControl:  stopControl,
		durableTrees: s.durableTrees,
		ownsUpperDir: s.OwnsUpperDir,
	}, nil
}

// shortenRelative returns path relative to base if that's shorter,
// otherwise path itself unchanged.
func shortenRelative(base, path string) string {
	rel, err := filepath.Rel(base, path)
	if err != nil || len(rel) >= len(path) {
		return path
	}
	return rel
}

func mountBind(mergedDir string, mount makechroot.BindMount) error {
	target := filepath.Join(mergedDir, mount.MountPath)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	if _, err := os.Stat(target); errors.Is(err, os.ErrNotExist) {
		srcInfo, err := os.Stat(mount.Source)
		if err != nil {
			return fmt.Errorf("stat %s: %w", mount.Source, err)
		}
		if srcInfo.IsDir() {
			if err := os.Mkdir(target, 0o755); err != nil {
				return fmt.Errorf("mkdir %s: %w", target, err)
			}
		} else if err := os.WriteFile(target, nil, 0o755); err != nil {
			return fmt.Errorf("touch %s: %w", target, err)
		}
	} else if err != nil {
		return fmt.Errorf("stat %s: %w", target, err)
	}

	if err := unix.Mount(mount.Source, target, "", unix.MS_BIND, ""); err != nil {
		return fmt.Errorf("bind-mounting %s: %w", mount.Source, err)
	}
	if !mount.RW {
		// MS_RDONLY is ignored on the initial bind mount, so remount.
		if err := unix.Mount("", target, "", unix.MS_REMOUNT|unix.MS_BIND|unix.MS_RDONLY, ""); err != nil {
			return fmt.Errorf("remounting %s read-only: %w", mount.Source, err)
		}
	}
	return nil
}

// MergedDir is the assembled container root.
func (m *Mounted) MergedDir() string { return m.mergedDir }

// UpperDir is the writable layer; its contents after Exec are the
// container's output.
func (m *Mounted) UpperDir() string { return m.upperDir }

// Exec chroots into the merged root, clears the environment in favor of
// env, and runs name/args. Signal policy: SIGINT is ignored (the foreground
// process group already gets it), SIGTERM is forwarded, and Exec returns
// once the child is reaped. Its error, if any, is a cliutil.ExitCode built
// from the child's exit status (following the 128+signal convention for a
// signal-killed child).
func (m *Mounted) Exec(ctx context.Context, chdir string, env []string, name string, args []string) error {
	if err := unix.Chroot(m.mergedDir); err != nil {
		return fmt.Errorf("chroot: %w", err)
	}
	if err := os.Chdir(chdir); err != nil {
		return fmt.Errorf("chdir %s: %w", chdir, err)
	}

	path, err := exec.LookPath(name)
	if err != nil {
		return fmt.Errorf("looking up %s inside container: %w", name, err)
	}

	cmd := exec.Command(path, args...)
	cmd.Env = env
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := processes.Run(ctx, cmd); err != nil {
		return err
	}
	if code, ok := processes.ExitCode(cmd.ProcessState); ok && code != 0 {
		return cliutil.ExitCode(code)
	}
	return nil
}

// Close tears down the control channel and unmounts any durable-tree
// extras tmpfs this Mounted expanded. The overlayfs and bind mounts
// themselves are torn down for free when the container's private mount
// namespace exits with the process.
func (m *Mounted) Close() error {
	if m.stopControl != nil {
		m.stopControl()
	}
	var firstErr error
	for _, tree := range m.durableTrees {
		if err := tree.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Promote atomically moves the container's upper directory into outDir,
// converting it into a durable tree afterwards if this Mounted was marked
// as owning the upper directory.
func (m *Mounted) Promote(outDir string) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return err
	}
	if err := fileutil.MoveDirContents(m.upperDir, outDir); err != nil {
		return fmt.Errorf("promoting container output: %w", err)
	}
	if m.ownsUpperDir {
		if err := durabletree.Convert(outDir); err != nil {
			return fmt.Errorf("converting output to a durable tree: %w", err)
		}
	}
	return nil
}
