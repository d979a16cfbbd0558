// Copyright 2023 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Command drive_binary_package runs the pkg_setup, pkg_preinst, and
// pkg_postinst phase hooks a VDB entry's environment.raw may define as
// plain bash functions. Each invocation is a separate process, so any
// variables the hooks assign are written back to environment.raw before
// exit; a later invocation driving the next phase picks them up from
// there.
package main

import (
	"bytes"
	"compress/bzip2"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"

	"github.com/alessio/shellescape"
	"github.com/urfave/cli/v2"
	"golang.org/x/sys/unix"
	"mvdan.cc/sh/v3/expand"
	"mvdan.cc/sh/v3/interp"
	"mvdan.cc/sh/v3/syntax"

	"cros.local/alchemist/internal/cliutil"
	"cros.local/alchemist/internal/standard/bashutil"
	"cros.local/alchemist/internal/vdb"
)

var flagRoot = &cli.StringFlag{
	Name:     "root",
	Aliases:  []string{"r"},
	Required: true,
	Usage:    "target root the package is or will be installed into",
}

var flagImage = &cli.StringFlag{
	Name:     "image",
	Aliases:  []string{"d"},
	Required: true,
	Usage:    "directory receiving this invocation's installed files",
}

var flagTmp = &cli.StringFlag{
	Name:     "tmp",
	Aliases:  []string{"t"},
	Required: true,
	Usage:    "scratch directory the hooks see as T",
}

var flagCPF = &cli.StringFlag{
	Name:     "cpf",
	Aliases:  []string{"p"},
	Required: true,
	Usage:    "category/package-version whose VDB entry defines the hooks",
}

var app = &cli.App{
	Flags:     []cli.Flag{flagRoot, flagImage, flagTmp, flagCPF},
	ArgsUsage: "PHASE...",
	Action: func(c *cli.Context) error {
		phases := c.Args().Slice()
		if len(phases) == 0 {
			return fmt.Errorf("no phases given")
		}
		for _, phase := range phases {
			if !validPhases[phase] {
				return fmt.Errorf("unknown phase %q", phase)
			}
		}

		ctx, cancel := signal.NotifyContext(c.Context, unix.SIGINT, unix.SIGTERM)
		defer cancel()

		return drivePhases(
			ctx,
			c.String(flagRoot.Name),
			c.String(flagImage.Name),
			c.String(flagTmp.Name),
			c.String(flagCPF.Name),
			phases,
		)
	},
}

var validPhases = map[string]bool{
	"setup":    true,
	"preinst":  true,
	"postinst": true,
}

func drivePhases(ctx context.Context, root, image, tmp, cpf string, phases []string) error {
	vdbDir := vdb.Dir(root, cpf)

	source, err := readEnvironment(vdbDir)
	if err != nil {
		return fmt.Errorf("reading environment: %w", err)
	}

	file, err := syntax.NewParser().Parse(strings.NewReader(source), "environment.raw")
	if err != nil {
		return fmt.Errorf("parsing environment.raw: %w", err)
	}

	env := bashutil.Environ{}
	for _, kv := range os.Environ() {
		if name, value, ok := strings.Cut(kv, "="); ok {
			env[name] = value
		}
	}
	env["ROOT"] = root
	env["D"] = image
	env["T"] = tmp

	runner, err := interp.New(interp.Env(env), interp.StdIO(os.Stdin, os.Stdout, os.Stderr))
	if err != nil {
		return err
	}
	if err := runner.Run(ctx, file); err != nil {
		return fmt.Errorf("loading environment.raw: %w", err)
	}

	for _, phase := range phases {
		name := "pkg_" + phase
		if _, ok := runner.Funcs[name]; !ok {
			continue
		}
		call, err := syntax.NewParser().Parse(strings.NewReader(name+"\n"), name)
		if err != nil {
			return err
		}
		if err := runner.Run(ctx, call); err != nil {
			return fmt.Errorf("running %s: %w", name, err)
		}
	}

	return writeEnvironment(vdbDir, file, runner.Vars)
}

// readEnvironment returns a VDB entry's saved build environment, preferring
// the uncompressed environment.raw some callers leave behind across phase
// invocations over the environment.bz2 a freshly unpacked binary package
// carries.
func readEnvironment(vdbDir string) (string, error) {
	if data, err := os.ReadFile(filepath.Join(vdbDir, "environment.raw")); err == nil {
		return string(data), nil
	} else if !os.IsNotExist(err) {
		return "", err
	}

	f, err := os.Open(filepath.Join(vdbDir, "environment.bz2"))
	if err != nil {
		return "", err
	}
	defer f.Close()

	data, err := io.ReadAll(bzip2.NewReader(f))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// writeEnvironment persists vars as environment.raw: variable assignments
// reflecting whatever the phase hooks that just ran changed, followed by
// the function declarations from the original source verbatim. ROOT, D,
// and T are excluded since every invocation is given fresh ones on the
// command line.
func writeEnvironment(vdbDir string, original *syntax.File, vars map[string]expand.Variable) error {
	excluded := map[string]bool{"ROOT": true, "D": true, "T": true}

	names := make([]string, 0, len(vars))
	for name, v := range vars {
		if excluded[name] || v.Kind != expand.String {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	for _, name := range names {
		fmt.Fprintf(&buf, "%s=%s\n", name, shellescape.Quote(vars[name].Str))
	}

	printer := syntax.NewPrinter()
	for _, stmt := range original.Stmts {
		if _, ok := stmt.Cmd.(*syntax.FuncDecl); !ok {
			continue
		}
		if err := printer.Print(&buf, stmt); err != nil {
			return err
		}
		buf.WriteByte('\n')
	}

	return os.WriteFile(filepath.Join(vdbDir, "environment.raw"), buf.Bytes(), 0o644)
}

func main() {
	cliutil.Exit(app.Run(os.Args))
}
