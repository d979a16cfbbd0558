// Copyright 2023 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package binarypackage

import (
	"bytes"
	"fmt"
	"io"
	"os/exec"
	"sort"

	"github.com/alessio/shellescape"
)

const (
	eapi = "7"
	// portageFeatures mirrors the FEATURES an existing hermetic binary
	// package's environment.bz2 carries; most of these are no-ops for a
	// package that was never actually built by Portage; they're present so
	// tools reading the binpkg back don't find the field unexpectedly
	// empty.
	portageFeatures = "assume-digests binpkg-hermetic binpkg-logs clean-logs distlocks " +
		"fakeroot fixlafiles force-mirror nodoc noinfo noman parallel-install " +
		"protect-owned sfperms userfetch userpriv usersync xattr"
)

// PackageMetadata names the package-identity fields needed to synthesize a
// binary package's required XPAK keys.
type PackageMetadata struct {
	Category    string
	PackageName string
	Version     string // e.g. "1.0.0-r1"
	Slot        string
	Keywords    string // defaults to "*" if empty
}

// buildEnvironmentBz2 bzip2-compresses a sequence of `declare -x K=V` lines
// describing env, Bash's own format for a package's saved build
// environment. The standard library's compress/bzip2 package is read-only,
// so this shells out to the system bzip2 binary, the same way binary
// package tarballs are produced by shelling out to tar.
func buildEnvironmentBz2(env map[string]string) ([]byte, error) {
	names := make([]string, 0, len(env))
	for name := range env {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	for _, name := range names {
		fmt.Fprintf(&buf, "declare -x %s=%s\n", shellescape.Quote(name), shellescape.Quote(env[name]))
	}

	cmd := exec.Command("bzip2", "--best", "--stdout")
	cmd.Stdin = &buf
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("compressing environment: %w", err)
	}
	return out.Bytes(), nil
}

// GenerateTBZ2 synthesizes a new binary package from a tarball payload and
// package identity, writing the result to w. It fills in the XPAK keys a
// freshly-built binpkg is required to carry (CATEGORY, PF, SLOT, EAPI,
// FEATURES, KEYWORDS, environment.bz2), plus any extra keys the caller
// supplies in extraXpak.
func GenerateTBZ2(w io.Writer, tarball io.Reader, meta PackageMetadata, extraXpak XPAK) error {
	keywords := meta.Keywords
	if keywords == "" {
		keywords = "*"
	}
	pf := meta.PackageName + "-" + meta.Version

	envBz2, err := buildEnvironmentBz2(map[string]string{
		"CATEGORY": meta.Category,
		"EAPI":     eapi,
		"FEATURES": portageFeatures,
		"KEYWORDS": keywords,
		"PF":       pf,
		"SLOT":     meta.Slot,
	})
	if err != nil {
		return err
	}

	xpak := make(XPAK, len(extraXpak)+6)
	for k, v := range extraXpak {
		xpak[k] = v
	}
	xpak["CATEGORY"] = []byte(meta.Category + "\n")
	xpak["EAPI"] = []byte(eapi + "\n")
	xpak["FEATURES"] = []byte(portageFeatures + "\n")
	xpak["KEYWORDS"] = []byte(keywords + "\n")
	xpak["PF"] = []byte(pf + "\n")
	xpak["SLOT"] = []byte(meta.Slot + "\n")
	xpak["environment.bz2"] = envBz2

	return WriteTBZ2(w, tarball, xpak)
}
