// Copyright 2022 The ChromiumOS Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package binarypackage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cros.local/alchemist/internal/tar"
	"github.com/klauspost/compress/zstd"
)

// XpakSpec names one XPAK key to extract to an outside path. If Optional is
// set, a missing key writes an empty file instead of failing.
type XpakSpec struct {
	XpakHeader string
	TargetPath string
	Optional   bool
}

// ParseXpakSpecs parses specs of the form "<XPAK key>=[?]<outside path>".
func ParseXpakSpecs(specs []string) ([]XpakSpec, error) {
	var xpakSpecs []XpakSpec
	for _, spec := range specs {
		optional := false
		header, target, ok := strings.Cut(spec, "=?")
		if !ok {
			header, target, ok = strings.Cut(spec, "=")
			if !ok {
				return nil, fmt.Errorf("invalid xpak spec: %s", spec)
			}
		} else {
			optional = true
		}
		xpakSpecs = append(xpakSpecs, XpakSpec{
			XpakHeader: header,
			TargetPath: target,
			Optional:   optional,
		})
	}
	return xpakSpecs, nil
}

// ExtractXpakFiles writes each requested XPAK key's value to its target
// path.
func ExtractXpakFiles(bp *File, xpakSpecs []XpakSpec) error {
	if len(xpakSpecs) == 0 {
		return nil
	}

	xpak, err := bp.Xpak()
	if err != nil {
		return err
	}

	for _, spec := range xpakSpecs {
		value, ok := xpak[spec.XpakHeader]
		if !ok {
			if !spec.Optional {
				return fmt.Errorf("XPAK key %s not found in header", spec.XpakHeader)
			}
			value = nil
		}
		if err := os.WriteFile(spec.TargetPath, value, 0o666); err != nil {
			return err
		}
	}
	return nil
}

// OutputFileSpec names one file inside a package's tarball payload to
// extract to an outside path.
type OutputFileSpec struct {
	InsidePath string
	TargetPath string
}

// ParseOutputFileSpecs parses specs of the form "<inside path>=<outside path>".
func ParseOutputFileSpecs(specs []string) ([]OutputFileSpec, error) {
	var outputFileSpecs []OutputFileSpec
	for _, spec := range specs {
		inside, target, ok := strings.Cut(spec, "=")
		if !ok {
			return nil, fmt.Errorf("invalid output file spec: %s", spec)
		}
		if !filepath.IsAbs(inside) {
			return nil, fmt.Errorf("invalid output file spec: %s: %s must be absolute", spec, inside)
		}
		outputFileSpecs = append(outputFileSpecs, OutputFileSpec{InsidePath: inside, TargetPath: target})
	}
	return outputFileSpecs, nil
}

// ExtractOutFiles extracts specific files out of bp's tarball payload.
func ExtractOutFiles(bp *File, outputFileSpecs []OutputFileSpec) error {
	if len(outputFileSpecs) == 0 {
		return nil
	}

	fileMap := make(map[string]string, len(outputFileSpecs))
	for _, spec := range outputFileSpecs {
		// Tarball entries are relative paths prefixed with "./".
		fileMap["."+spec.InsidePath] = spec.TargetPath
	}

	tarball, err := bp.TarballReader()
	if err != nil {
		return err
	}
	defer tarball.Close()

	decoder, err := zstd.NewReader(tarball, zstd.WithDecoderConcurrency(0))
	if err != nil {
		return fmt.Errorf("creating zstd decoder: %w", err)
	}
	defer decoder.Close()

	return tar.ExtractFiles(decoder, fileMap)
}
