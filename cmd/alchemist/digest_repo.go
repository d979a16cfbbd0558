// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package main

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/urfave/cli/v2"
)

var flagDigestRepoOutput = &cli.StringFlag{
	Name:    "output",
	Aliases: []string{"o"},
	Usage:   "file to write the digest to; printed to stdout if unset",
}

var digestRepoCommand = &cli.Command{
	Name:  "digest-repo",
	Usage: "fingerprints a board's overlay tree so callers can tell whether generate-repo needs to rerun",
	Flags: []cli.Flag{flagDigestRepoOutput},
	Action: func(c *cli.Context) error {
		s, err := newSession(c)
		if err != nil {
			return err
		}

		digest, err := digestRepo(s)
		if err != nil {
			return err
		}

		if out := c.String(flagDigestRepoOutput.Name); out != "" {
			return os.WriteFile(out, []byte(digest+"\n"), 0o644)
		}
		fmt.Println(digest)
		return nil
	},
}

// repoFileStamp is one file's contribution to a repo digest: its path
// relative to the overlay root and its modification time. Content is
// deliberately not hashed; overlays are large and ebuilds rarely change
// without their mtime changing too, so this is a cheap proxy that is
// still exact for the case that matters, detecting whether anything in
// the tree moved since the last generate-repo run.
type repoFileStamp struct {
	overlay string
	relPath string
	modNano int64
}

// digestRepo computes a deterministic fingerprint over every overlay in
// the session's repo set by walking each tree and hashing the sorted
// (overlay, path, mtime) triples it finds.
func digestRepo(s *session) (string, error) {
	var stamps []repoFileStamp

	for _, repo := range s.repos.Repos() {
		root := repo.RootDir()
		err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			info, err := d.Info()
			if err != nil {
				return err
			}
			stamps = append(stamps, repoFileStamp{
				overlay: repo.Name(),
				relPath: rel,
				modNano: info.ModTime().UnixNano(),
			})
			return nil
		})
		if err != nil {
			return "", fmt.Errorf("walking %s: %w", root, err)
		}
	}

	sort.Slice(stamps, func(i, j int) bool {
		if stamps[i].overlay != stamps[j].overlay {
			return stamps[i].overlay < stamps[j].overlay
		}
		return stamps[i].relPath < stamps[j].relPath
	})

	h := sha256.New()
	for _, st := range stamps {
		fmt.Fprintf(h, "%s\x00%s\x00%d\n", st.overlay, st.relPath, st.modNano)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
