// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package repository

import (
	"fmt"
	"path/filepath"
	"strings"

	"cros.local/alchemist/internal/standard/profile"
)

// RepoSet is an ordered stack of overlays, highest-priority last, as
// listed in the board's parent.repo_name or portage.conf configuration.
type RepoSet struct {
	ordered []*Repo
	byName  map[string]*Repo
}

// NewRepoSet parses every overlay under rootDirs, in the given order
// (lowest priority first, matching how profile parents and PORTDIR_OVERLAY
// list overlays).
func NewRepoSet(rootDirs []string) (*RepoSet, error) {
	rs := &RepoSet{byName: make(map[string]*Repo)}
	for _, rootDir := range rootDirs {
		repo, err := parseRepo(rs, rootDir)
		if err != nil {
			return nil, fmt.Errorf("parsing repo %s: %w", rootDir, err)
		}
		if _, ok := rs.byName[repo.Name()]; ok {
			return nil, fmt.Errorf("duplicate repo name %s", repo.Name())
		}
		rs.ordered = append(rs.ordered, repo)
		rs.byName[repo.Name()] = repo
	}
	return rs, nil
}

// Repos returns every overlay, in priority order (lowest first).
func (s *RepoSet) Repos() []*Repo { return s.ordered }

func (s *RepoSet) Repo(name string) (*Repo, bool) {
	repo, ok := s.byName[name]
	return repo, ok
}

// Profile resolves a "repo-name:profile/path" reference.
func (s *RepoSet) Profile(name string) (*profile.Profile, error) {
	segments := strings.SplitN(name, ":", 2)
	if len(segments) != 2 {
		return nil, fmt.Errorf("invalid profile reference %s: want repo:path", name)
	}
	repo, ok := s.Repo(segments[0])
	if !ok {
		return nil, fmt.Errorf("unknown repo %s referenced by profile %s", segments[0], name)
	}
	return repo.Profile(segments[1])
}

// ProfileByPath resolves an absolute filesystem path to a profile
// directory, by finding the repo whose profiles/ directory contains it.
func (s *RepoSet) ProfileByPath(path string) (*profile.Profile, error) {
	for _, repo := range s.ordered {
		profilesDir := filepath.Join(repo.RootDir(), "profiles") + string(filepath.Separator)
		if strings.HasPrefix(path+string(filepath.Separator), profilesDir) {
			relPath, err := filepath.Rel(profilesDir, path)
			if err != nil {
				return nil, err
			}
			return repo.Profile(relPath)
		}
	}
	return nil, fmt.Errorf("path %s does not belong to any known repo's profiles directory", path)
}

// EClassDirs returns every repo's eclass/ directory, in priority order,
// for use as the inherit() search path when evaluating ebuilds.
func (s *RepoSet) EClassDirs() []string {
	dirs := make([]string, 0, len(s.ordered))
	for _, repo := range s.ordered {
		dirs = append(dirs, filepath.Join(repo.RootDir(), "eclass"))
	}
	return dirs
}

// Packages fans out packageName ("cat/pkg") across every repo in
// priority order, returning every ebuild found. A higher-priority
// overlay does not mask a lower one's ebuilds here: masking is a
// resolver concern (package.mask), not a listing concern.
func (s *RepoSet) Packages(packageName string) ([]*Package, error) {
	var all []*Package
	for _, repo := range s.ordered {
		pkgs, err := repo.Packages(packageName)
		if err != nil {
			return nil, err
		}
		all = append(all, pkgs...)
	}
	return all, nil
}
