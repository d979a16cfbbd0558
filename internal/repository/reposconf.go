// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package repository

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// reposConfEntry is one [name] section of a repos.conf file.
type reposConfEntry struct {
	name     string
	location string
	priority int
}

// LoadFromReposConf builds a RepoSet from the repos.conf files Portage
// itself reads to discover overlays: either the single file, or every
// *.conf file under the directory, at rootDir/etc/portage/repos.conf.
// Each is an INI document with one [reponame] section per overlay
// carrying a location key and an optional priority key (default 0,
// lowest loads first, matching how profile parents and PORTDIR_OVERLAY
// list overlays).
func LoadFromReposConf(rootDir string) (*RepoSet, error) {
	path := filepath.Join(rootDir, "etc/portage/repos.conf")

	entries, err := readReposConf(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	sort.SliceStable(entries, func(i, j int) bool { return entries[i].priority < entries[j].priority })

	rootDirs := make([]string, len(entries))
	for i, e := range entries {
		rootDirs[i] = e.location
	}
	return NewRepoSet(rootDirs)
}

func readReposConf(path string) ([]reposConfEntry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	var files []string
	if info.IsDir() {
		es, err := os.ReadDir(path)
		if err != nil {
			return nil, err
		}
		for _, e := range es {
			if !e.IsDir() && strings.HasSuffix(e.Name(), ".conf") {
				files = append(files, filepath.Join(path, e.Name()))
			}
		}
		sort.Strings(files)
	} else {
		files = []string{path}
	}

	var entries []reposConfEntry
	for _, file := range files {
		parsed, err := parseReposConfFile(file)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
		entries = append(entries, parsed...)
	}
	return entries, nil
}

func parseReposConfFile(path string) ([]reposConfEntry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var entries []reposConfEntry
	var cur *reposConfEntry

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			if cur != nil {
				entries = append(entries, *cur)
			}
			cur = &reposConfEntry{name: strings.TrimSuffix(strings.TrimPrefix(line, "["), "]")}
			continue
		}
		if cur == nil {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		switch key {
		case "location":
			cur.location = value
		case "priority":
			if n, err := strconv.Atoi(value); err == nil {
				cur.priority = n
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	if cur != nil {
		entries = append(entries, *cur)
	}
	return entries, nil
}
