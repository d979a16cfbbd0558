// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package makevars implements evaluation of the bash-variable-assignment
// files used throughout the Portage config cascade: profile
// make.defaults, /etc/portage/make.conf, and ebuild-adjacent "set -o
// posix; set" dumps.
package makevars

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/alessio/shellescape"
)

// Vars is an ordered-by-name set of shell variable assignments.
type Vars map[string]string

func (v Vars) Copy() Vars {
	u := make(Vars, len(v))
	for key, value := range v {
		u[key] = value
	}
	return u
}

// CopyNoIncrementalVars copies v, dropping incremental variables (USE and
// friends) since those are rebuilt from scratch by each cascade layer
// rather than inherited verbatim.
func (v Vars) CopyNoIncrementalVars() Vars {
	u := make(Vars)
	for key, value := range v {
		if isIncrementalVar(key) {
			continue
		}
		u[key] = value
	}
	return u
}

func (v Vars) Environ() []string {
	names := make([]string, 0, len(v))
	for name := range v {
		names = append(names, name)
	}
	sort.Strings(names)

	env := make([]string, 0, len(v))
	for _, name := range names {
		env = append(env, fmt.Sprintf("%s=%s", name, v[name]))
	}
	return env
}

// Dump writes v as a sequence of shell-quoted "NAME=value" lines suitable
// for an environment.bz2-style dump.
func (v Vars) Dump(w io.Writer) {
	names := make([]string, 0, len(v))
	for name := range v {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		fmt.Fprintf(w, "%s=%s\n", shellescape.Quote(name), shellescape.Quote(v[name]))
	}
}

func (v Vars) GetAsList(key string) []string {
	return strings.Fields(v[key])
}

func (v Vars) GetAsSet(key string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, e := range v.GetAsList(key) {
		set[e] = struct{}{}
	}
	return set
}

// Merge applies nv on top of v in place, appending to incremental
// variables instead of overwriting them (PMS section 5.3).
func (v Vars) Merge(nv Vars) {
	for key, newValue := range nv {
		if isIncrementalVar(key) {
			v[key] = strings.TrimSpace(v[key] + " " + newValue)
		} else {
			v[key] = newValue
		}
	}
}

func Merge(varsList ...Vars) Vars {
	merged := make(Vars)
	for _, vars := range varsList {
		merged.Merge(vars)
	}
	return merged
}

// Finalize merges varsList in cascade order and resolves every
// incremental variable's accumulated "-token"/"-*" edits down to its
// final token set.
func Finalize(varsList []Vars) Vars {
	merged := Merge(varsList...)
	for name := range merged {
		if isIncrementalVar(name) {
			merged[name] = FinalizeIncrementalVar(merged[name])
		}
	}
	return merged
}

var incrementalVarNames = map[string]struct{}{
	"USE":                   {},
	"USE_EXPAND":            {},
	"USE_EXPAND_HIDDEN":     {},
	"CONFIG_PROTECT":        {},
	"CONFIG_PROTECT_MASK":   {},
	"IUSE_IMPLICIT":         {},
	"USE_EXPAND_IMPLICIT":   {},
	"USE_EXPAND_UNPREFIXED": {},
	"ENV_UNSET":             {},
	"ACCEPT_KEYWORDS":       {},
	"ACCEPT_LICENSE":        {},
}

func isIncrementalVar(name string) bool {
	if _, ok := incrementalVarNames[name]; ok {
		return true
	}
	return strings.HasPrefix(name, "USE_EXPAND_VALUES_")
}

// FinalizeIncrementalVar resolves a space-joined incremental variable's
// "-token" removals and "-*" resets into its final token set, sorted for
// determinism.
func FinalizeIncrementalVar(value string) string {
	tokenSet := make(map[string]struct{})

	for _, token := range strings.Fields(value) {
		if token == "-*" {
			tokenSet = make(map[string]struct{})
			continue
		}
		if strings.HasPrefix(token, "-") {
			delete(tokenSet, token[1:])
			continue
		}
		tokenSet[token] = struct{}{}
	}

	tokens := make([]string, 0, len(tokenSet))
	for token := range tokenSet {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}
