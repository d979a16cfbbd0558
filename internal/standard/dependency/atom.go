// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package dependency

import (
	"fmt"
	"strings"

	"cros.local/alchemist/internal/standard/naming"
	"cros.local/alchemist/internal/standard/version"
)

// TargetPackage is the minimal view of a resolved package an Atom is
// matched against.
type TargetPackage struct {
	Name     string
	Version  *version.Version
	MainSlot string
	SubSlot  string
	Uses     map[string]bool
}

type VersionOperator string

const (
	OpNone         VersionOperator = ""
	OpLessEqual    VersionOperator = "<="
	OpLess         VersionOperator = "<"
	OpExactEqual   VersionOperator = "="
	OpRoughEqual   VersionOperator = "~"
	OpGreaterEqual VersionOperator = ">="
	OpGreater      VersionOperator = ">"
)

var versionOperators = []VersionOperator{
	OpLessEqual,
	OpLess,
	OpExactEqual,
	OpRoughEqual,
	OpGreaterEqual,
	OpGreater,
}

// BlockLevel is the strength of a "!" / "!!" package-dependency block.
type BlockLevel int

const (
	BlockNone BlockLevel = iota
	BlockWeak            // "!", e.g. advisory, same-slot conflicts allowed
	BlockStrong          // "!!", hard conflict
)

// Atom is a single package-dependency specification, e.g.
// ">=app-misc/foo-1.2:0/2=[bar,!baz?]".
type Atom struct {
	name     string
	op       VersionOperator
	ver      *version.Version
	wildcard bool
	slotDep  string
	useDeps  []*UseDependency
}

func NewAtom(packageName string, op VersionOperator, ver *version.Version, wildcard bool, slotDep string, useDeps []*UseDependency) *Atom {
	return &Atom{name: packageName, op: op, ver: ver, wildcard: wildcard, slotDep: slotDep, useDeps: useDeps}
}

func NewSimpleAtom(packageName string) *Atom { return NewAtom(packageName, OpNone, nil, false, "", nil) }

func ParseAtom(atomStr string) (*Atom, error) {
	rest := atomStr

	var useDeps []*UseDependency
	if strings.HasSuffix(rest, "]") {
		v := strings.SplitN(strings.TrimSuffix(rest, "]"), "[", 2)
		if len(v) != 2 {
			return nil, fmt.Errorf("%s: invalid use dependencies", atomStr)
		}
		for _, u := range strings.Split(v[1], ",") {
			useDeps = append(useDeps, &UseDependency{raw: u})
		}
		rest = v[0]
	}

	slotDep := ""
	if v := strings.SplitN(rest, ":", 2); len(v) == 2 {
		slotDep = v[1]
		rest = v[0]
	}

	op, rest, err := trimVersionOperator(rest)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", atomStr, err)
	}

	var ver *version.Version
	wildcard := false
	if op != OpNone {
		if op == OpExactEqual && strings.HasSuffix(rest, "*") {
			rest = strings.TrimSuffix(rest, "*")
			wildcard = true
		}

		rest, ver, err = version.ExtractSuffix(rest)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", atomStr, err)
		}
	}

	if err := naming.CheckCategoryAndPackage(rest); err != nil {
		return nil, fmt.Errorf("%s: %w", atomStr, err)
	}

	return &Atom{name: rest, op: op, ver: ver, wildcard: wildcard, slotDep: slotDep, useDeps: useDeps}, nil
}

func trimVersionOperator(s string) (op VersionOperator, rest string, err error) {
	for _, op := range versionOperators {
		if strings.HasPrefix(s, string(op)) {
			return op, strings.TrimPrefix(s, string(op)), nil
		}
	}
	return OpNone, s, nil
}

func (a *Atom) PackageName() string              { return a.name }
func (a *Atom) PackageCategory() string          { return strings.Split(a.name, "/")[0] }
func (a *Atom) VersionOperator() VersionOperator { return a.op }
func (a *Atom) Version() *version.Version        { return a.ver }
func (a *Atom) Wildcard() bool                   { return a.wildcard }
func (a *Atom) SlotDep() string                  { return a.slotDep }
func (a *Atom) UseDeps() []*UseDependency         { return a.useDeps }

// RebuildOnSlotChange reports whether the atom used the ":=" sub-slot
// rebuild operator (PMS section 8.2.6.4), either bare (any slot, rebuild
// on sub-slot change) or qualified to a specific main slot ("0=").
func (a *Atom) RebuildOnSlotChange() bool { return strings.HasSuffix(a.slotDep, "=") }

// Match reports whether t satisfies this atom, ignoring any block marker
// (blocks are tracked separately by LeafNode.Blocks in the tree).
func (a *Atom) Match(t *TargetPackage) bool {
	if t.Name != a.name {
		return false
	}
	if a.slotDep != "" && a.slotDep != "*" && a.slotDep != "=" {
		slotParts := strings.SplitN(strings.TrimSuffix(a.slotDep, "="), "/", 2)
		if t.MainSlot != slotParts[0] {
			return false
		}
		if len(slotParts) == 2 && t.SubSlot != slotParts[1] {
			return false
		}
	}
	for _, ud := range a.useDeps {
		if !ud.Match(t.Uses) {
			return false
		}
	}
	switch a.op {
	case OpNone:
		return true
	case OpLess:
		return t.Version.Compare(a.ver) < 0
	case OpLessEqual:
		return t.Version.Compare(a.ver) <= 0
	case OpExactEqual:
		if a.wildcard {
			return t.Version.HasPrefix(a.ver)
		}
		return t.Version.Compare(a.ver) == 0
	case OpRoughEqual:
		return t.Version.DropRevision().Compare(a.ver) == 0
	case OpGreaterEqual:
		return t.Version.Compare(a.ver) >= 0
	case OpGreater:
		return t.Version.Compare(a.ver) > 0
	default:
		panic(fmt.Sprintf("unknown version operator %s", string(a.op)))
	}
}

func (a *Atom) String() string {
	s := string(a.op) + a.name
	if a.op != OpNone {
		s += "-" + a.ver.String()
		if a.wildcard {
			s += "*"
		}
	}
	if a.slotDep != "" {
		s += ":" + a.slotDep
	}
	if len(a.useDeps) > 0 {
		var substrings []string
		for _, useDep := range a.useDeps {
			substrings = append(substrings, useDep.String())
		}
		s += fmt.Sprintf("[%s]", strings.Join(substrings, ","))
	}
	return s
}

// UseDependency is one element of an atom's "[use,...]" clause.
type UseDependency struct {
	raw string
}

func (u *UseDependency) String() string { return u.raw }

// Match evaluates this use dependency against a target package's
// resolved USE selection. It supports the plain "flag"/"-flag" forms and
// the conditional "flag?"/"!flag?"/"flag=" /"!flag=" forms used to mirror
// the depending package's own USE state; the parent atom compiler
// resolves "=" dependencies against the depending package before calling
// Match, so by the time Match runs raw has already been reduced to a
// plain polarity check.
func (u *UseDependency) Match(uses map[string]bool) bool {
	raw := u.raw
	want := true
	if strings.HasPrefix(raw, "-") {
		want = false
		raw = strings.TrimPrefix(raw, "-")
	}
	raw = strings.TrimSuffix(strings.TrimSuffix(raw, "="), "?")
	raw = strings.TrimPrefix(raw, "!")
	return uses[raw] == want
}

// resolve binds a conditional use-dependency ("flag=", "!flag=",
// "flag?", "!flag?") against the depending package's own USE selection,
// per PMS section 8.2.6's use-dependency default rules. It returns nil
// when the dependency turns out to impose no constraint (an unmet
// "flag?"/"!flag?" condition), and otherwise returns a plain
// unconditional dependency ("flag" or "-flag").
func (u *UseDependency) resolve(sourceUses map[string]bool) *UseDependency {
	raw := u.raw
	negate := strings.HasPrefix(raw, "!")
	raw = strings.TrimPrefix(raw, "!")

	switch {
	case strings.HasSuffix(raw, "="):
		flag := strings.TrimSuffix(raw, "=")
		want := sourceUses[flag]
		if negate {
			want = !want
		}
		if want {
			return &UseDependency{raw: flag}
		}
		return &UseDependency{raw: "-" + flag}
	case strings.HasSuffix(raw, "?"):
		flag := strings.TrimSuffix(raw, "?")
		cond := sourceUses[flag]
		if negate {
			cond = !cond
		}
		if !cond {
			return nil
		}
		return &UseDependency{raw: flag}
	default:
		return u
	}
}

// ResolveUseDeps returns a copy of a with every conditional use
// dependency bound against sourceUses, ready to Match against a
// candidate target package without further context.
func (a *Atom) ResolveUseDeps(sourceUses map[string]bool) *Atom {
	if len(a.useDeps) == 0 {
		return a
	}
	var resolved []*UseDependency
	for _, ud := range a.useDeps {
		if r := ud.resolve(sourceUses); r != nil {
			resolved = append(resolved, r)
		}
	}
	return NewAtom(a.name, a.op, a.ver, a.wildcard, a.slotDep, resolved)
}
