// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package dependency

import (
	"regexp"
	"strings"
)

// PackageTree is the tree shape of DEPEND/RDEPEND/BDEPEND/PDEPEND/IDEPEND
// strings: a tree of package atoms, each optionally blocked with "!" or
// "!!".
type PackageTree = Tree[*Atom]

// ParsePackage parses a package-dependency string (DEPEND and friends).
func ParsePackage(s string) (*PackageTree, error) {
	return ParseTree(s, func(raw string) (*LeafNode[*Atom], error) {
		blocks := BlockNone
		rest := raw
		for strings.HasPrefix(rest, "!") {
			rest = strings.TrimPrefix(rest, "!")
			if blocks == BlockNone {
				blocks = BlockWeak
			} else {
				blocks = BlockStrong
			}
		}
		atom, err := ParseAtom(rest)
		if err != nil {
			return nil, err
		}
		return &LeafNode[*Atom]{Value: atom, Blocks: int(blocks)}, nil
	})
}

// URI is a SRC_URI leaf: an optional fetch URL plus the local filename it
// should be saved under (PMS section 8.3).
type URI struct {
	URI    string
	Rename string // "" unless "uri -> filename" was used
}

func (u *URI) String() string {
	if u.Rename == "" {
		return u.URI
	}
	return u.URI + " -> " + u.Rename
}

// Filename returns the local distfile name for this URI.
func (u *URI) Filename() string {
	if u.Rename != "" {
		return u.Rename
	}
	i := strings.LastIndex(u.URI, "/")
	return u.URI[i+1:]
}

// URITree is the tree shape of SRC_URI strings.
type URITree = Tree[*URI]

var uriArrowRe = regexp.MustCompile(`(\S+)\s+->\s+(\S+)`)

// ParseURI parses a SRC_URI string. "uri -> filename" is collapsed to a
// single arrow-joined token before the shared grammar tokenizes on
// whitespace, since the grammar's bare-token pattern is otherwise
// whitespace-delimited and would split the two sides of the arrow into
// separate leaves.
func ParseURI(s string) (*URITree, error) {
	joined := uriArrowRe.ReplaceAllString(s, "$1"+uriArrowSep+"$2")
	return ParseTree(joined, func(raw string) (*LeafNode[*URI], error) {
		if i := strings.Index(raw, uriArrowSep); i >= 0 {
			return &LeafNode[*URI]{Value: &URI{URI: raw[:i], Rename: raw[i+len(uriArrowSep):]}}, nil
		}
		return &LeafNode[*URI]{Value: &URI{URI: raw}}, nil
	})
}

const uriArrowSep = "\x00->\x00"

// RestrictToken is a single RESTRICT keyword, e.g. "test" or "!bindist".
type RestrictToken struct {
	Name   string
	Negate bool
}

func (r *RestrictToken) String() string {
	if r.Negate {
		return "!" + r.Name
	}
	return r.Name
}

// RestrictTree is the tree shape of RESTRICT strings.
type RestrictTree = Tree[*RestrictToken]

func ParseRestrict(s string) (*RestrictTree, error) {
	return ParseTree(s, func(raw string) (*LeafNode[*RestrictToken], error) {
		negate := strings.HasPrefix(raw, "!")
		return &LeafNode[*RestrictToken]{Value: &RestrictToken{Name: strings.TrimPrefix(raw, "!"), Negate: negate}}, nil
	})
}

// UseFlagRef is a REQUIRED_USE leaf: a bare reference to a USE flag,
// optionally negated, that must be enabled/disabled per the surrounding
// group operator.
type UseFlagRef struct {
	Name   string
	Negate bool
}

func (u *UseFlagRef) String() string {
	if u.Negate {
		return "!" + u.Name
	}
	return u.Name
}

// RequiredUseTree is the tree shape of REQUIRED_USE strings (PMS section
// 8.2).
type RequiredUseTree = Tree[*UseFlagRef]

func ParseRequiredUse(s string) (*RequiredUseTree, error) {
	return ParseTree(s, func(raw string) (*LeafNode[*UseFlagRef], error) {
		negate := strings.HasPrefix(raw, "!")
		return &LeafNode[*UseFlagRef]{Value: &UseFlagRef{Name: strings.TrimPrefix(raw, "!"), Negate: negate}}, nil
	})
}

func evalRequiredUse(n Node[*UseFlagRef], uses UseMap) bool {
	switch v := n.(type) {
	case *LeafNode[*UseFlagRef]:
		return uses[v.Value.Name] != v.Value.Negate
	case *AllOf[*UseFlagRef]:
		for _, c := range v.Children {
			if !evalRequiredUse(c, uses) {
				return false
			}
		}
		return true
	case *AnyOf[*UseFlagRef]:
		for _, c := range v.Children {
			if evalRequiredUse(c, uses) {
				return true
			}
		}
		return len(v.Children) == 0
	case *ExactlyOneOf[*UseFlagRef]:
		n := 0
		for _, c := range v.Children {
			if evalRequiredUse(c, uses) {
				n++
			}
		}
		return n == 1
	case *AtMostOneOf[*UseFlagRef]:
		n := 0
		for _, c := range v.Children {
			if evalRequiredUse(c, uses) {
				n++
			}
		}
		return n <= 1
	case *UseConditional[*UseFlagRef]:
		if uses[v.Name] != v.Expect {
			return true
		}
		return evalRequiredUse(v.Child, uses)
	default:
		return false
	}
}

// SatisfiedBy reports whether uses satisfies req.
func SatisfiedBy(req *RequiredUseTree, uses UseMap) bool {
	return evalRequiredUse(req.expr, uses)
}
