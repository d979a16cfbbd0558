// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package dependency

import (
	"errors"
	"strings"

	"cros.local/alchemist/internal/standard/dependency/internal/grammar"
)

// LeafCompiler turns one grammar token (the opaque "\S+" capture shared
// by every dialect) into a dialect's leaf node, e.g. parsing it as a
// package atom, a URI, a RESTRICT keyword, or a REQUIRED_USE flag
// reference.
type LeafCompiler[L Leaf] func(raw string) (*LeafNode[L], error)

// ParseTree parses s using the shared grammar skeleton and compiles its
// tokens into a Tree[L] using compile.
func ParseTree[L Leaf](s string, compile LeafCompiler[L]) (*Tree[L], error) {
	g, err := grammar.Parse(s)
	if err != nil {
		return nil, err
	}
	expr, err := compileAllOf(g, compile)
	if err != nil {
		return nil, err
	}
	return NewTree(expr), nil
}

func compileAllOf[L Leaf](g *grammar.AllOf, compile LeafCompiler[L]) (*AllOf[L], error) {
	var children []Node[L]
	for _, c := range g.Children {
		child, err := compileExpr(c, compile)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return NewAllOf(children), nil
}

func compileChildren[L Leaf](g []*grammar.Expr, compile LeafCompiler[L]) ([]Node[L], error) {
	var children []Node[L]
	for _, c := range g {
		child, err := compileExpr(c, compile)
		if err != nil {
			return nil, err
		}
		children = append(children, child)
	}
	return children, nil
}

func compileUseConditional[L Leaf](g *grammar.UseConditional, compile LeafCompiler[L]) (*UseConditional[L], error) {
	expect := !strings.HasPrefix(g.Condition, "!")
	name := strings.TrimSuffix(strings.TrimPrefix(g.Condition, "!"), "?")
	child, err := compileAllOf(g.Child, compile)
	if err != nil {
		return nil, err
	}
	return NewUseConditional(name, expect, child), nil
}

func compileExpr[L Leaf](g *grammar.Expr, compile LeafCompiler[L]) (Node[L], error) {
	switch {
	case g.AllOf != nil:
		return compileAllOf(g.AllOf, compile)
	case g.AnyOf != nil:
		children, err := compileChildren(g.AnyOf.Children, compile)
		if err != nil {
			return nil, err
		}
		return NewAnyOf(children), nil
	case g.ExactlyOneOf != nil:
		children, err := compileChildren(g.ExactlyOneOf.Children, compile)
		if err != nil {
			return nil, err
		}
		return NewExactlyOneOf(children), nil
	case g.AtMostOneOf != nil:
		children, err := compileChildren(g.AtMostOneOf.Children, compile)
		if err != nil {
			return nil, err
		}
		return NewAtMostOneOf(children), nil
	case g.UseConditional != nil:
		return compileUseConditional(g.UseConditional, compile)
	case g.Token != nil:
		return compile(g.Token.Raw)
	default:
		return nil, errors.New("dependency: empty expression node")
	}
}
