// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package grammar implements the one recursive-descent skeleton shared by
// Portage's package-dependency, SRC_URI, RESTRICT, and REQUIRED_USE
// grammars. All four are "( group )", "|| ( group )", "^^ ( group )",
// "?? ( group )", "use? ( group )" and a bare token, differing only in
// what the bare token means; this package treats the token as opaque text
// and lets each dialect in the parent package compile it into its own
// leaf type.
package grammar

import (
	"github.com/alecthomas/participle/v2"
	"github.com/alecthomas/participle/v2/lexer"
)

var lex = lexer.MustSimple([]lexer.SimpleRule{
	{Name: "whitespace", Pattern: `\s+`},
	{Name: "Parentheses", Pattern: `[()]`},
	{Name: "Operators", Pattern: `\|\||\^\^|\?\?`},
	{Name: "Condition", Pattern: `!?[A-Za-z0-9][A-Za-z0-9+_@-]*\?`},
	{Name: "Token", Pattern: `\S+`},
})

var parser = participle.MustBuild[AllOf](participle.Lexer(lex))

// Parse parses s into the dialect-agnostic grammar tree. Dialect-specific
// compilers turn each Token leaf into the leaf type they need.
func Parse(s string) (*AllOf, error) {
	return parser.ParseString("", s)
}

type Expr struct {
	AllOf          *AllOf          `parser:"'(' @@ ')'"`
	AnyOf          *AnyOf          `parser:"| '||' '(' @@ ')'"`
	ExactlyOneOf   *ExactlyOneOf   `parser:"| '^^' '(' @@ ')'"`
	AtMostOneOf    *AtMostOneOf    `parser:"| '??' '(' @@ ')'"`
	UseConditional *UseConditional `parser:"| @@"`
	Token          *Token          `parser:"| @@"`
}

type AllOf struct {
	Children []*Expr `parser:"@@*"`
}

type AnyOf struct {
	Children []*Expr `parser:"@@*"`
}

type ExactlyOneOf struct {
	Children []*Expr `parser:"@@*"`
}

type AtMostOneOf struct {
	Children []*Expr `parser:"@@*"`
}

type UseConditional struct {
	Condition string `parser:"@Condition"`
	Child     *AllOf `parser:"'(' @@ ')'"`
}

type Token struct {
	Raw string `parser:"@Token"`
}
