// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package dependency

import "fmt"

// NondeterministicDeps is returned by Elide when a tree still contains an
// AnyOf with more than one alternative, an ExactlyOneOf that isn't
// pinned to exactly one child, or a non-empty AtMostOneOf: Portage
// cannot pick a single resolved dependency set in that case without more
// information (typically a REQUIRED_USE solution).
type NondeterministicDeps[L Leaf] struct {
	Node Node[L]
}

func (e *NondeterministicDeps[L]) Error() string {
	return fmt.Sprintf("non-deterministic dependencies: %s", e.Node.String())
}

// Elide reduces an already-Simplify'd tree (no remaining UseConditional
// nodes) to a flat list of leaves, failing if any residual grouping
// operator still has more than one valid resolution.
func Elide[L Leaf](t *Tree[L]) ([]*LeafNode[L], error) {
	return elideNode[L](t.expr)
}

func elideNode[L Leaf](n Node[L]) ([]*LeafNode[L], error) {
	switch v := n.(type) {
	case *LeafNode[L]:
		return []*LeafNode[L]{v}, nil
	case *AllOf[L]:
		return elideChildren(v.Children)
	case *AnyOf[L]:
		if len(v.Children) >= 2 {
			return nil, &NondeterministicDeps[L]{Node: v}
		}
		return elideChildren(v.Children)
	case *ExactlyOneOf[L]:
		if len(v.Children) != 1 {
			return nil, &NondeterministicDeps[L]{Node: v}
		}
		return elideChildren(v.Children)
	case *AtMostOneOf[L]:
		if len(v.Children) != 0 {
			return nil, &NondeterministicDeps[L]{Node: v}
		}
		return nil, nil
	case *UseConditional[L]:
		return elideNode[L](v.Child)
	default:
		return nil, fmt.Errorf("dependency: unknown node type %T", n)
	}
}

func elideChildren[L Leaf](children []Node[L]) ([]*LeafNode[L], error) {
	var out []*LeafNode[L]
	for _, c := range children {
		leaves, err := elideNode[L](c)
		if err != nil {
			return nil, err
		}
		out = append(out, leaves...)
	}
	return out, nil
}

// RemoveBlocks drops every leaf whose Blocks field is nonzero (package
// dependency blockers). An any-of group that contained one is replaced
// as a whole with a trivially-true empty AllOf; in an all-of group only
// the blocker itself is dropped. Reports an error if a block appears under an
// ExactlyOneOf or AtMostOneOf, since removing it there would change the
// group's cardinality semantics.
func RemoveBlocks[L Leaf](t *Tree[L]) (*Tree[L], error) {
	n, _, err := removeBlocksNode[L](t.expr)
	if err != nil {
		return nil, err
	}
	allOf, ok := n.(*AllOf[L])
	if !ok {
		allOf = NewAllOf([]Node[L]{n})
	}
	return NewTree(allOf), nil
}

func removeBlocksNode[L Leaf](n Node[L]) (Node[L], bool, error) {
	switch v := n.(type) {
	case *LeafNode[L]:
		if v.Blocks > 0 {
			return nil, true, nil
		}
		return v, false, nil
	case *AllOf[L]:
		children, _, err := removeBlocksChildren[L](v.Children)
		if err != nil {
			return nil, false, err
		}
		return NewAllOf(children), false, nil
	case *AnyOf[L]:
		children, removed, err := removeBlocksChildren[L](v.Children)
		if err != nil {
			return nil, false, err
		}
		if removed {
			return NewAllOf[L](nil), false, nil
		}
		return NewAnyOf(children), false, nil
	case *ExactlyOneOf[L]:
		children, removed, err := removeBlocksChildren[L](v.Children)
		if err != nil {
			return nil, false, err
		}
		if removed {
			return nil, false, fmt.Errorf("dependency: cannot remove blocks under ^^ ( )")
		}
		return NewExactlyOneOf(children), false, nil
	case *AtMostOneOf[L]:
		children, removed, err := removeBlocksChildren[L](v.Children)
		if err != nil {
			return nil, false, err
		}
		if removed {
			return nil, false, fmt.Errorf("dependency: cannot remove blocks under ?? ( )")
		}
		return NewAtMostOneOf(children), false, nil
	case *UseConditional[L]:
		child, _, err := removeBlocksNode[L](v.Child)
		if err != nil {
			return nil, false, err
		}
		allOf, ok := child.(*AllOf[L])
		if !ok {
			allOf = NewAllOf([]Node[L]{child})
		}
		return NewUseConditional(v.Name, v.Expect, allOf), false, nil
	default:
		return nil, false, fmt.Errorf("dependency: unknown node type %T", n)
	}
}

func removeBlocksChildren[L Leaf](children []Node[L]) (out []Node[L], removedAny bool, err error) {
	for _, c := range children {
		n, removed, err := removeBlocksNode[L](c)
		if err != nil {
			return nil, false, err
		}
		if removed {
			removedAny = true
			continue
		}
		out = append(out, n)
	}
	return out, removedAny, nil
}
