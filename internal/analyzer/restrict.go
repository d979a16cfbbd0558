// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package analyzer

import (
	"fmt"

	"cros.local/alchemist/internal/packages"
	"cros.local/alchemist/internal/standard/dependency"
)

// AnalyzeRestricts resolves pkg's RESTRICT metadata down to a flat,
// deduplicated list of effective restriction names (USE-conditional
// groups already elided against pkg's own USE selection).
func AnalyzeRestricts(pkg *packages.Details) ([]string, error) {
	tree, err := pkg.RestrictTree()
	if err != nil {
		return nil, fmt.Errorf("parsing RESTRICT: %w", err)
	}

	simplified := dependency.Simplify(tree, pkg.Uses())

	seen := make(map[string]bool)
	var out []string
	for _, tok := range dependency.Leaves(simplified) {
		if tok.Negate {
			continue
		}
		if seen[tok.Name] {
			continue
		}
		seen[tok.Name] = true
		out = append(out, tok.Name)
	}
	return out, nil
}
