// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package analyzer

import (
	"fmt"

	"cros.local/alchemist/internal/packages"
	"cros.local/alchemist/internal/standard/dependency"
)

// ValidateRequiredUse reports whether pkg's own USE selection satisfies
// its REQUIRED_USE constraint (PMS section 8.2). A package whose
// REQUIRED_USE is violated is not buildable with that USE selection.
func ValidateRequiredUse(pkg *packages.Details) (bool, error) {
	tree, err := pkg.RequiredUseTree()
	if err != nil {
		return false, fmt.Errorf("parsing REQUIRED_USE: %w", err)
	}
	return dependency.SatisfiedBy(tree, dependency.UseMap(pkg.Uses())), nil
}
