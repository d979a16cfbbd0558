// Copyright 2022 The ChromiumOS Authors.
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package packages

type Stability string

const (
	StabilityStable  Stability = "stable"
	StabilityTesting Stability = "testing"
	StabilityBroken  Stability = "broken"
)

// SelectByStability narrows pkgs (assumed to all be the same package at
// different versions, or candidate ebuilds for the same slot) to the
// most-stable non-empty tier: stable beats testing beats nothing:
// ~arch-keyworded candidates are never preferred over a stable one, and
// broken candidates are never returned at all.
func SelectByStability(pkgs []*Details) []*Details {
	if len(pkgs) == 0 {
		return nil
	}

	candidates := make(map[Stability][]*Details)
	for _, pkg := range pkgs {
		s := pkg.Stability()
		candidates[s] = append(candidates[s], pkg)
	}

	if stable := candidates[StabilityStable]; len(stable) > 0 {
		return stable
	}
	if testing := candidates[StabilityTesting]; len(testing) > 0 {
		return testing
	}
	return nil
}
