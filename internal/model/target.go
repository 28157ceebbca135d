// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines Target, a single cell of the build matrix.
package model

// Target is one (platform, architecture) pair to build.
type Target struct {
	Platform Platform
	Arch     Arch
}

// Label returns the human-readable "{platform}-{arch}" name of the target.
func (t Target) Label() string {
	return string(t.Platform) + "-" + string(t.Arch)
}

// String implements fmt.Stringer.
func (t Target) String() string {
	return t.Label()
}
