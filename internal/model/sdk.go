// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines SDKVersionSet, the result of SDK discovery.
//
// Why immutable?
//
// The set is populated once at startup and then read by the enumerator and
// the resolver, possibly from several build workers at once. Copying on
// construction and exposing only accessors means no stage can change what
// another stage already decided from.
package model

import (
	"fmt"
	"strings"
)

// SDKVersionSet maps each installed platform to its SDK version.
type SDKVersionSet struct {
	versions map[Platform]string
}

// NewSDKVersionSet copies versions into a new set. Empty versions are dropped.
func NewSDKVersionSet(versions map[Platform]string) SDKVersionSet {
	copied := make(map[Platform]string, len(versions))
	for p, v := range versions {
		if v == "" {
			continue
		}
		copied[p] = v
	}
	return SDKVersionSet{versions: copied}
}

// Version returns the SDK version for p and whether it is installed.
func (s SDKVersionSet) Version(p Platform) (string, bool) {
	v, ok := s.versions[p]
	return v, ok
}

// Has reports whether an SDK for p is installed.
func (s SDKVersionSet) Has(p Platform) bool {
	_, ok := s.versions[p]
	return ok
}

// Len returns the number of installed platforms.
func (s SDKVersionSet) Len() int {
	return len(s.versions)
}

// Platforms returns the installed platforms in AllPlatforms order.
func (s SDKVersionSet) Platforms() []Platform {
	var out []Platform
	for _, p := range AllPlatforms {
		if s.Has(p) {
			out = append(out, p)
		}
	}
	return out
}

// String renders the set as "iOS=14.0 macOS=11.1".
func (s SDKVersionSet) String() string {
	parts := make([]string, 0, len(s.versions))
	for _, p := range s.Platforms() {
		parts = append(parts, fmt.Sprintf("%s=%s", p, s.versions[p]))
	}
	return strings.Join(parts, " ")
}
