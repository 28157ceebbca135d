// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines the closed set of Apple platforms unibuild knows about.
//
// Why a closed set?
//
// SDK discovery, the architecture table and the toolchain rules are all keyed
// by platform. Using one enumerated type for the key means a typo in
// configuration is rejected at load time instead of producing a target that
// can never resolve.
package model

import (
	"fmt"
	"strings"
)

// Platform is an Apple operating system family with its own SDK.
type Platform string

const (
	IOS     Platform = "iOS"
	MacOS   Platform = "macOS"
	TvOS    Platform = "tvOS"
	WatchOS Platform = "watchOS"
)

// AllPlatforms lists every known platform in the order builds are reported.
var AllPlatforms = []Platform{IOS, MacOS, TvOS, WatchOS}

// Arch is a CPU architecture name as understood by clang's -arch flag.
type Arch string

// ParsePlatform matches a platform name case-insensitively.
func ParsePlatform(s string) (Platform, error) {
	for _, p := range AllPlatforms {
		if strings.EqualFold(string(p), strings.TrimSpace(s)) {
			return p, nil
		}
	}
	return "", fmt.Errorf("unknown platform %q: must be one of %s", s, platformNames())
}

func platformNames() string {
	names := make([]string, len(AllPlatforms))
	for i, p := range AllPlatforms {
		names[i] = string(p)
	}
	return strings.Join(names, ", ")
}
