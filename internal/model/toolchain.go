// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines ToolchainConfig, the fully resolved cross-compilation
// settings for one Target.
//
// Why an explicit record?
//
// Shell build scripts usually communicate between steps by exporting CFLAGS,
// LDFLAGS and friends and letting the next command pick them up. Here the same
// values live in a struct that is passed to the build stages as an argument,
// and Environ renders it into a child-process environment only at the moment a
// command is started.
package model

import (
	"path/filepath"
	"strings"
)

// ToolchainConfig is everything the external build needs for one Target.
type ToolchainConfig struct {
	Target Target

	// SDKPlatform is the Xcode platform directory name, e.g. "iPhoneSimulator".
	SDKPlatform string
	// SDKRoot is the path passed to -isysroot.
	SDKRoot string
	// Host is the triple given to configure's --host.
	Host string

	CFlags  []string
	LDFlags []string

	MinVersionFlag string
	MinOSVersion   string

	// ToolchainBinDir is prepended to PATH for every build stage.
	ToolchainBinDir string
}

// Environ returns base extended with CFLAGS, LDFLAGS and PATH for this
// configuration. Existing entries for those keys in base are replaced.
func (c ToolchainConfig) Environ(base []string) []string {
	out := make([]string, 0, len(base)+3)
	var path string
	for _, kv := range base {
		key, value, _ := strings.Cut(kv, "=")
		switch key {
		case "CFLAGS", "LDFLAGS":
			continue
		case "PATH":
			path = value
			continue
		}
		out = append(out, kv)
	}

	if c.ToolchainBinDir != "" {
		sbin := filepath.Join(filepath.Dir(c.ToolchainBinDir), "sbin")
		prefix := c.ToolchainBinDir + string(filepath.ListSeparator) + sbin
		if path == "" {
			path = prefix
		} else {
			path = prefix + string(filepath.ListSeparator) + path
		}
	}

	out = append(out,
		"CFLAGS="+strings.Join(c.CFlags, " "),
		"LDFLAGS="+strings.Join(c.LDFlags, " "),
	)
	if path != "" {
		out = append(out, "PATH="+path)
	}
	return out
}
