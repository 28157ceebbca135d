// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// Package model holds the domain types shared by every stage of a unibuild
// run: the discovered SDK versions, the (platform, architecture) build targets,
// their resolved toolchain configurations, the per-target build results and
// the merged per-platform artifacts.
//
// # Core Concepts
//
//   - SDKVersionSet: which platform SDKs the host has installed, and at which
//     version. A platform missing from the set is simply not built.
//
//   - Target: one (platform, architecture) pair. Its label, "iOS-arm64", names
//     its build directory and every log line about it.
//
//   - ToolchainConfig: everything the external configure/make needs to
//     cross-compile one Target. It is passed explicitly to the build stages and
//     never leaks into the process environment.
//
//   - BuildResult and PlatformArtifact: what the driver produced per Target,
//     and what the aggregator merged per platform.
//
// Why a separate model package?
//
// The resolver, driver, aggregator and report all speak about the same few
// records. Keeping them here, free of any process or filesystem logic, lets
// each stage be tested with plain values and keeps the import graph acyclic.
package model
