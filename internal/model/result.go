// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines the records produced after the external build has run.
//
// Why keep failed results?
//
// A failed target does not stop the run. Its BuildResult carries the reason
// so the final report can list it, while the aggregator only ever looks at
// results with StatusSucceeded.
package model

import "time"

// Status is the outcome of one target's build.
type Status string

const (
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// BuildResult is the outcome of building one Target.
type BuildResult struct {
	Target Target
	Status Status

	// LibraryPath is the installed static library. Set only on success.
	LibraryPath string
	// IncludeDir is the installed header directory. Set only on success.
	IncludeDir string

	Reason   string
	Err      error
	TimedOut bool
	Duration time.Duration
}

// Succeeded reports whether the build produced a library.
func (r BuildResult) Succeeded() bool {
	return r.Status == StatusSucceeded
}

// Succeeded returns a successful result for t.
func Succeeded(t Target, libraryPath, includeDir string, d time.Duration) BuildResult {
	return BuildResult{
		Target:      t,
		Status:      StatusSucceeded,
		LibraryPath: libraryPath,
		IncludeDir:  includeDir,
		Duration:    d,
	}
}

// Failed returns a failed result for t, using err's message as the reason.
func Failed(t Target, err error, d time.Duration) BuildResult {
	r := BuildResult{Target: t, Status: StatusFailed, Err: err, Duration: d}
	if err != nil {
		r.Reason = err.Error()
	}
	return r
}

// PlatformArtifact is the merged universal library of one platform.
type PlatformArtifact struct {
	Platform      Platform
	LibraryPath   string
	HeaderDir     string
	Architectures []Arch
	// HeaderSource is the target whose headers were copied.
	HeaderSource Target
}
