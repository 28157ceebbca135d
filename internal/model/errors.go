// SPDX-License-Identifier: MIT
// Copyright (c) 2025 Vladyslav Kazantsev
//
// This file defines the error taxonomy of a build run.
//
// Why typed errors?
//
// Only two conditions end a run: no usable SDK at all, and no artifact at the
// end. Everything else is recorded and reported. Typed errors let the app and
// the report tell these apart with errors.As instead of matching strings.
package model

import (
	"fmt"
	"time"
)

// DiscoveryError means no usable platform SDK was found. It is fatal.
type DiscoveryError struct {
	Reason string
	Err    error
}

func (e *DiscoveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("sdk discovery failed: %s: %v", e.Reason, e.Err)
	}
	return "sdk discovery failed: " + e.Reason
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// UnsupportedTargetError means no toolchain rule exists for a target.
type UnsupportedTargetError struct {
	Target Target
	Reason string
}

func (e *UnsupportedTargetError) Error() string {
	return fmt.Sprintf("unsupported target %s: %s", e.Target.Label(), e.Reason)
}

// Stage names one step of the external build.
type Stage string

const (
	StagePrepare Stage = "prepare"
	StageCompile Stage = "compile"
	StageInstall Stage = "install"
	StageStaging Stage = "staging"
)

// ExternalBuildError is a failure of one stage of a target's external build.
type ExternalBuildError struct {
	Target Target
	Stage  Stage
	Err    error
}

func (e *ExternalBuildError) Error() string {
	return fmt.Sprintf("%s: %s stage failed: %v", e.Target.Label(), e.Stage, e.Err)
}

func (e *ExternalBuildError) Unwrap() error { return e.Err }

// TimeoutError is returned when a target exceeds its build timeout.
type TimeoutError struct {
	Target  Target
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s: timed out after %s", e.Target.Label(), e.Timeout)
}

// AggregationError is a failure to merge or copy one platform's artifact.
type AggregationError struct {
	Platform Platform
	Err      error
}

func (e *AggregationError) Error() string {
	return fmt.Sprintf("aggregating %s: %v", e.Platform, e.Err)
}

func (e *AggregationError) Unwrap() error { return e.Err }
