// Package aggregate merges per-architecture static libraries into one
// universal library per platform and lays out the distribution directory:
//
//	{dist}/{platform}/lib/{library}
//	{dist}/{platform}/include/...
//
// Headers are assumed to be identical across the architectures of a
// platform, so only the first successful target's include directory is
// copied. If a package ever generated architecture-specific headers, the
// distribution would silently carry the first target's variant.
package aggregate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vk/unibuild/internal/ctxlog"
	"github.com/vk/unibuild/internal/fsutil"
	"github.com/vk/unibuild/internal/model"
)

// Merger combines static libraries into one universal archive.
type Merger interface {
	Merge(ctx context.Context, inputs []string, output string) error
}

// Outcome is the aggregation result of a whole run.
type Outcome struct {
	Artifacts []model.PlatformArtifact
	// Skipped lists platforms that produced no artifact, with the reason.
	Skipped []SkippedPlatform
}

// SkippedPlatform is a platform without an artifact.
type SkippedPlatform struct {
	Platform model.Platform
	Reason   string
	Err      error
}

// Aggregator builds the distribution directory.
type Aggregator struct {
	Merger  Merger
	DistDir string
	Library string
}

// Aggregate merges the successful results of each platform. Platforms are
// visited in the order they first appear in results. A platform with no
// success is skipped with exactly one warning; a failed merge is recorded as
// an *model.AggregationError and the other platforms continue.
func (a *Aggregator) Aggregate(ctx context.Context, results []model.BuildResult) Outcome {
	logger := ctxlog.FromContext(ctx)

	var order []model.Platform
	byPlatform := make(map[model.Platform][]model.BuildResult)
	for _, r := range results {
		p := r.Target.Platform
		if _, seen := byPlatform[p]; !seen {
			order = append(order, p)
		}
		byPlatform[p] = append(byPlatform[p], r)
	}

	var outcome Outcome
	for _, p := range order {
		var ok []model.BuildResult
		for _, r := range byPlatform[p] {
			if r.Succeeded() {
				ok = append(ok, r)
			}
		}

		if len(ok) == 0 {
			logger.Warn("No target of this platform built, skipping.", "platform", p, "targets", len(byPlatform[p]))
			outcome.Skipped = append(outcome.Skipped, SkippedPlatform{Platform: p, Reason: "no target built successfully"})
			continue
		}

		artifact, err := a.aggregatePlatform(ctx, p, ok)
		if err != nil {
			aerr := &model.AggregationError{Platform: p, Err: err}
			logger.Error("Platform aggregation failed, skipping.", "platform", p, "error", err)
			outcome.Skipped = append(outcome.Skipped, SkippedPlatform{Platform: p, Reason: aerr.Error(), Err: aerr})
			continue
		}
		logger.Info("📚 Universal library created.", "platform", p, "path", artifact.LibraryPath, "architectures", artifact.Architectures, "headers_from", artifact.HeaderSource.Label())
		outcome.Artifacts = append(outcome.Artifacts, artifact)
	}
	return outcome
}

// aggregatePlatform writes {dist}/{platform}. On failure nothing of the
// platform is left behind, so dist only ever holds reported artifacts.
func (a *Aggregator) aggregatePlatform(ctx context.Context, p model.Platform, ok []model.BuildResult) (artifact model.PlatformArtifact, err error) {
	platformDir := filepath.Join(a.DistDir, string(p))
	defer func() {
		if err != nil {
			if rmErr := os.RemoveAll(platformDir); rmErr != nil {
				ctxlog.FromContext(ctx).Warn("Could not remove partial platform output.", "path", platformDir, "error", rmErr)
			}
		}
	}()
	if err := fsutil.ResetDir(platformDir); err != nil {
		return model.PlatformArtifact{}, err
	}

	libDir := filepath.Join(platformDir, "lib")
	if err := os.MkdirAll(libDir, 0o755); err != nil {
		return model.PlatformArtifact{}, err
	}

	inputs := make([]string, len(ok))
	archs := make([]model.Arch, len(ok))
	for i, r := range ok {
		inputs[i] = r.LibraryPath
		archs[i] = r.Target.Arch
	}

	output := filepath.Join(libDir, a.Library)
	if err := a.Merger.Merge(ctx, inputs, output); err != nil {
		return model.PlatformArtifact{}, fmt.Errorf("merging %d libraries: %w", len(inputs), err)
	}

	headerDir := filepath.Join(platformDir, "include")
	if err := fsutil.CopyDir(ok[0].IncludeDir, headerDir); err != nil {
		return model.PlatformArtifact{}, fmt.Errorf("copying headers from %s: %w", ok[0].Target.Label(), err)
	}

	return model.PlatformArtifact{
		Platform:      p,
		LibraryPath:   output,
		HeaderDir:     headerDir,
		Architectures: archs,
		HeaderSource:  ok[0].Target,
	}, nil
}
