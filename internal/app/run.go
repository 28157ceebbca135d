package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vk/unibuild/internal/aggregate"
	"github.com/vk/unibuild/internal/ctxlog"
	"github.com/vk/unibuild/internal/driver"
	"github.com/vk/unibuild/internal/hcl_adapter"
	"github.com/vk/unibuild/internal/matrix"
	"github.com/vk/unibuild/internal/model"
	"github.com/vk/unibuild/internal/report"
	"github.com/vk/unibuild/internal/source"
	"github.com/vk/unibuild/internal/toolchain"
	"go.uber.org/multierr"
)

// ErrNoArtifacts is returned when a run finishes without producing a single
// platform library.
var ErrNoArtifacts = errors.New("no artifacts produced")

// Run executes the whole build: discovery, resolution, the per-target builds,
// aggregation and the final report.
func (a *App) Run(ctx context.Context) error {
	ctx = ctxlog.WithLogger(ctx, a.logger)
	a.logger.Debug("App.Run method started.")
	started := a.now()

	if a.config.StatusPort > 0 {
		a.startStatusServer(ctx, a.config.StatusPort)
		defer a.closeStatusServer(ctx)
	}

	versions, err := a.discover(ctx)
	if err != nil {
		return err
	}
	a.logger.Info("🔎 SDKs discovered.", "sdks", versions.String())

	devDir := a.config.DeveloperDir
	if devDir == "" {
		devDir, err = a.devDir.DeveloperDir(ctx)
		if err != nil {
			return &model.DiscoveryError{Reason: "cannot locate the Xcode developer directory", Err: err}
		}
	}
	a.logger.Debug("Developer directory resolved.", "path", devDir)

	jobs := a.plan(ctx, versions, devDir)
	if a.config.DryRun {
		a.logger.Debug("Dry run, writing plan.", "targets", len(jobs))
		return hcl_adapter.WritePlan(a.outW, jobs)
	}

	if err := a.cleanDist(ctx); err != nil {
		return fmt.Errorf("cleaning dist dir: %w", err)
	}

	stager, err := a.prepareSource(ctx)
	if err != nil {
		return fmt.Errorf("preparing source: %w", err)
	}

	a.logger.Info("🚀 Starting builds...", "targets", len(jobs), "workers", a.model.Build.Workers)
	drv := &driver.Driver{
		Builder:  a.builder,
		Stager:   stager,
		WorkDir:  a.config.WorkDir,
		Timeout:  a.model.Build.Timeout,
		Workers:  a.model.Build.Workers,
		Observer: a.status,
	}
	results := drv.Run(ctx, jobs)

	agg := &aggregate.Aggregator{
		Merger:  a.merger,
		DistDir: a.config.DistDir,
		Library: a.model.Package.Library,
	}
	outcome := agg.Aggregate(ctx, results)

	rep := report.New(a.newID(), a.model.Package, versions, started, a.now().Sub(started), results, outcome)
	if err := rep.WriteText(a.outW); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}
	if a.config.ReportPath != "" {
		if err := rep.WriteYAML(a.config.ReportPath); err != nil {
			return fmt.Errorf("writing report: %w", err)
		}
		a.logger.Debug("Report written.", "path", a.config.ReportPath)
	}

	if len(outcome.Artifacts) == 0 {
		return multierr.Append(ErrNoArtifacts, rep.Err())
	}
	a.logger.Info("🏁 Build finished.", "platforms", len(outcome.Artifacts), "failed_targets", len(rep.Failed()))
	a.logger.Debug("App.Run method finished.")
	return nil
}

// discover returns the installed SDKs. Finding none is fatal, since there
// is nothing to build.
func (a *App) discover(ctx context.Context) (model.SDKVersionSet, error) {
	versions, err := a.discoverer.Discover(ctx)
	if err != nil {
		var discoveryErr *model.DiscoveryError
		if errors.As(err, &discoveryErr) {
			return model.SDKVersionSet{}, err
		}
		return model.SDKVersionSet{}, &model.DiscoveryError{Reason: "cannot list installed SDKs", Err: err}
	}
	if versions.Len() == 0 {
		return model.SDKVersionSet{}, &model.DiscoveryError{Reason: "no supported SDK is installed"}
	}
	return versions, nil
}

// plan enumerates the targets and resolves each one. Targets that cannot be
// resolved are kept as jobs carrying their error so they show up as failures.
func (a *App) plan(ctx context.Context, versions model.SDKVersionSet, devDir string) []driver.Job {
	resolver := &toolchain.Resolver{
		Table:        a.rules,
		DeveloperDir: devDir,
		OtherCFlags:  a.model.Build.OtherCFlags,
		MinOS:        a.minOS,
	}

	targets := matrix.Enumerate(versions, a.archs)
	jobs := make([]driver.Job, 0, len(targets))
	for _, target := range targets {
		cfg, err := resolver.Resolve(target, versions)
		if err != nil {
			a.logger.Debug("Target cannot be resolved.", "target", target.Label(), "error", err)
		}
		jobs = append(jobs, driver.Job{Target: target, Config: cfg, Err: err})
	}
	a.status.plan(targets)
	ctxlog.FromContext(ctx).Debug("Build matrix resolved.", "targets", len(jobs))
	return jobs
}

// cleanDist removes every platform directory left in the dist dir by an
// earlier run, so the dist dir only ever holds this run's artifacts. Only the
// platform subdirectories are touched; the dist dir itself may be shared.
func (a *App) cleanDist(ctx context.Context) error {
	for _, p := range model.AllPlatforms {
		dir := filepath.Join(a.config.DistDir, string(p))
		if _, err := os.Lstat(dir); err != nil {
			continue
		}
		ctxlog.FromContext(ctx).Debug("Removing stale platform output.", "path", dir)
		if err := os.RemoveAll(dir); err != nil {
			return err
		}
	}
	return nil
}

// prepareSource returns a stager for the package source: the --source path
// when given, the downloaded release archive otherwise.
func (a *App) prepareSource(ctx context.Context) (source.Stager, error) {
	path := a.config.Source
	if path == "" {
		var err error
		path, err = a.fetcher.Fetch(ctx, a.model.Package)
		if err != nil {
			return nil, err
		}
	}
	a.logger.Debug("Source located.", "path", path)
	return source.NewStager(path)
}
