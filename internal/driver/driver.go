package driver

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/vk/unibuild/internal/ctxlog"
	"github.com/vk/unibuild/internal/fsutil"
	"github.com/vk/unibuild/internal/model"
	"github.com/vk/unibuild/internal/source"
)

// Output is what a successful external build produced.
type Output struct {
	LibraryPath string
	IncludeDir  string
}

// Builder runs the external build of one target inside workdir, where the
// source tree has already been staged into workdir/src.
type Builder interface {
	Build(ctx context.Context, target model.Target, cfg model.ToolchainConfig, workdir string) (Output, error)
}

// Job is one target to build. Err carries a resolution failure, in which case
// the target is recorded as failed without running anything.
type Job struct {
	Target model.Target
	Config model.ToolchainConfig
	Err    error
}

// Observer is told when each target starts and finishes.
type Observer interface {
	TargetStarted(target model.Target)
	TargetFinished(result model.BuildResult)
}

// Driver builds jobs and collects their results.
type Driver struct {
	Builder Builder
	Stager  source.Stager
	WorkDir string
	Timeout time.Duration
	Workers int
	// Observer is optional.
	Observer Observer
}

// Run builds every job and returns one result per job, in job order.
func (d *Driver) Run(ctx context.Context, jobs []Job) []model.BuildResult {
	logger := ctxlog.FromContext(ctx)
	workers := d.Workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(jobs) {
		workers = len(jobs)
	}
	logger.Debug("Build driver starting.", "targets", len(jobs), "workers", workers, "timeout", d.Timeout)

	results := make([]model.BuildResult, len(jobs))
	readyChan := make(chan int)
	var wg sync.WaitGroup

	for w := 1; w <= workers; w++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			d.worker(ctx, readyChan, results, jobs, workerID)
		}(w)
	}

	for i := range jobs {
		readyChan <- i
	}
	close(readyChan)
	wg.Wait()

	logger.Debug("Build driver finished.")
	return results
}

// worker is the core processing loop for a single build worker. Each index is
// written by exactly one worker, so results needs no lock.
func (d *Driver) worker(ctx context.Context, readyChan <-chan int, results []model.BuildResult, jobs []Job, workerID int) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Worker started.", "workerID", workerID)

	for i := range readyChan {
		job := jobs[i]
		targetCtx := ctxlog.With(ctx, "workerID", workerID, "target", job.Target.Label())

		if d.Observer != nil {
			d.Observer.TargetStarted(job.Target)
		}
		results[i] = d.buildOne(targetCtx, job)
		if d.Observer != nil {
			d.Observer.TargetFinished(results[i])
		}
	}
	logger.Debug("Worker finished.", "workerID", workerID)
}

func (d *Driver) buildOne(ctx context.Context, job Job) model.BuildResult {
	logger := ctxlog.FromContext(ctx)
	target := job.Target

	if job.Err != nil {
		logger.Warn("Skipping target that cannot be resolved.", "error", job.Err)
		return model.Failed(target, job.Err, 0)
	}
	if err := ctx.Err(); err != nil {
		return model.Failed(target, fmt.Errorf("%s: cancelled before start: %w", target.Label(), err), 0)
	}

	logger.Info("▶️ Building target.", "host", job.Config.Host, "sdk", job.Config.SDKRoot)
	start := time.Now()

	buildCtx := ctx
	if d.Timeout > 0 {
		var cancel context.CancelFunc
		buildCtx, cancel = context.WithTimeout(ctx, d.Timeout)
		defer cancel()
	}

	out, err := d.stageAndBuild(buildCtx, job)
	elapsed := time.Since(start)

	if err != nil {
		if errors.Is(buildCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			terr := &model.TimeoutError{Target: target, Timeout: d.Timeout}
			logger.Error("Target timed out.", "timeout", d.Timeout, "error", err)
			r := model.Failed(target, fmt.Errorf("%w: %v", terr, err), elapsed)
			r.Reason = terr.Error()
			r.TimedOut = true
			return r
		}
		logger.Error("Target failed.", "error", err, "elapsed", elapsed)
		return model.Failed(target, err, elapsed)
	}

	logger.Info("✅ Target built.", "library", out.LibraryPath, "elapsed", elapsed)
	return model.Succeeded(target, out.LibraryPath, out.IncludeDir, elapsed)
}

// stageAndBuild scoped-acquires a clean directory for the target, lays out
// the source and runs the builder in it.
func (d *Driver) stageAndBuild(ctx context.Context, job Job) (Output, error) {
	workdir := filepath.Join(d.WorkDir, job.Target.Label())
	if err := fsutil.ResetDir(workdir); err != nil {
		return Output{}, &model.ExternalBuildError{Target: job.Target, Stage: model.StageStaging, Err: err}
	}
	if d.Stager != nil {
		if err := d.Stager.Stage(ctx, filepath.Join(workdir, "src")); err != nil {
			return Output{}, &model.ExternalBuildError{Target: job.Target, Stage: model.StageStaging, Err: err}
		}
	}
	return d.Builder.Build(ctx, job.Target, job.Config, workdir)
}
