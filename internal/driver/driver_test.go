package driver

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/unibuild/internal/ctxlog"
	"github.com/vk/unibuild/internal/model"
	"github.com/vk/unibuild/internal/shell"
)

// builderFunc adapts a function to the Builder interface.
type builderFunc func(ctx context.Context, target model.Target, cfg model.ToolchainConfig, workdir string) (Output, error)

func (f builderFunc) Build(ctx context.Context, target model.Target, cfg model.ToolchainConfig, workdir string) (Output, error) {
	return f(ctx, target, cfg, workdir)
}

// stagerFunc adapts a function to the source.Stager interface.
type stagerFunc func(ctx context.Context, dst string) error

func (f stagerFunc) Stage(ctx context.Context, dst string) error { return f(ctx, dst) }

type recordingObserver struct {
	mu       sync.Mutex
	started  []string
	finished []string
}

func (o *recordingObserver) TargetStarted(t model.Target) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.started = append(o.started, t.Label())
}

func (o *recordingObserver) TargetFinished(r model.BuildResult) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.finished = append(o.finished, r.Target.Label())
}

func job(p model.Platform, arch model.Arch) Job {
	target := model.Target{Platform: p, Arch: arch}
	return Job{Target: target, Config: model.ToolchainConfig{Target: target, Host: string(arch) + "-apple-darwin"}}
}

func succeedingBuilder() Builder {
	return builderFunc(func(ctx context.Context, target model.Target, cfg model.ToolchainConfig, workdir string) (Output, error) {
		return Output{LibraryPath: filepath.Join(workdir, "install", "lib", "libsodium.a"), IncludeDir: filepath.Join(workdir, "install", "include")}, nil
	})
}

// A failing target must not stop the others. This is a deliberate change from
// abort-on-first-failure shell builds: every target gets its chance and the
// failure is reported at the end.
func TestDriver_IsolatesFailuresPerTarget(t *testing.T) {
	// --- Arrange ---
	ctx := ctxlog.Discard(context.Background())
	var built []string
	builder := builderFunc(func(ctx context.Context, target model.Target, cfg model.ToolchainConfig, workdir string) (Output, error) {
		built = append(built, target.Label())
		if target.Arch == "armv7" {
			return Output{}, &model.ExternalBuildError{Target: target, Stage: model.StageCompile, Err: errors.New("exit status 2")}
		}
		return Output{LibraryPath: "lib.a"}, nil
	})
	d := &Driver{Builder: builder, WorkDir: t.TempDir(), Workers: 1}

	// --- Act ---
	results := d.Run(ctx, []Job{job(model.IOS, "armv7"), job(model.IOS, "arm64")})

	// --- Assert ---
	require.Len(t, results, 2)
	assert.Equal(t, []string{"iOS-armv7", "iOS-arm64"}, built, "the second target must still be built")
	assert.Equal(t, model.StatusFailed, results[0].Status)
	assert.Contains(t, results[0].Reason, "compile stage failed")
	assert.Equal(t, model.StatusSucceeded, results[1].Status)
}

func TestDriver_UnsupportedJobIsRecordedNotBuilt(t *testing.T) {
	ctx := ctxlog.Discard(context.Background())
	called := false
	builder := builderFunc(func(ctx context.Context, target model.Target, cfg model.ToolchainConfig, workdir string) (Output, error) {
		called = true
		return Output{}, nil
	})
	target := model.Target{Platform: model.MacOS, Arch: "arm64"}
	unsupported := &model.UnsupportedTargetError{Target: target, Reason: "no toolchain rule"}
	d := &Driver{Builder: builder, WorkDir: t.TempDir()}

	results := d.Run(ctx, []Job{{Target: target, Err: unsupported}})

	assert.False(t, called)
	require.Len(t, results, 1)
	assert.False(t, results[0].Succeeded())
	var uerr *model.UnsupportedTargetError
	assert.True(t, errors.As(results[0].Err, &uerr))
}

func TestDriver_TimeoutFailsOnlyThatTarget(t *testing.T) {
	ctx := ctxlog.Discard(context.Background())
	builder := builderFunc(func(ctx context.Context, target model.Target, cfg model.ToolchainConfig, workdir string) (Output, error) {
		if target.Arch == "i386" {
			<-ctx.Done()
			return Output{}, ctx.Err()
		}
		return Output{LibraryPath: "lib.a"}, nil
	})
	d := &Driver{Builder: builder, WorkDir: t.TempDir(), Timeout: 50 * time.Millisecond}

	results := d.Run(ctx, []Job{job(model.IOS, "i386"), job(model.IOS, "x86_64")})

	require.Len(t, results, 2)
	assert.True(t, results[0].TimedOut)
	assert.Equal(t, "iOS-i386: timed out after 50ms", results[0].Reason)
	var terr *model.TimeoutError
	assert.True(t, errors.As(results[0].Err, &terr))
	assert.True(t, results[1].Succeeded())
}

func TestDriver_CancelledContextFailsRemaining(t *testing.T) {
	ctx, cancel := context.WithCancel(ctxlog.Discard(context.Background()))
	cancel()
	d := &Driver{Builder: succeedingBuilder(), WorkDir: t.TempDir()}

	results := d.Run(ctx, []Job{job(model.IOS, "arm64")})

	assert.False(t, results[0].Succeeded())
	assert.Contains(t, results[0].Reason, "cancelled before start")
}

func TestDriver_StagesCleanDirectoryPerTarget(t *testing.T) {
	// --- Arrange ---
	ctx := ctxlog.Discard(context.Background())
	work := t.TempDir()
	stale := filepath.Join(work, "iOS-arm64", "stale.o")
	require.NoError(t, os.MkdirAll(filepath.Dir(stale), 0o755))
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))

	var staged []string
	stager := stagerFunc(func(ctx context.Context, dst string) error {
		staged = append(staged, dst)
		return os.MkdirAll(dst, 0o755)
	})
	d := &Driver{Builder: succeedingBuilder(), Stager: stager, WorkDir: work}

	// --- Act ---
	results := d.Run(ctx, []Job{job(model.IOS, "arm64")})

	// --- Assert ---
	require.True(t, results[0].Succeeded())
	assert.Equal(t, []string{filepath.Join(work, "iOS-arm64", "src")}, staged)
	assert.NoFileExists(t, stale)
}

func TestDriver_StagingFailure(t *testing.T) {
	ctx := ctxlog.Discard(context.Background())
	stager := stagerFunc(func(ctx context.Context, dst string) error { return errors.New("corrupt archive") })
	d := &Driver{Builder: succeedingBuilder(), Stager: stager, WorkDir: t.TempDir()}

	results := d.Run(ctx, []Job{job(model.TvOS, "arm64")})

	var ebe *model.ExternalBuildError
	require.True(t, errors.As(results[0].Err, &ebe))
	assert.Equal(t, model.StageStaging, ebe.Stage)
}

func TestDriver_ParallelKeepsInputOrder(t *testing.T) {
	ctx := ctxlog.Discard(context.Background())
	jobs := []Job{
		job(model.IOS, "armv7"), job(model.IOS, "armv7s"), job(model.IOS, "arm64"),
		job(model.IOS, "i386"), job(model.IOS, "x86_64"), job(model.MacOS, "x86_64"),
	}
	obs := &recordingObserver{}
	d := &Driver{Builder: succeedingBuilder(), WorkDir: t.TempDir(), Workers: 4, Observer: obs}

	results := d.Run(ctx, jobs)

	require.Len(t, results, len(jobs))
	for i, r := range results {
		assert.Equal(t, jobs[i].Target, r.Target)
		assert.True(t, r.Succeeded())
	}
	assert.Len(t, obs.started, len(jobs))
	assert.ElementsMatch(t, obs.started, obs.finished)
}

func TestDriver_NoJobs(t *testing.T) {
	ctx := ctxlog.Discard(context.Background())
	d := &Driver{Builder: succeedingBuilder(), WorkDir: t.TempDir(), Workers: 3}
	assert.Empty(t, d.Run(ctx, nil))
}

type scriptedRunner struct {
	cmds   []shell.Command
	failOn string
	onRun  func(cmd shell.Command)
}

func (r *scriptedRunner) Run(ctx context.Context, cmd shell.Command) error {
	r.cmds = append(r.cmds, cmd)
	if r.onRun != nil {
		r.onRun(cmd)
	}
	if cmd.String() == r.failOn {
		return errors.New("exit status 1")
	}
	return nil
}

func (r *scriptedRunner) Output(ctx context.Context, cmd shell.Command) (string, error) {
	return "", r.Run(ctx, cmd)
}

func TestAutotoolsBuilder_RunsThreeStages(t *testing.T) {
	// --- Arrange ---
	ctx := ctxlog.Discard(context.Background())
	workdir := t.TempDir()
	prefix := filepath.Join(workdir, "install")
	runner := &scriptedRunner{onRun: func(cmd shell.Command) {
		if cmd.String() == "make install" {
			require.NoError(t, os.MkdirAll(filepath.Join(prefix, "lib"), 0o755))
			require.NoError(t, os.WriteFile(filepath.Join(prefix, "lib", "libsodium.a"), []byte("!<arch>\n"), 0o644))
		}
	}}
	b := &AutotoolsBuilder{
		Runner:        runner,
		Library:       "libsodium.a",
		ConfigureArgs: []string{"--disable-shared", "--enable-static"},
		MakeJobs:      8,
		BaseEnv:       []string{"PATH=/usr/bin"},
	}
	target := model.Target{Platform: model.IOS, Arch: "arm64"}
	cfg := model.ToolchainConfig{Target: target, Host: "arm-apple-darwin", CFlags: []string{"-arch", "arm64"}}

	// --- Act ---
	out, err := b.Build(ctx, target, cfg, workdir)

	// --- Assert ---
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(prefix, "lib", "libsodium.a"), out.LibraryPath)
	assert.Equal(t, filepath.Join(prefix, "include"), out.IncludeDir)

	require.Len(t, runner.cmds, 3)
	assert.Equal(t, "./configure --prefix="+prefix+" --host=arm-apple-darwin --disable-shared --enable-static", runner.cmds[0].String())
	assert.Equal(t, "make -j8 V=0", runner.cmds[1].String())
	assert.Equal(t, "make install", runner.cmds[2].String())
	for _, cmd := range runner.cmds {
		assert.Equal(t, filepath.Join(workdir, "src"), cmd.Dir)
		assert.Contains(t, cmd.Env, "CFLAGS=-arch arm64")
	}
	assert.FileExists(t, filepath.Join(workdir, "build.log"))
}

func TestAutotoolsBuilder_StageFailure(t *testing.T) {
	ctx := ctxlog.Discard(context.Background())
	runner := &scriptedRunner{failOn: "make -j1 V=0"}
	b := &AutotoolsBuilder{Runner: runner, Library: "libsodium.a"}
	target := model.Target{Platform: model.IOS, Arch: "armv7"}

	_, err := b.Build(ctx, target, model.ToolchainConfig{Host: "armv7-apple-darwin"}, t.TempDir())

	var ebe *model.ExternalBuildError
	require.True(t, errors.As(err, &ebe))
	assert.Equal(t, model.StageCompile, ebe.Stage)
	assert.Len(t, runner.cmds, 2, "install must not run after a failed compile")
}

func TestAutotoolsBuilder_MissingLibrary(t *testing.T) {
	ctx := ctxlog.Discard(context.Background())
	b := &AutotoolsBuilder{Runner: &scriptedRunner{}, Library: "libsodium.a", MakeJobs: 2}
	target := model.Target{Platform: model.IOS, Arch: "armv7"}

	_, err := b.Build(ctx, target, model.ToolchainConfig{}, t.TempDir())

	assert.ErrorContains(t, err, "expected library not installed")
}
