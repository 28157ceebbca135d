package driver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/vk/unibuild/internal/ctxlog"
	"github.com/vk/unibuild/internal/model"
	"github.com/vk/unibuild/internal/shell"
)

// AutotoolsBuilder drives a GNU autotools package through configure, make and
// make install. Each stage's output goes to workdir/build.log.
type AutotoolsBuilder struct {
	Runner        shell.Runner
	Library       string
	ConfigureArgs []string
	MakeJobs      int
	// BaseEnv is the environment the toolchain settings are layered onto.
	BaseEnv []string
}

// NewAutotoolsBuilder returns a builder layering onto the current process
// environment.
func NewAutotoolsBuilder(runner shell.Runner, library string, configureArgs []string, makeJobs int) *AutotoolsBuilder {
	return &AutotoolsBuilder{
		Runner:        runner,
		Library:       library,
		ConfigureArgs: configureArgs,
		MakeJobs:      makeJobs,
		BaseEnv:       os.Environ(),
	}
}

// Build implements Builder.
func (b *AutotoolsBuilder) Build(ctx context.Context, target model.Target, cfg model.ToolchainConfig, workdir string) (Output, error) {
	logger := ctxlog.FromContext(ctx)
	srcDir := filepath.Join(workdir, "src")
	prefix := filepath.Join(workdir, "install")

	logFile, err := os.Create(filepath.Join(workdir, "build.log"))
	if err != nil {
		return Output{}, &model.ExternalBuildError{Target: target, Stage: model.StagePrepare, Err: err}
	}
	defer logFile.Close()

	env := cfg.Environ(b.BaseEnv)
	jobs := b.MakeJobs
	if jobs < 1 {
		jobs = 1
	}

	stages := []struct {
		stage model.Stage
		cmd   shell.Command
	}{
		{model.StagePrepare, shell.Command{
			Name: "./configure",
			Args: append([]string{"--prefix=" + prefix, "--host=" + cfg.Host}, b.ConfigureArgs...),
		}},
		{model.StageCompile, shell.Command{Name: "make", Args: []string{"-j" + strconv.Itoa(jobs), "V=0"}}},
		{model.StageInstall, shell.Command{Name: "make", Args: []string{"install"}}},
	}

	for _, s := range stages {
		cmd := s.cmd
		cmd.Dir = srcDir
		cmd.Env = env
		cmd.Log = logFile

		logger.Debug("Running build stage.", "stage", s.stage, "command", cmd.String())
		fmt.Fprintf(logFile, "==> %s: %s\n", s.stage, cmd.String())
		if err := b.Runner.Run(ctx, cmd); err != nil {
			return Output{}, &model.ExternalBuildError{Target: target, Stage: s.stage, Err: err}
		}
	}

	out := Output{
		LibraryPath: filepath.Join(prefix, "lib", b.Library),
		IncludeDir:  filepath.Join(prefix, "include"),
	}
	if _, err := os.Stat(out.LibraryPath); err != nil {
		return Output{}, &model.ExternalBuildError{Target: target, Stage: model.StageInstall, Err: fmt.Errorf("expected library not installed: %w", err)}
	}
	return out, nil
}
