package app

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/unibuild/internal/driver"
	"github.com/vk/unibuild/internal/hcl_adapter"
	"github.com/vk/unibuild/internal/model"
	"github.com/vk/unibuild/internal/sdk"
	"gopkg.in/yaml.v3"
)

const testDeveloperDir = "/Applications/Xcode.app/Contents/Developer"

// fakeBuilder lays out an install tree instead of compiling, failing the
// targets listed in failOn.
type fakeBuilder struct {
	mu      sync.Mutex
	failOn  map[string]bool
	configs []model.ToolchainConfig
}

func (b *fakeBuilder) Build(ctx context.Context, target model.Target, cfg model.ToolchainConfig, workdir string) (driver.Output, error) {
	b.mu.Lock()
	b.configs = append(b.configs, cfg)
	b.mu.Unlock()

	if b.failOn[target.Label()] {
		return driver.Output{}, &model.ExternalBuildError{Target: target, Stage: model.StageCompile, Err: errors.New("make: *** [all] Error 2")}
	}
	if _, err := os.Stat(filepath.Join(workdir, "src", "configure")); err != nil {
		return driver.Output{}, err
	}

	lib := filepath.Join(workdir, "install", "lib", "libsodium.a")
	inc := filepath.Join(workdir, "install", "include")
	if err := os.MkdirAll(filepath.Dir(lib), 0o755); err != nil {
		return driver.Output{}, err
	}
	if err := os.MkdirAll(inc, 0o755); err != nil {
		return driver.Output{}, err
	}
	if err := os.WriteFile(lib, []byte(target.Label()+"\n"), 0o644); err != nil {
		return driver.Output{}, err
	}
	if err := os.WriteFile(filepath.Join(inc, "sodium.h"), []byte("#pragma once\n"), 0o644); err != nil {
		return driver.Output{}, err
	}
	return driver.Output{LibraryPath: lib, IncludeDir: inc}, nil
}

// fakeMerger concatenates its inputs.
type fakeMerger struct {
	calls [][]string
}

func (m *fakeMerger) Merge(ctx context.Context, inputs []string, output string) error {
	m.calls = append(m.calls, inputs)
	var data []byte
	for _, in := range inputs {
		b, err := os.ReadFile(in)
		if err != nil {
			return err
		}
		data = append(data, b...)
	}
	return os.WriteFile(output, data, 0o644)
}

type fixedDeveloperDir string

func (d fixedDeveloperDir) DeveloperDir(context.Context) (string, error) { return string(d), nil }

type failingDiscoverer struct{}

func (failingDiscoverer) Discover(context.Context) (model.SDKVersionSet, error) {
	return model.SDKVersionSet{}, errors.New("xcodebuild: command not found")
}

func sourceDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "configure"), []byte("#!/bin/sh\n"), 0o755))
	return dir
}

func testConfig(t *testing.T) *Config {
	t.Helper()
	root := t.TempDir()
	cfg, err := NewConfig(Config{
		WorkDir:      filepath.Join(root, "work"),
		DistDir:      filepath.Join(root, "dist"),
		Source:       sourceDir(t),
		DeveloperDir: testDeveloperDir,
	})
	require.NoError(t, err)
	return cfg
}

func fixedClock() Option {
	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	return WithClock(func() time.Time { return start }, func() string { return "run-1" })
}

func TestRun_OneOfTwoTargetsFails(t *testing.T) {
	// Arrange
	cfg := testConfig(t)
	cfg.Platforms = []string{"iOS"}
	cfg.Archs = []string{"armv7", "arm64"}
	cfg.ReportPath = filepath.Join(cfg.DistDir, "report.yaml")
	builder := &fakeBuilder{failOn: map[string]bool{"iOS-armv7": true}}
	merger := &fakeMerger{}
	versions := model.NewSDKVersionSet(map[model.Platform]string{model.IOS: "14.0"})

	a, logs := SetupAppTest(t, cfg,
		WithDiscoverer(sdk.Static{Versions: versions}),
		WithBuilder(builder),
		WithMerger(merger),
		fixedClock(),
	)

	// Act
	err := a.Run(context.Background())

	// Assert
	require.NoError(t, err)

	require.Len(t, merger.calls, 1)
	assert.Equal(t, []string{filepath.Join(cfg.WorkDir, "iOS-arm64", "install", "lib", "libsodium.a")}, merger.calls[0])

	lib, err := os.ReadFile(filepath.Join(cfg.DistDir, "iOS", "lib", "libsodium.a"))
	require.NoError(t, err)
	assert.Equal(t, "iOS-arm64\n", string(lib))
	assert.FileExists(t, filepath.Join(cfg.DistDir, "iOS", "include", "sodium.h"))

	out := logs.String()
	assert.Contains(t, out, "Failed targets:")
	assert.Contains(t, out, "iOS-armv7")

	data, err := os.ReadFile(cfg.ReportPath)
	require.NoError(t, err)
	var rep struct {
		RunID   string `yaml:"run_id"`
		Targets []struct {
			Target string `yaml:"target"`
			Status string `yaml:"status"`
			Reason string `yaml:"reason"`
		} `yaml:"targets"`
	}
	require.NoError(t, yaml.Unmarshal(data, &rep))
	assert.Equal(t, "run-1", rep.RunID)
	require.Len(t, rep.Targets, 2)
	assert.Equal(t, "iOS-armv7", rep.Targets[0].Target)
	assert.Equal(t, "failed", rep.Targets[0].Status)
	assert.Contains(t, rep.Targets[0].Reason, "compile")
	assert.Equal(t, "iOS-arm64", rep.Targets[1].Target)
	assert.Equal(t, "succeeded", rep.Targets[1].Status)
}

func TestRun_ResolvesToolchainForEachTarget(t *testing.T) {
	// Arrange
	cfg := testConfig(t)
	cfg.Platforms = []string{"iOS"}
	cfg.Archs = []string{"armv7", "arm64"}
	builder := &fakeBuilder{}
	versions := model.NewSDKVersionSet(map[model.Platform]string{model.IOS: "14.0"})

	a, _ := SetupAppTest(t, cfg,
		WithDiscoverer(sdk.Static{Versions: versions}),
		WithBuilder(builder),
		WithMerger(&fakeMerger{}),
	)

	// Act
	err := a.Run(context.Background())

	// Assert
	require.NoError(t, err)
	require.Len(t, builder.configs, 2)
	for _, c := range builder.configs {
		assert.Contains(t, c.SDKRoot, "iPhoneOS14.0.sdk")
		assert.True(t, strings.HasPrefix(c.Host, "arm-apple-darwin"), c.Host)
	}
}

func TestRun_NoSDKsIsFatal(t *testing.T) {
	// Arrange
	cfg := testConfig(t)
	builder := &fakeBuilder{}
	a, _ := SetupAppTest(t, cfg,
		WithDiscoverer(sdk.Static{Versions: model.NewSDKVersionSet(nil)}),
		WithBuilder(builder),
		WithMerger(&fakeMerger{}),
	)

	// Act
	err := a.Run(context.Background())

	// Assert
	var discoveryErr *model.DiscoveryError
	require.ErrorAs(t, err, &discoveryErr)
	assert.Empty(t, builder.configs)
	assert.NoDirExists(t, cfg.WorkDir)
}

func TestRun_DiscoveryFailureIsFatal(t *testing.T) {
	cfg := testConfig(t)
	a, _ := SetupAppTest(t, cfg, WithDiscoverer(failingDiscoverer{}))

	err := a.Run(context.Background())

	var discoveryErr *model.DiscoveryError
	require.ErrorAs(t, err, &discoveryErr)
	assert.Contains(t, err.Error(), "xcodebuild: command not found")
}

func TestRun_NoArtifacts(t *testing.T) {
	// Arrange
	cfg := testConfig(t)
	cfg.Platforms = []string{"macOS"}
	versions := model.NewSDKVersionSet(map[model.Platform]string{model.MacOS: "11.0"})
	a, _ := SetupAppTest(t, cfg,
		WithDiscoverer(sdk.Static{Versions: versions}),
		WithBuilder(&fakeBuilder{failOn: map[string]bool{"macOS-x86_64": true}}),
		WithMerger(&fakeMerger{}),
	)

	// Act
	err := a.Run(context.Background())

	// Assert
	require.ErrorIs(t, err, ErrNoArtifacts)
	var buildErr *model.ExternalBuildError
	assert.ErrorAs(t, err, &buildErr)
}

func TestRun_UsesDeveloperDirLocator(t *testing.T) {
	// Arrange
	cfg := testConfig(t)
	cfg.DeveloperDir = ""
	cfg.Platforms = []string{"macOS"}
	builder := &fakeBuilder{}
	versions := model.NewSDKVersionSet(map[model.Platform]string{model.MacOS: "11.0"})
	a, _ := SetupAppTest(t, cfg,
		WithDiscoverer(sdk.Static{Versions: versions}),
		WithDeveloperDirLocator(fixedDeveloperDir("/opt/Xcode")),
		WithBuilder(builder),
		WithMerger(&fakeMerger{}),
	)

	// Act
	err := a.Run(context.Background())

	// Assert
	require.NoError(t, err)
	require.Len(t, builder.configs, 1)
	assert.Equal(t, "/opt/Xcode/Platforms/MacOSX.platform/Developer/SDKs/MacOSX11.0.sdk", builder.configs[0].SDKRoot)
}

func TestRun_RemovesStaleDistOutput(t *testing.T) {
	// Arrange
	cfg := testConfig(t)
	cfg.Platforms = []string{"macOS"}
	stale := filepath.Join(cfg.DistDir, "tvOS", "lib", "libsodium.a")
	require.NoError(t, os.MkdirAll(filepath.Dir(stale), 0o755))
	require.NoError(t, os.WriteFile(stale, []byte("old"), 0o644))
	unrelated := filepath.Join(cfg.DistDir, "notes.txt")
	require.NoError(t, os.WriteFile(unrelated, []byte("keep"), 0o644))
	versions := model.NewSDKVersionSet(map[model.Platform]string{model.MacOS: "11.0"})
	a, _ := SetupAppTest(t, cfg,
		WithDiscoverer(sdk.Static{Versions: versions}),
		WithBuilder(&fakeBuilder{}),
		WithMerger(&fakeMerger{}),
	)

	// Act
	err := a.Run(context.Background())

	// Assert
	require.NoError(t, err)
	assert.NoDirExists(t, filepath.Join(cfg.DistDir, "tvOS"))
	assert.FileExists(t, filepath.Join(cfg.DistDir, "macOS", "lib", "libsodium.a"))
	assert.FileExists(t, unrelated)
}

func TestRun_DryRunPrintsPlanWithoutBuilding(t *testing.T) {
	// Arrange
	cfg := testConfig(t)
	cfg.DryRun = true
	builder := &fakeBuilder{}
	versions := model.NewSDKVersionSet(map[model.Platform]string{model.IOS: "14.0", model.TvOS: "14.0"})
	a, out := SetupAppTest(t, cfg,
		WithDiscoverer(sdk.Static{Versions: versions}),
		WithBuilder(builder),
	)

	// Act
	err := a.Run(context.Background())

	// Assert
	require.NoError(t, err)
	assert.Empty(t, builder.configs)
	for _, label := range []string{"iOS-armv7", "iOS-arm64", "tvOS-arm64", "tvOS-x86_64"} {
		assert.Contains(t, out.String(), `target "`+label+`"`)
	}
	assert.NotContains(t, out.String(), `target "macOS-x86_64"`)
}

func TestNewApp_ConfigFileOverridesMatrix(t *testing.T) {
	// Arrange
	cfg := testConfig(t)
	cfg.DryRun = true
	cfgFile := filepath.Join(t.TempDir(), "unibuild.hcl")
	require.NoError(t, os.WriteFile(cfgFile, []byte(`
platform "iOS" {
  architectures = ["arm64e"]
  min_os        = "13.0"
}

rule "iOS" "arm64e" {
  sdk_platform     = "iPhoneOS"
  host             = "arm-apple-darwin"
  min_version_flag = "-miphoneos-version-min"
}
`), 0o644))
	cfg.ConfigPaths = []string{cfgFile}
	versions := model.NewSDKVersionSet(map[model.Platform]string{model.IOS: "14.0"})
	a, out := SetupAppTest(t, cfg, WithDiscoverer(sdk.Static{Versions: versions}))

	// Act
	err := a.Run(context.Background())

	// Assert
	require.NoError(t, err)
	assert.Contains(t, out.String(), `target "iOS-arm64e"`)
	assert.Contains(t, out.String(), "-miphoneos-version-min=13.0")
	assert.NotContains(t, out.String(), `target "iOS-armv7"`)
}

func TestNewApp_Errors(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{
			name:    "missing config file",
			mutate:  func(c *Config) { c.ConfigPaths = []string{"/does/not/exist.hcl"} },
			wantErr: "failed to load configuration",
		},
		{
			name:    "filters exclude everything",
			mutate:  func(c *Config) { c.Platforms = []string{"macOS"}; c.Archs = []string{"arm64"} },
			wantErr: "exclude every target",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := testConfig(t)
			tc.mutate(cfg)

			_, err := NewApp(&SafeBuffer{}, cfg, hcl_adapter.NewLoader())

			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestNewConfig_Validation(t *testing.T) {
	valid := Config{WorkDir: "w", DistDir: "d"}

	_, err := NewConfig(valid)
	require.NoError(t, err)

	testCases := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"empty work dir", func(c *Config) { c.WorkDir = "" }},
		{"empty dist dir", func(c *Config) { c.DistDir = "" }},
		{"negative workers", func(c *Config) { c.Workers = -1 }},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }},
		{"bad log level", func(c *Config) { c.LogLevel = "loud" }},
		{"bad platform", func(c *Config) { c.Platforms = []string{"android"} }},
		{"bad sdk override", func(c *Config) { c.SDKOverrides = []string{"iOS"} }},
		{"port out of range", func(c *Config) { c.StatusPort = 70000 }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := valid
			tc.mutate(&c)
			_, err := NewConfig(c)
			assert.Error(t, err)
		})
	}
}

func TestStatusHandler_ReportsTargetsInOrder(t *testing.T) {
	// Arrange
	cfg := testConfig(t)
	a, _ := SetupAppTest(t, cfg)
	arm64 := model.Target{Platform: model.IOS, Arch: "arm64"}
	armv7 := model.Target{Platform: model.IOS, Arch: "armv7"}
	a.status.plan([]model.Target{armv7, arm64})
	a.status.TargetStarted(armv7)
	a.status.TargetFinished(model.Failed(armv7, errors.New("boom"), time.Second))
	a.status.TargetStarted(arm64)

	srv := httptest.NewServer(a.statusMux())
	defer srv.Close()

	// Act
	resp, err := http.Get(srv.URL + "/status")
	require.NoError(t, err)
	defer resp.Body.Close()

	// Assert
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var states []targetState
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&states))
	require.Len(t, states, 2)
	assert.Equal(t, targetState{Target: "iOS-armv7", State: "failed", Reason: "boom", Duration: "1s"}, states[0])
	assert.Equal(t, targetState{Target: "iOS-arm64", State: "building"}, states[1])

	health, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}
