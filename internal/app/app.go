package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/vk/unibuild/internal/aggregate"
	"github.com/vk/unibuild/internal/config"
	"github.com/vk/unibuild/internal/ctxlog"
	"github.com/vk/unibuild/internal/driver"
	"github.com/vk/unibuild/internal/matrix"
	"github.com/vk/unibuild/internal/model"
	"github.com/vk/unibuild/internal/sdk"
	"github.com/vk/unibuild/internal/shell"
	"github.com/vk/unibuild/internal/source"
	"github.com/vk/unibuild/internal/toolchain"
)

// DeveloperDirLocator finds the active Xcode developer directory.
type DeveloperDirLocator interface {
	DeveloperDir(ctx context.Context) (string, error)
}

// SourceFetcher makes the package source available locally and returns its
// path.
type SourceFetcher interface {
	Fetch(ctx context.Context, pkg config.Package) (string, error)
}

// App encapsulates the application's dependencies, configuration, and lifecycle.
type App struct {
	outW   io.Writer
	logger *slog.Logger
	config *Config
	model  *config.Model

	archs matrix.ArchTable
	rules *toolchain.Table
	minOS map[model.Platform]string

	discoverer sdk.Discoverer
	devDir     DeveloperDirLocator
	fetcher    SourceFetcher
	builder    driver.Builder
	merger     aggregate.Merger

	now   func() time.Time
	newID func() string

	status     *statusBoard
	httpServer *http.Server
}

// Option replaces one of the App's collaborators. Tests use these to avoid
// touching Xcode, the network, or a real compiler.
type Option func(*App)

// WithDiscoverer replaces SDK discovery.
func WithDiscoverer(d sdk.Discoverer) Option { return func(a *App) { a.discoverer = d } }

// WithDeveloperDirLocator replaces the xcode-select lookup.
func WithDeveloperDirLocator(l DeveloperDirLocator) Option { return func(a *App) { a.devDir = l } }

// WithFetcher replaces the source download.
func WithFetcher(f SourceFetcher) Option { return func(a *App) { a.fetcher = f } }

// WithBuilder replaces the external build.
func WithBuilder(b driver.Builder) Option { return func(a *App) { a.builder = b } }

// WithMerger replaces lipo.
func WithMerger(m aggregate.Merger) Option { return func(a *App) { a.merger = m } }

// WithClock replaces time.Now and the run ID generator.
func WithClock(now func() time.Time, newID func() string) Option {
	return func(a *App) {
		a.now = now
		a.newID = newID
	}
}

// NewApp is the constructor for the main application. It loads the
// configuration files and derives the architecture table and toolchain rules
// from them, so every configuration mistake surfaces here rather than
// halfway through a build.
func NewApp(outW io.Writer, appConfig *Config, loader config.Loader, opts ...Option) (*App, error) {
	logger := newLogger(appConfig.LogLevel, appConfig.LogFormat, outW)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	logger.Debug("Logger configured successfully.")

	cfgModel, err := loader.Load(ctx, appConfig.ConfigPaths...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if appConfig.Workers > 0 {
		cfgModel.Build.Workers = appConfig.Workers
	}
	if appConfig.Timeout > 0 {
		cfgModel.Build.Timeout = appConfig.Timeout
	}
	logger.Debug("Configuration loaded.", "package", cfgModel.Package.Name, "version", cfgModel.Package.Version)

	archs, err := archTable(cfgModel, appConfig)
	if err != nil {
		return nil, err
	}
	rules, err := ruleTable(ctx, cfgModel)
	if err != nil {
		return nil, err
	}
	if err := toolchain.CheckExhaustive(archs, rules); err != nil {
		// Such targets still fail individually at resolve time.
		logger.Warn("Toolchain rules do not cover the architecture table.", "error", err)
	}
	if orphans := toolchain.Orphans(archs, rules); len(orphans) > 0 {
		logger.Debug("Toolchain rules without a declared target.", "targets", orphans)
	}

	minOS := toolchain.DefaultMinOS()
	for _, p := range cfgModel.Platforms {
		if p.MinOS != "" {
			minOS[p.Name] = p.MinOS
		}
	}

	runner := shell.New()
	xcode := sdk.NewXcode(runner)
	builder := driver.NewAutotoolsBuilder(runner, cfgModel.Package.Library, cfgModel.Build.ConfigureArgs, cfgModel.Build.MakeJobs)
	a := &App{
		outW:       outW,
		logger:     logger,
		config:     appConfig,
		model:      cfgModel,
		archs:      archs,
		rules:      rules,
		minOS:      minOS,
		discoverer: xcode,
		devDir:     xcode,
		fetcher:    source.NewFetcher(filepath.Join(appConfig.WorkDir, "downloads")),
		builder:    builder,
		merger:     &aggregate.Lipo{Runner: runner},
		now:        time.Now,
		newID:      uuid.NewString,
		status:     newStatusBoard(),
	}
	if len(appConfig.SDKOverrides) > 0 {
		versions, err := sdk.ParseOverrides(appConfig.SDKOverrides)
		if err != nil {
			return nil, err
		}
		a.discoverer = sdk.Static{Versions: versions}
	}
	for _, opt := range opts {
		opt(a)
	}

	logger.Debug("App constructed.", "platforms", len(archs), "rules", rules.Len())
	return a, nil
}

// archTable applies the configured platform blocks and the command-line
// filters to the default architecture table.
func archTable(m *config.Model, c *Config) (matrix.ArchTable, error) {
	table := matrix.DefaultArchTable()
	for _, p := range m.Platforms {
		if len(p.Architectures) > 0 {
			table = table.With(p.Name, p.Architectures)
		}
	}
	if err := table.Validate(); err != nil {
		return nil, fmt.Errorf("invalid architecture table: %w", err)
	}

	platforms, err := c.platforms()
	if err != nil {
		return nil, err
	}
	table = matrix.Restrict(table, platforms, c.archs())
	if len(table) == 0 {
		return nil, fmt.Errorf("platform and arch filters exclude every target")
	}
	return table, nil
}

// ruleTable layers the configured rule blocks over the built-in rules.
func ruleTable(ctx context.Context, m *config.Model) (*toolchain.Table, error) {
	table := toolchain.MustDefaultTable()
	if len(m.Rules) == 0 {
		return table, nil
	}

	rules := make([]toolchain.Rule, 0, len(m.Rules))
	for _, r := range m.Rules {
		rules = append(rules, toolchain.Rule{
			Platform:       r.Platform,
			Arch:           r.Arch,
			SDKPlatform:    r.SDKPlatform,
			Host:           r.Host,
			MinVersionFlag: r.MinVersionFlag,
			ExtraCFlags:    r.CFlags,
			ExtraLDFlags:   r.LDFlags,
			LinkSysroot:    r.LinkSysroot,
		})
	}
	table, replaced, err := table.Override(rules)
	if err != nil {
		return nil, fmt.Errorf("invalid toolchain rules: %w", err)
	}
	for _, target := range replaced {
		ctxlog.FromContext(ctx).Info("Built-in toolchain rule replaced by configuration.", "target", target.Label())
	}
	return table, nil
}
