package app

import (
	"errors"
	"fmt"
	"time"

	"github.com/vk/unibuild/internal/model"
	"github.com/vk/unibuild/internal/sdk"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	ConfigPaths []string // hcl files or directories, optional
	WorkDir     string
	DistDir     string

	Platforms    []string
	Archs        []string
	SDKOverrides []string // platform=version, bypasses discovery
	DeveloperDir string   // bypasses xcode-select
	Source       string   // local archive or directory instead of a download

	// Zero keeps the value from the configuration files.
	Workers int
	Timeout time.Duration

	ReportPath string
	DryRun     bool

	LogFormat  string
	LogLevel   string
	StatusPort int
}

// NewConfig validates cfg and returns a copy of it.
func NewConfig(cfg Config) (*Config, error) {
	if cfg.WorkDir == "" {
		return nil, errors.New("WorkDir is a required configuration field and cannot be empty")
	}
	if cfg.DistDir == "" {
		return nil, errors.New("DistDir is a required configuration field and cannot be empty")
	}
	if cfg.Workers < 0 {
		return nil, fmt.Errorf("workers must not be negative, got %d", cfg.Workers)
	}
	if cfg.Timeout < 0 {
		return nil, fmt.Errorf("timeout must not be negative, got %s", cfg.Timeout)
	}
	if cfg.StatusPort < 0 || cfg.StatusPort > 65535 {
		return nil, fmt.Errorf("status port %d is out of range", cfg.StatusPort)
	}
	switch cfg.LogFormat {
	case "", "text", "json":
	default:
		return nil, fmt.Errorf("invalid log format %q: must be 'text' or 'json'", cfg.LogFormat)
	}
	switch cfg.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid log level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.LogLevel)
	}
	if _, err := cfg.platforms(); err != nil {
		return nil, err
	}
	if _, err := sdk.ParseOverrides(cfg.SDKOverrides); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) platforms() ([]model.Platform, error) {
	out := make([]model.Platform, 0, len(c.Platforms))
	for _, name := range c.Platforms {
		p, err := model.ParsePlatform(name)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (c *Config) archs() []model.Arch {
	out := make([]model.Arch, 0, len(c.Archs))
	for _, a := range c.Archs {
		out = append(out, model.Arch(a))
	}
	return out
}
