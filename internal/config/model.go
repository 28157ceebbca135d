package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vk/unibuild/internal/model"
)

// Model is the unified, format-agnostic representation of a build run's
// configuration.
type Model struct {
	Package   Package
	Build     Build
	Platforms []Platform
	Rules     []Rule
}

// Package is the third-party source release to build.
type Package struct {
	Name    string
	Version string
	// URL is fully evaluated, with no template placeholders left.
	URL string
	// Library is the file name of the static library `make install` produces.
	Library string
	// SHA256 of the downloaded archive. Empty skips verification.
	SHA256 string
}

// Build controls how the external build is driven.
type Build struct {
	OtherCFlags   []string
	ConfigureArgs []string
	MakeJobs      int
	Timeout       time.Duration
	Workers       int
}

// Platform narrows or configures one platform of the matrix.
type Platform struct {
	Name          model.Platform
	Architectures []model.Arch
	// MinOS overrides the default deployment target.
	MinOS string
}

// Rule adds or replaces one toolchain decision-table entry.
type Rule struct {
	Platform       model.Platform
	Arch           model.Arch
	SDKPlatform    string
	Host           string
	MinVersionFlag string
	CFlags         []string
	LDFlags        []string
	LinkSysroot    bool
}

// Default returns the configuration used when no file is given.
func Default() *Model {
	return &Model{
		Package: Package{
			Name:    "libsodium",
			Version: "1.0.11",
			URL:     "https://github.com/jedisct1/libsodium/releases/download/1.0.11/libsodium-1.0.11.tar.gz",
			Library: "libsodium.a",
		},
		Build: Build{
			OtherCFlags:   []string{"-Os", "-Qunused-arguments"},
			ConfigureArgs: []string{"--disable-shared", "--enable-static"},
			MakeJobs:      8,
			Timeout:       30 * time.Minute,
			Workers:       1,
		},
	}
}

// Validate checks the invariants the rest of the program relies on.
func (m *Model) Validate() error {
	var problems []string
	if m.Package.Name == "" {
		problems = append(problems, "package name is empty")
	}
	if m.Package.URL == "" {
		problems = append(problems, "package url is empty")
	}
	if m.Package.Library == "" {
		problems = append(problems, "package library is empty")
	} else if !strings.HasSuffix(m.Package.Library, ".a") {
		problems = append(problems, fmt.Sprintf("package library %q is not a static archive", m.Package.Library))
	}
	if m.Build.MakeJobs < 1 {
		problems = append(problems, "build make_jobs must be at least 1")
	}
	if m.Build.Workers < 1 {
		problems = append(problems, "build workers must be at least 1")
	}
	if m.Build.Timeout <= 0 {
		problems = append(problems, "build timeout must be positive")
	}

	seen := make(map[model.Platform]bool)
	for _, p := range m.Platforms {
		if seen[p.Name] {
			problems = append(problems, fmt.Sprintf("platform %s configured more than once", p.Name))
		}
		seen[p.Name] = true
	}

	if len(problems) > 0 {
		return errors.New("invalid configuration: " + strings.Join(problems, "; "))
	}
	return nil
}
