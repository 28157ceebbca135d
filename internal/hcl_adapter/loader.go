// Package hcl_adapter is the HCL implementation of config.Loader. It also
// renders resolved toolchain configurations back to HCL for --dry-run.
package hcl_adapter

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/unibuild/internal/config"
	"github.com/vk/unibuild/internal/ctxlog"
	"github.com/vk/unibuild/internal/fsutil"
)

// Loader is the HCL-specific implementation of the config.Loader interface.
type Loader struct{}

// NewLoader creates a new HCL configuration loader.
func NewLoader() *Loader {
	return &Loader{}
}

var _ config.Loader = (*Loader)(nil)

// fileRoot is a struct used to decode all possible top-level blocks from any file.
type fileRoot struct {
	Package   *PackageBlock    `hcl:"package,block"`
	Build     *BuildBlock      `hcl:"build,block"`
	Platforms []*PlatformBlock `hcl:"platform,block"`
	Rules     []*RuleBlock     `hcl:"rule,block"`
}

// Load parses every .hcl file under paths, in lexical order, and applies the
// blocks on top of config.Default. With no paths it returns the defaults.
func (l *Loader) Load(ctx context.Context, paths ...string) (*config.Model, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("HCL loader started.", "path_count", len(paths))

	model := config.Default()

	hclFiles, err := l.findAllHCLFiles(paths)
	if err != nil {
		return nil, err
	}
	logger.Debug("Discovered HCL files.", "count", len(hclFiles))

	parser := hclparse.NewParser()
	var packageFrom, buildFrom string

	for _, file := range hclFiles {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse HCL file %s: %w", file, diags)
		}

		var root fileRoot
		diags = gohcl.DecodeBody(hclFile.Body, nil, &root)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode HCL file %s: %w", file, diags)
		}

		if root.Package != nil {
			if packageFrom != "" {
				return nil, fmt.Errorf("package block in %s: already defined in %s", file, packageFrom)
			}
			packageFrom = file
			if err := l.translatePackage(ctx, root.Package, &model.Package); err != nil {
				return nil, fmt.Errorf("%s: %w", file, err)
			}
		}
		if root.Build != nil {
			if buildFrom != "" {
				return nil, fmt.Errorf("build block in %s: already defined in %s", file, buildFrom)
			}
			buildFrom = file
			if err := l.translateBuild(root.Build, &model.Build); err != nil {
				return nil, fmt.Errorf("%s: %w", file, err)
			}
		}
		for _, p := range root.Platforms {
			platform, err := l.translatePlatform(p)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", file, err)
			}
			model.Platforms = append(model.Platforms, platform)
		}
		for _, r := range root.Rules {
			rule, err := l.translateRule(r)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", file, err)
			}
			model.Rules = append(model.Rules, rule)
		}
	}

	if err := model.Validate(); err != nil {
		return nil, err
	}

	logger.Debug("HCL loading complete.", "package", model.Package.Name, "platforms", len(model.Platforms), "rules", len(model.Rules))
	return model, nil
}

// findAllHCLFiles walks all given paths and returns a flat list of all .hcl
// files found. Every path was asked for explicitly, so a missing one is an
// error.
func (l *Loader) findAllHCLFiles(paths []string) ([]string, error) {
	var allFiles []string
	seen := make(map[string]struct{})

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}

		var found []string
		switch {
		case info.IsDir():
			found, err = fsutil.FindFilesByExtension(path, ".hcl")
			if err != nil {
				return nil, err
			}
		case filepath.Ext(path) == ".hcl":
			found = []string{path}
		default:
			return nil, fmt.Errorf("configuration file %s must have the .hcl extension", path)
		}

		for _, f := range found {
			if _, wasSeen := seen[f]; !wasSeen {
				allFiles = append(allFiles, f)
				seen[f] = struct{}{}
			}
		}
	}
	return allFiles, nil
}

// isExprDefined reports whether an optional expression was actually written
// in the file. gohcl fills omitted optional expressions with zero-width
// placeholders, so a nil check is not enough.
func isExprDefined(expr hcl.Expression) bool {
	if expr == nil {
		return false
	}
	rng := expr.Range()
	return rng.End.Byte > rng.Start.Byte
}
