package hcl_adapter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/vk/unibuild/internal/config"
	"github.com/vk/unibuild/internal/ctxlog"
	"github.com/vk/unibuild/internal/model"
	"github.com/vk/unibuild/internal/shell"
	"github.com/zclconf/go-cty/cty"
)

// translatePackage applies a package block. The url attribute is a template
// that may reference `name` and `version`.
func (l *Loader) translatePackage(ctx context.Context, b *PackageBlock, dst *config.Package) error {
	evalCtx := &hcl.EvalContext{
		Variables: map[string]cty.Value{
			"name":    cty.StringVal(b.Name),
			"version": cty.StringVal(b.Version),
		},
	}

	var url string
	if diags := gohcl.DecodeExpression(b.URL, evalCtx, &url); diags.HasErrors() {
		return fmt.Errorf("package %q url: %w", b.Name, diags)
	}
	ctxlog.FromContext(ctx).Debug("Package url evaluated.", "package", b.Name, "url", url)

	dst.Name = b.Name
	dst.Version = b.Version
	dst.URL = url
	dst.SHA256 = ""
	if b.SHA256 != nil {
		dst.SHA256 = strings.ToLower(*b.SHA256)
	}
	if b.Library != nil {
		dst.Library = *b.Library
	} else {
		dst.Library = strings.TrimPrefix(b.Name, "lib")
		dst.Library = "lib" + dst.Library + ".a"
	}
	return nil
}

func (l *Loader) translateBuild(b *BuildBlock, dst *config.Build) error {
	if b.OtherCFlags != nil {
		flags, err := shell.SplitFlags(*b.OtherCFlags)
		if err != nil {
			return fmt.Errorf("build other_cflags: %w", err)
		}
		dst.OtherCFlags = flags
	}
	if b.ConfigureArgs != nil {
		dst.ConfigureArgs = *b.ConfigureArgs
	}
	if b.MakeJobs != nil {
		dst.MakeJobs = *b.MakeJobs
	}
	if b.Workers != nil {
		dst.Workers = *b.Workers
	}
	if b.Timeout != nil {
		d, err := time.ParseDuration(*b.Timeout)
		if err != nil {
			return fmt.Errorf("build timeout: %w", err)
		}
		dst.Timeout = d
	}
	return nil
}

func (l *Loader) translatePlatform(b *PlatformBlock) (config.Platform, error) {
	p, err := model.ParsePlatform(b.Name)
	if err != nil {
		return config.Platform{}, fmt.Errorf("platform block: %w", err)
	}
	out := config.Platform{Name: p}
	for _, a := range b.Architectures {
		out.Architectures = append(out.Architectures, model.Arch(a))
	}
	if b.MinOS != nil {
		out.MinOS = *b.MinOS
	}
	return out, nil
}

func (l *Loader) translateRule(b *RuleBlock) (config.Rule, error) {
	p, err := model.ParsePlatform(b.Platform)
	if err != nil {
		return config.Rule{}, fmt.Errorf("rule block: %w", err)
	}

	rule := config.Rule{
		Platform:    p,
		Arch:        model.Arch(b.Arch),
		SDKPlatform: b.SDKPlatform,
		Host:        b.Host,
		CFlags:      b.CFlags,
		LDFlags:     b.LDFlags,
		// Device SDKs are linked against explicitly, simulators are not.
		LinkSysroot: !strings.HasSuffix(b.SDKPlatform, "Simulator"),
	}
	if b.MinVersionFlag != nil {
		rule.MinVersionFlag = *b.MinVersionFlag
	}
	if isExprDefined(b.LinkSysroot) {
		if diags := gohcl.DecodeExpression(b.LinkSysroot, nil, &rule.LinkSysroot); diags.HasErrors() {
			return config.Rule{}, fmt.Errorf("rule %s-%s link_sysroot: %w", b.Platform, b.Arch, diags)
		}
	}
	return rule, nil
}
