// Package toolchain maps each build target to the cross-compilation settings
// the external configure/make needs.
//
// Resolution is a pure lookup in a decision table keyed by (platform,
// architecture). A target with no rule is reported as unsupported; there is
// no default configuration to fall back to.
package toolchain

import (
	"path/filepath"
	"slices"

	"github.com/vk/unibuild/internal/model"
)

// Resolver turns targets into toolchain configurations.
type Resolver struct {
	Table        *Table
	DeveloperDir string
	// OtherCFlags are appended to every target's CFLAGS.
	OtherCFlags []string
	// MinOS is the deployment target per platform. A platform missing here
	// uses its SDK version.
	MinOS map[model.Platform]string
}

// Resolve returns the configuration for target. It fails with an
// *model.UnsupportedTargetError when the table has no rule for target or the
// target's SDK is not installed; it never returns a partial configuration.
func (r *Resolver) Resolve(target model.Target, versions model.SDKVersionSet) (model.ToolchainConfig, error) {
	rule, ok := r.Table.Lookup(target)
	if !ok {
		return model.ToolchainConfig{}, &model.UnsupportedTargetError{Target: target, Reason: "no toolchain rule for this platform and architecture"}
	}
	sdkVersion, ok := versions.Version(target.Platform)
	if !ok {
		return model.ToolchainConfig{}, &model.UnsupportedTargetError{Target: target, Reason: "no " + string(target.Platform) + " SDK installed"}
	}

	minOS := r.MinOS[target.Platform]
	if minOS == "" {
		minOS = sdkVersion
	}

	platformDir := filepath.Join(r.DeveloperDir, "Platforms", rule.SDKPlatform+".platform", "Developer")
	sdkRoot := filepath.Join(platformDir, "SDKs", rule.SDKPlatform+sdkVersion+".sdk")
	arch := string(target.Arch)

	cflags := []string{"-arch", arch, "-isysroot", sdkRoot}
	if rule.MinVersionFlag != "" {
		cflags = append(cflags, rule.MinVersionFlag+"="+minOS)
	}
	cflags = append(cflags, rule.ExtraCFlags...)
	cflags = append(cflags, r.OtherCFlags...)

	ldflags := slices.Clone(rule.ExtraLDFlags)
	ldflags = append(ldflags, "-arch", arch)
	if rule.LinkSysroot {
		ldflags = append(ldflags, "-isysroot", sdkRoot)
	}

	return model.ToolchainConfig{
		Target:          target,
		SDKPlatform:     rule.SDKPlatform,
		SDKRoot:         sdkRoot,
		Host:            rule.Host,
		CFlags:          cflags,
		LDFlags:         ldflags,
		MinVersionFlag:  rule.MinVersionFlag,
		MinOSVersion:    minOS,
		ToolchainBinDir: filepath.Join(r.DeveloperDir, "Toolchains", "XcodeDefault.xctoolchain", "usr", "bin"),
	}, nil
}
