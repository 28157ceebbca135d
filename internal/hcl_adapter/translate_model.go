package hcl_adapter

import "github.com/hashicorp/hcl/v2"

// PackageBlock is the `package "<name>"` block.
type PackageBlock struct {
	Name    string         `hcl:"name,label"`
	Version string         `hcl:"version"`
	URL     hcl.Expression `hcl:"url"`
	Library *string        `hcl:"library,optional"`
	SHA256  *string        `hcl:"sha256,optional"`
}

// BuildBlock is the `build` block. Omitted attributes keep their defaults.
type BuildBlock struct {
	OtherCFlags   *string   `hcl:"other_cflags,optional"`
	ConfigureArgs *[]string `hcl:"configure_args,optional"`
	MakeJobs      *int      `hcl:"make_jobs,optional"`
	Timeout       *string   `hcl:"timeout,optional"`
	Workers       *int      `hcl:"workers,optional"`
}

// PlatformBlock is the `platform "<name>"` block.
type PlatformBlock struct {
	Name          string   `hcl:"name,label"`
	Architectures []string `hcl:"architectures,optional"`
	MinOS         *string  `hcl:"min_os,optional"`
}

// RuleBlock is the `rule "<platform>" "<arch>"` block.
type RuleBlock struct {
	Platform       string         `hcl:"platform,label"`
	Arch           string         `hcl:"arch,label"`
	SDKPlatform    string         `hcl:"sdk_platform"`
	Host           string         `hcl:"host"`
	MinVersionFlag *string        `hcl:"min_version_flag,optional"`
	CFlags         []string       `hcl:"cflags,optional"`
	LDFlags        []string       `hcl:"ldflags,optional"`
	LinkSysroot    hcl.Expression `hcl:"link_sysroot,optional"`
}
