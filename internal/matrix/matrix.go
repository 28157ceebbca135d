// Package matrix enumerates the (platform, architecture) build targets.
//
// Enumeration order is platform-then-architecture, following the order of the
// ArchTable exactly. Log output, build directories and the merged archives all
// follow this order, so two runs over the same SDKs behave identically.
package matrix

import (
	"fmt"
	"slices"

	"github.com/vk/unibuild/internal/model"
)

// PlatformArchs is one row of the architecture table.
type PlatformArchs struct {
	Platform model.Platform
	Archs    []model.Arch
}

// ArchTable is the ordered list of valid architectures per platform.
type ArchTable []PlatformArchs

// DefaultArchTable returns the architectures built for each platform when no
// configuration narrows them.
func DefaultArchTable() ArchTable {
	return ArchTable{
		{Platform: model.IOS, Archs: []model.Arch{"armv7", "armv7s", "arm64", "i386", "x86_64"}},
		{Platform: model.MacOS, Archs: []model.Arch{"x86_64"}},
		{Platform: model.TvOS, Archs: []model.Arch{"arm64", "i386", "x86_64"}},
		{Platform: model.WatchOS, Archs: []model.Arch{"armv7k", "i386", "x86_64"}},
	}
}

// Targets lists every declared target, ignoring SDK availability.
func (t ArchTable) Targets() []model.Target {
	var out []model.Target
	for _, row := range t {
		for _, arch := range row.Archs {
			out = append(out, model.Target{Platform: row.Platform, Arch: arch})
		}
	}
	return out
}

// Validate rejects duplicate platforms and duplicate architectures.
func (t ArchTable) Validate() error {
	seen := make(map[model.Platform]bool, len(t))
	for _, row := range t {
		if seen[row.Platform] {
			return fmt.Errorf("platform %s declared more than once", row.Platform)
		}
		seen[row.Platform] = true
		archs := make(map[model.Arch]bool, len(row.Archs))
		for _, a := range row.Archs {
			if archs[a] {
				return fmt.Errorf("architecture %s declared more than once for %s", a, row.Platform)
			}
			archs[a] = true
		}
	}
	return nil
}

// With returns a copy of t where p's architectures are replaced by archs. A
// platform not yet in the table is appended.
func (t ArchTable) With(p model.Platform, archs []model.Arch) ArchTable {
	out := make(ArchTable, 0, len(t)+1)
	replaced := false
	for _, row := range t {
		if row.Platform == p {
			row = PlatformArchs{Platform: p, Archs: slices.Clone(archs)}
			replaced = true
		}
		out = append(out, row)
	}
	if !replaced {
		out = append(out, PlatformArchs{Platform: p, Archs: slices.Clone(archs)})
	}
	return out
}

// Enumerate returns the targets of every platform present in versions, in
// table order. Platforms without an installed SDK are skipped.
func Enumerate(versions model.SDKVersionSet, table ArchTable) []model.Target {
	var out []model.Target
	for _, row := range table {
		if !versions.Has(row.Platform) {
			continue
		}
		for _, arch := range row.Archs {
			out = append(out, model.Target{Platform: row.Platform, Arch: arch})
		}
	}
	return out
}

// Restrict keeps only the listed platforms and architectures. Empty filters
// keep everything. Order is preserved and emptied platforms are dropped.
func Restrict(table ArchTable, platforms []model.Platform, archs []model.Arch) ArchTable {
	var out ArchTable
	for _, row := range table {
		if len(platforms) > 0 && !slices.Contains(platforms, row.Platform) {
			continue
		}
		kept := row.Archs
		if len(archs) > 0 {
			kept = nil
			for _, a := range row.Archs {
				if slices.Contains(archs, a) {
					kept = append(kept, a)
				}
			}
		}
		if len(kept) == 0 {
			continue
		}
		out = append(out, PlatformArchs{Platform: row.Platform, Archs: slices.Clone(kept)})
	}
	return out
}
