// Package report summarizes a build run: which platforms produced a
// universal library, which were skipped, and which targets failed and why.
package report

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/vk/unibuild/internal/aggregate"
	"github.com/vk/unibuild/internal/config"
	"github.com/vk/unibuild/internal/model"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"
)

// Report is the final summary of a run.
type Report struct {
	RunID    string            `yaml:"run_id"`
	Package  string            `yaml:"package"`
	Version  string            `yaml:"version"`
	Started  time.Time         `yaml:"started"`
	Duration string            `yaml:"duration"`
	SDKs     map[string]string `yaml:"sdks"`

	Platforms []PlatformEntry `yaml:"platforms"`
	Skipped   []SkippedEntry  `yaml:"skipped,omitempty"`
	Targets   []TargetEntry   `yaml:"targets"`

	errs []error
}

// PlatformEntry describes one produced artifact.
type PlatformEntry struct {
	Platform string `yaml:"platform"`
	Library  string `yaml:"library"`
	Headers  string `yaml:"headers"`
	// HeaderSource is the target whose headers were copied; headers are
	// assumed identical across architectures.
	HeaderSource  string   `yaml:"header_source"`
	Architectures []string `yaml:"architectures"`
	Size          string   `yaml:"size,omitempty"`
}

// SkippedEntry is a platform without an artifact.
type SkippedEntry struct {
	Platform string `yaml:"platform"`
	Reason   string `yaml:"reason"`
}

// TargetEntry is the outcome of one target.
type TargetEntry struct {
	Target   string `yaml:"target"`
	Status   string `yaml:"status"`
	Reason   string `yaml:"reason,omitempty"`
	TimedOut bool   `yaml:"timed_out,omitempty"`
	Duration string `yaml:"duration"`
}

// New builds the report of a finished run.
func New(runID string, pkg config.Package, versions model.SDKVersionSet, started time.Time, elapsed time.Duration, results []model.BuildResult, outcome aggregate.Outcome) *Report {
	r := &Report{
		RunID:    runID,
		Package:  pkg.Name,
		Version:  pkg.Version,
		Started:  started.UTC(),
		Duration: elapsed.Round(time.Millisecond).String(),
		SDKs:     make(map[string]string),
	}
	for _, p := range versions.Platforms() {
		v, _ := versions.Version(p)
		r.SDKs[string(p)] = v
	}

	for _, a := range outcome.Artifacts {
		entry := PlatformEntry{
			Platform:     string(a.Platform),
			Library:      a.LibraryPath,
			Headers:      a.HeaderDir,
			HeaderSource: a.HeaderSource.Label(),
		}
		for _, arch := range a.Architectures {
			entry.Architectures = append(entry.Architectures, string(arch))
		}
		if info, err := os.Stat(a.LibraryPath); err == nil {
			entry.Size = humanize.IBytes(uint64(info.Size()))
		}
		r.Platforms = append(r.Platforms, entry)
	}
	for _, s := range outcome.Skipped {
		r.Skipped = append(r.Skipped, SkippedEntry{Platform: string(s.Platform), Reason: s.Reason})
		if s.Err != nil {
			r.errs = append(r.errs, s.Err)
		}
	}

	for _, res := range results {
		r.Targets = append(r.Targets, TargetEntry{
			Target:   res.Target.Label(),
			Status:   string(res.Status),
			Reason:   res.Reason,
			TimedOut: res.TimedOut,
			Duration: res.Duration.Round(time.Millisecond).String(),
		})
		if !res.Succeeded() {
			err := res.Err
			if err == nil {
				err = fmt.Errorf("%s: %s", res.Target.Label(), res.Reason)
			}
			r.errs = append(r.errs, err)
		}
	}
	return r
}

// Failed returns the targets that did not build.
func (r *Report) Failed() []TargetEntry {
	var out []TargetEntry
	for _, t := range r.Targets {
		if t.Status != string(model.StatusSucceeded) {
			out = append(out, t)
		}
	}
	return out
}

// Err combines every target and aggregation failure into one error, or
// returns nil when everything succeeded.
func (r *Report) Err() error {
	return multierr.Combine(r.errs...)
}

// WriteText writes the human-readable summary.
func (r *Report) WriteText(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)

	fmt.Fprintf(tw, "\nBuild summary for %s %s (run %s, %s)\n", r.Package, r.Version, r.RunID, r.Duration)

	fmt.Fprintln(tw, "\nSucceeded platforms:")
	if len(r.Platforms) == 0 {
		fmt.Fprintln(tw, "  (none)")
	}
	for _, p := range r.Platforms {
		fmt.Fprintf(tw, "  %s\t%s\t%s\t%s\theaders from %s\n", p.Platform, strings.Join(p.Architectures, " "), p.Library, p.Size, p.HeaderSource)
	}

	if len(r.Skipped) > 0 {
		fmt.Fprintln(tw, "\nSkipped platforms:")
		for _, s := range r.Skipped {
			fmt.Fprintf(tw, "  %s\t%s\n", s.Platform, s.Reason)
		}
	}

	if failed := r.Failed(); len(failed) > 0 {
		fmt.Fprintln(tw, "\nFailed targets:")
		for _, t := range failed {
			fmt.Fprintf(tw, "  %s\t%s\t%s\n", t.Target, t.Duration, t.Reason)
		}
	}
	return tw.Flush()
}

// WriteYAML writes the machine-readable report to path.
func (r *Report) WriteYAML(path string) error {
	data, err := yaml.Marshal(r)
	if err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
