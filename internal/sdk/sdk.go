// Package sdk discovers which Apple platform SDKs the host has installed.
package sdk

import (
	"bufio"
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/vk/unibuild/internal/ctxlog"
	"github.com/vk/unibuild/internal/model"
	"github.com/vk/unibuild/internal/shell"
)

// Discoverer reports the installed SDK versions.
type Discoverer interface {
	Discover(ctx context.Context) (model.SDKVersionSet, error)
}

// sdkPatterns maps `xcodebuild -showsdks` flags to platforms. Simulator SDKs
// are deliberately absent; their version always follows the device SDK.
var sdkPatterns = []struct {
	platform model.Platform
	re       *regexp.Regexp
}{
	{model.IOS, regexp.MustCompile(`-sdk iphoneos(\S+)`)},
	{model.MacOS, regexp.MustCompile(`-sdk macosx(\S+)`)},
	{model.TvOS, regexp.MustCompile(`-sdk appletvos(\S+)`)},
	{model.WatchOS, regexp.MustCompile(`-sdk watchos(\S+)`)},
}

// ParseShowSDKs extracts platform versions from `xcodebuild -showsdks`
// output. When a platform is listed more than once the last line wins.
func ParseShowSDKs(output string) model.SDKVersionSet {
	versions := make(map[model.Platform]string)
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := scanner.Text()
		for _, p := range sdkPatterns {
			if m := p.re.FindStringSubmatch(line); m != nil {
				versions[p.platform] = m[1]
				break
			}
		}
	}
	return model.NewSDKVersionSet(versions)
}

// Xcode discovers SDKs by asking xcodebuild.
type Xcode struct {
	Runner shell.Runner
}

// NewXcode returns an Xcode discoverer backed by runner.
func NewXcode(runner shell.Runner) *Xcode {
	return &Xcode{Runner: runner}
}

// Discover implements Discoverer. A host with no SDK yields an empty set and
// no error; deciding whether that is fatal is left to the caller.
func (x *Xcode) Discover(ctx context.Context) (model.SDKVersionSet, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Querying xcodebuild for installed SDKs.")

	out, err := x.Runner.Output(ctx, shell.Command{Name: "xcodebuild", Args: []string{"-showsdks"}})
	if err != nil {
		return model.SDKVersionSet{}, fmt.Errorf("listing sdks: %w", err)
	}

	set := ParseShowSDKs(out)
	logger.Debug("SDK listing parsed.", "platforms", set.Len(), "versions", set.String())
	return set, nil
}

// DeveloperDir returns the active Xcode developer directory.
func (x *Xcode) DeveloperDir(ctx context.Context) (string, error) {
	out, err := x.Runner.Output(ctx, shell.Command{Name: "xcode-select", Args: []string{"-print-path"}})
	if err != nil {
		return "", fmt.Errorf("locating developer dir: %w", err)
	}
	if out == "" {
		return "", fmt.Errorf("locating developer dir: xcode-select printed nothing")
	}
	return out, nil
}

// Static is a Discoverer returning a fixed set, used for --sdk overrides.
type Static struct {
	Versions model.SDKVersionSet
}

// Discover implements Discoverer.
func (s Static) Discover(ctx context.Context) (model.SDKVersionSet, error) {
	ctxlog.FromContext(ctx).Debug("Using static SDK versions.", "versions", s.Versions.String())
	return s.Versions, nil
}

// ParseOverrides turns "platform=version" pairs into a version set.
func ParseOverrides(pairs []string) (model.SDKVersionSet, error) {
	versions := make(map[model.Platform]string, len(pairs))
	for _, pair := range pairs {
		name, version, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(version) == "" {
			return model.SDKVersionSet{}, fmt.Errorf("invalid sdk override %q: want platform=version", pair)
		}
		p, err := model.ParsePlatform(name)
		if err != nil {
			return model.SDKVersionSet{}, err
		}
		versions[p] = strings.TrimSpace(version)
	}
	return model.NewSDKVersionSet(versions), nil
}
