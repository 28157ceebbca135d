package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTarget_Label(t *testing.T) {
	assert.Equal(t, "iOS-arm64", Target{Platform: IOS, Arch: "arm64"}.Label())
	assert.Equal(t, "watchOS-armv7k", Target{Platform: WatchOS, Arch: "armv7k"}.String())
}

func TestParsePlatform(t *testing.T) {
	p, err := ParsePlatform("tvos")
	require.NoError(t, err)
	assert.Equal(t, TvOS, p)

	_, err = ParsePlatform("android")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown platform")
}

func TestSDKVersionSet_IsImmutableCopy(t *testing.T) {
	// --- Arrange ---
	src := map[Platform]string{IOS: "14.0", TvOS: ""}

	// --- Act ---
	set := NewSDKVersionSet(src)
	src[IOS] = "99.0"
	src[MacOS] = "11.0"

	// --- Assert ---
	v, ok := set.Version(IOS)
	require.True(t, ok)
	assert.Equal(t, "14.0", v)
	assert.False(t, set.Has(MacOS))
	assert.False(t, set.Has(TvOS), "empty versions must be dropped")
	assert.Equal(t, 1, set.Len())
}

func TestSDKVersionSet_PlatformsOrder(t *testing.T) {
	set := NewSDKVersionSet(map[Platform]string{WatchOS: "7.0", IOS: "14.0", MacOS: "11.0"})
	assert.Equal(t, []Platform{IOS, MacOS, WatchOS}, set.Platforms())
	assert.Equal(t, "iOS=14.0 macOS=11.0 watchOS=7.0", set.String())
}

func TestToolchainConfig_Environ(t *testing.T) {
	cfg := ToolchainConfig{
		CFlags:          []string{"-arch", "arm64", "-Os"},
		LDFlags:         []string{"-arch", "arm64"},
		ToolchainBinDir: "/dev/Toolchains/XcodeDefault.xctoolchain/usr/bin",
	}
	env := cfg.Environ([]string{"HOME=/home/me", "CFLAGS=-O0", "PATH=/usr/bin"})

	assert.Contains(t, env, "HOME=/home/me")
	assert.Contains(t, env, "CFLAGS=-arch arm64 -Os")
	assert.Contains(t, env, "LDFLAGS=-arch arm64")
	assert.NotContains(t, env, "CFLAGS=-O0")
	assert.Contains(t, env, "PATH=/dev/Toolchains/XcodeDefault.xctoolchain/usr/bin:/dev/Toolchains/XcodeDefault.xctoolchain/usr/sbin:/usr/bin")
}

func TestFailed_CarriesReason(t *testing.T) {
	target := Target{Platform: IOS, Arch: "i386"}
	stageErr := &ExternalBuildError{Target: target, Stage: StageCompile, Err: errors.New("exit status 2")}
	r := Failed(target, fmt.Errorf("building: %w", stageErr), 0)

	assert.False(t, r.Succeeded())
	assert.Equal(t, "building: iOS-i386: compile stage failed: exit status 2", r.Reason)

	var ebe *ExternalBuildError
	require.True(t, errors.As(r.Err, &ebe))
	assert.Equal(t, StageCompile, ebe.Stage)
}
