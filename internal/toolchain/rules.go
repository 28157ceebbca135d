package toolchain

import "github.com/vk/unibuild/internal/model"

// Rule is one row of the toolchain decision table. It is keyed by platform
// and architecture together: arm64 on iOS and arm64 on tvOS share a name but
// not an SDK.
type Rule struct {
	Platform model.Platform
	Arch     model.Arch

	// SDKPlatform is the Xcode platform directory, e.g. "iPhoneOS".
	SDKPlatform string
	// Host is the configure --host triple. 64-bit and watch ARM targets use
	// "arm-apple-darwin", which is what autotools' config.sub understands.
	Host string
	// MinVersionFlag is the clang flag that sets the deployment target.
	MinVersionFlag string

	ExtraCFlags  []string
	ExtraLDFlags []string
	// LinkSysroot adds -isysroot to LDFLAGS. Simulator links pick the SDK up
	// from the compiler driver instead.
	LinkSysroot bool
}

// Target returns the key of the rule.
func (r Rule) Target() model.Target {
	return model.Target{Platform: r.Platform, Arch: r.Arch}
}

// DefaultRules returns one rule for every entry of matrix.DefaultArchTable.
func DefaultRules() []Rule {
	return []Rule{
		// iOS devices
		{Platform: model.IOS, Arch: "armv7", SDKPlatform: "iPhoneOS", Host: "armv7-apple-darwin",
			MinVersionFlag: "-miphoneos-version-min", ExtraLDFlags: []string{"-mthumb"}, LinkSysroot: true},
		{Platform: model.IOS, Arch: "armv7s", SDKPlatform: "iPhoneOS", Host: "armv7s-apple-darwin",
			MinVersionFlag: "-miphoneos-version-min", ExtraLDFlags: []string{"-mthumb"}, LinkSysroot: true},
		{Platform: model.IOS, Arch: "arm64", SDKPlatform: "iPhoneOS", Host: "arm-apple-darwin",
			MinVersionFlag: "-miphoneos-version-min", LinkSysroot: true},
		// iOS simulator
		{Platform: model.IOS, Arch: "i386", SDKPlatform: "iPhoneSimulator", Host: "i386-apple-darwin",
			MinVersionFlag: "-mios-simulator-version-min", ExtraLDFlags: []string{"-m32"}},
		{Platform: model.IOS, Arch: "x86_64", SDKPlatform: "iPhoneSimulator", Host: "x86_64-apple-darwin",
			MinVersionFlag: "-mios-simulator-version-min"},

		{Platform: model.MacOS, Arch: "x86_64", SDKPlatform: "MacOSX", Host: "x86_64-apple-darwin",
			MinVersionFlag: "-mmacosx-version-min", LinkSysroot: true},

		{Platform: model.TvOS, Arch: "arm64", SDKPlatform: "AppleTVOS", Host: "arm-apple-darwin",
			MinVersionFlag: "-mtvos-version-min", LinkSysroot: true},
		{Platform: model.TvOS, Arch: "i386", SDKPlatform: "AppleTVSimulator", Host: "i386-apple-darwin",
			MinVersionFlag: "-mtvos-simulator-version-min", ExtraLDFlags: []string{"-m32"}},
		{Platform: model.TvOS, Arch: "x86_64", SDKPlatform: "AppleTVSimulator", Host: "x86_64-apple-darwin",
			MinVersionFlag: "-mtvos-simulator-version-min"},

		{Platform: model.WatchOS, Arch: "armv7k", SDKPlatform: "WatchOS", Host: "arm-apple-darwin",
			MinVersionFlag: "-mwatchos-version-min", LinkSysroot: true},
		{Platform: model.WatchOS, Arch: "i386", SDKPlatform: "WatchSimulator", Host: "i386-apple-darwin",
			MinVersionFlag: "-mwatchos-simulator-version-min", ExtraLDFlags: []string{"-m32"}},
		{Platform: model.WatchOS, Arch: "x86_64", SDKPlatform: "WatchSimulator", Host: "x86_64-apple-darwin",
			MinVersionFlag: "-mwatchos-simulator-version-min"},
	}
}

// DefaultMinOS is the deployment target used per platform.
func DefaultMinOS() map[model.Platform]string {
	return map[model.Platform]string{
		model.IOS:     "8.0",
		model.MacOS:   "10.10",
		model.TvOS:    "9.0",
		model.WatchOS: "2.0",
	}
}
