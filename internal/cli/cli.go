package cli

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/pflag"
	"github.com/vk/unibuild/internal/app"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

// Parse processes command-line arguments. It returns a populated Config,
// a boolean indicating if the program should exit cleanly, or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	slog.Debug("CLI parser started.")
	flagSet := pflag.NewFlagSet("unibuild", pflag.ContinueOnError)
	flagSet.SetOutput(output)
	flagSet.SortFlags = false

	flagSet.Usage = func() {
		fmt.Fprint(output, `
unibuild - builds a C library for every Apple platform and architecture and
merges the results into one universal static library per platform.

Usage:
  unibuild [options] [CONFIG_PATH]

Arguments:
  CONFIG_PATH
    Path to a single .hcl file or a directory containing .hcl files.
    Built-in defaults are used when omitted.

Options:
`)
		fmt.Fprint(output, flagSet.FlagUsages())
	}

	configFlag := flagSet.StringArrayP("config", "c", nil, "Path to an .hcl file or directory. Repeatable.")
	workDirFlag := flagSet.String("work-dir", "./unibuild_work", "Directory for per-target build trees and downloads.")
	distDirFlag := flagSet.String("dist-dir", "./unibuild_dist", "Directory receiving one universal library per platform.")
	platformFlag := flagSet.StringSlice("platform", nil, "Only build these platforms (iOS, macOS, tvOS, watchOS).")
	archFlag := flagSet.StringSlice("arch", nil, "Only build these architectures.")
	sdkFlag := flagSet.StringArray("sdk", nil, "Use platform=version instead of asking xcodebuild. Repeatable.")
	devDirFlag := flagSet.String("developer-dir", "", "Xcode developer directory. Defaults to xcode-select -print-path.")
	sourceFlag := flagSet.String("source", "", "Local source archive or directory to build instead of downloading.")
	workersFlag := flagSet.Int("workers", 0, "Number of targets built concurrently. 0 uses the configuration file value.")
	timeoutFlag := flagSet.Duration("timeout", 0, "Per-target build timeout. 0 uses the configuration file value.")
	reportFlag := flagSet.String("report", "", "Write a YAML build report to this path.")
	dryRunFlag := flagSet.Bool("dry-run", false, "Print the resolved toolchain for every target as HCL and exit.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	statusPortFlag := flagSet.Int("status-port", 0, "Port for the HTTP /health and /status server. 0 is disabled.")

	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	slog.Debug("Arguments parsed successfully.")

	configPaths := append([]string(nil), *configFlag...)
	configPaths = append(configPaths, flagSet.Args()...)
	slog.Debug("Config paths determined.", "paths", configPaths)

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}

	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
		// valid
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}
	slog.Debug("CLI parameter validation complete.")

	config, err := app.NewConfig(app.Config{
		ConfigPaths:  configPaths,
		WorkDir:      *workDirFlag,
		DistDir:      *distDirFlag,
		Platforms:    *platformFlag,
		Archs:        *archFlag,
		SDKOverrides: *sdkFlag,
		DeveloperDir: *devDirFlag,
		Source:       *sourceFlag,
		Workers:      *workersFlag,
		Timeout:      *timeoutFlag,
		ReportPath:   *reportFlag,
		DryRun:       *dryRunFlag,
		LogFormat:    logFormat,
		LogLevel:     logLevel,
		StatusPort:   *statusPortFlag,
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	slog.Debug("CLI parser finished successfully.", "config", config)
	return config, false, nil
}
