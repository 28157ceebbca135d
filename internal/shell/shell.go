// Package shell runs the external host tools unibuild depends on
// (xcodebuild, xcode-select, xcrun, configure, make, lipo) with an explicit
// working directory and environment.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"

	"github.com/google/shlex"
	"github.com/vk/unibuild/internal/ctxlog"
)

// Command describes one process invocation.
type Command struct {
	Name string
	Args []string
	Dir  string
	// Env is the complete child environment. Nil inherits the parent's.
	Env []string
	// Log receives combined stdout and stderr when set.
	Log io.Writer
}

// String renders the command line for logs.
func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Runner starts external processes.
type Runner interface {
	// Run executes cmd and waits for it to finish.
	Run(ctx context.Context, cmd Command) error
	// Output executes cmd and returns its trimmed stdout.
	Output(ctx context.Context, cmd Command) (string, error)
}

// CommandError is returned when a process cannot start or exits non-zero.
type CommandError struct {
	Command  string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%q failed", e.Command)
	if e.ExitCode > 0 {
		msg = fmt.Sprintf("%s with exit code %d", msg, e.ExitCode)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Stderr != "" {
		msg = fmt.Sprintf("%s: %s", msg, e.Stderr)
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }

// Exec is the os/exec backed Runner.
type Exec struct{}

// New returns the default process Runner.
func New() *Exec {
	return &Exec{}
}

// Run implements Runner.
func (x *Exec) Run(ctx context.Context, cmd Command) error {
	_, err := x.run(ctx, cmd, false)
	return err
}

// Output implements Runner.
func (x *Exec) Output(ctx context.Context, cmd Command) (string, error) {
	out, err := x.run(ctx, cmd, true)
	return strings.TrimSpace(out), err
}

func (x *Exec) run(ctx context.Context, cmd Command, capture bool) (string, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Starting external command.", "command", cmd.String(), "dir", cmd.Dir)

	c := exec.CommandContext(ctx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.Env = cmd.Env

	var stdout bytes.Buffer
	stderrTail := &tailWriter{limit: 2048}
	var outW, errW []io.Writer
	if capture {
		outW = append(outW, &stdout)
	}
	errW = append(errW, stderrTail)
	if cmd.Log != nil {
		outW = append(outW, cmd.Log)
		errW = append(errW, cmd.Log)
	}
	if len(outW) > 0 {
		c.Stdout = io.MultiWriter(outW...)
	}
	c.Stderr = io.MultiWriter(errW...)

	if err := c.Run(); err != nil {
		cerr := &CommandError{Command: cmd.String(), Stderr: strings.TrimSpace(stderrTail.String()), Err: err}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			cerr.ExitCode = exitErr.ExitCode()
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			cerr.Err = ctxErr
		}
		logger.Debug("External command failed.", "command", cmd.String(), "error", cerr)
		return stdout.String(), cerr
	}

	logger.Debug("External command finished.", "command", cmd.String())
	return stdout.String(), nil
}

// tailWriter keeps the last limit bytes written to it.
type tailWriter struct {
	limit int
	buf   []byte
}

func (w *tailWriter) Write(p []byte) (int, error) {
	w.buf = append(w.buf, p...)
	if over := len(w.buf) - w.limit; over > 0 {
		w.buf = w.buf[over:]
	}
	return len(p), nil
}

func (w *tailWriter) String() string {
	return string(w.buf)
}

// SplitFlags tokenizes a flag string the way a POSIX shell would, so that
// quoted values like -DNAME="a b" stay a single argument.
func SplitFlags(s string) ([]string, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	fields, err := shlex.Split(s)
	if err != nil {
		return nil, fmt.Errorf("invalid flag string %q: %w", s, err)
	}
	return fields, nil
}
