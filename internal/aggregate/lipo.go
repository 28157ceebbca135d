package aggregate

import (
	"context"
	"fmt"
	"sync"

	"github.com/vk/unibuild/internal/ctxlog"
	"github.com/vk/unibuild/internal/shell"
)

// Lipo merges libraries with Apple's lipo tool.
type Lipo struct {
	Runner shell.Runner
	// Path to lipo. Empty asks xcrun for it on first use.
	Path string

	once    sync.Once
	findErr error
}

// Merge implements Merger.
func (l *Lipo) Merge(ctx context.Context, inputs []string, output string) error {
	l.once.Do(func() {
		if l.Path != "" {
			return
		}
		path, err := l.Runner.Output(ctx, shell.Command{Name: "xcrun", Args: []string{"-sdk", "iphoneos", "-find", "lipo"}})
		if err == nil && path == "" {
			err = fmt.Errorf("xcrun printed nothing")
		}
		if err != nil {
			l.findErr = fmt.Errorf("locating lipo: %w", err)
			return
		}
		l.Path = path
	})
	if l.findErr != nil {
		return l.findErr
	}

	args := append([]string{"-create"}, inputs...)
	args = append(args, "-output", output)
	ctxlog.FromContext(ctx).Debug("Merging libraries.", "lipo", l.Path, "inputs", len(inputs), "output", output)
	return l.Runner.Run(ctx, shell.Command{Name: l.Path, Args: args})
}
