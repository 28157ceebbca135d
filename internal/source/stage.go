package source

import (
	"archive/tar"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/vk/unibuild/internal/ctxlog"
	"github.com/vk/unibuild/internal/fsutil"
)

// Stager places a fresh, private copy of the source tree into a directory.
type Stager interface {
	Stage(ctx context.Context, dst string) error
}

// NewStager picks the stager for a local path: a directory is copied, any
// other file is extracted as a .tar.gz archive.
func NewStager(path string) (Stager, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("source %s: %w", path, err)
	}
	if info.IsDir() {
		return DirStager{Dir: path}, nil
	}
	return ArchiveStager{Archive: path}, nil
}

// DirStager copies an already unpacked source tree.
type DirStager struct {
	Dir string
}

// Stage implements Stager.
func (s DirStager) Stage(ctx context.Context, dst string) error {
	ctxlog.FromContext(ctx).Debug("Copying source tree.", "from", s.Dir, "to", dst)
	if err := fsutil.CopyDir(s.Dir, dst); err != nil {
		return fmt.Errorf("copying source tree: %w", err)
	}
	return nil
}

// ArchiveStager extracts a .tar.gz release, dropping its top-level directory
// (libsodium-1.0.11/configure lands as dst/configure).
type ArchiveStager struct {
	Archive string
}

// Stage implements Stager.
func (s ArchiveStager) Stage(ctx context.Context, dst string) error {
	ctxlog.FromContext(ctx).Debug("Extracting source archive.", "archive", s.Archive, "to", dst)

	fh, err := os.Open(s.Archive)
	if err != nil {
		return err
	}
	defer fh.Close()

	gz, err := gzip.NewReader(fh)
	if err != nil {
		return fmt.Errorf("reading %s: %w", filepath.Base(s.Archive), err)
	}
	defer gz.Close()

	if err := os.MkdirAll(dst, 0o755); err != nil {
		return err
	}

	tr := tar.NewReader(gz)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading %s: %w", filepath.Base(s.Archive), err)
		}
		if err := extractEntry(tr, hdr, dst); err != nil {
			return err
		}
	}
}

func extractEntry(tr *tar.Reader, hdr *tar.Header, dst string) error {
	rel := stripFirstComponent(hdr.Name)
	if rel == "" {
		return nil
	}
	root := filepath.Clean(dst)
	target := filepath.Join(root, rel)
	if !within(root, target) || target == root {
		return fmt.Errorf("archive entry %q escapes the destination", hdr.Name)
	}
	// An earlier symlink entry must not redirect later writes.
	if err := rejectSymlinkedPath(root, target); err != nil {
		return fmt.Errorf("archive entry %q: %w", hdr.Name, err)
	}

	switch hdr.Typeflag {
	case tar.TypeDir:
		return os.MkdirAll(target, 0o755)
	case tar.TypeReg:
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode).Perm())
		if err != nil {
			return err
		}
		if _, err := io.Copy(out, tr); err != nil {
			out.Close()
			return err
		}
		return out.Close()
	case tar.TypeSymlink:
		if filepath.IsAbs(hdr.Linkname) || !within(root, filepath.Join(filepath.Dir(target), hdr.Linkname)) {
			return fmt.Errorf("archive symlink %q -> %q escapes the destination", hdr.Name, hdr.Linkname)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		return os.Symlink(hdr.Linkname, target)
	default:
		return nil
	}
}

// within reports whether path is root or lies below it. Both must be clean.
func within(root, path string) bool {
	return path == root || strings.HasPrefix(path, root+string(os.PathSeparator))
}

// rejectSymlinkedPath fails when target or any directory between root and
// target is an existing symlink.
func rejectSymlinkedPath(root, target string) error {
	rel, err := filepath.Rel(root, target)
	if err != nil {
		return err
	}
	cur := root
	for _, part := range strings.Split(rel, string(os.PathSeparator)) {
		cur = filepath.Join(cur, part)
		info, err := os.Lstat(cur)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			return fmt.Errorf("path %s is a symlink", cur)
		}
	}
	return nil
}

func stripFirstComponent(name string) string {
	name = strings.TrimPrefix(filepath.ToSlash(name), "./")
	_, rest, found := strings.Cut(name, "/")
	if !found {
		return ""
	}
	return filepath.FromSlash(strings.TrimSuffix(rest, "/"))
}
