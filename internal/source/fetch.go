// Package source obtains the third-party source release and lays out a
// private copy of it in each target's build directory.
package source

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/vk/unibuild/internal/config"
	"github.com/vk/unibuild/internal/ctxlog"
)

// Fetcher downloads release archives into a cache directory.
type Fetcher struct {
	Client   *http.Client
	CacheDir string
}

// NewFetcher returns a Fetcher caching into dir.
func NewFetcher(dir string) *Fetcher {
	return &Fetcher{Client: http.DefaultClient, CacheDir: dir}
}

// Fetch returns the local path of pkg's archive, downloading it unless a
// cached copy with the expected checksum already exists.
func (f *Fetcher) Fetch(ctx context.Context, pkg config.Package) (string, error) {
	logger := ctxlog.FromContext(ctx).With("package", pkg.Name, "version", pkg.Version)

	name, err := archiveName(pkg.URL)
	if err != nil {
		return "", err
	}
	dst := filepath.Join(f.CacheDir, name)

	if _, err := os.Stat(dst); err == nil {
		if err := verifySHA256(dst, pkg.SHA256); err == nil {
			logger.Debug("Using cached source archive.", "path", dst)
			return dst, nil
		}
		logger.Warn("Cached source archive does not match checksum, downloading again.", "path", dst)
	}

	if err := os.MkdirAll(f.CacheDir, 0o755); err != nil {
		return "", fmt.Errorf("creating cache dir: %w", err)
	}

	logger.Info("📦 Downloading source release.", "url", pkg.URL)
	size, err := f.download(ctx, pkg.URL, dst)
	if err != nil {
		return "", err
	}
	if err := verifySHA256(dst, pkg.SHA256); err != nil {
		os.Remove(dst)
		return "", err
	}

	logger.Info("Source release downloaded.", "path", dst, "size", humanize.IBytes(uint64(size)))
	return dst, nil
}

func (f *Fetcher) download(ctx context.Context, rawURL, dst string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, fmt.Errorf("creating download request: %w", err)
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("downloading %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("downloading %s: unexpected status %s", rawURL, resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".download-*")
	if err != nil {
		return 0, fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, resp.Body)
	if err != nil {
		tmp.Close()
		return 0, fmt.Errorf("downloading %s: %w", rawURL, err)
	}
	if err := tmp.Close(); err != nil {
		return 0, err
	}
	if err := os.Rename(tmp.Name(), dst); err != nil {
		return 0, fmt.Errorf("storing archive: %w", err)
	}
	return n, nil
}

func archiveName(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid package url %q: %w", rawURL, err)
	}
	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		return "", fmt.Errorf("package url %q does not name a file", rawURL)
	}
	return name, nil
}

func verifySHA256(file, want string) error {
	if want == "" {
		return nil
	}
	fh, err := os.Open(file)
	if err != nil {
		return err
	}
	defer fh.Close()

	h := sha256.New()
	if _, err := io.Copy(h, fh); err != nil {
		return err
	}
	got := hex.EncodeToString(h.Sum(nil))
	if !strings.EqualFold(got, want) {
		return fmt.Errorf("checksum mismatch for %s: got %s, want %s", filepath.Base(file), got, want)
	}
	return nil
}
