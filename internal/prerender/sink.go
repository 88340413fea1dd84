package prerender

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/elm-starter/internal/fsutil"
)

const pagePerm = 0o644

// PageSink maps site URLs onto the build tree and writes page artifacts.
type PageSink struct {
	root   string
	logger *zap.Logger
}

// NewPageSink returns a sink rooted at the build directory.
func NewPageSink(root string, logger *zap.Logger) *PageSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PageSink{root: filepath.Clean(root), logger: logger}
}

// Dir returns the directory holding the artifacts of url: "/" maps to the
// root, "/about" and "/about/" to <root>/about.
func (s *PageSink) Dir(url string) (string, error) {
	clean := path.Clean("/" + url)
	dir := filepath.Join(s.root, filepath.FromSlash(clean))
	if dir != s.root && !strings.HasPrefix(dir, s.root+string(filepath.Separator)) {
		return "", fmt.Errorf("path traversal detected for %q", url)
	}
	return dir, nil
}

// Prepare creates the directory for url. Creation failures are logged and
// left for the following write to report.
func (s *PageSink) Prepare(url string) (string, error) {
	dir, err := s.Dir(url)
	if err != nil {
		return "", err
	}
	if err := fsutil.EnsureDir(dir); err != nil {
		s.logger.Debug("ensure page dir", zap.String("dir", dir), zap.Error(err))
	}
	return dir, nil
}

// Write stores data as <dir of url>/<name> and returns the file path.
func (s *PageSink) Write(ctx context.Context, url, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("context canceled: %w", err)
	}
	if name == "" || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("invalid file name %q", name)
	}
	dir, err := s.Dir(url)
	if err != nil {
		return "", err
	}
	target := filepath.Join(dir, name)
	if err := os.WriteFile(target, data, pagePerm); err != nil {
		return "", fmt.Errorf("write %s: %w", target, err)
	}
	return target, nil
}
