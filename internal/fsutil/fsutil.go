// Package fsutil implements the directory primitives used to scaffold the dev
// tree and assemble production builds.
package fsutil

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/otiai10/copy"
	"go.uber.org/zap"
)

// IgnoredName is the editor/OS metadata file that is never copied or linked.
const IgnoredName = ".DS_Store"

const (
	dirPerm  = 0o750
	filePerm = 0o644
)

// EnsureDir creates path and its ancestors when absent. Callers treat it as
// best-effort and usually discard the error.
func EnsureDir(path string) error {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return nil
	}
	if err := os.MkdirAll(path, dirPerm); err != nil {
		return fmt.Errorf("create dir %s: %w", path, err)
	}
	return nil
}

// RemoveDirectoryTree deletes everything below path. When removeRoot is true
// the emptied root is removed as well. A missing root is a no-op.
func RemoveDirectoryTree(path string, removeRoot bool) error {
	entries, err := os.ReadDir(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read dir %s: %w", path, err)
	}
	for _, entry := range entries {
		child := filepath.Join(path, entry.Name())
		// DirEntry.IsDir reports lstat semantics, so symlinked dirs are unlinked.
		if entry.IsDir() {
			if err := RemoveDirectoryTree(child, true); err != nil {
				return err
			}
			continue
		}
		if err := os.Remove(child); err != nil {
			return fmt.Errorf("remove %s: %w", child, err)
		}
	}
	if removeRoot {
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("remove dir %s: %w", path, err)
		}
	}
	return nil
}

// CopyDirectoryTree copies src into dst recursively, merging into existing
// directories and following symlinks. Per-file failures are logged and
// collected without stopping the walk. A missing src is a no-op.
func CopyDirectoryTree(src, dst string, logger *zap.Logger) error {
	if logger == nil {
		logger = zap.NewNop()
	}
	if _, err := os.Stat(src); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("stat %s: %w", src, err)
	}
	var errs []error
	err := copy.Copy(src, dst, copy.Options{
		OnSymlink: func(string) copy.SymlinkAction { return copy.Deep },
		Skip: func(info os.FileInfo, _, _ string) (bool, error) {
			return !info.IsDir() && info.Name() == IgnoredName, nil
		},
		OnError: func(from, to string, err error) error {
			if err == nil {
				return nil
			}
			logger.Warn("copy failed", zap.String("src", from), zap.String("dst", to), zap.Error(err))
			errs = append(errs, fmt.Errorf("copy %s: %w", from, err))
			return nil
		},
	})
	if err != nil {
		errs = append(errs, fmt.Errorf("copy %s: %w", src, err))
	}
	return errors.Join(errs...)
}

// SymlinkDirectoryContents links every top-level file or directory of src into
// dst under the same name. It does not recurse. A missing src is a no-op.
func SymlinkDirectoryContents(src, dst string) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read dir %s: %w", src, err)
	}
	absSrc, err := filepath.Abs(src)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", src, err)
	}
	for _, entry := range entries {
		if entry.Name() == IgnoredName {
			continue
		}
		if !entry.IsDir() && !entry.Type().IsRegular() {
			continue
		}
		target := filepath.Join(absSrc, entry.Name())
		link := filepath.Join(dst, entry.Name())
		if err := os.Symlink(target, link); err != nil {
			return fmt.Errorf("symlink %s -> %s: %w", link, target, err)
		}
	}
	return nil
}

// File is a generated file to be written verbatim.
type File struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// WriteFiles writes every file into dir.
func WriteFiles(dir string, files []File) error {
	for _, f := range files {
		target := filepath.Join(dir, f.Name)
		if err := os.WriteFile(target, []byte(f.Content), filePerm); err != nil {
			return fmt.Errorf("write %s: %w", target, err)
		}
	}
	return nil
}

// Touch bumps the modification time of path, creating it when missing.
func Touch(path string) error {
	now := time.Now()
	if err := os.Chtimes(path, now, now); err == nil {
		return nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("touch %s: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, filePerm)
	if err != nil {
		return fmt.Errorf("touch %s: %w", path, err)
	}
	return f.Close()
}
