// Package storage publishes a finished build to a blob store such as a GCS
// bucket or a local mirror directory.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/elm-starter/internal/fsutil"
)

const (
	defaultContentType = "application/octet-stream"
	defaultParallelism = 8
)

// BlobStore persists objects and returns their URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Uploader copies a directory tree into a BlobStore.
type Uploader struct {
	store       BlobStore
	parallelism int
	logger      *zap.Logger
}

// NewUploader returns an Uploader that runs up to parallelism uploads at once.
func NewUploader(store BlobStore, parallelism int, logger *zap.Logger) (*Uploader, error) {
	if store == nil {
		return nil, errors.New("blob store is required")
	}
	if parallelism <= 0 {
		parallelism = defaultParallelism
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Uploader{store: store, parallelism: parallelism, logger: logger}, nil
}

// Upload stores every regular file below root under prefix, keeping the
// relative layout, and returns the object URIs in path order. The first
// failure cancels the remaining uploads.
func (u *Uploader) Upload(ctx context.Context, root, prefix string) ([]string, error) {
	files, err := listFiles(root)
	if err != nil {
		return nil, err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(u.parallelism)
	var mu sync.Mutex
	uris := make([]string, 0, len(files))
	for _, rel := range files {
		g.Go(func() error {
			uri, err := u.put(ctx, root, rel, prefix)
			if err != nil {
				return err
			}
			mu.Lock()
			uris = append(uris, uri)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	slices.Sort(uris)
	return uris, nil
}

func (u *Uploader) put(ctx context.Context, root, rel, prefix string) (string, error) {
	f, err := os.Open(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		return "", fmt.Errorf("open %s: %w", rel, err)
	}
	defer func() {
		_ = f.Close()
	}()
	key := path.Join(prefix, rel)
	uri, err := u.store.PutObject(ctx, key, ContentType(rel), f)
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", rel, err)
	}
	u.logger.Debug("object uploaded", zap.String("uri", uri))
	return uri, nil
}

// listFiles returns the slash-separated relative paths of regular files below
// root, skipping editor metadata. Symlinks are not followed.
func listFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.Name() == fsutil.IgnoredName || !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}
	return files, nil
}

// ContentType derives a MIME type from the file extension.
func ContentType(name string) string {
	ext := strings.ToLower(path.Ext(name))
	if ext == "" {
		return defaultContentType
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return defaultContentType
}
