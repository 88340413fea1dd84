package starter

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/elm-starter/internal/elmworker"
	"github.com/JakeFAU/elm-starter/internal/storage"
)

// Publisher announces an uploaded build.
type Publisher interface {
	Publish(ctx context.Context, payload any) (string, error)
}

// BuildPublished is the notification sent once a build is uploaded.
type BuildPublished struct {
	Domain      string    `json:"domain"`
	Prefix      string    `json:"prefix"`
	Objects     int       `json:"objects"`
	URIs        []string  `json:"uris"`
	PublishedAt time.Time `json:"publishedAt"`
}

// Upload publishes the production build directory to store and returns the
// object URIs. When pub is not nil a BuildPublished notification follows.
func (s *Starter) Upload(ctx context.Context, store storage.BlobStore, pub Publisher) ([]string, error) {
	conf, err := s.loader.Load(ctx, elmworker.EnvProd)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: %w", err)
	}
	uploader, err := storage.NewUploader(store, s.cfg.Upload.Parallelism, s.logger)
	if err != nil {
		return nil, err
	}
	uris, err := uploader.Upload(ctx, conf.Dir.Build, s.cfg.Upload.Prefix)
	if err != nil {
		return nil, fmt.Errorf("upload: %w", err)
	}
	s.logger.Info("build uploaded", zap.Int("objects", len(uris)), zap.String("prefix", s.cfg.Upload.Prefix))

	if pub == nil {
		return uris, nil
	}
	id, err := pub.Publish(ctx, BuildPublished{
		Domain:      conf.MainConf.Domain,
		Prefix:      s.cfg.Upload.Prefix,
		Objects:     len(uris),
		URIs:        uris,
		PublishedAt: time.Now().UTC(),
	})
	if err != nil {
		return uris, fmt.Errorf("notify upload: %w", err)
	}
	s.logger.Info("upload announced", zap.String("message_id", id))
	return uris, nil
}
