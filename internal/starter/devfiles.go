package starter

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/elm-starter/internal/elmworker"
	"github.com/JakeFAU/elm-starter/internal/fsutil"
	"github.com/JakeFAU/elm-starter/internal/watcher"
)

// GenerateDevFiles rebuilds the dev tree from the dev conf.
func (s *Starter) GenerateDevFiles(ctx context.Context) error {
	conf, err := s.loader.Load(ctx, elmworker.EnvDev)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	return s.generateDevFiles(conf)
}

// generateDevFiles empties dir.dev, writes the generated files and links the
// assets in place so edits show up without a rebuild. Main.elm is touched so
// a running dev server recompiles.
func (s *Starter) generateDevFiles(conf elmworker.Conf) error {
	if err := fsutil.RemoveDirectoryTree(conf.Dir.Dev, false); err != nil {
		return fmt.Errorf("clear dev dir: %w", err)
	}
	s.ensureDir(conf.Dir.Dev)
	s.ensureDir(conf.Dir.DevAssets)
	if err := fsutil.WriteFiles(conf.Dir.Dev, conf.Files); err != nil {
		return fmt.Errorf("write dev files: %w", err)
	}
	if err := fsutil.SymlinkDirectoryContents(conf.Dir.Assets, conf.Dir.Dev); err != nil {
		return fmt.Errorf("link assets: %w", err)
	}
	if err := fsutil.SymlinkDirectoryContents(conf.Dir.AssetsDev, conf.Dir.DevAssets); err != nil {
		return fmt.Errorf("link dev assets: %w", err)
	}
	if conf.File.MainElm != "" {
		if err := fsutil.Touch(conf.File.MainElm); err != nil {
			s.logger.Debug("touch main elm", zap.Error(err))
		}
	}
	s.logger.Info("dev files generated", zap.String("dir", conf.Dir.Dev), zap.Int("files", len(conf.Files)))
	return nil
}

func (s *Starter) ensureDir(dir string) {
	if err := fsutil.EnsureDir(dir); err != nil {
		s.logger.Debug("ensure dir", zap.String("dir", dir), zap.Error(err))
	}
}

// watch regenerates the dev files from a freshly loaded conf on every change.
func (s *Starter) watch(ctx context.Context, conf elmworker.Conf) error {
	w, err := watcher.New(s.cfg.Watch.Debounce, s.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := w.Close(); err != nil {
			s.logger.Warn("close watcher", zap.Error(err))
		}
	}()

	var paths []string
	for _, p := range []string{conf.Dir.ElmStartSrc, conf.File.IndexElm} {
		if p != "" {
			paths = append(paths, p)
		}
	}
	if err := w.Add(paths...); err != nil {
		return fmt.Errorf("watchStartElm: %w", err)
	}
	s.logger.Info("watching starter sources", zap.Strings("paths", paths))

	return w.Run(ctx, func(ctx context.Context, changed []string) error {
		s.logger.Info("starter sources changed, regenerating dev files", zap.Strings("paths", changed))
		fresh, err := s.loader.Load(ctx, elmworker.EnvDev)
		if err != nil {
			return fmt.Errorf("bootstrap: %w", err)
		}
		return s.generateDevFiles(fresh)
	})
}
