package starter

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/elm-starter/internal/browser"
	"github.com/JakeFAU/elm-starter/internal/clock/system"
	"github.com/JakeFAU/elm-starter/internal/config"
	"github.com/JakeFAU/elm-starter/internal/elmworker"
	"github.com/JakeFAU/elm-starter/internal/fsutil"
	"github.com/JakeFAU/elm-starter/internal/id/uuid"
	"github.com/JakeFAU/elm-starter/internal/prerender"
	"github.com/JakeFAU/elm-starter/internal/progress"
)

const elmBundle = "elm.js"

// Build runs the static server and, once it had time to warm up, the full
// build against it. Whichever finishes first decides the result; the other
// is stopped.
func (s *Starter) Build(ctx context.Context) error {
	conf, err := s.loader.Load(ctx, elmworker.EnvProd)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	return firstExit(ctx,
		func(ctx context.Context) error { return s.serverStatic(ctx, conf) },
		func(ctx context.Context) error {
			if err := sleep(ctx, s.cfg.Build.ServerWarmup); err != nil {
				return nil
			}
			return s.buildExpectingServer(ctx, conf)
		},
	)
}

// BuildExpectingTheServerRunning builds against a static server that is
// already listening on the conf's starting domain.
func (s *Starter) BuildExpectingTheServerRunning(ctx context.Context) error {
	conf, err := s.loader.Load(ctx, elmworker.EnvProd)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	return s.buildExpectingServer(ctx, conf)
}

func (s *Starter) buildExpectingServer(ctx context.Context, conf elmworker.Conf) error {
	build := conf.Dir.Build
	if err := fsutil.RemoveDirectoryTree(build, false); err != nil {
		return fmt.Errorf("clear build dir: %w", err)
	}
	s.ensureDir(build)
	if err := fsutil.WriteFiles(build, conf.Files); err != nil {
		return fmt.Errorf("write build files: %w", err)
	}

	s.logger.Info("Compiling Elm")
	bundle := filepath.Join(build, elmBundle)
	elm := filepath.Join(conf.Dir.Bin, "elm")
	code, err := s.runner.Run(ctx, elm, "make", conf.File.MainElm, "--output="+bundle, "--optimize")
	if err != nil {
		return fmt.Errorf("compile elm: %w", err)
	}
	if code != 0 {
		return fmt.Errorf("compile elm: elm make exited with code %d", code)
	}
	if err := s.minifier.JSFile(bundle); err != nil {
		return err
	}

	s.logger.Info("Copying assets")
	if err := fsutil.CopyDirectoryTree(conf.Dir.Assets, build, s.logger); err != nil {
		s.logger.Warn("some assets were not copied", zap.Error(err))
	}

	s.generateStaticPages(ctx, conf)
	s.writeMetrics()
	return nil
}

// generateStaticPages prerenders every URL. Failures are logged and do not
// fail the build.
func (s *Starter) generateStaticPages(ctx context.Context, conf elmworker.Conf) prerender.Report {
	opts := prerenderOptions(conf, s.cfg)
	s.logger.Info(fmt.Sprintf("Building %d static pages for %s", len(opts.URLs), conf.MainConf.Domain))

	hub := progress.NewHub(progress.Config{Logger: s.logger}, s.sinks...)
	defer func() {
		if err := hub.Close(context.Background()); err != nil {
			s.logger.Warn("close progress hub", zap.Error(err))
		}
	}()

	bcfg := browser.Config{
		Headless:          conf.Headless,
		NoSandbox:         s.cfg.Prerender.NoSandbox,
		ExecPath:          s.cfg.Prerender.ChromePath,
		NavigationTimeout: s.cfg.Prerender.NavigationTimeout,
		Logger:            s.logger,
	}
	pipeline, err := prerender.NewPipeline(opts, prerender.Deps{
		Launcher: func(ctx context.Context) (browser.Browser, error) { return s.launch(ctx, bcfg) },
		Emitter:  hub,
		Clock:    system.New(),
		IDs:      uuid.New(),
		Logger:   s.logger,
	})
	if err != nil {
		s.logger.Error("static page generation failed", zap.Error(err))
		return prerender.Report{Err: err}
	}
	return pipeline.Generate(ctx)
}

func prerenderOptions(conf elmworker.Conf, cfg config.Config) prerender.Options {
	return prerender.Options{
		BuildDir:          conf.Dir.Build,
		URLs:              conf.MainConf.URLs,
		Domain:            conf.StartingDomain,
		BatchSize:         conf.BatchesSize,
		Headless:          conf.Headless,
		Width:             conf.SnapshotWidth,
		Height:            conf.SnapshotHeight,
		Snapshots:         conf.Snapshots,
		SnapshotQuality:   conf.SnapshotsQuality,
		PagesName:         conf.PagesName,
		SnapshotFileName:  conf.SnapshotFileName,
		HTMLToReinject:    conf.HTMLToReinject,
		NavigationTimeout: cfg.Prerender.NavigationTimeout,
		MaxPagesPerSecond: cfg.Prerender.MaxPagesPerSecond,
	}
}

func (s *Starter) writeMetrics() {
	path := s.cfg.Metrics.Textfile
	if path == "" {
		return
	}
	if err := prometheus.WriteToTextfile(path, s.registry); err != nil {
		s.logger.Warn("write metrics textfile", zap.String("path", path), zap.Error(err))
		return
	}
	s.logger.Debug("metrics written", zap.String("path", path))
}
