// Package starter implements the commands of the tool: scaffolding the dev
// tree, running the dev and static servers, watching the starter sources and
// producing the prerendered production build.
package starter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/elm-starter/internal/browser"
	"github.com/JakeFAU/elm-starter/internal/config"
	"github.com/JakeFAU/elm-starter/internal/elmworker"
	"github.com/JakeFAU/elm-starter/internal/optimize"
	"github.com/JakeFAU/elm-starter/internal/progress"
	"github.com/JakeFAU/elm-starter/internal/progress/sinks"
)

// Loader produces the project conf for an environment.
type Loader interface {
	Load(ctx context.Context, env elmworker.Env) (elmworker.Conf, error)
}

// CommandRunner spawns external commands and reports their exit code.
type CommandRunner interface {
	Run(ctx context.Context, command string, args ...string) (int, error)
}

// LaunchFunc starts a browser.
type LaunchFunc func(ctx context.Context, cfg browser.Config) (browser.Browser, error)

// Deps groups the collaborators of a Starter.
type Deps struct {
	Loader Loader
	Runner CommandRunner
	// Launch defaults to a local Chrome through chromedp.
	Launch LaunchFunc
	// Registry receives build and HTTP metrics; a private one is used when nil.
	Registry *prometheus.Registry
	Logger   *zap.Logger
}

// Starter runs the tool commands.
type Starter struct {
	cfg      config.Config
	loader   Loader
	runner   CommandRunner
	launch   LaunchFunc
	registry *prometheus.Registry
	minifier *optimize.Minifier
	sinks    []progress.Sink
	logger   *zap.Logger
}

// New wires a Starter.
func New(cfg config.Config, deps Deps) (*Starter, error) {
	if deps.Loader == nil {
		return nil, errors.New("conf loader is required")
	}
	if deps.Runner == nil {
		return nil, errors.New("command runner is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	launch := deps.Launch
	if launch == nil {
		launch = launchChrome
	}
	registry := deps.Registry
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	promSink, err := sinks.NewPrometheusSink(registry)
	if err != nil {
		return nil, err
	}
	return &Starter{
		cfg:      cfg,
		loader:   deps.Loader,
		runner:   deps.Runner,
		launch:   launch,
		registry: registry,
		minifier: optimize.NewMinifier(),
		sinks:    []progress.Sink{sinks.NewLogSink(logger), promSink},
		logger:   logger,
	}, nil
}

func launchChrome(ctx context.Context, cfg browser.Config) (browser.Browser, error) {
	b, err := browser.Launch(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Boot loads the dev conf and logs where everything lives.
func (s *Starter) Boot(ctx context.Context) error {
	conf, err := s.loader.Load(ctx, elmworker.EnvDev)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	s.logger.Info("bootstrapped",
		zap.String("build", conf.Dir.Build),
		zap.String("dev", conf.Dir.Dev),
		zap.Int("urls", len(conf.MainConf.URLs)),
	)
	return nil
}

// Start scaffolds the dev tree, then runs the dev server and the starter
// watcher side by side until either stops.
func (s *Starter) Start(ctx context.Context) error {
	conf, err := s.loader.Load(ctx, elmworker.EnvDev)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	if err := s.generateDevFiles(conf); err != nil {
		return err
	}
	return firstExit(ctx,
		func(ctx context.Context) error { return s.runCommand(ctx, "serverDev", conf.ServerDev) },
		func(ctx context.Context) error { return s.watch(ctx, conf) },
	)
}

// ServerDev runs the dev server command of the conf.
func (s *Starter) ServerDev(ctx context.Context) error {
	conf, err := s.loader.Load(ctx, elmworker.EnvDev)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	return s.runCommand(ctx, "serverDev", conf.ServerDev)
}

// ServerStatic scaffolds the dev tree with the production conf and runs the
// server the prerenderer navigates.
func (s *Starter) ServerStatic(ctx context.Context) error {
	conf, err := s.loader.Load(ctx, elmworker.EnvProd)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	return s.serverStatic(ctx, conf)
}

func (s *Starter) serverStatic(ctx context.Context, conf elmworker.Conf) error {
	if err := s.generateDevFiles(conf); err != nil {
		return err
	}
	return s.runCommand(ctx, "serverStatic", conf.ServerStatic)
}

// WatchStartElm regenerates the dev files whenever the starter sources or
// Index.elm change.
func (s *Starter) WatchStartElm(ctx context.Context) error {
	conf, err := s.loader.Load(ctx, elmworker.EnvDev)
	if err != nil {
		return fmt.Errorf("bootstrap: %w", err)
	}
	return s.watch(ctx, conf)
}

// runCommand runs c to completion. A command stopped through ctx is not an
// error.
func (s *Starter) runCommand(ctx context.Context, name string, c elmworker.Command) error {
	if c.Empty() {
		return fmt.Errorf("%s: no command configured", name)
	}
	s.logger.Info("starting "+name, zap.String("command", c.String()))
	code, err := s.runner.Run(ctx, c.Command, c.Parameters...)
	if ctx.Err() != nil {
		s.logger.Debug(name+" stopped", zap.Int("code", code))
		return nil
	}
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if code != 0 {
		return fmt.Errorf("%s: %s exited with code %d", name, c.Command, code)
	}
	return nil
}

var errTaskExited = errors.New("task exited")

// firstExit runs tasks concurrently. As soon as one returns the others are
// cancelled, and the result of the first one is returned.
func firstExit(ctx context.Context, tasks ...func(context.Context) error) error {
	g, gctx := errgroup.WithContext(ctx)
	var once sync.Once
	var first error
	for _, task := range tasks {
		g.Go(func() error {
			err := task(gctx)
			once.Do(func() { first = err })
			return errTaskExited
		})
	}
	_ = g.Wait()
	return first
}

// sleep waits for d or until ctx is done.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
