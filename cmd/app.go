package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	gpubsub "cloud.google.com/go/pubsub"
	gstorage "cloud.google.com/go/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/JakeFAU/elm-starter/internal/config"
	"github.com/JakeFAU/elm-starter/internal/elmworker"
	"github.com/JakeFAU/elm-starter/internal/logging"
	"github.com/JakeFAU/elm-starter/internal/process"
	"github.com/JakeFAU/elm-starter/internal/publisher/pubsub"
	"github.com/JakeFAU/elm-starter/internal/starter"
	"github.com/JakeFAU/elm-starter/internal/storage"
	"github.com/JakeFAU/elm-starter/internal/storage/gcs"
	"github.com/JakeFAU/elm-starter/internal/storage/local"
)

// Commands is the set of tool commands the CLI dispatches to.
type Commands interface {
	Boot(ctx context.Context) error
	Start(ctx context.Context) error
	GenerateDevFiles(ctx context.Context) error
	Build(ctx context.Context) error
	BuildExpectingTheServerRunning(ctx context.Context) error
	ServerBuild(ctx context.Context) error
	ServerDev(ctx context.Context) error
	ServerStatic(ctx context.Context) error
	WatchStartElm(ctx context.Context) error
	Upload(ctx context.Context, store storage.BlobStore, pub starter.Publisher) ([]string, error)
}

// App defines what subcommands need. It is an interface so tests can swap in
// a fake.
type App interface {
	Commands() Commands
	Logger() *zap.Logger
	// OpenStore returns the blob store upload publishes to and a func that
	// releases it.
	OpenStore(ctx context.Context) (storage.BlobStore, func(), error)
	// OpenPublisher returns a nil Publisher when no topic is configured.
	OpenPublisher(ctx context.Context) (starter.Publisher, func(), error)
	Close()
}

type app struct {
	cfg     config.Config
	logger  *zap.Logger
	starter *starter.Starter
}

// buildApp loads the config and wires the starter.
func buildApp(_ context.Context, opts rootOptions) (App, error) {
	cfg, err := config.Load(opts.configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if opts.debug {
		cfg.Logging.Debug = true
	}
	logger, err := logging.New(logging.Config{
		Development: cfg.Logging.Development,
		Debug:       cfg.Logging.Debug,
	})
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	zap.ReplaceGlobals(logger)

	runner := &process.Runner{Dir: cfg.Elm.ProjectDir, Out: os.Stdout, Logger: logger}
	loader, err := newLoader(cfg, runner, logger)
	if err != nil {
		return nil, err
	}
	s, err := starter.New(cfg, starter.Deps{
		Loader:   loader,
		Runner:   runner,
		Registry: prometheus.NewRegistry(),
		Logger:   logger,
	})
	if err != nil {
		return nil, fmt.Errorf("init starter: %w", err)
	}
	return &app{cfg: cfg, logger: logger, starter: s}, nil
}

func newLoader(cfg config.Config, runner *process.Runner, logger *zap.Logger) (starter.Loader, error) {
	if cfg.Elm.ConfFile != "" {
		logger.Debug("using saved conf", zap.String("path", cfg.Elm.ConfFile))
		return elmworker.FileLoader{Path: cfg.Elm.ConfFile}, nil
	}
	b, err := elmworker.NewBootstrapper(elmworker.Config{
		Dir:          cfg.Elm.ProjectDir,
		BinDir:       cfg.Elm.BinDir,
		IgnoredByGit: cfg.Elm.IgnoredByGit,
		Worker:       cfg.Elm.Worker,
		Node:         cfg.Elm.Node,
	}, runner, logger)
	if err != nil {
		return nil, fmt.Errorf("init bootstrapper: %w", err)
	}
	return b, nil
}

func (a *app) Commands() Commands  { return a.starter }
func (a *app) Logger() *zap.Logger { return a.logger }

func (a *app) OpenStore(ctx context.Context) (storage.BlobStore, func(), error) {
	switch {
	case a.cfg.Upload.Bucket != "":
		client, err := gstorage.NewClient(ctx)
		if err != nil {
			return nil, nil, fmt.Errorf("create gcs client: %w", err)
		}
		store, err := gcs.New(client, gcs.Config{Bucket: a.cfg.Upload.Bucket})
		if err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return store, func() {
			if err := client.Close(); err != nil {
				a.logger.Warn("close gcs client", zap.Error(err))
			}
		}, nil
	case a.cfg.Upload.LocalDir != "":
		store, err := local.New(local.Config{BaseDir: a.cfg.Upload.LocalDir})
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	default:
		return nil, nil, errors.New("set upload.bucket or upload.local_dir")
	}
}

func (a *app) OpenPublisher(ctx context.Context) (starter.Publisher, func(), error) {
	if a.cfg.Upload.Topic == "" {
		return nil, func() {}, nil
	}
	client, err := gpubsub.NewClient(ctx, a.cfg.Upload.Project)
	if err != nil {
		return nil, nil, fmt.Errorf("create pubsub client: %w", err)
	}
	pub, err := pubsub.New(client.Topic(a.cfg.Upload.Topic))
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return pub, func() {
		pub.Close()
		if err := client.Close(); err != nil {
			a.logger.Warn("close pubsub client", zap.Error(err))
		}
	}, nil
}

func (a *app) Close() {
	// Sync fails on terminals; nothing useful can be done about it.
	_ = a.logger.Sync()
}
