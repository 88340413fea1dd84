package elmworker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/JakeFAU/elm-starter/internal/fsutil"
)

// Env selects the flavour of the conf the worker produces.
type Env string

// Supported environments.
const (
	EnvDev  Env = "dev"
	EnvProd Env = "prod"
)

const unknown = "unknown"

// ErrPortNotCalled is returned when the worker exits without sending a conf.
var ErrPortNotCalled = errors.New("elm worker exited without sending data through dataFromElmToJavascript")

// Flags initialise the Elm worker.
type Flags struct {
	Env             Env    `json:"env"`
	Version         string `json:"version"`
	GitCommit       string `json:"gitCommit"`
	GitBranch       string `json:"gitBranch"`
	DirPw           string `json:"dirPw"`
	DirBin          string `json:"dirBin"`
	DirIgnoredByGit string `json:"dirIgnoredByGit"`
	DirTemp         string `json:"dirTemp"`
	FileElmWorker   string `json:"fileElmWorker"`
}

// nodeScript loads the compiled worker, feeds it the flags and prints the
// first value sent through the port. Worker path and flags arrive as the last
// two arguments.
const nodeScript = `const [worker, flags] = process.argv.slice(-2);
const warn = console.warn;
console.warn = function () {};
const { Elm } = require(worker);
console.warn = warn;
const app = Elm.Worker.init({ flags: JSON.parse(flags) });
app.ports.dataFromElmToJavascript.subscribe(function (conf) {
  process.stdout.write(JSON.stringify(conf));
  process.exit(0);
});`

// CommandRunner spawns external commands.
type CommandRunner interface {
	Run(ctx context.Context, command string, args ...string) (int, error)
	Output(ctx context.Context, command string, args ...string) (string, error)
}

// Config locates the project and its tools. Relative paths resolve against
// Dir.
type Config struct {
	// Dir is the project root, the directory holding package.json.
	Dir string
	// BinDir holds the elm executable.
	BinDir string
	// IgnoredByGit receives generated files; the compiled worker goes to its
	// temp subdirectory.
	IgnoredByGit string
	// Worker is the Elm worker module to compile.
	Worker string
	// Node is the node executable.
	Node string
}

// Bootstrapper compiles and runs the Elm worker.
type Bootstrapper struct {
	cfg    Config
	runner CommandRunner
	logger *zap.Logger
}

// NewBootstrapper resolves cfg against its project directory.
func NewBootstrapper(cfg Config, runner CommandRunner, logger *zap.Logger) (*Bootstrapper, error) {
	if runner == nil {
		return nil, errors.New("command runner is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	dir, err := filepath.Abs(cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("resolve project dir: %w", err)
	}
	cfg.Dir = dir
	cfg.BinDir = resolve(dir, cfg.BinDir)
	cfg.IgnoredByGit = resolve(dir, cfg.IgnoredByGit)
	cfg.Worker = resolve(dir, cfg.Worker)
	if cfg.Node == "" {
		cfg.Node = "node"
	}
	return &Bootstrapper{cfg: cfg, runner: runner, logger: logger}, nil
}

func resolve(root, p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(root, p)
}

// Flags gathers the values the worker is initialised with.
func (b *Bootstrapper) Flags(ctx context.Context, env Env) Flags {
	return Flags{
		Env:             env,
		Version:         b.version(),
		GitCommit:       b.git(ctx, "--short", "HEAD"),
		GitBranch:       b.git(ctx, "--abbrev-ref", "HEAD"),
		DirPw:           b.cfg.Dir,
		DirBin:          b.cfg.BinDir,
		DirIgnoredByGit: b.cfg.IgnoredByGit,
		DirTemp:         b.tempDir(),
		FileElmWorker:   b.cfg.Worker,
	}
}

// Load compiles the worker, runs it with the flags for env and returns the
// validated conf.
func (b *Bootstrapper) Load(ctx context.Context, env Env) (Conf, error) {
	flags := b.Flags(ctx, env)
	b.logger.Debug("elm worker flags",
		zap.String("env", string(flags.Env)),
		zap.String("version", flags.Version),
		zap.String("git_commit", flags.GitCommit),
		zap.String("git_branch", flags.GitBranch),
	)

	output := filepath.Join(flags.DirTemp, "worker.js")
	if err := fsutil.EnsureDir(flags.DirTemp); err != nil {
		b.logger.Debug("ensure temp dir", zap.Error(err))
	}
	elm := filepath.Join(b.cfg.BinDir, "elm")
	code, err := b.runner.Run(ctx, elm, "make", b.cfg.Worker, "--output="+output)
	if err != nil {
		return Conf{}, fmt.Errorf("compile elm worker: %w", err)
	}
	if code != 0 {
		return Conf{}, fmt.Errorf("compile elm worker: elm make exited with code %d", code)
	}

	payload, err := json.Marshal(flags)
	if err != nil {
		return Conf{}, fmt.Errorf("encode worker flags: %w", err)
	}
	out, err := b.runner.Output(ctx, b.cfg.Node, "-e", nodeScript, output, string(payload))
	if err != nil {
		return Conf{}, fmt.Errorf("run elm worker: %w", err)
	}
	if out == "" {
		return Conf{}, ErrPortNotCalled
	}
	conf, err := Decode(strings.NewReader(out))
	if err != nil {
		return Conf{}, err
	}
	b.logger.Debug("elm worker conf", zap.Any("dir", conf.Dir), zap.Any("file", conf.File))
	return conf, nil
}

func (b *Bootstrapper) tempDir() string {
	return filepath.Join(b.cfg.IgnoredByGit, "temp")
}

// version reads the "version" field of package.json.
func (b *Bootstrapper) version() string {
	v := viper.New()
	v.SetConfigFile(filepath.Join(b.cfg.Dir, "package.json"))
	v.SetConfigType("json")
	if err := v.ReadInConfig(); err != nil {
		b.logger.Warn("package.json not readable, version left empty", zap.Error(err))
		return ""
	}
	return v.GetString("version")
}

func (b *Bootstrapper) git(ctx context.Context, args ...string) string {
	out, err := b.runner.Output(ctx, "git", append([]string{"rev-parse"}, args...)...)
	if err != nil || out == "" {
		b.logger.Warn("git metadata unavailable", zap.Strings("args", args), zap.Error(err))
		return unknown
	}
	return out
}
