package starter

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/elm-starter/internal/browser"
	"github.com/JakeFAU/elm-starter/internal/config"
	"github.com/JakeFAU/elm-starter/internal/elmworker"
	"github.com/JakeFAU/elm-starter/internal/fsutil"
)

type fakeLoader struct {
	mu    sync.Mutex
	conf  elmworker.Conf
	err   error
	loads []elmworker.Env
}

func (l *fakeLoader) Load(_ context.Context, env elmworker.Env) (elmworker.Conf, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loads = append(l.loads, env)
	return l.conf, l.err
}

func (l *fakeLoader) Loads() []elmworker.Env {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]elmworker.Env(nil), l.loads...)
}

type call struct {
	command string
	args    []string
}

// fakeRunner pretends to be elm and the project servers. "elm" writes a
// bundle to its --output, commands listed in blocking wait for cancellation
// and everything else exits with exitCode.
type fakeRunner struct {
	mu       sync.Mutex
	calls    []call
	blocking map[string]bool
	exitCode int
	elmCode  int
}

func (r *fakeRunner) Run(ctx context.Context, command string, args ...string) (int, error) {
	r.mu.Lock()
	r.calls = append(r.calls, call{command: command, args: args})
	r.mu.Unlock()

	if filepath.Base(command) == "elm" {
		if r.elmCode != 0 {
			return r.elmCode, nil
		}
		for _, a := range args {
			if out, ok := strings.CutPrefix(a, "--output="); ok {
				bundle := "var answer = 40 + 2;\nfunction main() { return answer; }\n"
				if err := os.WriteFile(out, []byte(bundle), 0o600); err != nil {
					return 1, err
				}
			}
		}
		return 0, nil
	}
	if r.blocking[command] {
		<-ctx.Done()
		return -1, ctx.Err()
	}
	return r.exitCode, nil
}

func (r *fakeRunner) Calls() []call {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]call(nil), r.calls...)
}

// fakeBrowser serves canned documents keyed by full URL.
type fakeBrowser struct {
	pages map[string]string
}

func (b *fakeBrowser) OpenPage(context.Context) (browser.Page, error) {
	return &fakePage{pages: b.pages}, nil
}

func (b *fakeBrowser) Close() error { return nil }

type fakePage struct {
	pages map[string]string
	url   string
}

func (p *fakePage) SetViewport(context.Context, int, int) error { return nil }

func (p *fakePage) Navigate(_ context.Context, url string) error {
	if _, ok := p.pages[url]; !ok {
		return &browser.NavigationError{URL: url, Err: errors.New("connection refused")}
	}
	p.url = url
	return nil
}

func (p *fakePage) HTML(context.Context) (string, error) {
	return p.pages[p.url], nil
}

func (p *fakePage) Screenshot(_ context.Context, quality int) ([]byte, error) {
	return []byte(fmt.Sprintf("jpeg:%s:q%d", p.url, quality)), nil
}

func (p *fakePage) Close() error { return nil }

func launcherFor(b browser.Browser) LaunchFunc {
	return func(context.Context, browser.Config) (browser.Browser, error) {
		return b, nil
	}
}

func document(title string) string {
	return "<!DOCTYPE html>\n<html>\n<head><title>" + title + "</title></head>\n<body>\n  <h1>" +
		title + "</h1>\n</body>\n</html>"
}

// project lays out a throwaway project and returns a conf pointing into it.
func project(t *testing.T) elmworker.Conf {
	t.Helper()
	root := t.TempDir()
	dir := elmworker.Dirs{
		Pw:          root,
		Bin:         filepath.Join(root, "node_modules", ".bin"),
		Temp:        filepath.Join(root, "elm-stuff", "elm-starter-files", "temp"),
		Assets:      filepath.Join(root, "assets", "prod"),
		AssetsDev:   filepath.Join(root, "assets", "dev"),
		Dev:         filepath.Join(root, "elm-stuff", "elm-starter-files", "dev"),
		DevAssets:   filepath.Join(root, "elm-stuff", "elm-starter-files", "dev", "assets-dev"),
		Build:       filepath.Join(root, "build"),
		ElmStartSrc: filepath.Join(root, "src-elm-starter"),
	}
	for _, d := range []string{dir.Assets, dir.AssetsDev, dir.ElmStartSrc, filepath.Join(root, "src")} {
		require.NoError(t, fsutil.EnsureDir(d))
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir.Assets, "style.css"), []byte("body{}"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir.AssetsDev, "debug.js"), []byte("debug()"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "src", "Index.elm"), []byte("module Index exposing (..)"), 0o600))

	return elmworker.Conf{
		Dir: dir,
		File: elmworker.Files{
			MainElm:  filepath.Join(root, "src", "Main.elm"),
			IndexElm: filepath.Join(root, "src", "Index.elm"),
		},
		Files: []fsutil.File{
			{Name: "index.html", Content: "<html><body>shell</body></html>"},
			{Name: "manifest.json", Content: "{}"},
		},
		ServerStatic:     elmworker.Command{Command: "serve-static", Parameters: []string{"--port", "8001"}},
		ServerDev:        elmworker.Command{Command: "serve-dev"},
		MainConf:         elmworker.MainConf{URLs: []string{"/", "/about"}, Domain: "https://example.com"},
		StartingDomain:   "http://localhost:8001",
		BatchesSize:      2,
		Headless:         true,
		SnapshotsQuality: 80,
		SnapshotWidth:    700,
		SnapshotHeight:   350,
		PagesName:        "index.html",
		SnapshotFileName: "snapshot.jpg",
		HTMLToReinject:   `<script src="/elm.js"></script>`,
	}
}

func testConfig() config.Config {
	return config.Config{
		Build:     config.BuildConfig{ServerWarmup: 0},
		Prerender: config.PrerenderConfig{NavigationTimeout: 5 * time.Second},
		Watch:     config.WatchConfig{Debounce: 20 * time.Millisecond},
		Server:    config.ServerConfig{Port: 9000},
		Upload:    config.UploadConfig{Parallelism: 2},
	}
}

func newStarter(t *testing.T, cfg config.Config, conf elmworker.Conf, runner *fakeRunner, b browser.Browser, logger *zap.Logger) (*Starter, *fakeLoader) {
	t.Helper()
	if logger == nil {
		logger = zap.NewNop()
	}
	loader := &fakeLoader{conf: conf}
	s, err := New(cfg, Deps{
		Loader: loader,
		Runner: runner,
		Launch: launcherFor(b),
		Logger: logger,
	})
	require.NoError(t, err)
	return s, loader
}
