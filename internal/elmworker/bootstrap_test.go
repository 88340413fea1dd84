package elmworker

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	command string
	args    []string
}

// fakeRunner answers git, elm and node the way a healthy project would.
type fakeRunner struct {
	mu       sync.Mutex
	calls    []call
	elmCode  int
	elmErr   error
	gitErr   error
	nodeOut  string
	nodeErr  error
	lastNode []string
}

func (f *fakeRunner) Run(_ context.Context, command string, args ...string) (int, error) {
	f.record(command, args)
	return f.elmCode, f.elmErr
}

func (f *fakeRunner) Output(_ context.Context, command string, args ...string) (string, error) {
	f.record(command, args)
	switch command {
	case "git":
		if f.gitErr != nil {
			return "", f.gitErr
		}
		if args[1] == "--short" {
			return "abc1234", nil
		}
		return "main", nil
	default:
		f.mu.Lock()
		f.lastNode = args
		f.mu.Unlock()
		return f.nodeOut, f.nodeErr
	}
}

func (f *fakeRunner) record(command string, args []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{command: command, args: args})
}

func newProject(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "package.json"), []byte(`{"name":"site","version":"1.4.2"}`), 0o644))
	return dir
}

func testConfig(dir string) Config {
	return Config{
		Dir:          dir,
		BinDir:       "node_modules/.bin",
		IgnoredByGit: "elm-stuff/elm-starter-files",
		Worker:       "src-elm-starter/Worker.elm",
	}
}

func confJSON(t *testing.T) string {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join("testdata", "conf.json"))
	require.NoError(t, err)
	return string(raw)
}

func TestBootstrapperLoad(t *testing.T) {
	t.Parallel()

	dir := newProject(t)
	runner := &fakeRunner{nodeOut: confJSON(t)}
	b, err := NewBootstrapper(testConfig(dir), runner, nil)
	require.NoError(t, err)

	conf, err := b.Load(context.Background(), EnvProd)
	require.NoError(t, err)
	assert.Equal(t, "/work/site/build", conf.Dir.Build)

	var elm call
	for _, c := range runner.calls {
		if strings.HasSuffix(c.command, "elm") {
			elm = c
		}
	}
	assert.Equal(t, filepath.Join(dir, "node_modules", ".bin", "elm"), elm.command)
	workerJS := filepath.Join(dir, "elm-stuff", "elm-starter-files", "temp", "worker.js")
	assert.Equal(t, []string{"make", filepath.Join(dir, "src-elm-starter", "Worker.elm"), "--output=" + workerJS}, elm.args)
	assert.DirExists(t, filepath.Dir(workerJS))

	require.Len(t, runner.lastNode, 4)
	assert.Equal(t, "-e", runner.lastNode[0])
	assert.Equal(t, workerJS, runner.lastNode[2])

	var flags Flags
	require.NoError(t, json.Unmarshal([]byte(runner.lastNode[3]), &flags))
	assert.Equal(t, EnvProd, flags.Env)
	assert.Equal(t, "1.4.2", flags.Version)
	assert.Equal(t, "abc1234", flags.GitCommit)
	assert.Equal(t, "main", flags.GitBranch)
	assert.Equal(t, dir, flags.DirPw)
	assert.Equal(t, filepath.Join(dir, "elm-stuff", "elm-starter-files", "temp"), flags.DirTemp)
}

func TestBootstrapperFlagsDegrade(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{gitErr: errors.New("not a git repository")}
	b, err := NewBootstrapper(testConfig(t.TempDir()), runner, nil)
	require.NoError(t, err)

	flags := b.Flags(context.Background(), EnvDev)
	assert.Equal(t, "unknown", flags.GitCommit)
	assert.Equal(t, "unknown", flags.GitBranch)
	assert.Empty(t, flags.Version)
	assert.Equal(t, EnvDev, flags.Env)
}

func TestBootstrapperLoadFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		runner *fakeRunner
		is     error
		substr string
	}{
		{name: "elm exit code", runner: &fakeRunner{elmCode: 1}, substr: "exited with code 1"},
		{name: "elm missing", runner: &fakeRunner{elmErr: errors.New("no such file")}, substr: "compile elm worker"},
		{name: "node failure", runner: &fakeRunner{nodeErr: errors.New("exit status 1")}, substr: "run elm worker"},
		{name: "port never called", runner: &fakeRunner{}, is: ErrPortNotCalled},
		{name: "bad conf", runner: &fakeRunner{nodeOut: `{"batchesSize":0}`}, substr: "invalid conf"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			b, err := NewBootstrapper(testConfig(newProject(t)), tt.runner, nil)
			require.NoError(t, err)

			_, err = b.Load(context.Background(), EnvDev)
			require.Error(t, err)
			if tt.is != nil {
				assert.ErrorIs(t, err, tt.is)
			}
			if tt.substr != "" {
				assert.ErrorContains(t, err, tt.substr)
			}
		})
	}
}

func TestNewBootstrapperRequiresRunner(t *testing.T) {
	t.Parallel()

	_, err := NewBootstrapper(Config{Dir: "."}, nil, nil)
	require.Error(t, err)
}
