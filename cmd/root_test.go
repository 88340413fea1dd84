package cmd

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/elm-starter/internal/starter"
	"github.com/JakeFAU/elm-starter/internal/storage"
)

type fakeCommands struct {
	called []string
	err    error
}

func (f *fakeCommands) record(name string) error {
	f.called = append(f.called, name)
	return f.err
}

func (f *fakeCommands) Boot(context.Context) error             { return f.record("boot") }
func (f *fakeCommands) Start(context.Context) error            { return f.record("start") }
func (f *fakeCommands) GenerateDevFiles(context.Context) error { return f.record("generateDevFiles") }
func (f *fakeCommands) Build(context.Context) error            { return f.record("build") }
func (f *fakeCommands) BuildExpectingTheServerRunning(context.Context) error {
	return f.record("buildExpectingTheServerRunning")
}
func (f *fakeCommands) ServerBuild(context.Context) error   { return f.record("serverBuild") }
func (f *fakeCommands) ServerDev(context.Context) error     { return f.record("serverDev") }
func (f *fakeCommands) ServerStatic(context.Context) error  { return f.record("serverStatic") }
func (f *fakeCommands) WatchStartElm(context.Context) error { return f.record("watchStartElm") }

func (f *fakeCommands) Upload(_ context.Context, store storage.BlobStore, _ starter.Publisher) ([]string, error) {
	if store == nil {
		return nil, errors.New("no store")
	}
	return []string{"file:///tmp/index.html"}, f.record("upload")
}

type nopStore struct{}

func (nopStore) PutObject(context.Context, string, string, io.Reader) (string, error) {
	return "", nil
}

type fakeApp struct {
	commands *fakeCommands
	opts     rootOptions
	closed   bool
	released bool
}

func (a *fakeApp) Commands() Commands  { return a.commands }
func (a *fakeApp) Logger() *zap.Logger { return zap.NewNop() }
func (a *fakeApp) OpenStore(context.Context) (storage.BlobStore, func(), error) {
	return nopStore{}, func() { a.released = true }, nil
}
func (a *fakeApp) OpenPublisher(context.Context) (starter.Publisher, func(), error) {
	return nil, func() {}, nil
}
func (a *fakeApp) Close() { a.closed = true }

func withFakeApp(t *testing.T, commands *fakeCommands) *fakeApp {
	t.Helper()
	fake := &fakeApp{commands: commands}
	original := newApp
	newApp = func(_ context.Context, opts rootOptions) (App, error) {
		fake.opts = opts
		return fake, nil
	}
	t.Cleanup(func() { newApp = original })
	return fake
}

func execute(args ...string) error {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	return root.ExecuteContext(context.Background())
}

func TestSubcommandsDispatch(t *testing.T) {
	for _, name := range []string{
		"boot",
		"start",
		"generateDevFiles",
		"build",
		"buildExpectingTheServerRunning",
		"serverBuild",
		"serverDev",
		"serverStatic",
		"watchStartElm",
		"upload",
	} {
		t.Run(name, func(t *testing.T) {
			commands := &fakeCommands{}
			fake := withFakeApp(t, commands)

			require.NoError(t, execute(name))
			assert.Equal(t, []string{name}, commands.called)
			assert.True(t, fake.closed)
		})
	}
}

func TestNoSubcommandMeansStart(t *testing.T) {
	commands := &fakeCommands{}
	withFakeApp(t, commands)

	require.NoError(t, execute())
	assert.Equal(t, []string{"start"}, commands.called)
}

func TestFlagsReachTheApp(t *testing.T) {
	fake := withFakeApp(t, &fakeCommands{})

	require.NoError(t, execute("boot", "--config", "starter.yaml", "--debug"))
	assert.Equal(t, rootOptions{configFile: "starter.yaml", debug: true}, fake.opts)
}

func TestCommandErrorIsReturned(t *testing.T) {
	withFakeApp(t, &fakeCommands{err: errors.New("elm make failed")})

	err := execute("build")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "elm make failed")
}

func TestUploadReleasesStore(t *testing.T) {
	fake := withFakeApp(t, &fakeCommands{})

	require.NoError(t, execute("upload"))
	assert.True(t, fake.released)
}

func TestAppInitFailure(t *testing.T) {
	original := newApp
	newApp = func(context.Context, rootOptions) (App, error) {
		return nil, errors.New("bad config")
	}
	t.Cleanup(func() { newApp = original })

	err := execute("boot")
	require.Error(t, err)
	assert.True(t, strings.HasPrefix(err.Error(), "failed to initialize application"))
}

func TestUnknownArgumentsRejected(t *testing.T) {
	commands := &fakeCommands{}
	withFakeApp(t, commands)

	require.Error(t, execute("boot", "extra"))
	assert.Empty(t, commands.called)
}
