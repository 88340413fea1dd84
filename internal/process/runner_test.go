package process

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRunMergesStreamsAndReportsExitCode(t *testing.T) {
	t.Parallel()

	out := &syncBuffer{}
	r := &Runner{Out: out}
	code, err := r.Run(context.Background(), "sh", "-c", "echo out-line; echo err-line 1>&2; exit 3")
	require.NoError(t, err)
	assert.Equal(t, 3, code)
	assert.Contains(t, out.String(), "out-line\n")
	assert.Contains(t, out.String(), "err-line\n")
}

func TestRunZeroExit(t *testing.T) {
	t.Parallel()

	out := &syncBuffer{}
	r := &Runner{Out: out, Dir: t.TempDir()}
	code, err := r.Run(context.Background(), "sh", "-c", "printf 'a\\nb'")
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, "a\nb", out.String())
}

func TestRunMissingCommand(t *testing.T) {
	t.Parallel()

	r := &Runner{Out: &syncBuffer{}}
	code, err := r.Run(context.Background(), "definitely-not-a-command-elm-starter")
	assert.Error(t, err)
	assert.Equal(t, -1, code)
}

func TestRunCancelKillsChild(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	r := &Runner{Out: &syncBuffer{}}
	start := time.Now()
	code, err := r.Run(ctx, "sleep", "10")
	require.NoError(t, err)
	assert.NotEqual(t, 0, code)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestRunCancelKillsGrandchildren(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)
	out := &syncBuffer{}
	r := &Runner{Out: out}
	start := time.Now()
	code, err := r.Run(ctx, "sh", "-c", "sleep 5; echo done")
	require.NoError(t, err)
	assert.Equal(t, -1, code)
	assert.Less(t, time.Since(start), 3*time.Second)
	assert.NotContains(t, out.String(), "done")
}

func TestRunDoesNotWaitForBackgroundedDescendants(t *testing.T) {
	t.Parallel()

	out := &syncBuffer{}
	r := &Runner{Out: out}
	start := time.Now()
	code, err := r.Run(context.Background(), "sh", "-c", "sleep 5 & echo started")
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Less(t, time.Since(start), 4*time.Second)
	assert.Contains(t, out.String(), "started")
}

func TestOutput(t *testing.T) {
	t.Parallel()

	r := &Runner{Env: []string{"ELM_STARTER_TEST=hello"}}
	got, err := r.Output(context.Background(), "sh", "-c", "echo \"  $ELM_STARTER_TEST  \"")
	require.NoError(t, err)
	assert.Equal(t, "hello", got)

	_, err = r.Output(context.Background(), "sh", "-c", "echo broken 1>&2; exit 1")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "broken"), err.Error())
}
