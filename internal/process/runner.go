// Package process spawns the external tools the starter drives (elm, node,
// dev servers) and relays their output.
package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"
)

// waitDelay bounds how long Wait keeps reading output after the child is gone
// or killed. Descendants that hold on to the pipes are not waited for.
const waitDelay = time.Second

// Runner starts child processes. The zero value writes to os.Stdout and
// inherits the working directory of the parent.
type Runner struct {
	// Dir is the working directory of spawned commands.
	Dir string
	// Out receives stdout and stderr of Run through one shared pipe.
	Out io.Writer
	// Env is appended to the parent environment.
	Env []string

	Logger *zap.Logger
}

// Run spawns command and blocks until it exits, returning its exit code.
// Stderr is merged into the same writer as stdout. A non-zero exit code is not
// an error; err is only set when the process could not be run at all.
// Cancelling ctx kills the child together with every process it started.
func (r *Runner) Run(ctx context.Context, command string, args ...string) (int, error) {
	cmd := r.command(ctx, command, args...)
	out := r.out()
	cmd.Stdout = out
	cmd.Stderr = out

	r.logger().Debug("spawning command", zap.String("command", command), zap.Strings("args", args))
	if err := cmd.Start(); err != nil {
		return -1, fmt.Errorf("start %s: %w", command, err)
	}
	return exitCode(cmd, cmd.Wait())
}

// Output runs command and returns its trimmed stdout. A non-zero exit is an
// error that carries the captured stderr.
func (r *Runner) Output(ctx context.Context, command string, args ...string) (string, error) {
	cmd := r.command(ctx, command, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	r.logger().Debug("capturing command", zap.String("command", command), zap.Strings("args", args))
	out, err := cmd.Output()
	if err != nil && !errors.Is(err, exec.ErrWaitDelay) {
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			return "", fmt.Errorf("run %s: %w: %s", command, err, msg)
		}
		return "", fmt.Errorf("run %s: %w", command, err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (r *Runner) command(ctx context.Context, command string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, command, args...) // #nosec G204 -- commands come from the project conf.
	cmd.Dir = r.Dir
	if len(r.Env) > 0 {
		cmd.Env = append(os.Environ(), r.Env...)
	}
	killGroupOnCancel(cmd)
	cmd.WaitDelay = waitDelay
	return cmd
}

func (r *Runner) out() io.Writer {
	if r.Out == nil {
		return os.Stdout
	}
	return r.Out
}

func (r *Runner) logger() *zap.Logger {
	if r.Logger == nil {
		return zap.NewNop()
	}
	return r.Logger
}

func exitCode(cmd *exec.Cmd, err error) (int, error) {
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	// The child exited but a descendant kept the output pipe open.
	if errors.Is(err, exec.ErrWaitDelay) && cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode(), nil
	}
	return -1, fmt.Errorf("wait %s: %w", cmd.Path, err)
}
