package validation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strings"
	"time"
)

// DefaultCommandTimeout bounds every external validation command.
const DefaultCommandTimeout = 30 * time.Second

// maxStderr caps how much of a failing command's stderr is kept for the
// error message.
const maxStderr = 2048

// CommandRunner runs a shell command with the given text on stdin. A nil
// error means the command exited with status 0 before its deadline.
type CommandRunner interface {
	Run(ctx context.Context, command, stdin string) error
}

// ShellRunner runs commands through the platform shell.
type ShellRunner struct {
	Timeout time.Duration
}

// NewShellRunner creates a ShellRunner, falling back to
// DefaultCommandTimeout for non-positive timeouts.
func NewShellRunner(timeout time.Duration) *ShellRunner {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	return &ShellRunner{Timeout: timeout}
}

// Run spawns the command, feeds stdin and closes it, then waits for exit
// under the deadline. The process is killed and reaped when the deadline
// passes or ctx is cancelled.
func (r *ShellRunner) Run(ctx context.Context, command, stdin string) error {
	if strings.TrimSpace(command) == "" {
		return errors.New("command is required")
	}

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := shellCommand(ctx, command)
	cmd.Stdin = strings.NewReader(stdin)
	cmd.Stdout = io.Discard
	stderr := &limitedBuffer{limit: maxStderr}
	cmd.Stderr = stderr
	// Children that inherit the pipes must not keep Wait blocked after
	// the kill.
	cmd.WaitDelay = time.Second

	err := cmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return fmt.Errorf("command timed out after %s: %s", timeout, command)
		}
		return fmt.Errorf("command cancelled: %w", ctxErr)
	}
	if err == nil {
		return nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		msg := fmt.Sprintf("command failed with exit code %d: %s", exitErr.ExitCode(), command)
		if detail := strings.TrimSpace(stderr.String()); detail != "" {
			msg += "\n" + detail
		}
		return errors.New(msg)
	}
	return fmt.Errorf("failed to start command: %w", err)
}

func shellCommand(ctx context.Context, command string) *exec.Cmd {
	if runtime.GOOS == "windows" {
		return exec.CommandContext(ctx, "powershell", "-NoProfile", "-NonInteractive", "-Command", command)
	}
	return exec.CommandContext(ctx, "sh", "-c", command)
}

type limitedBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (l *limitedBuffer) Write(p []byte) (int, error) {
	remaining := l.limit - l.buf.Len()
	if remaining > 0 {
		if len(p) > remaining {
			_, _ = l.buf.Write(p[:remaining])
		} else {
			_, _ = l.buf.Write(p)
		}
	}
	return len(p), nil
}

func (l *limitedBuffer) String() string {
	return l.buf.String()
}

var _ io.Writer = (*limitedBuffer)(nil)
