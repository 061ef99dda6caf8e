package validation

import (
	"context"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func skipOnWindows(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("uses sh utilities")
	}
}

func TestShellRunnerExitStatus(t *testing.T) {
	skipOnWindows(t)
	r := NewShellRunner(5 * time.Second)
	ctx := context.Background()

	assert.NoError(t, r.Run(ctx, "true", ""))

	err := r.Run(ctx, "echo nope >&2; exit 3", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exit code 3")
	assert.Contains(t, err.Error(), "nope")
}

func TestShellRunnerFeedsStdin(t *testing.T) {
	skipOnWindows(t)
	r := NewShellRunner(5 * time.Second)
	ctx := context.Background()

	assert.NoError(t, r.Run(ctx, "grep -q 'func main'", "package main\nfunc main() {}\n"))
	assert.Error(t, r.Run(ctx, "grep -q 'func main'", "package lib\n"))
}

func TestShellRunnerTimeout(t *testing.T) {
	skipOnWindows(t)
	r := NewShellRunner(100 * time.Millisecond)

	start := time.Now()
	err := r.Run(context.Background(), "sleep 5", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timed out")
	assert.Less(t, time.Since(start), 3*time.Second)
}

func TestShellRunnerCancelled(t *testing.T) {
	skipOnWindows(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewShellRunner(time.Second).Run(ctx, "true", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cancelled")
}

func TestShellRunnerEmptyCommand(t *testing.T) {
	assert.EqualError(t, NewShellRunner(0).Run(context.Background(), "  ", ""), "command is required")
}

func TestLimitedBuffer(t *testing.T) {
	b := &limitedBuffer{limit: 4}
	n, err := b.Write([]byte("abcdef"))
	assert.NoError(t, err)
	assert.Equal(t, 6, n)
	_, _ = b.Write([]byte("gh"))
	assert.Equal(t, "abcd", b.String())
}

func TestValidatorWithShellRunner(t *testing.T) {
	skipOnWindows(t)
	v := New(true, NewShellRunner(5*time.Second))

	res := v.Validate(context.Background(), "hello", rule("external_command", "grep -q hello"))
	assert.True(t, res.Passed)

	res = v.Validate(context.Background(), "hello", rule("external_command", "grep -q bye"))
	assert.False(t, res.Passed)
	assert.Contains(t, res.Error, "External validation failed")
}
