package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/bowerhall/courier/internal/logger"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultOutputCap = 3500
)

// ExecError is a command that ran and failed.
type ExecError struct {
	Command  string
	ExitCode int
	Stderr   string
	TimedOut bool
	Err      error
}

func (e *ExecError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("command timed out: %s", e.Command)
	}
	if e.Stderr != "" {
		return fmt.Sprintf("exit status %d: %s", e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("exit status %d", e.ExitCode)
}

func (e *ExecError) Unwrap() error {
	return e.Err
}

type Config struct {
	Timeout   time.Duration
	OutputCap int
}

// Runner executes a single command line through the host shell.
type Runner struct {
	timeout   time.Duration
	outputCap int
}

func NewRunner(cfg Config) *Runner {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.OutputCap == 0 {
		cfg.OutputCap = DefaultOutputCap
	}

	return &Runner{
		timeout:   cfg.Timeout,
		outputCap: cfg.OutputCap,
	}
}

func shellCommand(ctx context.Context, command string) *exec.Cmd {
	if runtime.GOOS == "windows" {
		return exec.CommandContext(ctx, "cmd", "/C", command)
	}
	return exec.CommandContext(ctx, "sh", "-c", command)
}

// Run executes command and returns its redacted, truncated stdout.
func (r *Runner) Run(ctx context.Context, command string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	logger.Debug("shell executing", "command", command)

	cmd := shellCommand(ctx, command)
	// children that inherit stdout must not hold Run open past the deadline
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		execErr := &ExecError{
			Command:  command,
			ExitCode: -1,
			Stderr:   Truncate(Redact(strings.TrimSpace(stderr.String())), r.outputCap),
			Err:      err,
		}

		if ctx.Err() == context.DeadlineExceeded {
			execErr.TimedOut = true
			return "", execErr
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			execErr.ExitCode = exitErr.ExitCode()
		}

		logger.Debug("shell command failed", "command", command, "exit", execErr.ExitCode, "stderr", execErr.Stderr)
		return "", execErr
	}

	out := strings.TrimSpace(stdout.String())
	if out == "" {
		out = strings.TrimSpace(stderr.String())
	}

	return Truncate(Redact(out), r.outputCap), nil
}

// Truncate caps s at limit runes.
func Truncate(s string, limit int) string {
	runes := []rune(s)
	if limit <= 0 || len(runes) <= limit {
		return s
	}
	return string(runes[:limit]) + "\n…(truncated)"
}
