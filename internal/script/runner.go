package script

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"time"
)

// result is the raw outcome of running one script.
type result struct {
	Status   JobStatus
	ExitCode int
	Stdout   []byte
	Stderr   []byte
	Err      error
}

// Runner executes scripts through the platform shell: PowerShell on
// Windows, /bin/sh elsewhere. Inline scripts are written to a temp file
// first so both source types go through the same interpreter path.
type Runner struct {
	DefaultTimeout time.Duration
}

// Run executes the spec and blocks until it finishes or times out.
func (r Runner) Run(ctx context.Context, spec Spec) result {
	timeout := spec.Timeout
	if timeout <= 0 {
		timeout = r.DefaultTimeout
	}

	path := spec.Path
	if spec.Type == SourceInline {
		tmp, err := writeTempScript(spec.Content)
		if err != nil {
			return result{Status: StatusError, ExitCode: -1, Err: err}
		}
		defer os.Remove(tmp)
		path = tmp
	}

	if _, err := os.Stat(path); err != nil {
		return result{Status: StatusError, ExitCode: -1, Err: fmt.Errorf("script not found: %w", err)}
	}

	rctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := shellCommand(rctx, path)
	cmd.Dir = spec.WorkDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	res := result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	switch {
	case rctx.Err() == context.DeadlineExceeded:
		res.Status = StatusTimeout
		res.ExitCode = -1
		res.Err = fmt.Errorf("script timed out after %s", timeout)
	case err == nil:
		res.Status = StatusCompleted
	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.Status = StatusFailed
			res.ExitCode = exitErr.ExitCode()
			res.Err = err
		} else {
			res.Status = StatusError
			res.ExitCode = -1
			res.Err = fmt.Errorf("start script: %w", err)
		}
	}
	return res
}

// shellCommand builds the interpreter invocation for the host platform.
func shellCommand(ctx context.Context, path string) *exec.Cmd {
	if runtime.GOOS == "windows" {
		return exec.CommandContext(ctx, "powershell.exe",
			"-NoProfile", "-NonInteractive", "-ExecutionPolicy", "Bypass",
			"-File", path,
		)
	}
	return exec.CommandContext(ctx, "/bin/sh", path)
}

// writeTempScript persists inline content to a temp file with the
// platform's script extension.
func writeTempScript(content string) (string, error) {
	ext := ".sh"
	if runtime.GOOS == "windows" {
		ext = ".ps1"
	}
	f, err := os.CreateTemp("", "winsentry-*"+ext)
	if err != nil {
		return "", fmt.Errorf("create temp script: %w", err)
	}
	if _, err := f.WriteString(content); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", fmt.Errorf("write temp script: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("close temp script: %w", err)
	}
	return f.Name(), nil
}
