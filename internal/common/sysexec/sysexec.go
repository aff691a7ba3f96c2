// Package sysexec runs external commands for the packages that shell out
// to system tools. It exists so apt, flatpak and hook execution share one
// code path for environment handling, output streaming and error shaping.
package sysexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// CommandError reports a failed external command together with what
// callers need to surface it: the exit code and the command's stderr.
type CommandError struct {
	Name     string
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	cmd := e.Name
	if len(e.Args) > 0 {
		cmd += " " + strings.Join(e.Args, " ")
	}
	if e.Stderr != "" {
		return fmt.Sprintf("%s: %v: %s", cmd, e.Err, e.Stderr)
	}
	return fmt.Sprintf("%s: %v", cmd, e.Err)
}

func (e *CommandError) Unwrap() error { return e.Err }

// Runner executes external commands with a fixed output destination and
// extra environment, so every command a component runs behaves the same way.
type Runner struct {
	stdout io.Writer
	stderr io.Writer
	env    []string
}

// Option configures a Runner
type Option func(*Runner)

// WithOutput streams command output to the given writers as it is
// produced. Stderr is additionally captured for error reporting.
func WithOutput(stdout, stderr io.Writer) Option {
	return func(r *Runner) {
		r.stdout = stdout
		r.stderr = stderr
	}
}

// WithEnv appends entries of the form KEY=value to the inherited
// environment of every command.
func WithEnv(entries ...string) Option {
	return func(r *Runner) {
		r.env = append(r.env, entries...)
	}
}

// New creates a Runner. Without options, output is discarded except for
// the stderr capture used in errors.
func New(opts ...Option) *Runner {
	r := &Runner{}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes name with args and waits for it to finish. On failure the
// returned error is a *CommandError carrying the command's exit code and
// captured stderr; a context deadline or cancellation is folded into the
// error chain so callers can detect it with errors.Is.
func (r *Runner) Run(ctx context.Context, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	if len(r.env) > 0 {
		cmd.Env = append(os.Environ(), r.env...)
	}

	var stderrBuf bytes.Buffer
	if r.stdout != nil {
		cmd.Stdout = r.stdout
	}
	if r.stderr != nil {
		cmd.Stderr = io.MultiWriter(r.stderr, &stderrBuf)
	} else {
		cmd.Stderr = &stderrBuf
	}

	runErr := cmd.Run()
	if runErr == nil {
		return nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(runErr, ctxErr) {
		runErr = errors.Join(runErr, ctxErr)
	}

	code := -1
	var exitErr *exec.ExitError
	if errors.As(runErr, &exitErr) {
		code = exitErr.ExitCode()
	}

	return &CommandError{
		Name:     name,
		Args:     args,
		ExitCode: code,
		Stderr:   strings.TrimSpace(stderrBuf.String()),
		Err:      runErr,
	}
}

// ExitCode maps an error from Run to a process exit status. nil is 0, a
// command failure propagates the command's own positive exit code, and
// everything else (signals, timeouts, non-command errors) is 1.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}
	var cerr *CommandError
	if errors.As(err, &cerr) && cerr.ExitCode > 0 {
		return cerr.ExitCode
	}
	return 1
}
