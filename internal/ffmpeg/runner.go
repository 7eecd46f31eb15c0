// Package ffmpeg wraps the ffmpeg and ffprobe binaries: locating them,
// detecting encoder capabilities, probing media durations and running
// encode commands with bounded output capture.
package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// tailLines is how many trailing output lines each invocation keeps for
// diagnostics.
const tailLines = 10

// maxArgPreview caps the argument string logged per invocation.
const maxArgPreview = 200

// Result describes a finished invocation.
type Result struct {
	Tail    []string // last output lines, oldest first
	Elapsed time.Duration
}

// RunError reports a failed or killed invocation.
type RunError struct {
	Name     string
	Args     []string
	Tail     []string
	Timeout  time.Duration
	TimedOut bool
	Err      error
}

func (e *RunError) Error() string {
	if e.TimedOut {
		return fmt.Sprintf("%s killed after %v timeout", e.Name, e.Timeout)
	}
	return fmt.Sprintf("%s: %v", e.Name, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

// Runner executes ffmpeg invocations with a per-run deadline. On timeout
// or context cancellation the process is killed, never abandoned.
type Runner struct {
	logger *slog.Logger
}

// NewRunner creates a runner logging through the given logger.
func NewRunner(logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{logger: logger}
}

// Run executes name with args, enforcing timeout when positive. Stdout
// and stderr fold into a single tail of the last lines, returned both on
// success and inside RunError on failure.
func (r *Runner) Run(ctx context.Context, timeout time.Duration, name string, args ...string) (*Result, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tail := newTailWriter(tailLines)
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = tail
	cmd.Stderr = tail

	r.logger.Debug("running command",
		slog.String("binary", filepath.Base(name)),
		slog.String("args", argPreview(args)))

	started := time.Now()
	err := cmd.Run()
	result := &Result{
		Tail:    tail.Lines(),
		Elapsed: time.Since(started),
	}
	if err == nil {
		return result, nil
	}

	runErr := &RunError{
		Name:     filepath.Base(name),
		Args:     args,
		Tail:     result.Tail,
		Timeout:  timeout,
		TimedOut: errors.Is(ctx.Err(), context.DeadlineExceeded),
		Err:      err,
	}
	return result, runErr
}

// argPreview joins args for debug logging, truncated to keep log lines
// readable.
func argPreview(args []string) string {
	s := strings.Join(args, " ")
	if len(s) > maxArgPreview {
		return s[:maxArgPreview] + "..."
	}
	return s
}

// tailWriter folds a byte stream into its trailing lines. ffmpeg rewrites
// progress with carriage returns, so both \n and \r terminate a line.
// exec.Cmd serializes writes when stdout and stderr share the writer, so
// no locking is needed.
type tailWriter struct {
	max     int
	lines   []string
	partial strings.Builder
}

func newTailWriter(max int) *tailWriter {
	return &tailWriter{max: max}
}

func (w *tailWriter) Write(p []byte) (int, error) {
	for _, b := range p {
		if b == '\n' || b == '\r' {
			w.flush()
			continue
		}
		w.partial.WriteByte(b)
	}
	return len(p), nil
}

func (w *tailWriter) flush() {
	line := w.partial.String()
	w.partial.Reset()
	if strings.TrimSpace(line) == "" {
		return
	}
	if len(w.lines) >= w.max {
		w.lines = w.lines[1:]
	}
	w.lines = append(w.lines, line)
}

// Lines returns the captured tail including any unterminated final line.
func (w *tailWriter) Lines() []string {
	out := make([]string, len(w.lines), len(w.lines)+1)
	copy(out, w.lines)
	if p := w.partial.String(); strings.TrimSpace(p) != "" {
		if len(out) >= w.max {
			out = out[1:]
		}
		out = append(out, p)
	}
	return out
}
