package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// DefaultProbeTimeout bounds a single ffprobe run.
const DefaultProbeTimeout = 10 * time.Second

// ProbeError reports an ffprobe failure for a specific file.
type ProbeError struct {
	Path   string
	Detail string // last stderr line, when available
	Err    error
}

func (e *ProbeError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("probing %s: %v: %s", e.Path, e.Err, e.Detail)
	}
	return fmt.Sprintf("probing %s: %v", e.Path, e.Err)
}

func (e *ProbeError) Unwrap() error { return e.Err }

// Prober measures media durations with ffprobe.
type Prober struct {
	ffprobePath string
	timeout     time.Duration
}

// NewProber creates a prober using the given ffprobe binary.
func NewProber(ffprobePath string) *Prober {
	return &Prober{
		ffprobePath: ffprobePath,
		timeout:     DefaultProbeTimeout,
	}
}

// WithTimeout overrides the per-probe timeout.
func (p *Prober) WithTimeout(timeout time.Duration) *Prober {
	if timeout > 0 {
		p.timeout = timeout
	}
	return p
}

// Duration returns the container duration of path in seconds.
func (p *Prober) Duration(ctx context.Context, path string) (float64, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=nokey=1:noprint_wrappers=1",
		path,
	)

	output, err := cmd.Output()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return 0, &ProbeError{Path: path, Err: fmt.Errorf("probe timeout after %v", p.timeout)}
		}
		return 0, &ProbeError{Path: path, Detail: exitDetail(err), Err: err}
	}

	text := strings.TrimSpace(string(output))
	seconds, err := strconv.ParseFloat(text, 64)
	if err != nil {
		// Streams without a container duration report "N/A".
		return 0, &ProbeError{Path: path, Err: fmt.Errorf("unexpected duration output %q", text)}
	}
	if seconds < 0 {
		return 0, &ProbeError{Path: path, Err: fmt.Errorf("negative duration %v", seconds)}
	}
	return seconds, nil
}

// exitDetail extracts the last stderr line from an exec error.
func exitDetail(err error) string {
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) || len(exitErr.Stderr) == 0 {
		return ""
	}
	lines := strings.Split(strings.TrimSpace(string(exitErr.Stderr)), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}
