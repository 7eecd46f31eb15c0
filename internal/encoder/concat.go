package encoder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmylchreest/slidereel/internal/ffmpeg"
)

// DefaultConcatTimeout bounds one stream-copy merge.
const DefaultConcatTimeout = 5 * time.Minute

// manifestName is the concat list written into the group temp dir.
const manifestName = "mylist.txt"

// Concatenator stream-copies encoded segments into one output file.
// Valid only for segments produced with identical codec parameters.
type Concatenator struct {
	detector *ffmpeg.Detector
	runner   *ffmpeg.Runner
	timeout  time.Duration
	logger   *slog.Logger
}

// NewConcatenator creates a concatenator bounded by timeout per merge.
func NewConcatenator(detector *ffmpeg.Detector, timeout time.Duration, logger *slog.Logger) *Concatenator {
	if timeout <= 0 {
		timeout = DefaultConcatTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Concatenator{
		detector: detector,
		runner:   ffmpeg.NewRunner(logger),
		timeout:  timeout,
		logger:   logger,
	}
}

// Concat merges segPaths in order into outPath, writing the manifest
// into tmpDir. On failure any partial output is removed.
func (c *Concatenator) Concat(ctx context.Context, tmpDir string, segPaths []string, outPath string) error {
	if len(segPaths) == 0 {
		return &ConcatError{Output: outPath, Err: fmt.Errorf("no segments to concatenate")}
	}

	manifestPath := filepath.Join(tmpDir, manifestName)
	if err := writeManifest(manifestPath, segPaths); err != nil {
		return &ConcatError{Output: outPath, Err: err}
	}

	caps := c.detector.Capabilities(ctx)
	if !caps.FFmpegAvailable {
		return &ConcatError{Output: outPath, Err: fmt.Errorf("ffmpeg unavailable: %s", caps.Error)}
	}

	c.logger.Info("concatenating segments",
		slog.Int("segments", len(segPaths)),
		slog.String("output", filepath.Base(outPath)))

	_, err := c.runner.Run(ctx, c.timeout, caps.FFmpegPath,
		"-hide_banner", "-y",
		"-f", "concat", "-safe", "0", "-i", manifestPath,
		"-c", "copy",
		"-movflags", "+faststart",
		outPath,
	)
	if err != nil {
		// A failed merge can leave a truncated file behind.
		if removeErr := os.Remove(outPath); removeErr != nil && !os.IsNotExist(removeErr) {
			c.logger.Warn("removing partial output failed",
				slog.String("output", outPath),
				slog.String("error", removeErr.Error()))
		}

		concatErr := &ConcatError{Output: outPath, Err: err}
		var runErr *ffmpeg.RunError
		if errors.As(err, &runErr) {
			concatErr.Tail = runErr.Tail
		}
		return concatErr
	}
	return nil
}

// writeManifest writes one `file '<path>'` line per segment in play
// order. Paths are absolute; embedded single quotes are escaped the way
// the concat demuxer expects.
func writeManifest(path string, segPaths []string) error {
	var b strings.Builder
	for _, p := range segPaths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return fmt.Errorf("resolving %s: %w", p, err)
		}
		fmt.Fprintf(&b, "file '%s'\n", escapeManifestPath(abs))
	}
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	return nil
}

func escapeManifestPath(p string) string {
	return strings.ReplaceAll(p, "'", `'\''`)
}
