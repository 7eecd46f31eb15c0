package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"slices"
	"strings"
	"sync"
	"time"
)

// DefaultDetectTimeout bounds a full capability detection pass.
const DefaultDetectTimeout = 10 * time.Second

// Hardware encoder families recognised in -encoders output. VideoToolbox
// is what encoder selection targets; the others are surfaced for
// diagnostics on non-Apple hosts.
var hardwareEncoderSuffixes = []string{
	"_videotoolbox",
	"_nvenc",
	"_qsv",
	"_vaapi",
}

// Capabilities is a snapshot of the detected ffmpeg installation. A
// snapshot is never mutated after detection; Refresh builds a new one.
type Capabilities struct {
	FFmpegPath       string    `json:"ffmpeg_path,omitempty"`
	FFprobePath      string    `json:"ffprobe_path,omitempty"`
	FFmpegAvailable  bool      `json:"ffmpeg_available"`
	Version          string    `json:"version,omitempty"`
	Encoders         []string  `json:"encoders,omitempty"`
	HardwareEncoders []string  `json:"hardware_encoders,omitempty"`
	DetectedAt       time.Time `json:"detected_at"`
	Error            string    `json:"error,omitempty"`
}

// HasEncoder reports whether the named encoder is present.
func (c *Capabilities) HasEncoder(name string) bool {
	return slices.Contains(c.Encoders, name)
}

// HasHardwareEncoder reports whether name is an available hardware encoder.
func (c *Capabilities) HasHardwareEncoder(name string) bool {
	return slices.Contains(c.HardwareEncoders, name)
}

// Detector locates ffmpeg/ffprobe and caches a capability snapshot.
type Detector struct {
	ffmpegPath  string // configured override, empty means $PATH lookup
	ffprobePath string
	timeout     time.Duration

	mu   sync.RWMutex
	caps *Capabilities
}

// NewDetector creates a detector. Explicit binary paths take precedence
// over $PATH lookup.
func NewDetector(ffmpegPath, ffprobePath string, timeout time.Duration) *Detector {
	if timeout <= 0 {
		timeout = DefaultDetectTimeout
	}
	return &Detector{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
		timeout:     timeout,
	}
}

// Capabilities returns the cached snapshot, detecting on first use.
func (d *Detector) Capabilities(ctx context.Context) *Capabilities {
	d.mu.RLock()
	caps := d.caps
	d.mu.RUnlock()
	if caps != nil {
		return caps
	}
	return d.Refresh(ctx)
}

// Refresh re-probes the installation and replaces the cached snapshot.
// Holders of the previous snapshot keep reading it unchanged.
func (d *Detector) Refresh(ctx context.Context) *Capabilities {
	caps := d.detect(ctx)

	d.mu.Lock()
	d.caps = caps
	d.mu.Unlock()

	return caps
}

func (d *Detector) detect(ctx context.Context) *Capabilities {
	caps := &Capabilities{DetectedAt: time.Now().UTC()}

	ffmpegPath, err := resolveBinary(d.ffmpegPath, "ffmpeg")
	if err != nil {
		caps.Error = err.Error()
		return caps
	}
	caps.FFmpegPath = ffmpegPath

	// Missing ffprobe is not fatal: the segment encoder substitutes a
	// default duration when probing fails.
	if probePath, err := resolveBinary(d.ffprobePath, "ffprobe"); err == nil {
		caps.FFprobePath = probePath
	}

	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	version, err := ffmpegVersion(ctx, ffmpegPath)
	if err != nil {
		caps.Error = fmt.Sprintf("ffmpeg version check failed: %v", err)
		return caps
	}
	caps.Version = version
	caps.FFmpegAvailable = true

	output, err := exec.CommandContext(ctx, ffmpegPath, "-hide_banner", "-encoders").Output()
	if err != nil {
		caps.Error = fmt.Sprintf("listing encoders: %v", err)
		return caps
	}
	caps.Encoders = parseEncoders(string(output))
	for _, name := range caps.Encoders {
		if isHardwareEncoder(name) {
			caps.HardwareEncoders = append(caps.HardwareEncoders, name)
		}
	}
	return caps
}

// resolveBinary returns the configured path when set, otherwise finds
// name on $PATH.
func resolveBinary(configured, name string) (string, error) {
	if configured != "" {
		if _, err := os.Stat(configured); err != nil {
			return "", fmt.Errorf("%s not found at %s: %w", name, configured, err)
		}
		return configured, nil
	}
	path, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("%s not found in PATH: %w", name, err)
	}
	return path, nil
}

// ffmpegVersion extracts the version string from `ffmpeg -version`.
func ffmpegVersion(ctx context.Context, ffmpegPath string) (string, error) {
	output, err := exec.CommandContext(ctx, ffmpegPath, "-version").Output()
	if err != nil {
		return "", err
	}
	version := parseVersion(string(output))
	if version == "" {
		return "", fmt.Errorf("unrecognised -version output")
	}
	return version, nil
}

// parseVersion parses output like "ffmpeg version 7.1.1 Copyright ..." or
// "ffmpeg version n6.0-2-g123456".
func parseVersion(output string) string {
	for _, line := range strings.Split(output, "\n") {
		if !strings.HasPrefix(line, "ffmpeg version") {
			continue
		}
		parts := strings.Fields(line)
		if len(parts) >= 3 {
			return parts[2]
		}
	}
	return ""
}

// parseEncoders extracts encoder names from `ffmpeg -hide_banner -encoders`
// output. Entries follow a "------" delimiter, one per line:
//
//	V....D libx264              libx264 H.264 / AVC ... (codec h264)
func parseEncoders(output string) []string {
	var encoders []string
	inList := false
	for _, line := range strings.Split(output, "\n") {
		if strings.Contains(line, "------") {
			inList = true
			continue
		}
		if !inList {
			continue
		}
		line = strings.TrimLeft(line, " ")
		if len(line) < 8 {
			continue
		}
		if line[0] != 'V' && line[0] != 'A' && line[0] != 'S' {
			continue
		}
		fields := strings.Fields(strings.TrimSpace(line[6:]))
		if len(fields) > 0 && fields[0] != "" {
			encoders = append(encoders, fields[0])
		}
	}
	return encoders
}

func isHardwareEncoder(name string) bool {
	for _, suffix := range hardwareEncoderSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}
