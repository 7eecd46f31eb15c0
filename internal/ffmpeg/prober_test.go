package ffmpeg

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProber_Duration(t *testing.T) {
	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args.txt")
	script := writeScript(t, dir, "ffprobe",
		`echo "$@" > "`+argsFile+`"`+"\necho 12.500")

	seconds, err := NewProber(script).Duration(context.Background(), "/media/clip.mp3")
	require.NoError(t, err)
	assert.InDelta(t, 12.5, seconds, 0.0001)

	args, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.Equal(t,
		"-v error -show_entries format=duration -of default=nokey=1:noprint_wrappers=1 /media/clip.mp3",
		strings.TrimSpace(string(args)))
}

func TestProber_Duration_NotAvailable(t *testing.T) {
	script := writeScript(t, t.TempDir(), "ffprobe", "echo N/A")

	_, err := NewProber(script).Duration(context.Background(), "clip.mp3")
	require.Error(t, err)

	var probeErr *ProbeError
	require.ErrorAs(t, err, &probeErr)
	assert.Contains(t, probeErr.Error(), "N/A")
}

func TestProber_Duration_ExitError(t *testing.T) {
	script := writeScript(t, t.TempDir(), "ffprobe",
		"echo 'moov atom not found' >&2\nexit 1")

	_, err := NewProber(script).Duration(context.Background(), "broken.mp3")
	require.Error(t, err)

	var probeErr *ProbeError
	require.ErrorAs(t, err, &probeErr)
	assert.Equal(t, "broken.mp3", probeErr.Path)
	assert.Equal(t, "moov atom not found", probeErr.Detail)
}

func TestProber_Duration_Timeout(t *testing.T) {
	script := writeScript(t, t.TempDir(), "ffprobe", "exec sleep 10")

	prober := NewProber(script).WithTimeout(100 * time.Millisecond)
	_, err := prober.Duration(context.Background(), "clip.mp3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "probe timeout after")
}

func TestProber_Duration_MissingBinary(t *testing.T) {
	prober := NewProber(filepath.Join(t.TempDir(), "ffprobe"))

	_, err := prober.Duration(context.Background(), "clip.mp3")
	require.Error(t, err)

	var probeErr *ProbeError
	require.ErrorAs(t, err, &probeErr)
}

func TestProber_Duration_NegativeValue(t *testing.T) {
	script := writeScript(t, t.TempDir(), "ffprobe", "echo -1.5")

	_, err := NewProber(script).Duration(context.Background(), "clip.mp3")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "negative duration")
}
