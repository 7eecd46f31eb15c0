package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScript drops an executable shell script into dir and returns its
// path. Tests drive this package against scripts instead of a real ffmpeg
// install so they stay hermetic.
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("test scripts require sh")
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestRunner_Run_KeepsLastTenLines(t *testing.T) {
	var body strings.Builder
	for i := 1; i <= 15; i++ {
		fmt.Fprintf(&body, "echo line%d\n", i)
	}
	script := writeScript(t, t.TempDir(), "ffmpeg", body.String())

	result, err := NewRunner(nil).Run(context.Background(), 0, script)
	require.NoError(t, err)
	require.Len(t, result.Tail, 10)
	assert.Equal(t, "line6", result.Tail[0])
	assert.Equal(t, "line15", result.Tail[9])
	assert.Greater(t, result.Elapsed, time.Duration(0))
}

func TestRunner_Run_CombinesStdoutAndStderr(t *testing.T) {
	script := writeScript(t, t.TempDir(), "ffmpeg", "echo out\necho err >&2")

	result, err := NewRunner(nil).Run(context.Background(), 0, script)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"out", "err"}, result.Tail)
}

func TestRunner_Run_ExitError(t *testing.T) {
	script := writeScript(t, t.TempDir(), "ffmpeg", "echo kaboom >&2\nexit 3")

	result, err := NewRunner(nil).Run(context.Background(), 0, script)
	require.Error(t, err)

	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	assert.False(t, runErr.TimedOut)
	assert.Contains(t, runErr.Tail, "kaboom")
	assert.Contains(t, result.Tail, "kaboom")
}

func TestRunner_Run_TimeoutKillsProcess(t *testing.T) {
	script := writeScript(t, t.TempDir(), "ffmpeg", "echo starting\nexec sleep 10")

	started := time.Now()
	result, err := NewRunner(nil).Run(context.Background(), 200*time.Millisecond, script)
	require.Error(t, err)
	assert.Less(t, time.Since(started), 5*time.Second)

	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	assert.True(t, runErr.TimedOut)
	assert.Contains(t, runErr.Error(), "killed after")
	assert.Contains(t, result.Tail, "starting")
}

func TestRunner_Run_CancelledContext(t *testing.T) {
	script := writeScript(t, t.TempDir(), "ffmpeg", "exec sleep 10")

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	_, err := NewRunner(nil).Run(ctx, 0, script)
	require.Error(t, err)

	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	assert.False(t, runErr.TimedOut)
}

func TestRunner_Run_MissingBinary(t *testing.T) {
	_, err := NewRunner(nil).Run(context.Background(), 0, filepath.Join(t.TempDir(), "nope"))
	require.Error(t, err)

	var runErr *RunError
	require.ErrorAs(t, err, &runErr)
	assert.Equal(t, "nope", runErr.Name)
}

func TestTailWriter_TrimsOldest(t *testing.T) {
	w := newTailWriter(3)

	_, err := w.Write([]byte("one\ntwo\nthree\nfour\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"two", "three", "four"}, w.Lines())
}

func TestTailWriter_CarriageReturnsAndPartials(t *testing.T) {
	w := newTailWriter(5)

	_, err := w.Write([]byte("frame=1\rframe=2\rfra"))
	require.NoError(t, err)
	_, err = w.Write([]byte("me=3"))
	require.NoError(t, err)

	assert.Equal(t, []string{"frame=1", "frame=2", "frame=3"}, w.Lines())
}

func TestTailWriter_SkipsBlankLines(t *testing.T) {
	w := newTailWriter(3)

	_, err := w.Write([]byte("a\r\n\n   \nb\r\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, w.Lines())
}

func TestArgPreview_Truncates(t *testing.T) {
	preview := argPreview([]string{strings.Repeat("x", 300)})
	assert.Len(t, preview, maxArgPreview+3)
	assert.True(t, strings.HasSuffix(preview, "..."))

	assert.Equal(t, "-i in.mp4 out.mp4", argPreview([]string{"-i", "in.mp4", "out.mp4"}))
}
