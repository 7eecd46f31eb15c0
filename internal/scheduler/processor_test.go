package scheduler

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jmylchreest/slidereel/internal/encoder"
	"github.com/jmylchreest/slidereel/internal/models"
	"github.com/jmylchreest/slidereel/internal/service/events"
)

func readCalls(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func concatCalls(t *testing.T, path string) int {
	t.Helper()
	count := 0
	for _, call := range readCalls(t, path) {
		if strings.Contains(call, "-f concat") {
			count++
		}
	}
	return count
}

func (e *schedEnv) createJob(job *models.Job) *models.Job {
	e.t.Helper()
	require.NoError(e.t, e.repo.Create(context.Background(), job))
	return job
}

func TestProcessor_SkipsIncompleteSegmentsAndEmptyGroups(t *testing.T) {
	env := newSchedEnv(t, fakeBehavior{})
	imagesDir, audioDir := env.makeMedia(2, 1)

	// img2 has no matching audio: group 2 holds a single incomplete
	// segment and produces no output, but the job still completes.
	job := env.createJob(env.newJob(imagesDir, audioDir, 1))

	outputs, err := env.processor.Process(context.Background(), job, newControl(func() {}))
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.Equal(t, filepath.Join(env.outDir, "img1.mp4"), outputs[0])

	assert.Equal(t, 2, job.GroupsTotal)
	assert.Equal(t, 2, job.GroupsDone)
	assert.Equal(t, float64(100), job.Progress)

	stored := env.get(job.ID)
	assert.Equal(t, outputs, []string(stored.OutputFiles))

	assert.Equal(t, 1, concatCalls(t, env.callsFile))

	var sawSkipped, sawGroupFailed bool
	for _, event := range env.bus.Recent(0) {
		switch event.Type {
		case events.TypeSegmentSkipped:
			sawSkipped = true
			assert.Contains(t, event.Message, "missing image or audio")
		case events.TypeGroupFailed:
			sawGroupFailed = true
		}
	}
	assert.True(t, sawSkipped)
	assert.True(t, sawGroupFailed)
}

func TestProcessor_DropsFailedSegmentAndKeepsGroup(t *testing.T) {
	env := newSchedEnv(t, fakeBehavior{failures: 1})
	imagesDir, audioDir := env.makeMedia(2, 2)

	job := env.createJob(env.newJob(imagesDir, audioDir, 2))

	outputs, err := env.processor.Process(context.Background(), job, newControl(func() {}))
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.Equal(t, filepath.Join(env.outDir, "img1-img2.mp4"), outputs[0])

	var dropped, encoded int
	for _, event := range env.bus.Recent(0) {
		switch event.Type {
		case events.TypeSegmentSkipped:
			dropped++
			assert.Contains(t, event.Message, "dropped")
		case events.TypeSegmentEncoded:
			encoded++
		}
	}
	assert.Equal(t, 1, dropped)
	assert.Equal(t, 1, encoded)
}

func TestProcessor_ConcatFailureStopsJob(t *testing.T) {
	env := newSchedEnv(t, fakeBehavior{concatFails: true})
	imagesDir, audioDir := env.makeMedia(1, 1)

	job := env.createJob(env.newJob(imagesDir, audioDir, 1))

	outputs, err := env.processor.Process(context.Background(), job, newControl(func() {}))
	require.Error(t, err)
	assert.Empty(t, outputs)

	var concatErr *encoder.ConcatError
	require.ErrorAs(t, err, &concatErr)
	assert.Contains(t, err.Error(), "concatenating")

	// The group temp dir is removed even on failure.
	entries, readErr := os.ReadDir(env.workDir)
	require.NoError(t, readErr)
	assert.Empty(t, entries)
}

func TestProcessor_KeepsEarlierOutputsOnFailure(t *testing.T) {
	// Calls land as encode g1, concat g1, encode g2, concat g2. Failing
	// from the fourth call on breaks only the second group's concat.
	env := newSchedEnv(t, fakeBehavior{failFrom: 4})
	imagesDir, audioDir := env.makeMedia(2, 2)

	job := env.createJob(env.newJob(imagesDir, audioDir, 1))

	outputs, err := env.processor.Process(context.Background(), job, newControl(func() {}))
	require.Error(t, err)
	require.Len(t, outputs, 1)
	assert.Equal(t, filepath.Join(env.outDir, "img1.mp4"), outputs[0])

	stored := env.get(job.ID)
	assert.Len(t, stored.OutputFiles, 1)
	assert.Equal(t, 1, stored.GroupsDone)
	assert.Equal(t, 2, stored.GroupsTotal)
}

func TestProcessor_StopRequestBeforeStart(t *testing.T) {
	env := newSchedEnv(t, fakeBehavior{})
	imagesDir, audioDir := env.makeMedia(1, 1)

	job := env.createJob(env.newJob(imagesDir, audioDir, 1))

	control := newControl(func() {})
	control.RequestStop()

	outputs, err := env.processor.Process(context.Background(), job, control)
	require.ErrorIs(t, err, errCancelled)
	assert.Empty(t, outputs)
	assert.Zero(t, concatCalls(t, env.callsFile))
}

func TestProcessor_EmptyPlanRejected(t *testing.T) {
	env := newSchedEnv(t, fakeBehavior{})

	imagesDir := filepath.Join(env.dir, "none-images")
	audioDir := filepath.Join(env.dir, "none-audio")
	require.NoError(t, os.MkdirAll(imagesDir, 0o755))
	require.NoError(t, os.MkdirAll(audioDir, 0o755))

	job := env.createJob(env.newJob(imagesDir, audioDir, 1))

	_, err := env.processor.Process(context.Background(), job, newControl(func() {}))
	var inputErr *InputError
	require.ErrorAs(t, err, &inputErr)
}

func TestControl_Requests(t *testing.T) {
	t.Run("stop leaves the job context alive", func(t *testing.T) {
		stopped := false
		control := newControl(func() { stopped = true })

		control.RequestStop()
		assert.True(t, control.CancelRequested())
		assert.False(t, stopped)
	})

	t.Run("cancel kills the job context", func(t *testing.T) {
		stopped := false
		control := newControl(func() { stopped = true })

		control.RequestCancel()
		assert.True(t, control.CancelRequested())
		assert.True(t, stopped)
	})
}
