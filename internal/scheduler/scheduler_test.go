package scheduler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jmylchreest/slidereel/internal/encoder"
	"github.com/jmylchreest/slidereel/internal/ffmpeg"
	"github.com/jmylchreest/slidereel/internal/models"
	"github.com/jmylchreest/slidereel/internal/repository"
	"github.com/jmylchreest/slidereel/internal/service/events"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeBehavior tunes the fake ffmpeg script driven by the tests.
type fakeBehavior struct {
	// failures makes the first N encode/concat invocations exit nonzero.
	failures int
	// failFrom makes every invocation from the Nth onward exit nonzero.
	failFrom int
	// concatFails makes every concat invocation exit nonzero.
	concatFails bool
	// encodeHangs replaces encode invocations with a long sleep so tests
	// can cancel mid-segment.
	encodeHangs bool
	// encodeSleep delays each encode invocation, e.g. "0.3".
	encodeSleep string
}

type schedEnv struct {
	t         *testing.T
	dir       string
	repo      repository.JobRepository
	bus       *events.Service
	processor *Processor
	runner    *Runner
	workDir   string
	outDir    string
	callsFile string
}

func writeTestScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("test scripts require sh")
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func newSchedEnv(t *testing.T, behavior fakeBehavior) *schedEnv {
	t.Helper()
	dir := t.TempDir()
	callsFile := filepath.Join(dir, "calls.txt")
	countFile := filepath.Join(dir, "count.txt")

	var b strings.Builder
	b.WriteString("if [ \"$1\" = \"-version\" ]; then\n")
	b.WriteString("  echo \"ffmpeg version 7.1.1\"\n")
	b.WriteString("  exit 0\n")
	b.WriteString("fi\n")
	b.WriteString("if [ \"$2\" = \"-encoders\" ]; then\n")
	b.WriteString("  echo \" ------\"\n")
	b.WriteString("  echo \" V....D libx264              x264\"\n")
	b.WriteString("  exit 0\n")
	b.WriteString("fi\n")
	fmt.Fprintf(&b, "echo \"$@\" >> \"%s\"\n", callsFile)
	fmt.Fprintf(&b, "n=$(cat \"%s\" 2>/dev/null || echo 0)\n", countFile)
	b.WriteString("n=$((n+1))\n")
	fmt.Fprintf(&b, "echo $n > \"%s\"\n", countFile)
	fmt.Fprintf(&b, "if [ \"$n\" -le %d ]; then exit 1; fi\n", behavior.failures)
	if behavior.failFrom > 0 {
		fmt.Fprintf(&b, "if [ \"$n\" -ge %d ]; then exit 1; fi\n", behavior.failFrom)
	}
	b.WriteString("case \"$*\" in\n")
	if behavior.concatFails {
		b.WriteString("  *\"-f concat\"*) exit 1 ;;\n")
	} else {
		b.WriteString("  *\"-f concat\"*) exit 0 ;;\n")
	}
	b.WriteString("esac\n")
	if behavior.encodeHangs {
		b.WriteString("exec sleep 30\n")
	} else if behavior.encodeSleep != "" {
		fmt.Fprintf(&b, "sleep %s\n", behavior.encodeSleep)
	}
	b.WriteString("exit 0")

	ffmpegPath := writeTestScript(t, dir, "ffmpeg", b.String())
	ffprobePath := writeTestScript(t, dir, "ffprobe", "echo 2.500")

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Job{}))
	repo := repository.NewJobRepository(db)

	detector := ffmpeg.NewDetector(ffmpegPath, ffprobePath, 5*time.Second)
	segmentEncoder := encoder.NewSegmentEncoder(detector, encoder.NewPerfTracker(), time.Second, testLogger())
	concatenator := encoder.NewConcatenator(detector, time.Minute, testLogger())

	bus := events.New()
	workDir := filepath.Join(dir, "work")
	outDir := filepath.Join(dir, "out")

	processor := NewProcessor(repo, segmentEncoder, concatenator, bus, workDir).WithLogger(testLogger())
	runner := NewRunner(repo, processor, bus).
		WithLogger(testLogger()).
		WithPollInterval(50 * time.Millisecond)

	return &schedEnv{
		t:         t,
		dir:       dir,
		repo:      repo,
		bus:       bus,
		processor: processor,
		runner:    runner,
		workDir:   workDir,
		outDir:    outDir,
		callsFile: callsFile,
	}
}

// makeMedia creates input directories holding the given number of image
// and audio files named img<n>.jpg and clip<n>.mp3.
func (e *schedEnv) makeMedia(images, audios int) (string, string) {
	e.t.Helper()
	imagesDir := filepath.Join(e.dir, fmt.Sprintf("images-%d-%d", images, audios))
	audioDir := filepath.Join(e.dir, fmt.Sprintf("audio-%d-%d", images, audios))
	require.NoError(e.t, os.MkdirAll(imagesDir, 0o755))
	require.NoError(e.t, os.MkdirAll(audioDir, 0o755))

	for i := 1; i <= images; i++ {
		path := filepath.Join(imagesDir, fmt.Sprintf("img%d.jpg", i))
		require.NoError(e.t, os.WriteFile(path, []byte("jpg"), 0o644))
	}
	for i := 1; i <= audios; i++ {
		path := filepath.Join(audioDir, fmt.Sprintf("clip%d.mp3", i))
		require.NoError(e.t, os.WriteFile(path, []byte("mp3"), 0o644))
	}
	return imagesDir, audioDir
}

func (e *schedEnv) newJob(imagesDir, audioDir string, groupSize int) *models.Job {
	return &models.Job{
		ImagesDir:     imagesDir,
		AudioDir:      audioDir,
		OutputDir:     e.outDir,
		GroupSize:     groupSize,
		EncoderPolicy: models.EncoderPolicySoftware,
		FPS:           24,
		Resolution:    models.Resolution1080p,
		Codec:         models.CodecH264,
		Status:        models.JobStatusPending,
	}
}

func (e *schedEnv) get(id models.ULID) *models.Job {
	e.t.Helper()
	job, err := e.repo.GetByID(context.Background(), id)
	require.NoError(e.t, err)
	require.NotNil(e.t, job)
	return job
}

func (e *schedEnv) waitStatus(id models.ULID, status models.JobStatus) *models.Job {
	e.t.Helper()
	var got *models.Job
	require.Eventually(e.t, func() bool {
		job, err := e.repo.GetByID(context.Background(), id)
		if err != nil || job == nil {
			return false
		}
		got = job
		return job.Status == status
	}, 5*time.Second, 20*time.Millisecond, "waiting for job %s to reach %s", id, status)
	return got
}

func (e *schedEnv) eventTypes(jobID models.ULID) []string {
	var types []string
	for _, event := range e.bus.Recent(0) {
		if event.JobID == jobID.String() {
			types = append(types, event.Type)
		}
	}
	return types
}

func TestRunner_Submit_Validation(t *testing.T) {
	env := newSchedEnv(t, fakeBehavior{})
	imagesDir, audioDir := env.makeMedia(1, 1)

	tests := []struct {
		name      string
		mutate    func(job *models.Job)
		wantField string
	}{
		{
			name:      "missing images dir",
			mutate:    func(job *models.Job) { job.ImagesDir = filepath.Join(env.dir, "nope") },
			wantField: "images_dir",
		},
		{
			name:      "missing audio dir",
			mutate:    func(job *models.Job) { job.AudioDir = filepath.Join(env.dir, "nope") },
			wantField: "audio_dir",
		},
		{
			name: "images dir is a file",
			mutate: func(job *models.Job) {
				path := filepath.Join(env.dir, "file.txt")
				require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))
				job.ImagesDir = path
			},
			wantField: "images_dir",
		},
		{
			name: "no matching images",
			mutate: func(job *models.Job) {
				empty := filepath.Join(env.dir, "empty-images")
				require.NoError(t, os.MkdirAll(empty, 0o755))
				job.ImagesDir = empty
			},
			wantField: "images_dir",
		},
		{
			name: "no matching audio",
			mutate: func(job *models.Job) {
				empty := filepath.Join(env.dir, "empty-audio")
				require.NoError(t, os.MkdirAll(empty, 0o755))
				job.AudioDir = empty
			},
			wantField: "audio_dir",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := env.newJob(imagesDir, audioDir, 1)
			tt.mutate(job)

			err := env.runner.Submit(context.Background(), job)
			require.Error(t, err)

			var inputErr *InputError
			require.ErrorAs(t, err, &inputErr)
			assert.Equal(t, tt.wantField, inputErr.Field)
		})
	}

	t.Run("invalid model field", func(t *testing.T) {
		job := env.newJob(imagesDir, audioDir, 1)
		job.GroupSize = 0

		err := env.runner.Submit(context.Background(), job)
		var inputErr *InputError
		require.ErrorAs(t, err, &inputErr)
		assert.ErrorIs(t, err, models.ErrInvalidGroupSize)
	})

	jobs, err := env.repo.GetAll(context.Background())
	require.NoError(t, err)
	assert.Empty(t, jobs, "rejected submissions must not be queued")
}

func TestRunner_ProcessesJobsInOrder(t *testing.T) {
	env := newSchedEnv(t, fakeBehavior{})
	imagesDir, audioDir := env.makeMedia(2, 2)

	first := env.newJob(imagesDir, audioDir, 2)
	second := env.newJob(imagesDir, audioDir, 2)
	require.NoError(t, env.runner.Submit(context.Background(), first))
	require.NoError(t, env.runner.Submit(context.Background(), second))

	require.NoError(t, env.runner.Start(context.Background()))
	defer env.runner.Stop()

	doneFirst := env.waitStatus(first.ID, models.JobStatusCompleted)
	doneSecond := env.waitStatus(second.ID, models.JobStatusCompleted)

	// Single worker: the second job starts only after the first finished.
	require.NotNil(t, doneFirst.CompletedAt)
	require.NotNil(t, doneSecond.StartedAt)
	assert.False(t, doneSecond.StartedAt.Before(*doneFirst.CompletedAt))

	assert.Equal(t, float64(100), doneFirst.Progress)
	assert.Equal(t, 1, doneFirst.GroupsTotal)
	assert.Equal(t, 1, doneFirst.GroupsDone)
	require.Len(t, doneFirst.OutputFiles, 1)
	assert.Equal(t, filepath.Join(env.outDir, "img1-img2.mp4"), doneFirst.OutputFiles[0])

	types := env.eventTypes(first.ID)
	for _, want := range []string{
		events.TypeJobQueued,
		events.TypeJobStarted,
		events.TypeSegmentEncoded,
		events.TypeGroupCompleted,
		events.TypeJobProgress,
		events.TypeJobCompleted,
	} {
		assert.Contains(t, types, want)
	}
}

func TestRunner_CancelRunningJob(t *testing.T) {
	env := newSchedEnv(t, fakeBehavior{encodeHangs: true})
	imagesDir, audioDir := env.makeMedia(2, 2)

	job := env.newJob(imagesDir, audioDir, 2)
	require.NoError(t, env.runner.Submit(context.Background(), job))

	require.NoError(t, env.runner.Start(context.Background()))
	defer env.runner.Stop()

	env.waitStatus(job.ID, models.JobStatusRunning)
	require.Eventually(t, func() bool {
		return env.runner.Status(context.Background()).CurrentJobID == job.ID.String()
	}, 5*time.Second, 20*time.Millisecond)

	require.NoError(t, env.runner.Cancel(context.Background(), job.ID))

	done := env.waitStatus(job.ID, models.JobStatusCancelled)
	assert.Empty(t, done.OutputFiles)
	assert.NotNil(t, done.CompletedAt)
}

func TestRunner_CancelPendingAndFinished(t *testing.T) {
	env := newSchedEnv(t, fakeBehavior{})
	imagesDir, audioDir := env.makeMedia(1, 1)

	job := env.newJob(imagesDir, audioDir, 1)
	require.NoError(t, env.runner.Submit(context.Background(), job))

	require.NoError(t, env.runner.Cancel(context.Background(), job.ID))
	assert.Equal(t, models.JobStatusCancelled, env.get(job.ID).Status)

	err := env.runner.Cancel(context.Background(), job.ID)
	assert.ErrorIs(t, err, ErrJobFinished)

	err = env.runner.Cancel(context.Background(), models.NewULID())
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestRunner_StopAll(t *testing.T) {
	env := newSchedEnv(t, fakeBehavior{})
	imagesDir, audioDir := env.makeMedia(1, 1)

	first := env.newJob(imagesDir, audioDir, 1)
	second := env.newJob(imagesDir, audioDir, 1)
	require.NoError(t, env.runner.Submit(context.Background(), first))
	require.NoError(t, env.runner.Submit(context.Background(), second))

	stopped, err := env.runner.StopAll(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), stopped)

	assert.Equal(t, models.JobStatusCancelled, env.get(first.ID).Status)
	assert.Equal(t, models.JobStatusCancelled, env.get(second.ID).Status)
}

func TestRunner_GracefulStopCancelsInFlightJob(t *testing.T) {
	// Slow segments so Stop lands mid-job.
	env := newSchedEnv(t, fakeBehavior{encodeSleep: "0.3"})
	imagesDir, audioDir := env.makeMedia(5, 5)

	job := env.newJob(imagesDir, audioDir, 5)
	require.NoError(t, env.runner.Submit(context.Background(), job))

	require.NoError(t, env.runner.Start(context.Background()))
	env.waitStatus(job.ID, models.JobStatusRunning)

	env.runner.Stop()

	done := env.get(job.ID)
	assert.Equal(t, models.JobStatusCancelled, done.Status)
}

type flakyProcessor struct {
	calls atomic.Int32
}

func (p *flakyProcessor) Process(ctx context.Context, job *models.Job, control *Control) ([]string, error) {
	if p.calls.Add(1) == 1 {
		panic("segment index out of range")
	}
	return nil, nil
}

func TestRunner_RecoversFromPanickedJob(t *testing.T) {
	env := newSchedEnv(t, fakeBehavior{})
	imagesDir, audioDir := env.makeMedia(1, 1)
	env.runner.processor = &flakyProcessor{}

	first := env.newJob(imagesDir, audioDir, 1)
	second := env.newJob(imagesDir, audioDir, 1)
	require.NoError(t, env.runner.Submit(context.Background(), first))
	require.NoError(t, env.runner.Submit(context.Background(), second))

	require.NoError(t, env.runner.Start(context.Background()))
	defer env.runner.Stop()

	failed := env.waitStatus(first.ID, models.JobStatusFailed)
	assert.Contains(t, failed.Error, "panicked")

	// The worker survives the panic and picks up the next job.
	env.waitStatus(second.ID, models.JobStatusCompleted)
}

func TestRunner_StartTwice(t *testing.T) {
	env := newSchedEnv(t, fakeBehavior{})

	require.NoError(t, env.runner.Start(context.Background()))
	defer env.runner.Stop()

	err := env.runner.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already started")
}

func TestRunner_Status(t *testing.T) {
	env := newSchedEnv(t, fakeBehavior{})
	imagesDir, audioDir := env.makeMedia(1, 1)

	status := env.runner.Status(context.Background())
	assert.False(t, status.Running)
	assert.Zero(t, status.PendingJobs)

	require.NoError(t, env.runner.Submit(context.Background(), env.newJob(imagesDir, audioDir, 1)))

	status = env.runner.Status(context.Background())
	assert.Equal(t, int64(1), status.PendingJobs)

	require.NoError(t, env.runner.Start(context.Background()))
	assert.True(t, env.runner.Status(context.Background()).Running)
	env.runner.Stop()
	assert.False(t, env.runner.Status(context.Background()).Running)
}

func TestValidateInputs_AcceptsGoodJob(t *testing.T) {
	env := newSchedEnv(t, fakeBehavior{})
	imagesDir, audioDir := env.makeMedia(1, 1)

	job := env.newJob(imagesDir, audioDir, 1)
	require.NoError(t, ValidateInputs(job))
}
