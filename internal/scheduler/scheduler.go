// Package scheduler owns the job queue: submissions are validated and
// persisted, then a single worker drains them strictly first-in
// first-out, encoding each job's groups through the processor.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/jmylchreest/slidereel/internal/media"
	"github.com/jmylchreest/slidereel/internal/models"
	"github.com/jmylchreest/slidereel/internal/repository"
	"github.com/jmylchreest/slidereel/internal/service/events"
)

// DefaultPollInterval is how often the idle worker re-checks the queue
// when no wake signal arrives.
const DefaultPollInterval = 2 * time.Second

// jobProcessor runs one job to completion.
type jobProcessor interface {
	Process(ctx context.Context, job *models.Job, control *Control) ([]string, error)
}

type activeJob struct {
	id      models.ULID
	control *Control
}

// Runner manages the single worker goroutine that executes jobs.
type Runner struct {
	mu sync.RWMutex

	repo      repository.JobRepository
	processor jobProcessor
	events    *events.Service
	logger    *slog.Logger

	pollInterval time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	wake   chan struct{}

	active *activeJob
}

// NewRunner creates a job runner.
func NewRunner(repo repository.JobRepository, processor *Processor, eventBus *events.Service) *Runner {
	return &Runner{
		repo:         repo,
		processor:    processor,
		events:       eventBus,
		logger:       slog.Default(),
		pollInterval: DefaultPollInterval,
		wake:         make(chan struct{}, 1),
	}
}

// WithLogger sets a custom logger.
func (r *Runner) WithLogger(logger *slog.Logger) *Runner {
	r.logger = logger
	return r
}

// WithPollInterval sets the idle polling interval.
func (r *Runner) WithPollInterval(interval time.Duration) *Runner {
	if interval > 0 {
		r.pollInterval = interval
	}
	return r
}

// Start begins the worker goroutine.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ctx != nil {
		return fmt.Errorf("runner already started")
	}

	r.ctx, r.cancel = context.WithCancel(ctx)

	r.wg.Add(1)
	go r.worker()

	r.logger.Info("worker started", slog.Duration("poll_interval", r.pollInterval))
	return nil
}

// Stop winds the worker down gracefully: the in-flight segment finishes
// (bounded by its own attempt timeout), the current job is marked
// cancelled at the next boundary, and pending jobs stay queued.
func (r *Runner) Stop() {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	if r.active != nil {
		r.active.control.RequestStop()
	}
	r.mu.Unlock()

	r.wg.Wait()

	r.mu.Lock()
	r.ctx = nil
	r.cancel = nil
	r.mu.Unlock()

	r.logger.Info("worker stopped")
}

// Submit validates a job and queues it. Validation failures return an
// *InputError and leave nothing behind.
func (r *Runner) Submit(ctx context.Context, job *models.Job) error {
	if err := ValidateInputs(job); err != nil {
		return err
	}

	if err := r.repo.Create(ctx, job); err != nil {
		return err
	}

	r.events.Publish(events.JobEvent(events.TypeJobQueued, job.ID.String(),
		fmt.Sprintf("job queued: %s -> %s", job.ImagesDir, job.OutputDir)))
	r.logger.Info("job queued",
		slog.String("job_id", job.ID.String()),
		slog.String("images_dir", job.ImagesDir),
		slog.String("audio_dir", job.AudioDir))

	r.Wake()
	return nil
}

// Wake nudges an idle worker to re-check the queue immediately.
func (r *Runner) Wake() {
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Cancel stops one job. A pending job is marked cancelled directly; the
// running job gets a cancel request that kills its in-flight encode and
// lands at the next boundary check. Finished jobs return ErrJobFinished.
func (r *Runner) Cancel(ctx context.Context, id models.ULID) error {
	r.mu.RLock()
	active := r.active
	r.mu.RUnlock()

	if active != nil && active.id == id {
		active.control.RequestCancel()
		r.logger.Info("cancel requested", slog.String("job_id", id.String()))
		return nil
	}

	job, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if job == nil {
		return ErrJobNotFound
	}

	switch {
	case job.IsPending():
		job.MarkCancelled(nil)
	case job.IsRunning():
		// Running in the database but not in this process: left over
		// from an unclean shutdown.
		job.MarkCancelled(job.OutputFiles)
	default:
		return ErrJobFinished
	}

	if err := r.repo.Update(ctx, job); err != nil {
		return err
	}

	r.events.Publish(events.JobEvent(events.TypeJobCancelled, job.ID.String(), "job cancelled"))
	r.logger.Info("job cancelled", slog.String("job_id", id.String()))
	return nil
}

// StopAll cancels the running job and every pending job. The worker
// stays alive for new submissions. Returns how many jobs were affected.
func (r *Runner) StopAll(ctx context.Context) (int64, error) {
	pending, err := r.repo.GetByStatus(ctx, models.JobStatusPending)
	if err != nil {
		return 0, err
	}

	var stopped int64
	for _, job := range pending {
		job.MarkCancelled(nil)
		if err := r.repo.Update(ctx, job); err != nil {
			return stopped, err
		}
		r.events.Publish(events.JobEvent(events.TypeJobCancelled, job.ID.String(), "job cancelled"))
		stopped++
	}

	r.mu.RLock()
	active := r.active
	r.mu.RUnlock()

	if active != nil {
		active.control.RequestCancel()
		stopped++
	}

	if stopped > 0 {
		r.logger.Info("stop requested for all jobs", slog.Int64("stopped", stopped))
	}
	return stopped, nil
}

// Status describes the runner and queue state.
type Status struct {
	Running      bool          `json:"running"`
	CurrentJobID string        `json:"current_job_id,omitempty"`
	PendingJobs  int64         `json:"pending_jobs"`
	PollInterval time.Duration `json:"poll_interval"`
}

// Status returns a snapshot of the runner and queue.
func (r *Runner) Status(ctx context.Context) Status {
	r.mu.RLock()
	running := r.ctx != nil && r.ctx.Err() == nil
	var current string
	if r.active != nil {
		current = r.active.id.String()
	}
	interval := r.pollInterval
	r.mu.RUnlock()

	var pending int64
	status := models.JobStatusPending
	if _, total, err := r.repo.List(ctx, &status, 0, 1); err == nil {
		pending = total
	}

	return Status{
		Running:      running,
		CurrentJobID: current,
		PendingJobs:  pending,
		PollInterval: interval,
	}
}

// worker is the single job execution loop.
func (r *Runner) worker() {
	defer r.wg.Done()

	for {
		select {
		case <-r.ctx.Done():
			return
		default:
		}

		job, err := r.repo.GetNextPending(r.ctx)
		if err != nil {
			if r.ctx.Err() != nil {
				return
			}
			r.logger.Error("fetching next job", slog.String("error", err.Error()))
			r.idle()
			continue
		}
		if job == nil {
			r.idle()
			continue
		}

		r.runJob(job)
	}
}

// idle waits for a wake signal, the poll interval, or shutdown.
func (r *Runner) idle() {
	select {
	case <-r.ctx.Done():
	case <-r.wake:
	case <-time.After(r.pollInterval):
	}
}

// runJob executes one job and persists its terminal status. The job
// context is independent of the runner context so a graceful Stop lets
// the in-flight segment finish.
func (r *Runner) runJob(job *models.Job) {
	jobCtx, stop := context.WithCancel(context.Background())
	defer stop()
	control := newControl(stop)

	r.mu.Lock()
	r.active = &activeJob{id: job.ID, control: control}
	if r.ctx.Err() != nil {
		// Stop landed before the active job was registered.
		control.RequestStop()
	}
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.active = nil
		r.mu.Unlock()
	}()

	logger := r.logger.With(slog.String("job_id", job.ID.String()))

	job.MarkRunning()
	if err := r.repo.Update(jobCtx, job); err != nil {
		logger.Error("marking job running", slog.String("error", err.Error()))
		return
	}
	r.events.Publish(events.JobEvent(events.TypeJobStarted, job.ID.String(), "job started"))

	outputs, err := r.execute(jobCtx, job, control)

	switch {
	case err == nil:
		job.MarkCompleted(outputs)
		logger.Info("job completed",
			slog.Int("outputs", len(outputs)),
			slog.Duration("elapsed", time.Duration(job.DurationMs)*time.Millisecond))
		r.events.Publish(events.JobEvent(events.TypeJobCompleted, job.ID.String(),
			fmt.Sprintf("job completed: %d output files", len(outputs))))

	case errors.Is(err, errCancelled) || control.CancelRequested():
		job.MarkCancelled(outputs)
		logger.Info("job cancelled", slog.Int("outputs_kept", len(outputs)))
		r.events.Publish(events.JobEvent(events.TypeJobCancelled, job.ID.String(),
			fmt.Sprintf("job cancelled: %d output files kept", len(outputs))))

	default:
		job.MarkFailed(err, outputs)
		logger.Error("job failed",
			slog.String("error", err.Error()),
			slog.Int("outputs_kept", len(outputs)))
		r.events.Publish(events.Event{
			Type:    events.TypeJobFailed,
			Level:   "error",
			JobID:   job.ID.String(),
			Message: fmt.Sprintf("job failed: %v", err),
		})
	}

	// Persist with a fresh context: the job context may be cancelled,
	// and terminal states must land even during shutdown.
	if err := r.repo.Update(context.Background(), job); err != nil {
		logger.Error("persisting job status", slog.String("error", err.Error()))
	}
}

// execute runs the processor with a panic guard so one bad job cannot
// take the worker down.
func (r *Runner) execute(ctx context.Context, job *models.Job, control *Control) (outputs []string, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("job panicked: %v", rec)
		}
	}()
	return r.processor.Process(ctx, job, control)
}

// ValidateInputs rejects a job whose directories cannot produce any
// segments. It runs before anything is queued.
func ValidateInputs(job *models.Job) error {
	if err := job.Validate(); err != nil {
		return &InputError{Detail: err.Error(), Err: err}
	}

	if err := requireDir("images_dir", job.ImagesDir); err != nil {
		return err
	}
	if err := requireDir("audio_dir", job.AudioDir); err != nil {
		return err
	}

	images, err := media.ListSorted(job.ImagesDir, media.ImageExtensions)
	if err != nil {
		return &InputError{Field: "images_dir", Detail: err.Error(), Err: err}
	}
	if len(images) == 0 {
		return &InputError{Field: "images_dir",
			Detail: fmt.Sprintf("no image files (%s) in %s", strings.Join(media.ImageExtensions, ", "), job.ImagesDir)}
	}

	audios, err := media.ListSorted(job.AudioDir, media.AudioExtensions)
	if err != nil {
		return &InputError{Field: "audio_dir", Detail: err.Error(), Err: err}
	}
	if len(audios) == 0 {
		return &InputError{Field: "audio_dir",
			Detail: fmt.Sprintf("no audio files (%s) in %s", strings.Join(media.AudioExtensions, ", "), job.AudioDir)}
	}

	return nil
}

func requireDir(field, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return &InputError{Field: field, Detail: fmt.Sprintf("%s does not exist", path), Err: err}
	}
	if !info.IsDir() {
		return &InputError{Field: field, Detail: fmt.Sprintf("%s is not a directory", path)}
	}
	return nil
}
