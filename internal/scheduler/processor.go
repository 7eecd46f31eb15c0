package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/jmylchreest/slidereel/internal/encoder"
	"github.com/jmylchreest/slidereel/internal/media"
	"github.com/jmylchreest/slidereel/internal/models"
	"github.com/jmylchreest/slidereel/internal/repository"
	"github.com/jmylchreest/slidereel/internal/service/events"
)

// Control carries the cooperative cancel state for one running job. The
// processor checks it before each group and again before each segment.
type Control struct {
	cancelled atomic.Bool
	stop      context.CancelFunc
}

func newControl(stop context.CancelFunc) *Control {
	return &Control{stop: stop}
}

// RequestCancel flags the job cancelled and kills the in-flight ffmpeg
// process by cancelling the job context.
func (c *Control) RequestCancel() {
	c.cancelled.Store(true)
	if c.stop != nil {
		c.stop()
	}
}

// RequestStop flags the job cancelled but lets the in-flight segment
// finish; processing winds down at the next boundary check.
func (c *Control) RequestStop() {
	c.cancelled.Store(true)
}

// CancelRequested reports whether a cancel or stop request landed.
func (c *Control) CancelRequested() bool {
	return c.cancelled.Load()
}

// Processor walks a job's groups in order, encoding each segment and
// concatenating the survivors into the group's output file.
type Processor struct {
	repo    repository.JobRepository
	encoder *encoder.SegmentEncoder
	concat  *encoder.Concatenator
	events  *events.Service
	workDir string
	logger  *slog.Logger
}

// NewProcessor creates a job processor. workDir is where per-group
// segment directories are created; empty means the system temp dir.
func NewProcessor(
	repo repository.JobRepository,
	segmentEncoder *encoder.SegmentEncoder,
	concatenator *encoder.Concatenator,
	eventBus *events.Service,
	workDir string,
) *Processor {
	if workDir == "" {
		workDir = os.TempDir()
	}
	return &Processor{
		repo:    repo,
		encoder: segmentEncoder,
		concat:  concatenator,
		events:  eventBus,
		workDir: workDir,
		logger:  slog.Default(),
	}
}

// WithLogger sets the logger for the processor.
func (p *Processor) WithLogger(logger *slog.Logger) *Processor {
	p.logger = logger
	return p
}

// Process runs one job to completion. It returns the output files
// written so far along with errCancelled when a cancel request landed,
// or the failure that stopped the job. Outputs of groups finished
// before a cancel or failure are always returned.
func (p *Processor) Process(ctx context.Context, job *models.Job, control *Control) ([]string, error) {
	plan, err := media.BuildPlan(job.ImagesDir, job.AudioDir, job.GroupSize, job.MergeAll)
	if err != nil {
		return nil, err
	}
	if len(plan.Groups) == 0 {
		return nil, &InputError{Field: "images_dir", Detail: "no media files to process"}
	}

	settings := encoder.EncodeSettings{
		FPS:        job.FPS,
		Resolution: job.Resolution,
		Codec:      job.Codec,
		Policy:     job.EncoderPolicy,
	}

	job.SetGroupProgress(0, len(plan.Groups))
	if err := p.repo.Update(ctx, job); err != nil {
		return nil, err
	}

	logger := p.logger.With(slog.String("job_id", job.ID.String()))
	logger.Info("processing job",
		slog.Int("segments", len(plan.Segments)),
		slog.Int("groups", len(plan.Groups)))

	var outputs []string
	for _, group := range plan.Groups {
		if control.CancelRequested() || ctx.Err() != nil {
			return outputs, errCancelled
		}

		outPath, err := p.processGroup(ctx, job, group, settings, control, logger)
		if err != nil {
			if control.CancelRequested() || ctx.Err() != nil {
				return outputs, errCancelled
			}
			return outputs, err
		}
		if outPath != "" {
			outputs = append(outputs, outPath)
		}

		job.SetGroupProgress(group.Index, len(plan.Groups))
		job.OutputFiles = outputs
		if err := p.repo.Update(ctx, job); err != nil {
			return outputs, err
		}

		p.publishProgress(job, group, outPath)
	}

	return outputs, nil
}

// processGroup encodes a group's segments into tmpDir and concatenates
// them. It returns an empty path when no segment of the group could be
// encoded, which skips the group without failing the job.
func (p *Processor) processGroup(ctx context.Context, job *models.Job, group media.Group, settings encoder.EncodeSettings, control *Control, logger *slog.Logger) (string, error) {
	tmpDir := filepath.Join(p.workDir, fmt.Sprintf("job_%s_g%d", job.ID, group.Index))
	if err := os.MkdirAll(tmpDir, 0o755); err != nil {
		return "", fmt.Errorf("creating segment directory: %w", err)
	}
	defer func() {
		if err := os.RemoveAll(tmpDir); err != nil {
			logger.Warn("removing segment directory",
				slog.String("dir", tmpDir),
				slog.String("error", err.Error()))
		}
	}()

	logger.Info("processing group",
		slog.Int("group", group.Index),
		slog.Int("segments", len(group.Segments)),
		slog.String("output", group.OutputName))

	var segPaths []string
	for _, seg := range group.Segments {
		if control.CancelRequested() || ctx.Err() != nil {
			return "", errCancelled
		}

		segPath := filepath.Join(tmpDir, fmt.Sprintf("seg_%05d.mp4", seg.Index))
		result, err := p.encoder.Encode(ctx, seg, segPath, settings)
		if err != nil {
			if ctx.Err() != nil {
				return "", errCancelled
			}
			logger.Warn("dropping segment",
				slog.Int("group", group.Index),
				slog.Int("segment", seg.Index),
				slog.String("error", err.Error()))
			p.publishSegment(job, group.Index, seg.Index, "warn", events.TypeSegmentSkipped,
				fmt.Sprintf("segment %d dropped: %v", seg.Index, err))
			continue
		}
		if result == nil {
			p.publishSegment(job, group.Index, seg.Index, "warn", events.TypeSegmentSkipped,
				fmt.Sprintf("segment %d skipped: missing image or audio", seg.Index))
			continue
		}

		segPaths = append(segPaths, result.OutputPath)
		p.publishSegment(job, group.Index, seg.Index, "info", events.TypeSegmentEncoded,
			fmt.Sprintf("segment %d encoded with %s in %s", seg.Index, result.Choice.Encoder, result.Elapsed.Round(time.Millisecond)))
	}

	if len(segPaths) == 0 {
		logger.Warn("no segments encoded for group, skipping output",
			slog.Int("group", group.Index),
			slog.String("output", group.OutputName))
		p.publishGroup(job, group.Index, "warn", events.TypeGroupFailed,
			fmt.Sprintf("group %d produced no output: every segment was skipped or dropped", group.Index))
		return "", nil
	}

	if err := os.MkdirAll(job.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}

	outPath := filepath.Join(job.OutputDir, group.OutputName)
	if err := p.concat.Concat(ctx, tmpDir, segPaths, outPath); err != nil {
		p.publishGroup(job, group.Index, "error", events.TypeGroupFailed,
			fmt.Sprintf("group %d concat failed: %v", group.Index, err))
		return "", err
	}

	logger.Info("group completed",
		slog.Int("group", group.Index),
		slog.Int("segments", len(segPaths)),
		slog.String("output", outPath))

	return outPath, nil
}

func (p *Processor) publishProgress(job *models.Job, group media.Group, outPath string) {
	if outPath != "" {
		event := events.JobEvent(events.TypeGroupCompleted, job.ID.String(),
			fmt.Sprintf("group %d/%d completed: %s", group.Index, job.GroupsTotal, filepath.Base(outPath)))
		event.Fields = map[string]any{"group": group.Index, "output": outPath}
		p.events.Publish(event)
	}

	event := events.JobEvent(events.TypeJobProgress, job.ID.String(),
		fmt.Sprintf("progress %.0f%% (%d/%d groups)", job.Progress, job.GroupsDone, job.GroupsTotal))
	event.Fields = map[string]any{"progress": job.Progress, "groups_done": job.GroupsDone, "groups_total": job.GroupsTotal}
	p.events.Publish(event)
}

func (p *Processor) publishSegment(job *models.Job, groupIndex, segIndex int, level, eventType, message string) {
	event := events.Event{
		Type:    eventType,
		Level:   level,
		JobID:   job.ID.String(),
		Message: message,
		Fields:  map[string]any{"group": groupIndex, "segment": segIndex},
	}
	p.events.Publish(event)
}

func (p *Processor) publishGroup(job *models.Job, groupIndex int, level, eventType, message string) {
	event := events.Event{
		Type:    eventType,
		Level:   level,
		JobID:   job.ID.String(),
		Message: message,
		Fields:  map[string]any{"group": groupIndex},
	}
	p.events.Publish(event)
}
