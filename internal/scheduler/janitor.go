package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jmylchreest/slidereel/internal/repository"
)

// tempDirPrefix matches the per-group segment directories the processor
// creates under the work directory.
const tempDirPrefix = "job_"

// JanitorConfig holds the maintenance schedule and retention windows.
type JanitorConfig struct {
	// Schedule is a 5-field cron expression.
	Schedule string
	// HistoryRetention is how long finished jobs are kept. Zero disables
	// history pruning.
	HistoryRetention time.Duration
	// TempMaxAge is how old an orphaned segment directory must be before
	// it is removed. Zero disables the temp sweep.
	TempMaxAge time.Duration
}

// Janitor periodically prunes old finished jobs and sweeps orphaned
// segment directories out of the work directory.
type Janitor struct {
	mu sync.Mutex

	repo     repository.JobRepository
	workDir  string
	schedule cron.Schedule
	config   JanitorConfig
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewJanitor creates a janitor. The cron expression is parsed eagerly so
// a bad schedule fails at construction, not at the first tick.
func NewJanitor(repo repository.JobRepository, workDir string, config JanitorConfig) (*Janitor, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(config.Schedule)
	if err != nil {
		return nil, fmt.Errorf("invalid maintenance schedule %q: %w", config.Schedule, err)
	}

	return &Janitor{
		repo:     repo,
		workDir:  workDir,
		schedule: schedule,
		config:   config,
		logger:   slog.Default(),
	}, nil
}

// WithLogger sets a custom logger.
func (j *Janitor) WithLogger(logger *slog.Logger) *Janitor {
	j.logger = logger
	return j
}

// Start begins the maintenance loop.
func (j *Janitor) Start(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	if j.ctx != nil {
		return fmt.Errorf("janitor already started")
	}

	j.ctx, j.cancel = context.WithCancel(ctx)

	j.wg.Add(1)
	go j.loop()

	j.logger.Info("janitor started",
		slog.String("schedule", j.config.Schedule),
		slog.Duration("history_retention", j.config.HistoryRetention),
		slog.Duration("temp_max_age", j.config.TempMaxAge))

	return nil
}

// Stop stops the maintenance loop.
func (j *Janitor) Stop() {
	j.mu.Lock()
	if j.cancel != nil {
		j.cancel()
	}
	j.mu.Unlock()

	j.wg.Wait()

	j.mu.Lock()
	j.ctx = nil
	j.cancel = nil
	j.mu.Unlock()

	j.logger.Info("janitor stopped")
}

// loop sleeps until each next scheduled run.
func (j *Janitor) loop() {
	defer j.wg.Done()

	for {
		next := j.schedule.Next(time.Now())
		timer := time.NewTimer(time.Until(next))

		select {
		case <-j.ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
			j.RunOnce(j.ctx)
		}
	}
}

// RunOnce performs one maintenance pass: prune finished jobs past the
// retention window, then sweep orphaned segment directories.
func (j *Janitor) RunOnce(ctx context.Context) {
	if j.config.HistoryRetention > 0 {
		cutoff := time.Now().Add(-j.config.HistoryRetention)
		deleted, err := j.repo.DeleteFinishedBefore(ctx, cutoff)
		if err != nil {
			j.logger.Error("pruning job history", slog.String("error", err.Error()))
		} else if deleted > 0 {
			j.logger.Info("pruned job history",
				slog.Int64("deleted", deleted),
				slog.Time("cutoff", cutoff))
		}
	}

	if j.config.TempMaxAge > 0 {
		removed, err := SweepTempDirs(j.workDir, j.config.TempMaxAge)
		if err != nil {
			j.logger.Error("sweeping segment directories", slog.String("error", err.Error()))
		} else if removed > 0 {
			j.logger.Info("swept orphaned segment directories", slog.Int("removed", removed))
		}
	}
}

// SweepTempDirs removes per-group segment directories older than maxAge
// from workDir. A directory's age comes from its modification time,
// which moves forward whenever the worker writes a segment into it, so
// an in-use directory is never old enough to sweep.
func SweepTempDirs(workDir string, maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(workDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("reading work directory: %w", err)
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0

	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), tempDirPrefix) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}

		path := filepath.Join(workDir, entry.Name())
		if err := os.RemoveAll(path); err != nil {
			return removed, fmt.Errorf("removing %s: %w", path, err)
		}
		removed++
	}

	return removed, nil
}
