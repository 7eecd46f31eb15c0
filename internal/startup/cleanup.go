// Package startup provides utilities for application startup tasks.
package startup

import (
	"context"
	"log/slog"
	"time"

	"github.com/jmylchreest/slidereel/internal/repository"
	"github.com/jmylchreest/slidereel/internal/scheduler"
)

// StaleJobReason is written into jobs recovered at startup.
const StaleJobReason = "interrupted by server restart"

// RecoverInterruptedJobs fails any job still marked running in the
// database. A running row at startup can only mean the previous process
// died mid-job; the worker state is gone, so without this recovery the
// job would sit in "running" forever.
//
// Returns the number of jobs recovered and any error encountered.
func RecoverInterruptedJobs(ctx context.Context, logger *slog.Logger, repo repository.JobRepository) (int64, error) {
	recovered, err := repo.MarkStaleRunning(ctx, StaleJobReason)
	if err != nil {
		logger.Error("failed to recover interrupted jobs",
			"error", err,
		)
		return 0, err
	}

	if recovered > 0 {
		logger.Warn("recovered interrupted jobs",
			"count", recovered,
		)
	}
	return recovered, nil
}

// CleanupOrphanedTempDirs removes leftover per-group segment directories
// from the work directory. No job is running during startup, so any
// directory older than maxAge is an orphan from a previous process.
// A zero maxAge removes every segment directory.
//
// Returns the number of directories removed and any error encountered.
func CleanupOrphanedTempDirs(logger *slog.Logger, workDir string, maxAge time.Duration) (int, error) {
	removed, err := scheduler.SweepTempDirs(workDir, maxAge)
	if err != nil {
		logger.Error("failed to clean up orphaned temp directories",
			"path", workDir,
			"error", err,
		)
		return removed, err
	}

	if removed > 0 {
		logger.Info("removed orphaned temp directories",
			"path", workDir,
			"count", removed,
		)
	}
	return removed, nil
}
