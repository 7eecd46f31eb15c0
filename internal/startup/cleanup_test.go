package startup

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/jmylchreest/slidereel/internal/models"
	"github.com/jmylchreest/slidereel/internal/repository"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func setupTestRepo(t *testing.T) repository.JobRepository {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Job{}))
	return repository.NewJobRepository(db)
}

func newTestJob(status models.JobStatus) *models.Job {
	return &models.Job{
		ImagesDir:     "/in/images",
		AudioDir:      "/in/audio",
		OutputDir:     "/out",
		GroupSize:     1,
		EncoderPolicy: models.EncoderPolicyAuto,
		FPS:           24,
		Resolution:    models.Resolution1080p,
		Codec:         models.CodecH264,
		Status:        status,
	}
}

func TestRecoverInterruptedJobs(t *testing.T) {
	t.Run("fails jobs stuck in running", func(t *testing.T) {
		repo := setupTestRepo(t)
		ctx := context.Background()

		stuck := newTestJob(models.JobStatusPending)
		require.NoError(t, repo.Create(ctx, stuck))
		stuck.MarkRunning()
		require.NoError(t, repo.Update(ctx, stuck))

		recovered, err := RecoverInterruptedJobs(ctx, newTestLogger(), repo)
		require.NoError(t, err)
		assert.Equal(t, int64(1), recovered)

		found, err := repo.GetByID(ctx, stuck.ID)
		require.NoError(t, err)
		require.NotNil(t, found)
		assert.Equal(t, models.JobStatusFailed, found.Status)
		assert.Equal(t, StaleJobReason, found.Error)
		assert.NotNil(t, found.CompletedAt)
	})

	t.Run("leaves pending and finished jobs alone", func(t *testing.T) {
		repo := setupTestRepo(t)
		ctx := context.Background()

		pending := newTestJob(models.JobStatusPending)
		require.NoError(t, repo.Create(ctx, pending))

		done := newTestJob(models.JobStatusPending)
		require.NoError(t, repo.Create(ctx, done))
		done.MarkCompleted([]string{"/out/a.mp4"})
		require.NoError(t, repo.Update(ctx, done))

		recovered, err := RecoverInterruptedJobs(ctx, newTestLogger(), repo)
		require.NoError(t, err)
		assert.Zero(t, recovered)

		found, err := repo.GetByID(ctx, pending.ID)
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusPending, found.Status)

		found, err = repo.GetByID(ctx, done.ID)
		require.NoError(t, err)
		assert.Equal(t, models.JobStatusCompleted, found.Status)
	})
}

func TestCleanupOrphanedTempDirs(t *testing.T) {
	t.Run("removes old segment directories", func(t *testing.T) {
		workDir := t.TempDir()

		oldDir := filepath.Join(workDir, "job_01HZ1234567890ABCDEF_g1")
		require.NoError(t, os.Mkdir(oldDir, 0o755))
		require.NoError(t, os.WriteFile(filepath.Join(oldDir, "seg_00000.mp4"), []byte("x"), 0o644))
		oldTime := time.Now().Add(-2 * time.Hour)
		require.NoError(t, os.Chtimes(oldDir, oldTime, oldTime))

		count, err := CleanupOrphanedTempDirs(newTestLogger(), workDir, time.Hour)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
		assert.NoDirExists(t, oldDir)
	})

	t.Run("zero max age removes everything", func(t *testing.T) {
		workDir := t.TempDir()

		fresh := filepath.Join(workDir, "job_01HZ1234567890ABCDEF_g2")
		require.NoError(t, os.Mkdir(fresh, 0o755))

		count, err := CleanupOrphanedTempDirs(newTestLogger(), workDir, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, count)
		assert.NoDirExists(t, fresh)
	})

	t.Run("ignores foreign directories", func(t *testing.T) {
		workDir := t.TempDir()

		otherDir := filepath.Join(workDir, "some-other-dir")
		require.NoError(t, os.Mkdir(otherDir, 0o755))
		oldTime := time.Now().Add(-2 * time.Hour)
		require.NoError(t, os.Chtimes(otherDir, oldTime, oldTime))

		count, err := CleanupOrphanedTempDirs(newTestLogger(), workDir, time.Hour)
		require.NoError(t, err)
		assert.Zero(t, count)
		assert.DirExists(t, otherDir)
	})

	t.Run("handles missing work directory gracefully", func(t *testing.T) {
		count, err := CleanupOrphanedTempDirs(newTestLogger(), filepath.Join(t.TempDir(), "missing"), time.Hour)
		require.NoError(t, err)
		assert.Zero(t, count)
	})
}
