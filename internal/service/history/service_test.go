package history

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/dsnet/compress/bzip2"
	"github.com/glebarez/sqlite"
	"github.com/jmylchreest/slidereel/internal/models"
	"github.com/jmylchreest/slidereel/internal/repository"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ulikunitz/xz"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupRepo(t *testing.T) repository.JobRepository {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.Job{}))

	return repository.NewJobRepository(db)
}

func newFinishedJob(t *testing.T, repo repository.JobRepository, status models.JobStatus) *models.Job {
	t.Helper()

	job := &models.Job{
		ImagesDir:     "/media/images",
		AudioDir:      "/media/audio",
		OutputDir:     "/media/out",
		GroupSize:     1,
		EncoderPolicy: models.EncoderPolicyAuto,
		FPS:           24,
		Resolution:    models.Resolution1080p,
		Codec:         models.CodecH264,
		Status:        models.JobStatusPending,
	}
	require.NoError(t, repo.Create(context.Background(), job))

	switch status {
	case models.JobStatusCompleted:
		job.MarkCompleted([]string{"/media/out/output_1.mp4"})
	case models.JobStatusFailed:
		job.MarkFailed(errors.New("encoder exploded"), nil)
	case models.JobStatusCancelled:
		job.MarkCancelled(nil)
	case models.JobStatusRunning:
		job.MarkRunning()
	case models.JobStatusPending:
		return job
	}
	require.NoError(t, repo.Update(context.Background(), job))
	return job
}

func quietService(repo repository.JobRepository) *Service {
	return NewService(repo).WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestService_Export_OnlyFinishedJobs(t *testing.T) {
	repo := setupRepo(t)
	svc := quietService(repo)

	newFinishedJob(t, repo, models.JobStatusPending)
	newFinishedJob(t, repo, models.JobStatusRunning)
	completed := newFinishedJob(t, repo, models.JobStatusCompleted)
	failed := newFinishedJob(t, repo, models.JobStatusFailed)

	var buf bytes.Buffer
	count, err := svc.Export(context.Background(), &buf, CompressionNone)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	var archive Archive
	require.NoError(t, json.Unmarshal(buf.Bytes(), &archive))
	assert.Equal(t, FormatVersion, archive.Metadata.Version)
	assert.Equal(t, 2, archive.Metadata.JobCount)
	assert.False(t, archive.Metadata.ExportedAt.IsZero())
	require.Len(t, archive.Jobs, 2)

	exported := map[string]bool{}
	for _, job := range archive.Jobs {
		exported[job.ID.String()] = true
	}
	assert.True(t, exported[completed.ID.String()])
	assert.True(t, exported[failed.ID.String()])
}

func TestService_Export_Gzip(t *testing.T) {
	repo := setupRepo(t)
	svc := quietService(repo)
	newFinishedJob(t, repo, models.JobStatusCompleted)

	var buf bytes.Buffer
	_, err := svc.Export(context.Background(), &buf, CompressionGzip)
	require.NoError(t, err)

	raw := buf.Bytes()
	require.GreaterOrEqual(t, len(raw), 2)
	assert.Equal(t, byte(0x1f), raw[0])
	assert.Equal(t, byte(0x8b), raw[1])

	gzr, err := gzip.NewReader(&buf)
	require.NoError(t, err)
	defer gzr.Close()

	var archive Archive
	require.NoError(t, json.NewDecoder(gzr).Decode(&archive))
	assert.Equal(t, 1, archive.Metadata.JobCount)
}

func TestService_Export_XZ(t *testing.T) {
	repo := setupRepo(t)
	svc := quietService(repo)
	newFinishedJob(t, repo, models.JobStatusCompleted)

	var buf bytes.Buffer
	_, err := svc.Export(context.Background(), &buf, CompressionXZ)
	require.NoError(t, err)

	raw := buf.Bytes()
	require.GreaterOrEqual(t, len(raw), 6)
	assert.Equal(t, []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}, raw[:6])

	xzr, err := xz.NewReader(&buf)
	require.NoError(t, err)

	var archive Archive
	require.NoError(t, json.NewDecoder(xzr).Decode(&archive))
	assert.Equal(t, 1, archive.Metadata.JobCount)
}

func TestService_Import_RoundTrip(t *testing.T) {
	source := setupRepo(t)
	sourceSvc := quietService(source)
	completed := newFinishedJob(t, source, models.JobStatusCompleted)
	cancelled := newFinishedJob(t, source, models.JobStatusCancelled)

	var buf bytes.Buffer
	_, err := sourceSvc.Export(context.Background(), &buf, CompressionNone)
	require.NoError(t, err)

	target := setupRepo(t)
	targetSvc := quietService(target)

	result, err := targetSvc.Import(context.Background(), &buf)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, 0, result.Skipped)

	for _, id := range []models.ULID{completed.ID, cancelled.ID} {
		found, err := target.GetByID(context.Background(), id)
		require.NoError(t, err)
		require.NotNil(t, found, "job %s should exist after import", id)
	}
}

func TestService_Import_SkipsDuplicates(t *testing.T) {
	repo := setupRepo(t)
	svc := quietService(repo)
	newFinishedJob(t, repo, models.JobStatusCompleted)

	var buf bytes.Buffer
	_, err := svc.Export(context.Background(), &buf, CompressionNone)
	require.NoError(t, err)
	exported := buf.Bytes()

	result, err := svc.Import(context.Background(), bytes.NewReader(exported))
	require.NoError(t, err)
	assert.Equal(t, 0, result.Imported)
	assert.Equal(t, 1, result.Skipped)
}

func TestService_Import_SkipsActiveJobs(t *testing.T) {
	finished := &models.Job{
		BaseModel:     models.BaseModel{ID: models.NewULID()},
		ImagesDir:     "/media/images",
		AudioDir:      "/media/audio",
		OutputDir:     "/media/out",
		GroupSize:     1,
		EncoderPolicy: models.EncoderPolicyAuto,
		FPS:           24,
		Resolution:    models.Resolution1080p,
		Codec:         models.CodecH264,
		Status:        models.JobStatusCompleted,
	}
	active := &models.Job{
		BaseModel:     models.BaseModel{ID: models.NewULID()},
		ImagesDir:     "/media/images",
		AudioDir:      "/media/audio",
		OutputDir:     "/media/out",
		GroupSize:     1,
		EncoderPolicy: models.EncoderPolicyAuto,
		FPS:           24,
		Resolution:    models.Resolution1080p,
		Codec:         models.CodecH264,
		Status:        models.JobStatusRunning,
	}

	payload, err := json.Marshal(Archive{
		Metadata: Metadata{Version: FormatVersion, ExportedAt: time.Now().UTC(), JobCount: 2},
		Jobs:     []*models.Job{finished, active},
	})
	require.NoError(t, err)

	repo := setupRepo(t)
	svc := quietService(repo)

	result, err := svc.Import(context.Background(), bytes.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)
	assert.Equal(t, 1, result.Skipped)

	found, err := repo.GetByID(context.Background(), active.ID)
	require.NoError(t, err)
	assert.Nil(t, found)
}

func TestService_Import_Bzip2(t *testing.T) {
	source := setupRepo(t)
	sourceSvc := quietService(source)
	newFinishedJob(t, source, models.JobStatusCompleted)

	var plain bytes.Buffer
	_, err := sourceSvc.Export(context.Background(), &plain, CompressionNone)
	require.NoError(t, err)

	var compressed bytes.Buffer
	bw, err := bzip2.NewWriter(&compressed, nil)
	require.NoError(t, err)
	_, err = bw.Write(plain.Bytes())
	require.NoError(t, err)
	require.NoError(t, bw.Close())

	target := setupRepo(t)
	targetSvc := quietService(target)

	result, err := targetSvc.Import(context.Background(), &compressed)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)
}

func TestService_Import_RejectsUnversionedArchive(t *testing.T) {
	repo := setupRepo(t)
	svc := quietService(repo)

	_, err := svc.Import(context.Background(), strings.NewReader(`{"metadata":{},"jobs":[]}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing format version")
}

func TestService_Import_RejectsGarbage(t *testing.T) {
	repo := setupRepo(t)
	svc := quietService(repo)

	_, err := svc.Import(context.Background(), strings.NewReader("not an archive"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decoding archive")
}

func TestParseCompression(t *testing.T) {
	tests := []struct {
		input   string
		want    Compression
		wantErr bool
	}{
		{"", CompressionNone, false},
		{"none", CompressionNone, false},
		{"gzip", CompressionGzip, false},
		{"xz", CompressionXZ, false},
		{"zstd", "", true},
	}

	for _, tt := range tests {
		t.Run("input "+tt.input, func(t *testing.T) {
			got, err := ParseCompression(tt.input)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
