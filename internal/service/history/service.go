// Package history exports finished job records to a portable archive
// and imports archives produced elsewhere.
package history

import (
	"bufio"
	"compress/bzip2"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jmylchreest/slidereel/internal/models"
	"github.com/jmylchreest/slidereel/internal/repository"
	"github.com/jmylchreest/slidereel/internal/version"
	"github.com/ulikunitz/xz"
)

// FormatVersion is the current version of the archive file format.
// Bump on breaking changes to the envelope or job encoding.
const FormatVersion = "1.0.0"

// Compression selects the encoding applied to an exported archive.
type Compression string

const (
	CompressionNone Compression = "none"
	CompressionGzip Compression = "gzip"
	CompressionXZ   Compression = "xz"
)

// ParseCompression maps a user-supplied name onto a Compression value.
func ParseCompression(name string) (Compression, error) {
	switch Compression(name) {
	case "", CompressionNone:
		return CompressionNone, nil
	case CompressionGzip:
		return CompressionGzip, nil
	case CompressionXZ:
		return CompressionXZ, nil
	default:
		return "", fmt.Errorf("unknown compression %q (want none, gzip or xz)", name)
	}
}

// Metadata describes an archive file.
type Metadata struct {
	Version          string    `json:"version"`
	SlidereelVersion string    `json:"slidereel_version"`
	ExportedAt       time.Time `json:"exported_at"`
	JobCount         int       `json:"job_count"`
}

// Archive is the export envelope.
type Archive struct {
	Metadata Metadata      `json:"metadata"`
	Jobs     []*models.Job `json:"jobs"`
}

// ImportResult summarises one import run.
type ImportResult struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// Service reads and writes job archives.
type Service struct {
	repo   repository.JobRepository
	logger *slog.Logger
}

// NewService creates a history service.
func NewService(repo repository.JobRepository) *Service {
	return &Service{
		repo:   repo,
		logger: slog.Default(),
	}
}

// WithLogger sets the logger for the service.
func (s *Service) WithLogger(logger *slog.Logger) *Service {
	s.logger = logger
	return s
}

// Export writes every finished job to w as a JSON archive, optionally
// compressed. Active jobs are not exported; they belong to the running
// process, not the archive. Returns the number of jobs written.
func (s *Service) Export(ctx context.Context, w io.Writer, compression Compression) (int, error) {
	jobs, err := s.repo.GetAll(ctx)
	if err != nil {
		return 0, err
	}

	finished := make([]*models.Job, 0, len(jobs))
	for _, job := range jobs {
		if job.IsFinished() {
			finished = append(finished, job)
		}
	}

	archive := Archive{
		Metadata: Metadata{
			Version:          FormatVersion,
			SlidereelVersion: version.Version,
			ExportedAt:       time.Now().UTC(),
			JobCount:         len(finished),
		},
		Jobs: finished,
	}

	out := w
	switch compression {
	case CompressionGzip:
		gzw := gzip.NewWriter(w)
		defer gzw.Close()
		out = gzw
	case CompressionXZ:
		xzw, err := xz.NewWriter(w)
		if err != nil {
			return 0, fmt.Errorf("creating xz writer: %w", err)
		}
		defer xzw.Close()
		out = xzw
	}

	encoder := json.NewEncoder(out)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(archive); err != nil {
		return 0, fmt.Errorf("encoding archive: %w", err)
	}

	s.logger.Info("exported job history",
		slog.Int("jobs", len(finished)),
		slog.String("compression", string(compression)))

	return len(finished), nil
}

// Import reads an archive from r and inserts jobs not already present.
// Gzip, bzip2 and xz compressed archives are detected by their magic
// bytes. Jobs whose ID already exists, or that are not in a terminal
// status, are skipped.
func (s *Service) Import(ctx context.Context, r io.Reader) (*ImportResult, error) {
	br := bufio.NewReader(r)

	header, err := br.Peek(6)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("peeking header: %w", err)
	}

	var reader io.Reader = br

	switch {
	case len(header) >= 2 && header[0] == 0x1f && header[1] == 0x8b:
		gzr, err := gzip.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("creating gzip reader: %w", err)
		}
		defer gzr.Close()
		reader = gzr

	case len(header) >= 3 && header[0] == 'B' && header[1] == 'Z' && header[2] == 'h':
		reader = bzip2.NewReader(br)

	case len(header) >= 6 && header[0] == 0xfd && header[1] == '7' && header[2] == 'z' && header[3] == 'X' && header[4] == 'Z' && header[5] == 0x00:
		xzr, err := xz.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("creating xz reader: %w", err)
		}
		reader = xzr
	}

	var archive Archive
	if err := json.NewDecoder(reader).Decode(&archive); err != nil {
		return nil, fmt.Errorf("decoding archive: %w", err)
	}

	if archive.Metadata.Version == "" {
		return nil, fmt.Errorf("not a job history archive: missing format version")
	}

	result := &ImportResult{}
	for _, job := range archive.Jobs {
		if job == nil || job.ID.IsZero() || !job.IsFinished() {
			result.Skipped++
			continue
		}

		existing, err := s.repo.GetByID(ctx, job.ID)
		if err != nil {
			return result, err
		}
		if existing != nil {
			result.Skipped++
			continue
		}

		if err := s.repo.Create(ctx, job); err != nil {
			s.logger.Warn("skipping unimportable job",
				slog.String("job_id", job.ID.String()),
				slog.String("error", err.Error()))
			result.Skipped++
			continue
		}
		result.Imported++
	}

	s.logger.Info("imported job history",
		slog.Int("imported", result.Imported),
		slog.Int("skipped", result.Skipped))

	return result, nil
}
