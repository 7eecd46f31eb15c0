// Package handlers provides HTTP API handlers for slidereel.
package handlers

import (
	"time"

	"github.com/jmylchreest/slidereel/internal/models"
)

// Common response types

// MessageResponse is a plain confirmation message.
type MessageResponse struct {
	Message string `json:"message"`
}

// Pagination is the query window shared by the list endpoints.
type Pagination struct {
	Page  int `query:"page" default:"1" minimum:"1" doc:"Page number, starting at 1"`
	Limit int `query:"limit" default:"50" minimum:"1" maximum:"500" doc:"Page size"`
}

// PaginationMeta describes the window a list response covers.
type PaginationMeta struct {
	CurrentPage int   `json:"current_page"`
	PageSize    int   `json:"page_size"`
	TotalItems  int64 `json:"total_items"`
	TotalPages  int64 `json:"total_pages"`
}

// NewPaginationMeta derives response metadata from the request window
// and the total row count.
func NewPaginationMeta(page, limit int, total int64) PaginationMeta {
	return PaginationMeta{
		CurrentPage: page,
		PageSize:    limit,
		TotalItems:  total,
		TotalPages:  (total + int64(limit) - 1) / int64(limit),
	}
}

// Job types

// JobResponse represents an encoding job in API responses.
type JobResponse struct {
	ID            models.ULID          `json:"id"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
	ImagesDir     string               `json:"images_dir"`
	AudioDir      string               `json:"audio_dir"`
	OutputDir     string               `json:"output_dir"`
	GroupSize     int                  `json:"group_size"`
	MergeAll      bool                 `json:"merge_all"`
	EncoderPolicy models.EncoderPolicy `json:"encoder_policy"`
	FPS           int                  `json:"fps"`
	Resolution    models.Resolution    `json:"resolution"`
	Codec         models.Codec         `json:"codec"`
	Status        models.JobStatus     `json:"status"`
	Progress      float64              `json:"progress"`
	GroupsTotal   int                  `json:"groups_total"`
	GroupsDone    int                  `json:"groups_done"`
	OutputFiles   []string             `json:"output_files"`
	Error         string               `json:"error,omitempty"`
	StartedAt     *time.Time           `json:"started_at,omitempty"`
	CompletedAt   *time.Time           `json:"completed_at,omitempty"`
	DurationMs    int64                `json:"duration_ms,omitempty"`
}

// JobFromModel converts a model to a response.
func JobFromModel(j *models.Job) JobResponse {
	return JobResponse{
		ID:            j.ID,
		CreatedAt:     j.CreatedAt,
		UpdatedAt:     j.UpdatedAt,
		ImagesDir:     j.ImagesDir,
		AudioDir:      j.AudioDir,
		OutputDir:     j.OutputDir,
		GroupSize:     j.GroupSize,
		MergeAll:      j.MergeAll,
		EncoderPolicy: j.EncoderPolicy,
		FPS:           j.FPS,
		Resolution:    j.Resolution,
		Codec:         j.Codec,
		Status:        j.Status,
		Progress:      j.Progress,
		GroupsTotal:   j.GroupsTotal,
		GroupsDone:    j.GroupsDone,
		OutputFiles:   j.OutputFiles,
		Error:         j.Error,
		StartedAt:     j.StartedAt,
		CompletedAt:   j.CompletedAt,
		DurationMs:    j.DurationMs,
	}
}

// CreateJobRequest is the request body for submitting an encoding job.
// Optional fields fall back to the server's configured encoding defaults.
type CreateJobRequest struct {
	ImagesDir     string `json:"images_dir" doc:"Directory scanned for still images" minLength:"1" maxLength:"4096"`
	AudioDir      string `json:"audio_dir" doc:"Directory scanned for audio clips" minLength:"1" maxLength:"4096"`
	OutputDir     string `json:"output_dir" doc:"Directory finished videos are written to" minLength:"1" maxLength:"4096"`
	GroupSize     *int   `json:"group_size,omitempty" doc:"Segments concatenated into one output file" minimum:"1"`
	MergeAll      *bool  `json:"merge_all,omitempty" doc:"Collapse every segment into a single output, overriding group_size"`
	EncoderPolicy string `json:"encoder_policy,omitempty" doc:"Encoder selection policy" enum:"auto,hardware,software,"`
	FPS           *int   `json:"fps,omitempty" doc:"Output frame rate" enum:"24,30"`
	Resolution    string `json:"resolution,omitempty" doc:"Target output height" enum:"720p,1080p,1440p,"`
	Codec         string `json:"codec,omitempty" doc:"Preferred output codec family" enum:"h264,hevc,"`
}
