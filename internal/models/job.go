package models

import (
	"gorm.io/gorm"
)

// JobStatus represents the current status of an encoding job.
type JobStatus string

const (
	// JobStatusPending indicates the job is queued and waiting for the worker.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently encoding.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates every group encoded successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job aborted with an error.
	JobStatusFailed JobStatus = "failed"
	// JobStatusCancelled indicates the job was cancelled before finishing.
	JobStatusCancelled JobStatus = "cancelled"
)

// StringList is a helper type for storing string arrays in the database.
type StringList []string

// Job represents one batch encoding request: a directory of still images
// paired with a directory of audio clips, rendered to one video file per
// group of segments.
type Job struct {
	BaseModel

	// ImagesDir is the directory scanned for still images.
	ImagesDir string `gorm:"not null;size:4096" json:"images_dir"`

	// AudioDir is the directory scanned for audio clips.
	AudioDir string `gorm:"not null;size:4096" json:"audio_dir"`

	// OutputDir is where finished videos are written.
	OutputDir string `gorm:"not null;size:4096" json:"output_dir"`

	// GroupSize is the number of segments concatenated into one output file.
	GroupSize int `gorm:"default:1" json:"group_size"`

	// MergeAll collapses every segment into a single output, overriding GroupSize.
	MergeAll bool `gorm:"default:false" json:"merge_all"`

	// EncoderPolicy selects hardware/software encoding behaviour.
	EncoderPolicy EncoderPolicy `gorm:"not null;default:'auto';size:20" json:"encoder_policy"`

	// FPS is the output frame rate.
	FPS int `gorm:"default:24" json:"fps"`

	// Resolution is the target output height label.
	Resolution Resolution `gorm:"not null;default:'1080p';size:10" json:"resolution"`

	// Codec is the preferred output codec family.
	Codec Codec `gorm:"not null;default:'h264';size:10" json:"codec"`

	// Status indicates where the job is in its lifecycle.
	Status JobStatus `gorm:"not null;default:'pending';size:20;index" json:"status"`

	// Progress is the percentage of groups finished, 0-100.
	Progress float64 `gorm:"default:0" json:"progress"`

	// GroupsTotal is the number of output files this job will produce.
	GroupsTotal int `gorm:"default:0" json:"groups_total"`

	// GroupsDone is the number of groups processed so far.
	GroupsDone int `gorm:"default:0" json:"groups_done"`

	// OutputFiles lists the paths of finished videos.
	OutputFiles StringList `gorm:"type:text;serializer:json" json:"output_files"`

	// Error contains the failure message when Status is failed.
	Error string `gorm:"size:4096" json:"error,omitempty"`

	// StartedAt is the timestamp when the worker picked the job up.
	StartedAt *Time `json:"started_at,omitempty"`

	// CompletedAt is the timestamp when the job reached a terminal status.
	CompletedAt *Time `gorm:"index" json:"completed_at,omitempty"`

	// DurationMs is the wall-clock execution duration in milliseconds.
	DurationMs int64 `json:"duration_ms,omitempty"`
}

// TableName returns the table name for Job.
func (Job) TableName() string {
	return "jobs"
}

// IsPending returns true if the job is waiting for the worker.
func (j *Job) IsPending() bool {
	return j.Status == JobStatusPending
}

// IsRunning returns true if the job is currently encoding.
func (j *Job) IsRunning() bool {
	return j.Status == JobStatusRunning
}

// IsActive returns true if the job is pending or running.
func (j *Job) IsActive() bool {
	return j.Status == JobStatusPending || j.Status == JobStatusRunning
}

// IsFinished returns true if the job has reached a terminal status.
func (j *Job) IsFinished() bool {
	return j.Status == JobStatusCompleted || j.Status == JobStatusFailed || j.Status == JobStatusCancelled
}

// MarkRunning marks the job as picked up by the worker.
func (j *Job) MarkRunning() {
	j.Status = JobStatusRunning
	now := Now()
	j.StartedAt = &now
	j.Error = ""
}

// MarkCompleted marks the job as completed with the produced output files.
func (j *Job) MarkCompleted(outputs []string) {
	j.Status = JobStatusCompleted
	now := Now()
	j.CompletedAt = &now
	j.OutputFiles = outputs
	j.Progress = 100
	j.Error = ""

	if j.StartedAt != nil {
		j.DurationMs = now.Sub(*j.StartedAt).Milliseconds()
	}
}

// MarkFailed marks the job as failed with an error message. Outputs
// finished before the failure are kept.
func (j *Job) MarkFailed(err error, outputs []string) {
	j.Status = JobStatusFailed
	now := Now()
	j.CompletedAt = &now
	j.OutputFiles = outputs

	if err != nil {
		j.Error = err.Error()
	}

	if j.StartedAt != nil {
		j.DurationMs = now.Sub(*j.StartedAt).Milliseconds()
	}
}

// MarkCancelled marks the job as cancelled, keeping outputs finished
// before the cancel landed.
func (j *Job) MarkCancelled(outputs []string) {
	j.Status = JobStatusCancelled
	now := Now()
	j.CompletedAt = &now
	j.OutputFiles = outputs

	if j.StartedAt != nil {
		j.DurationMs = now.Sub(*j.StartedAt).Milliseconds()
	}
}

// SetGroupProgress records group completion counts and derives Progress.
func (j *Job) SetGroupProgress(done, total int) {
	j.GroupsDone = done
	j.GroupsTotal = total
	if total > 0 {
		j.Progress = float64(done) / float64(total) * 100
	} else {
		j.Progress = 0
	}
}

// Validate performs basic validation on the job.
func (j *Job) Validate() error {
	if j.ImagesDir == "" {
		return ErrImagesDirRequired
	}
	if j.AudioDir == "" {
		return ErrAudioDirRequired
	}
	if j.OutputDir == "" {
		return ErrOutputDirRequired
	}
	if j.GroupSize < 1 {
		return ErrInvalidGroupSize
	}
	if !IsValidFPS(j.FPS) {
		return ErrInvalidFPS
	}
	if !j.Resolution.IsValid() {
		return ErrInvalidResolution
	}
	if !j.Codec.IsValid() {
		return ErrInvalidCodec
	}
	if !j.EncoderPolicy.IsValid() {
		return ErrInvalidEncoderPolicy
	}
	return nil
}

// BeforeCreate mints the ULID and rejects an invalid job before it
// reaches the table.
func (j *Job) BeforeCreate(tx *gorm.DB) error {
	if err := j.BaseModel.BeforeCreate(tx); err != nil {
		return err
	}
	return j.Validate()
}

// BeforeUpdate re-checks the job on every save.
func (j *Job) BeforeUpdate(tx *gorm.DB) error {
	return j.Validate()
}
