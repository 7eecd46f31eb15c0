package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/jmylchreest/slidereel/internal/config"
	"github.com/jmylchreest/slidereel/internal/models"
	"github.com/jmylchreest/slidereel/internal/repository"
	"github.com/jmylchreest/slidereel/internal/scheduler"
)

// JobHandler serves the job lifecycle endpoints.
type JobHandler struct {
	repo     repository.JobRepository
	runner   *scheduler.Runner
	defaults config.EncodingConfig
}

// NewJobHandler creates a job handler. Request fields the client leaves
// unset are filled from the configured encoding defaults.
func NewJobHandler(repo repository.JobRepository, runner *scheduler.Runner, defaults config.EncodingConfig) *JobHandler {
	return &JobHandler{
		repo:     repo,
		runner:   runner,
		defaults: defaults,
	}
}

// Register mounts the job routes on the API.
func (h *JobHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "listJobs",
		Method:      http.MethodGet,
		Path:        "/api/v1/jobs",
		Summary:     "List jobs",
		Description: "Lists jobs newest first, optionally narrowed to one status",
		Tags:        []string{"Jobs"},
	}, h.List)

	huma.Register(api, huma.Operation{
		OperationID: "createJob",
		Method:      http.MethodPost,
		Path:        "/api/v1/jobs",
		Summary:     "Submit job",
		Description: "Checks the input directories and queues an encoding job",
		Tags:        []string{"Jobs"},
	}, h.Create)

	huma.Register(api, huma.Operation{
		OperationID: "getJob",
		Method:      http.MethodGet,
		Path:        "/api/v1/jobs/{id}",
		Summary:     "Get job",
		Description: "Fetches one job with its progress and output details",
		Tags:        []string{"Jobs"},
	}, h.GetByID)

	huma.Register(api, huma.Operation{
		OperationID: "cancelJob",
		Method:      http.MethodPost,
		Path:        "/api/v1/jobs/{id}/cancel",
		Summary:     "Cancel job",
		Description: "Stops a pending or running job, keeping outputs already written",
		Tags:        []string{"Jobs"},
	}, h.Cancel)

	huma.Register(api, huma.Operation{
		OperationID: "deleteJob",
		Method:      http.MethodDelete,
		Path:        "/api/v1/jobs/{id}",
		Summary:     "Delete job",
		Description: "Removes a finished job record",
		Tags:        []string{"Jobs"},
	}, h.Delete)

	huma.Register(api, huma.Operation{
		OperationID: "stopAllJobs",
		Method:      http.MethodPost,
		Path:        "/api/v1/jobs/stop-all",
		Summary:     "Stop all jobs",
		Description: "Cancels the running job and drains the pending queue",
		Tags:        []string{"Jobs"},
	}, h.StopAll)

	huma.Register(api, huma.Operation{
		OperationID: "clearFinishedJobs",
		Method:      http.MethodDelete,
		Path:        "/api/v1/jobs/finished",
		Summary:     "Clear finished jobs",
		Description: "Removes every completed, failed and cancelled job record",
		Tags:        []string{"Jobs"},
	}, h.ClearFinished)

	huma.Register(api, huma.Operation{
		OperationID: "getQueueStatus",
		Method:      http.MethodGet,
		Path:        "/api/v1/queue",
		Summary:     "Get queue status",
		Description: "Reports the runner state and pending queue depth",
		Tags:        []string{"Jobs"},
	}, h.GetQueueStatus)
}

// parseJobID turns a path parameter into a ULID or a 400.
func parseJobID(raw string) (models.ULID, error) {
	id, err := models.ParseULID(raw)
	if err != nil {
		return models.ULID{}, huma.Error400BadRequest("job ID must be a ULID", err)
	}
	return id, nil
}

// jobByID loads the job named by a path parameter, mapping a bad ID to
// 400 and a missing row to 404.
func (h *JobHandler) jobByID(ctx context.Context, raw string) (*models.Job, error) {
	id, err := parseJobID(raw)
	if err != nil {
		return nil, err
	}
	job, err := h.repo.GetByID(ctx, id)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to load job", err)
	}
	if job == nil {
		return nil, huma.Error404NotFound(fmt.Sprintf("job %s not found", raw))
	}
	return job, nil
}

// CreateJobInput is the input for submitting a job.
type CreateJobInput struct {
	Body CreateJobRequest
}

// CreateJobOutput is the output for submitting a job.
type CreateJobOutput struct {
	Body JobResponse
}

// toModel builds a job from the request, filling unset fields from the
// configured encoding defaults.
func (h *JobHandler) toModel(req *CreateJobRequest) *models.Job {
	job := &models.Job{
		ImagesDir:     req.ImagesDir,
		AudioDir:      req.AudioDir,
		OutputDir:     req.OutputDir,
		GroupSize:     h.defaults.GroupSize,
		MergeAll:      h.defaults.MergeAll,
		EncoderPolicy: models.EncoderPolicy(h.defaults.Policy),
		FPS:           h.defaults.FPS,
		Resolution:    models.Resolution(h.defaults.Resolution),
		Codec:         models.Codec(h.defaults.Codec),
		Status:        models.JobStatusPending,
	}
	if req.GroupSize != nil {
		job.GroupSize = *req.GroupSize
	}
	if req.MergeAll != nil {
		job.MergeAll = *req.MergeAll
	}
	if req.EncoderPolicy != "" {
		job.EncoderPolicy = models.EncoderPolicy(req.EncoderPolicy)
	}
	if req.FPS != nil {
		job.FPS = *req.FPS
	}
	if req.Resolution != "" {
		job.Resolution = models.Resolution(req.Resolution)
	}
	if req.Codec != "" {
		job.Codec = models.Codec(req.Codec)
	}
	return job
}

// Create validates and queues a new encoding job.
func (h *JobHandler) Create(ctx context.Context, input *CreateJobInput) (*CreateJobOutput, error) {
	job := h.toModel(&input.Body)

	if err := h.runner.Submit(ctx, job); err != nil {
		var inputErr *scheduler.InputError
		if errors.As(err, &inputErr) {
			return nil, huma.Error400BadRequest(inputErr.Error())
		}
		return nil, huma.Error500InternalServerError("failed to submit job", err)
	}

	return &CreateJobOutput{Body: JobFromModel(job)}, nil
}

// ListJobsInput is the input for listing jobs.
type ListJobsInput struct {
	Status string `query:"status" doc:"Filter by job status (optional)" enum:"pending,running,completed,failed,cancelled,"`
	Pagination
}

// ListJobsOutput is the output for listing jobs.
type ListJobsOutput struct {
	Body struct {
		Jobs       []JobResponse  `json:"jobs"`
		Pagination PaginationMeta `json:"pagination"`
	}
}

// List returns a page of jobs, newest first.
func (h *JobHandler) List(ctx context.Context, input *ListJobsInput) (*ListJobsOutput, error) {
	var status *models.JobStatus
	if input.Status != "" {
		s := models.JobStatus(input.Status)
		status = &s
	}

	offset := (input.Page - 1) * input.Limit
	jobs, total, err := h.repo.List(ctx, status, offset, input.Limit)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to list jobs", err)
	}

	out := &ListJobsOutput{}
	out.Body.Jobs = make([]JobResponse, len(jobs))
	for i, j := range jobs {
		out.Body.Jobs[i] = JobFromModel(j)
	}
	out.Body.Pagination = NewPaginationMeta(input.Page, input.Limit, total)
	return out, nil
}

// GetJobInput is the input for fetching a job.
type GetJobInput struct {
	ID string `path:"id" doc:"ULID of the job"`
}

// GetJobOutput is the output for fetching a job.
type GetJobOutput struct {
	Body JobResponse
}

// GetByID fetches one job.
func (h *JobHandler) GetByID(ctx context.Context, input *GetJobInput) (*GetJobOutput, error) {
	job, err := h.jobByID(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	return &GetJobOutput{Body: JobFromModel(job)}, nil
}

// CancelJobInput is the input for cancelling a job.
type CancelJobInput struct {
	ID string `path:"id" doc:"ULID of the job"`
}

// CancelJobOutput is the output for cancelling a job.
type CancelJobOutput struct {
	Body MessageResponse
}

// Cancel stops a pending or running job.
func (h *JobHandler) Cancel(ctx context.Context, input *CancelJobInput) (*CancelJobOutput, error) {
	id, err := parseJobID(input.ID)
	if err != nil {
		return nil, err
	}

	if err := h.runner.Cancel(ctx, id); err != nil {
		switch {
		case errors.Is(err, scheduler.ErrJobNotFound):
			return nil, huma.Error404NotFound(fmt.Sprintf("job %s not found", input.ID))
		case errors.Is(err, scheduler.ErrJobFinished):
			return nil, huma.Error400BadRequest(err.Error())
		default:
			return nil, huma.Error500InternalServerError("failed to cancel job", err)
		}
	}

	return &CancelJobOutput{
		Body: MessageResponse{Message: fmt.Sprintf("job %s cancelled", input.ID)},
	}, nil
}

// DeleteJobInput is the input for deleting a job.
type DeleteJobInput struct {
	ID string `path:"id" doc:"ULID of the job"`
}

// DeleteJobOutput is the output for deleting a job.
type DeleteJobOutput struct{}

// Delete removes a finished job record.
func (h *JobHandler) Delete(ctx context.Context, input *DeleteJobInput) (*DeleteJobOutput, error) {
	job, err := h.jobByID(ctx, input.ID)
	if err != nil {
		return nil, err
	}
	if !job.IsFinished() {
		return nil, huma.Error400BadRequest("cannot delete an active job; cancel it first")
	}

	if err := h.repo.Delete(ctx, job.ID); err != nil {
		return nil, huma.Error500InternalServerError("failed to delete job", err)
	}
	return &DeleteJobOutput{}, nil
}

// StopAllJobsInput is the input for stopping all jobs.
type StopAllJobsInput struct{}

// StopAllJobsOutput is the output for stopping all jobs.
type StopAllJobsOutput struct {
	Body struct {
		Cancelled int64 `json:"cancelled"`
	}
}

// StopAll cancels the running job and every pending job.
func (h *JobHandler) StopAll(ctx context.Context, input *StopAllJobsInput) (*StopAllJobsOutput, error) {
	cancelled, err := h.runner.StopAll(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to stop jobs", err)
	}

	out := &StopAllJobsOutput{}
	out.Body.Cancelled = cancelled
	return out, nil
}

// ClearFinishedJobsInput is the input for clearing finished jobs.
type ClearFinishedJobsInput struct{}

// ClearFinishedJobsOutput is the output for clearing finished jobs.
type ClearFinishedJobsOutput struct {
	Body struct {
		Deleted int64 `json:"deleted"`
	}
}

// ClearFinished removes every job in a terminal status.
func (h *JobHandler) ClearFinished(ctx context.Context, input *ClearFinishedJobsInput) (*ClearFinishedJobsOutput, error) {
	deleted, err := h.repo.ClearFinished(ctx)
	if err != nil {
		return nil, huma.Error500InternalServerError("failed to clear finished jobs", err)
	}

	out := &ClearFinishedJobsOutput{}
	out.Body.Deleted = deleted
	return out, nil
}

// QueueStatusResponse reports the runner state.
type QueueStatusResponse struct {
	Running      bool   `json:"running"`
	CurrentJobID string `json:"current_job_id,omitempty"`
	PendingJobs  int64  `json:"pending_jobs"`
	PollInterval string `json:"poll_interval"`
}

// GetQueueStatusInput is the input for the queue status endpoint.
type GetQueueStatusInput struct{}

// GetQueueStatusOutput is the output for the queue status endpoint.
type GetQueueStatusOutput struct {
	Body QueueStatusResponse
}

// GetQueueStatus reports the runner state and queue depth.
func (h *JobHandler) GetQueueStatus(ctx context.Context, input *GetQueueStatusInput) (*GetQueueStatusOutput, error) {
	status := h.runner.Status(ctx)

	return &GetQueueStatusOutput{
		Body: QueueStatusResponse{
			Running:      status.Running,
			CurrentJobID: status.CurrentJobID,
			PendingJobs:  status.PendingJobs,
			PollInterval: status.PollInterval.String(),
		},
	}, nil
}
