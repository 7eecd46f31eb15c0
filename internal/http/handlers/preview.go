package handlers

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/jmylchreest/slidereel/internal/media"
)

// PreviewHandler handles the pairing preview endpoint.
type PreviewHandler struct{}

// NewPreviewHandler creates a new preview handler.
func NewPreviewHandler() *PreviewHandler {
	return &PreviewHandler{}
}

// Register registers the preview routes with the API.
func (h *PreviewHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "previewPlan",
		Method:      http.MethodPost,
		Path:        "/api/v1/preview",
		Summary:     "Preview pairing plan",
		Description: "Scans the input directories and returns the pairing and grouping table a job would produce, without queueing anything",
		Tags:        []string{"Jobs"},
	}, h.Preview)
}

// PreviewRequest is the request body for a pairing preview.
type PreviewRequest struct {
	ImagesDir     string `json:"images_dir" doc:"Directory scanned for still images" minLength:"1" maxLength:"4096"`
	AudioDir      string `json:"audio_dir" doc:"Directory scanned for audio clips" minLength:"1" maxLength:"4096"`
	GroupSize     int    `json:"group_size,omitempty" doc:"Segments concatenated into one output file" minimum:"1" default:"1"`
	MergeAll      bool   `json:"merge_all,omitempty" doc:"Collapse every segment into a single output"`
	InspectImages bool   `json:"inspect_images,omitempty" doc:"Decode image headers to report dimensions"`
}

// PreviewInput is the input for the preview endpoint.
type PreviewInput struct {
	Body PreviewRequest
}

// PreviewOutput is the output for the preview endpoint.
type PreviewOutput struct {
	Body media.Preview
}

// Preview scans the input directories and returns the planned pairing.
func (h *PreviewHandler) Preview(ctx context.Context, input *PreviewInput) (*PreviewOutput, error) {
	groupSize := input.Body.GroupSize
	if groupSize < 1 {
		groupSize = 1
	}

	plan, err := media.BuildPlan(input.Body.ImagesDir, input.Body.AudioDir, groupSize, input.Body.MergeAll)
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}

	return &PreviewOutput{
		Body: *media.BuildPreview(plan, input.Body.InspectImages),
	}, nil
}
