package handlers

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/jmylchreest/slidereel/internal/encoder"
)

// PerfHandler handles encoder performance endpoints.
type PerfHandler struct {
	tracker *encoder.PerfTracker
}

// NewPerfHandler creates a new performance handler.
func NewPerfHandler(tracker *encoder.PerfTracker) *PerfHandler {
	return &PerfHandler{
		tracker: tracker,
	}
}

// Register registers the performance routes with the API.
func (h *PerfHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getEncoderPerf",
		Method:      http.MethodGet,
		Path:        "/api/v1/encoder/perf",
		Summary:     "Get encoder performance",
		Description: "Returns accumulated hardware and software encoding speed statistics with an advisory recommendation",
		Tags:        []string{"Encoding"},
	}, h.Get)
}

// EncoderPerfResponse represents encoder performance in API responses.
type EncoderPerfResponse struct {
	Stats         encoder.PerfStats `json:"stats"`
	HardwareSpeed float64           `json:"hardware_speed"`
	SoftwareSpeed float64           `json:"software_speed"`
	Advice        string            `json:"advice,omitempty"`
}

// GetEncoderPerfInput is the input for getting encoder performance.
type GetEncoderPerfInput struct{}

// GetEncoderPerfOutput is the output for getting encoder performance.
type GetEncoderPerfOutput struct {
	Body EncoderPerfResponse
}

// Get returns the accumulated encoder speed statistics.
func (h *PerfHandler) Get(ctx context.Context, input *GetEncoderPerfInput) (*GetEncoderPerfOutput, error) {
	stats := h.tracker.Snapshot()

	return &GetEncoderPerfOutput{
		Body: EncoderPerfResponse{
			Stats:         stats,
			HardwareSpeed: stats.Hardware.AverageSpeed(),
			SoftwareSpeed: stats.Software.AverageSpeed(),
			Advice:        h.tracker.Advice(),
		},
	}, nil
}
