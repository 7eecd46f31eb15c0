package handlers

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/jmylchreest/slidereel/internal/ffmpeg"
)

// CapabilitiesHandler handles ffmpeg capability endpoints.
type CapabilitiesHandler struct {
	detector *ffmpeg.Detector
}

// NewCapabilitiesHandler creates a new capabilities handler.
func NewCapabilitiesHandler(detector *ffmpeg.Detector) *CapabilitiesHandler {
	return &CapabilitiesHandler{
		detector: detector,
	}
}

// Register registers the capability routes with the API.
func (h *CapabilitiesHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getCapabilities",
		Method:      http.MethodGet,
		Path:        "/api/v1/capabilities",
		Summary:     "Get ffmpeg capabilities",
		Description: "Returns the detected ffmpeg installation, its version, and the available encoders",
		Tags:        []string{"Encoding"},
	}, h.Get)

	huma.Register(api, huma.Operation{
		OperationID: "refreshCapabilities",
		Method:      http.MethodPost,
		Path:        "/api/v1/capabilities/refresh",
		Summary:     "Refresh ffmpeg capabilities",
		Description: "Re-probes the ffmpeg installation and replaces the cached snapshot",
		Tags:        []string{"Encoding"},
	}, h.Refresh)
}

// GetCapabilitiesInput is the input for getting capabilities.
type GetCapabilitiesInput struct{}

// GetCapabilitiesOutput is the output for getting capabilities.
type GetCapabilitiesOutput struct {
	Body ffmpeg.Capabilities
}

// Get returns the cached capability snapshot, probing on first call.
func (h *CapabilitiesHandler) Get(ctx context.Context, input *GetCapabilitiesInput) (*GetCapabilitiesOutput, error) {
	return &GetCapabilitiesOutput{
		Body: *h.detector.Capabilities(ctx),
	}, nil
}

// RefreshCapabilitiesInput is the input for refreshing capabilities.
type RefreshCapabilitiesInput struct{}

// RefreshCapabilitiesOutput is the output for refreshing capabilities.
type RefreshCapabilitiesOutput struct {
	Body ffmpeg.Capabilities
}

// Refresh re-probes the ffmpeg installation.
func (h *CapabilitiesHandler) Refresh(ctx context.Context, input *RefreshCapabilitiesInput) (*RefreshCapabilitiesOutput, error) {
	return &RefreshCapabilitiesOutput{
		Body: *h.detector.Refresh(ctx),
	}, nil
}
