package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/jmylchreest/slidereel/internal/service/system"
)

// SystemHandler handles system information endpoints.
type SystemHandler struct {
	service *system.Service
	version string
}

// NewSystemHandler creates a new system handler.
func NewSystemHandler(service *system.Service, version string) *SystemHandler {
	return &SystemHandler{
		service: service,
		version: version,
	}
}

// Register registers the system routes with the API.
func (h *SystemHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getSystemInfo",
		Method:      http.MethodGet,
		Path:        "/api/v1/system",
		Summary:     "Get system information",
		Description: "Returns host information including CPU, memory, and load along with the service version and uptime",
		Tags:        []string{"System"},
	}, h.Get)
}

// SystemInfoResponse represents system information in API responses.
type SystemInfoResponse struct {
	system.Info
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// GetSystemInfoInput is the input for getting system information.
type GetSystemInfoInput struct{}

// GetSystemInfoOutput is the output for getting system information.
type GetSystemInfoOutput struct {
	Body SystemInfoResponse
}

// Get returns a snapshot of the host and service state.
func (h *SystemHandler) Get(ctx context.Context, input *GetSystemInfoInput) (*GetSystemInfoOutput, error) {
	return &GetSystemInfoOutput{
		Body: SystemInfoResponse{
			Info:    h.service.Collect(ctx),
			Version: h.version,
			Uptime:  h.service.Uptime().Round(time.Second).String(),
		},
	}, nil
}
