package handlers

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"github.com/jmylchreest/slidereel/internal/version"
)

// VersionHandler handles the version endpoint.
type VersionHandler struct{}

// NewVersionHandler creates a new version handler.
func NewVersionHandler() *VersionHandler {
	return &VersionHandler{}
}

// Register registers the version routes with the API.
func (h *VersionHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getVersion",
		Method:      http.MethodGet,
		Path:        "/api/v1/version",
		Summary:     "Get version",
		Description: "Returns build version information",
		Tags:        []string{"System"},
	}, h.Get)
}

// GetVersionInput is the input for getting version information.
type GetVersionInput struct{}

// GetVersionOutput is the output for getting version information.
type GetVersionOutput struct {
	Body version.Info
}

// Get returns build version information.
func (h *VersionHandler) Get(ctx context.Context, input *GetVersionInput) (*GetVersionOutput, error) {
	return &GetVersionOutput{
		Body: version.Get(),
	}, nil
}
