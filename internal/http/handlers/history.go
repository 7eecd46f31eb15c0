package handlers

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-chi/chi/v5"

	"github.com/jmylchreest/slidereel/internal/service/history"
)

// HistoryHandler handles job archive export and import endpoints.
type HistoryHandler struct {
	service *history.Service
	logger  *slog.Logger
}

// NewHistoryHandler creates a new history handler.
func NewHistoryHandler(service *history.Service) *HistoryHandler {
	return &HistoryHandler{
		service: service,
		logger:  slog.Default(),
	}
}

// WithLogger sets the logger for the handler.
func (h *HistoryHandler) WithLogger(logger *slog.Logger) *HistoryHandler {
	h.logger = logger
	return h
}

// ImportHistoryInput is the input for importing a job archive.
type ImportHistoryInput struct {
	RawBody []byte
}

// ImportHistoryOutput is the output for importing a job archive.
type ImportHistoryOutput struct {
	Body history.ImportResult
}

// Register registers the history routes with the API (Huma routes).
// Note: the export endpoint is registered via RegisterChiRoutes for raw
// HTTP handler access (needed to stream the archive with download headers).
func (h *HistoryHandler) Register(api huma.API) {
	// Documentation-only registration for the export endpoint.
	// The actual request handling is done by a raw Chi handler (RegisterChiRoutes)
	// because Huma's response model buffers the body, while the archive is
	// streamed straight to the client with Content-Disposition headers.
	huma.Register(api, huma.Operation{
		OperationID: "exportHistory",
		Method:      http.MethodGet,
		Path:        "/api/v1/history/export",
		Summary:     "Export job history",
		Description: `Downloads every finished job as a JSON archive.

Active jobs are not included. The ` + "`compression`" + ` query parameter selects
the encoding: ` + "`none`" + ` (default), ` + "`gzip`" + ` or ` + "`xz`" + `.`,
		Tags: []string{"History"},
		Responses: map[string]*huma.Response{
			"200": {
				Description: "Archive download",
				Headers: map[string]*huma.Param{
					"Content-Type":        {Description: "application/json, application/gzip or application/x-xz"},
					"Content-Disposition": {Description: "attachment with a timestamped filename"},
				},
			},
			"400": {Description: "Unknown compression value"},
			"500": {Description: "Internal server error"},
		},
		SkipValidateBody: true,
	}, h.exportDocsHandler)

	huma.Register(api, huma.Operation{
		OperationID: "importHistory",
		Method:      http.MethodPost,
		Path:        "/api/v1/history/import",
		Summary:     "Import job history",
		Description: "Reads a previously exported archive from the request body and inserts jobs not already present. Gzip, bzip2 and xz compressed archives are detected automatically.",
		Tags:        []string{"History"},
	}, h.Import)
}

// RegisterChiRoutes registers the export route as a raw Chi handler.
func (h *HistoryHandler) RegisterChiRoutes(router chi.Router) {
	router.Get("/api/v1/history/export", h.handleExport)
}

// ExportHistoryInput is the input for the documentation-only export registration.
type ExportHistoryInput struct {
	Compression string `query:"compression" enum:"none,gzip,xz," doc:"Archive compression (default none)"`
}

// exportDocsHandler is a no-op handler for the documentation-only registration.
// The actual request handling is done by the raw Chi handler registered via
// RegisterChiRoutes.
func (h *HistoryHandler) exportDocsHandler(ctx context.Context, input *ExportHistoryInput) (*huma.StreamResponse, error) {
	// This handler should never be called because Chi handles the route first.
	// It exists only for OpenAPI documentation generation.
	return nil, huma.Error500InternalServerError("this endpoint is handled by raw Chi handlers", nil)
}

// Import inserts jobs from an uploaded archive.
func (h *HistoryHandler) Import(ctx context.Context, input *ImportHistoryInput) (*ImportHistoryOutput, error) {
	if len(bytes.TrimSpace(input.RawBody)) == 0 {
		return nil, huma.Error400BadRequest("archive content is required")
	}

	result, err := h.service.Import(ctx, bytes.NewReader(input.RawBody))
	if err != nil {
		errMsg := err.Error()
		if strings.Contains(errMsg, "decoding archive") || strings.Contains(errMsg, "not a job history archive") {
			return nil, huma.Error400BadRequest("invalid archive", err)
		}
		return nil, huma.Error500InternalServerError("failed to import archive", err)
	}

	return &ImportHistoryOutput{Body: *result}, nil
}

// handleExport streams the archive to the client.
func (h *HistoryHandler) handleExport(w http.ResponseWriter, r *http.Request) {
	compression, err := history.ParseCompression(r.URL.Query().Get("compression"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	contentType := "application/json"
	extension := ".json"
	switch compression {
	case history.CompressionGzip:
		contentType = "application/gzip"
		extension = ".json.gz"
	case history.CompressionXZ:
		contentType = "application/x-xz"
		extension = ".json.xz"
	}

	filename := fmt.Sprintf("slidereel-history-%s%s", time.Now().UTC().Format("20060102-150405"), extension)
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	// Large archives can outlive the server's write timeout; clear the deadline.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	cw := &countingWriter{w: w}
	count, err := h.service.Export(r.Context(), cw, compression)
	if err != nil {
		if cw.written == 0 {
			http.Error(w, "failed to export history", http.StatusInternalServerError)
		}
		// Mid-stream failures cannot change the status code anymore.
		h.logger.Error("history export failed",
			slog.String("compression", string(compression)),
			slog.Int64("bytes_written", cw.written),
			slog.String("error", err.Error()))
		return
	}

	h.logger.Debug("history export served",
		slog.Int("jobs", count),
		slog.Int64("bytes", cw.written),
		slog.String("filename", filename))
}

// countingWriter tracks how many bytes reached the client so the export
// handler can tell pre-stream failures from mid-stream ones.
type countingWriter struct {
	w       http.ResponseWriter
	written int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.written += int64(n)
	return n, err
}
