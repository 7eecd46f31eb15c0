package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"

	"github.com/jmylchreest/slidereel/internal/service/events"
)

// EventsHandler handles event streaming and statistics endpoints.
type EventsHandler struct {
	service           *events.Service
	heartbeatInterval time.Duration
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(service *events.Service) *EventsHandler {
	return &EventsHandler{
		service:           service,
		heartbeatInterval: events.HeartbeatInterval,
	}
}

// SSE Event Type Wrapper - required by Huma for OpenAPI schema generation.
// StreamEvent is sent for each bus entry streamed via SSE.
type StreamEvent events.Event

// SSEEventsStreamInput defines query parameters for the events SSE endpoint.
type SSEEventsStreamInput struct {
	JobID   string `query:"job_id" doc:"Only stream events for this job"`
	Type    string `query:"type" doc:"Filter by event type (job_queued, job_progress, segment_encoded, log, ...)"`
	Level   string `query:"level" doc:"Filter by level (debug, info, warn, error)"`
	Initial int    `query:"initial" default:"50" minimum:"0" maximum:"500" doc:"Number of recent events to send on connect (0-500)"`
}

// EventStatsResponse represents event bus statistics in API responses.
type EventStatsResponse struct {
	TotalEvents int64 `json:"total_events"`
	Subscribers int   `json:"subscribers"`
}

// GetEventStatsInput is the input for getting event statistics.
type GetEventStatsInput struct{}

// GetEventStatsOutput is the output for getting event statistics.
type GetEventStatsOutput struct {
	Body EventStatsResponse
}

// GetRecentEventsInput is the input for getting recent events.
type GetRecentEventsInput struct {
	Limit int `query:"limit" default:"100" doc:"Maximum number of events to return (1-1000)"`
}

// GetRecentEventsOutput is the output for getting recent events.
type GetRecentEventsOutput struct {
	Body struct {
		Events []events.Event `json:"events"`
	}
}

// Register registers the event routes with the API.
func (h *EventsHandler) Register(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "getEventStats",
		Method:      http.MethodGet,
		Path:        "/api/v1/events/stats",
		Summary:     "Get event statistics",
		Description: "Returns counters for the event bus including total events published and attached subscribers",
		Tags:        []string{"Events"},
	}, h.GetStats)

	huma.Register(api, huma.Operation{
		OperationID: "getRecentEvents",
		Method:      http.MethodGet,
		Path:        "/api/v1/events/recent",
		Summary:     "Get recent events",
		Description: "Returns the most recent entries from the replay buffer",
		Tags:        []string{"Events"},
	}, h.GetRecent)

	// Register SSE endpoint with Huma for OpenAPI documentation.
	// The actual handler is registered separately via RegisterSSE on the chi router,
	// which takes precedence. This registration provides OpenAPI schema generation.
	sse.Register(api, huma.Operation{
		OperationID: "eventsStream",
		Method:      http.MethodGet,
		Path:        "/api/v1/events/stream",
		Summary:     "Subscribe to pipeline events",
		Description: `Server-Sent Events stream for job lifecycle and log events.

## Connection Protocol
- On connect: receives ` + "`" + `:connected` + "`" + ` comment
- On connect with ` + "`" + `initial=N` + "`" + `: receives up to N recent events before live streaming
- Every 30s without events: receives ` + "`" + `:heartbeat <unix_epoch>` + "`" + ` comment (Unix timestamp in seconds)

## Event Type
- ` + "`" + `event` + "`" + `: one bus entry; the payload's ` + "`" + `type` + "`" + ` field identifies what happened
  (job_queued, job_started, job_progress, job_completed, job_failed, job_cancelled,
  segment_encoded, segment_skipped, group_completed, group_failed, log)

## Usage Example
` + "```" + `javascript
const eventSource = new EventSource('/api/v1/events/stream?job_id=01H...&initial=100');
eventSource.addEventListener('event', (e) => console.log(JSON.parse(e.data)));
` + "```",
		Tags: []string{"Events"},
	}, map[string]any{
		"event": StreamEvent{},
	}, func(ctx context.Context, input *SSEEventsStreamInput, send sse.Sender) {
		// This handler is a placeholder for OpenAPI schema generation.
		// The actual SSE handling is done by RegisterSSE on the chi router.
		<-ctx.Done()
	})
}

// RegisterSSE registers the SSE endpoint on a chi router.
// This is separate from Register because Huma doesn't support SSE streaming natively.
func (h *EventsHandler) RegisterSSE(router interface {
	Get(pattern string, handlerFn http.HandlerFunc)
}) {
	router.Get("/api/v1/events/stream", h.handleSSEStream)
}

// GetStats returns current event bus statistics.
func (h *EventsHandler) GetStats(ctx context.Context, input *GetEventStatsInput) (*GetEventStatsOutput, error) {
	return &GetEventStatsOutput{
		Body: EventStatsResponse{
			TotalEvents: h.service.Total(),
			Subscribers: h.service.SubscriberCount(),
		},
	}, nil
}

// GetRecent returns the most recent events from the replay buffer.
func (h *EventsHandler) GetRecent(ctx context.Context, input *GetRecentEventsInput) (*GetRecentEventsOutput, error) {
	limit := input.Limit
	if limit <= 0 {
		limit = 100
	}
	if limit > 1000 {
		limit = 1000
	}

	output := &GetRecentEventsOutput{}
	output.Body.Events = h.service.Recent(limit)
	return output, nil
}

// handleSSEStream is the raw HTTP handler for SSE streaming.
func (h *EventsHandler) handleSSEStream(w http.ResponseWriter, r *http.Request) {
	// Set CORS headers for cross-origin requests (frontend on different port)
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Cache-Control")
	w.Header().Set("Access-Control-Expose-Headers", "X-Request-ID")

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	// Parse filter parameters
	jobFilter := r.URL.Query().Get("job_id")
	typeFilter := r.URL.Query().Get("type")
	levelFilter := r.URL.Query().Get("level")

	// Parse initial count (number of recent events to send on connect)
	initialCount := 50 // default
	if countStr := r.URL.Query().Get("initial"); countStr != "" {
		if count, err := strconv.Atoi(countStr); err == nil && count >= 0 && count <= 500 {
			initialCount = count
		}
	}

	// Subscribe to events
	sub := h.service.Subscribe(r.Context())

	// Use ResponseController for reliable flushing with error handling (Go 1.20+)
	rc := http.NewResponseController(w)

	// The stream outlives the server's write timeout; clear the deadline.
	_ = rc.SetWriteDeadline(time.Time{})

	// Heartbeat ticker
	heartbeat := time.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()

	ctx := r.Context()

	// Send initial comment to establish connection and trigger onopen in browser
	fmt.Fprintf(w, ":connected\n\n")
	if err := rc.Flush(); err != nil {
		slog.Error("failed to flush initial SSE connection", "error", err)
		return
	}

	// Send initial batch of recent events
	if initialCount > 0 {
		recent := h.service.Recent(initialCount)
		for _, event := range recent {
			if !h.matchesFilter(event, jobFilter, typeFilter, levelFilter) {
				continue
			}
			if _, err := h.writeSSEEvent(w, event); err != nil {
				slog.Error("failed to write initial event", "error", err)
				return
			}
		}
		if err := rc.Flush(); err != nil {
			slog.Error("failed to flush initial events", "error", err)
			return
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			// Send heartbeat comment
			fmt.Fprintf(w, ":heartbeat %d\n\n", time.Now().Unix())
			if err := rc.Flush(); err != nil {
				slog.Debug("heartbeat flush failed, client likely disconnected", "error", err)
				return
			}
		case event, ok := <-sub.Events:
			if !ok {
				return
			}
			// Apply filters
			if !h.matchesFilter(*event, jobFilter, typeFilter, levelFilter) {
				continue
			}
			if _, err := h.writeSSEEvent(w, *event); err != nil {
				slog.Error("failed to write SSE event",
					"type", event.Type,
					"error", err,
				)
				return
			}
			if err := rc.Flush(); err != nil {
				slog.Debug("event flush failed, client likely disconnected", "error", err)
				return
			}
		}
	}
}

// matchesFilter checks if an event matches the specified filters.
func (h *EventsHandler) matchesFilter(event events.Event, jobID, eventType, level string) bool {
	if jobID != "" && event.JobID != jobID {
		return false
	}
	if eventType != "" && event.Type != eventType {
		return false
	}
	if level != "" && event.Level != level {
		return false
	}
	return true
}

// writeSSEEvent writes one event in SSE format.
// Returns the number of bytes written and any error.
func (h *EventsHandler) writeSSEEvent(w http.ResponseWriter, event events.Event) (int, error) {
	data, err := json.Marshal(event)
	if err != nil {
		n, _ := fmt.Fprintf(w, "event: event\ndata: {\"error\": \"marshal error\"}\n\n")
		return n, err
	}

	// Write the full SSE message in one write for better atomicity
	message := fmt.Sprintf("event: event\ndata: %s\n\n", data)
	messageBytes := []byte(message)

	// Write with short write detection
	n, err := w.Write(messageBytes)
	if err != nil {
		return n, err
	}
	if n < len(messageBytes) {
		slog.Error("SSE short write detected",
			"expected", len(messageBytes),
			"written", n,
		)
		return n, fmt.Errorf("short write: wrote %d of %d bytes", n, len(messageBytes))
	}
	return n, nil
}
