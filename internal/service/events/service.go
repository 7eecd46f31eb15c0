// Package events fans job lifecycle and log activity out to stream
// subscribers and keeps a bounded replay buffer for late joiners.
package events

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	// DefaultMaxEvents is how many events the replay buffer retains.
	DefaultMaxEvents = 1000
	// DefaultBufferSize is the per-subscriber channel buffer.
	DefaultBufferSize = 100
	// HeartbeatInterval is how often stream handlers should emit a
	// keepalive when nothing else flows.
	HeartbeatInterval = 30 * time.Second
)

// Event types published by the pipeline.
const (
	TypeLog            = "log"
	TypeJobQueued      = "job_queued"
	TypeJobStarted     = "job_started"
	TypeJobProgress    = "job_progress"
	TypeJobCompleted   = "job_completed"
	TypeJobFailed      = "job_failed"
	TypeJobCancelled   = "job_cancelled"
	TypeSegmentEncoded = "segment_encoded"
	TypeSegmentSkipped = "segment_skipped"
	TypeGroupCompleted = "group_completed"
	TypeGroupFailed    = "group_failed"
)

// Event is one entry on the stream.
type Event struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level"`
	Type      string         `json:"type"`
	Message   string         `json:"message"`
	JobID     string         `json:"job_id,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// JobEvent builds an info-level event scoped to one job.
func JobEvent(eventType, jobID, message string) Event {
	return Event{
		Type:    eventType,
		Level:   "info",
		JobID:   jobID,
		Message: message,
	}
}

// Subscriber is one client attached to the stream.
type Subscriber struct {
	ID     string
	Events chan *Event
	Done   chan struct{}
}

// Service is the in-process event bus.
type Service struct {
	mu          sync.RWMutex
	events      []Event
	maxEvents   int
	subscribers map[string]*Subscriber
	total       int64
	startTime   time.Time
}

// New creates a bus retaining DefaultMaxEvents events.
func New() *Service {
	return NewWithCapacity(DefaultMaxEvents)
}

// NewWithCapacity creates a bus retaining up to maxEvents events.
func NewWithCapacity(maxEvents int) *Service {
	if maxEvents < 1 {
		maxEvents = 1
	}
	return &Service{
		events:      make([]Event, 0, maxEvents),
		maxEvents:   maxEvents,
		subscribers: make(map[string]*Subscriber),
		startTime:   time.Now(),
	}
}

// Publish stores the event and broadcasts it without blocking. Missing
// ID, timestamp and level are filled in.
func (s *Service) Publish(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.ID == "" {
		event.ID = ulid.Make().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Level == "" {
		event.Level = "info"
	}

	s.total++
	if len(s.events) >= s.maxEvents {
		s.events = s.events[1:]
	}
	s.events = append(s.events, event)

	for _, sub := range s.subscribers {
		select {
		case sub.Events <- &event:
		default:
			// Subscriber buffer full, skip.
		}
	}
}

// Subscribe attaches a new stream client. It detaches when ctx ends or
// Done is closed.
func (s *Service) Subscribe(ctx context.Context) *Subscriber {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub := &Subscriber{
		ID:     ulid.Make().String(),
		Events: make(chan *Event, DefaultBufferSize),
		Done:   make(chan struct{}),
	}
	s.subscribers[sub.ID] = sub

	go func() {
		select {
		case <-ctx.Done():
		case <-sub.Done:
		}
		s.Unsubscribe(sub.ID)
	}()

	return sub
}

// Unsubscribe detaches a stream client and closes its channel.
func (s *Service) Unsubscribe(subscriberID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sub, ok := s.subscribers[subscriberID]; ok {
		close(sub.Events)
		delete(s.subscribers, subscriberID)
	}
}

// Recent returns up to limit most recent events, oldest first.
func (s *Service) Recent(limit int) []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 || limit > len(s.events) {
		limit = len(s.events)
	}

	result := make([]Event, limit)
	copy(result, s.events[len(s.events)-limit:])
	return result
}

// Total returns how many events have been published since start.
func (s *Service) Total() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.total
}

// SubscriberCount returns the number of attached clients.
func (s *Service) SubscriberCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.subscribers)
}
