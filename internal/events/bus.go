package events

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/noah-isme/assignment-portal/internal/observability"
)

// Event types emitted by the lifecycle and submission managers.
const (
	TypeAssignmentCreated  = "assignment.created"
	TypeAssignmentArchived = "assignment.archived"
	TypeAssignmentRestored = "assignment.restored"
	TypeAssignmentDeleted  = "assignment.deleted"
	TypeSubmissionCreated  = "submission.created"
	TypeSubmissionGraded   = "submission.graded"
)

const subscriberBufferSize = 32

// Event describes a state change that already happened in the record store.
type Event struct {
	ID           string                 `json:"id"`
	Type         string                 `json:"type"`
	AssignmentID string                 `json:"assignment_id,omitempty"`
	SubmissionID string                 `json:"submission_id,omitempty"`
	ActorID      string                 `json:"actor_id,omitempty"`
	Payload      map[string]interface{} `json:"payload,omitempty"`
	OccurredAt   time.Time              `json:"occurred_at"`
}

// Publisher is the write side of the bus used by services.
type Publisher interface {
	Publish(ctx context.Context, event Event)
}

// Forwarder relays locally published events to other instances.
type Forwarder interface {
	Forward(ctx context.Context, event Event) error
}

// Bus fans events out to in-process subscribers. Slow subscribers miss events
// instead of blocking publishers.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[chan Event]struct{}
	forwarder   Forwarder
	logger      zerolog.Logger
	now         func() time.Time
}

// NewBus constructs an empty bus.
func NewBus(logger zerolog.Logger) *Bus {
	return &Bus{
		subscribers: make(map[chan Event]struct{}),
		logger:      logger.With().Str("component", "event_bus").Logger(),
		now:         time.Now,
	}
}

// SetForwarder attaches a cross-instance relay.
func (b *Bus) SetForwarder(forwarder Forwarder) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.forwarder = forwarder
}

// Publish stamps the event, delivers it locally and forwards it when a relay is attached.
func (b *Bus) Publish(ctx context.Context, event Event) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = b.now().UTC()
	}

	b.deliver(event)
	observability.EventsPublished().WithLabelValues(event.Type, "local").Inc()

	b.mu.RLock()
	forwarder := b.forwarder
	b.mu.RUnlock()

	if forwarder != nil {
		if err := forwarder.Forward(ctx, event); err != nil {
			b.logger.Warn().Err(err).Str("event_type", event.Type).Msg("failed to forward event")
		}
	}
}

// Subscribe registers a buffered channel and returns it with its cleanup func.
func (b *Bus) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBufferSize)

	b.mu.Lock()
	b.subscribers[ch] = struct{}{}
	b.mu.Unlock()
	observability.EventSubscribers().Inc()

	var once sync.Once
	cleanup := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subscribers, ch)
			close(ch)
			b.mu.Unlock()
			observability.EventSubscribers().Dec()
		})
	}

	return ch, cleanup
}

func (b *Bus) deliver(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for ch := range b.subscribers {
		select {
		case ch <- event:
		default:
		}
	}
}

// Nop discards every event.
type Nop struct{}

// Publish implements Publisher.
func (Nop) Publish(context.Context, Event) {}
