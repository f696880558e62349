package events

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/noah-isme/assignment-portal/internal/observability"
)

type envelope struct {
	Source string `json:"source"`
	Event  Event  `json:"event"`
}

// NATSBridge mirrors bus traffic over a NATS subject so every instance streams every event.
type NATSBridge struct {
	conn    *nats.Conn
	subject string
	nodeID  string
	bus     *Bus
	logger  zerolog.Logger
}

// NewNATSBridge wires the bus to the subject and registers itself as forwarder.
func NewNATSBridge(conn *nats.Conn, subject string, bus *Bus, logger zerolog.Logger) *NATSBridge {
	bridge := &NATSBridge{
		conn:    conn,
		subject: subject,
		nodeID:  uuid.NewString(),
		bus:     bus,
		logger:  logger.With().Str("component", "event_bridge").Logger(),
	}
	bus.SetForwarder(bridge)
	return bridge
}

// Forward implements Forwarder.
func (n *NATSBridge) Forward(_ context.Context, event Event) error {
	if n.conn == nil {
		return errors.New("nats connection not configured")
	}
	payload, err := json.Marshal(envelope{Source: n.nodeID, Event: event})
	if err != nil {
		return err
	}
	return n.conn.Publish(n.subject, payload)
}

// Start consumes remote events until ctx is cancelled.
func (n *NATSBridge) Start(ctx context.Context) error {
	if n.conn == nil {
		return errors.New("nats connection not configured")
	}

	sub, err := n.conn.Subscribe(n.subject, func(msg *nats.Msg) {
		n.receive(msg.Data)
	})
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			n.logger.Warn().Err(err).Msg("failed to drain event subscription")
		}
	}()

	return nil
}

func (n *NATSBridge) receive(payload []byte) {
	var incoming envelope
	if err := json.Unmarshal(payload, &incoming); err != nil {
		n.logger.Warn().Err(err).Msg("invalid event payload")
		return
	}

	if incoming.Source == n.nodeID || incoming.Event.Type == "" {
		return
	}

	observability.EventsPublished().WithLabelValues(incoming.Event.Type, "remote").Inc()
	n.bus.deliver(incoming.Event)
}
