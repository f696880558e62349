package handler

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/assignment-portal/internal/events"
	"github.com/noah-isme/assignment-portal/internal/middleware"
	"github.com/noah-isme/assignment-portal/internal/models"
)

// EventSource hands out lifecycle event subscriptions.
type EventSource interface {
	Subscribe() (<-chan events.Event, func())
}

// EventsHandler streams lifecycle events over a websocket.
type EventsHandler struct {
	source       EventSource
	pingInterval time.Duration
	logger       zerolog.Logger
}

// NewEventsHandler constructs the handler.
func NewEventsHandler(source EventSource, logger zerolog.Logger) *EventsHandler {
	return &EventsHandler{
		source:       source,
		pingInterval: 30 * time.Second,
		logger:       logger.With().Str("component", "events_handler").Logger(),
	}
}

// Register binds the websocket route.
func (h *EventsHandler) Register(router fiber.Router) {
	router.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	router.Get("/ws", websocket.New(h.stream))
}

func (h *EventsHandler) stream(conn *websocket.Conn) {
	userID, _ := conn.Locals(middleware.LocalUserID).(string)
	role, _ := conn.Locals(middleware.LocalUserRole).(string)
	if userID == "" {
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication required"))
		_ = conn.Close()
		return
	}

	subscription, cancel := h.source.Subscribe()
	defer cancel()

	logger := h.logger.With().Str("user_id", userID).Logger()
	logger.Info().Msg("event stream connected")
	defer logger.Info().Msg("event stream disconnected")

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(h.pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			return
		case event, ok := <-subscription:
			if !ok {
				return
			}
			if !eventVisibleTo(event, userID, role) {
				continue
			}
			if err := conn.WriteJSON(event); err != nil {
				logger.Debug().Err(err).Msg("event write failed")
				return
			}
		case <-ticker.C:
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// eventVisibleTo lets teachers see everything; students see assignment changes and their own submissions.
func eventVisibleTo(event events.Event, userID, role string) bool {
	if strings.EqualFold(role, string(models.RoleTeacher)) {
		return true
	}
	if strings.HasPrefix(event.Type, "assignment.") {
		return true
	}
	studentID, _ := event.Payload["student_id"].(string)
	return studentID == userID
}
