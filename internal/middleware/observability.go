package middleware

import (
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/assignment-portal/internal/observability"
)

// APIPrefix is the mount point of the versioned portal API.
const APIPrefix = "/api/v1"

var slowRequestThreshold = 500 * time.Millisecond

// Observability records request counters, latency histograms and one access
// log line per API call. Scrapes of the metrics endpoint are not counted.
func Observability(logger zerolog.Logger) fiber.Handler {
	observability.RegisterMetrics()

	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		elapsed := time.Since(start)

		if err != nil {
			// the app error handler writes the final status before we read it
			if handlerErr := c.App().ErrorHandler(c, err); handlerErr != nil {
				return handlerErr
			}
		}

		if !tracked(c.Path()) {
			return nil
		}

		route := routeTemplate(c)
		status := c.Response().StatusCode()
		record(c.Method(), route, status, elapsed)
		logRequest(logger, c, route, status, elapsed)
		return nil
	}
}

func tracked(path string) bool {
	return strings.HasPrefix(path, APIPrefix) && path != APIPrefix+"/metrics"
}

func record(method, route string, status int, elapsed time.Duration) {
	code := strconv.Itoa(status)
	observability.HTTPRequests().WithLabelValues(method, route, code).Inc()
	observability.HTTPLatency().WithLabelValues(method, route).Observe(elapsed.Seconds())
	if status >= fiber.StatusBadRequest {
		observability.HTTPErrors().WithLabelValues(method, route, code).Inc()
	}
}

func logRequest(logger zerolog.Logger, c *fiber.Ctx, route string, status int, elapsed time.Duration) {
	var event *zerolog.Event
	switch {
	case status >= fiber.StatusInternalServerError:
		event = logger.Error()
	case status >= fiber.StatusBadRequest:
		event = logger.Warn()
	default:
		event = logger.Info()
	}

	event = event.
		Str("correlation_id", GetCorrelationID(c)).
		Str("method", c.Method()).
		Str("route", route).
		Int("status", status).
		Dur("latency", elapsed)
	if elapsed > slowRequestThreshold {
		event = event.Bool("slow", true)
	}
	if userID, ok := c.Locals(LocalUserID).(string); ok && userID != "" {
		event = event.Str("user_id", userID)
	}
	event.Msg("http request")
}

func routeTemplate(c *fiber.Ctx) string {
	if r := c.Route(); r != nil && r.Path != "" {
		return r.Path
	}
	return c.Path()
}
