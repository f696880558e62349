package middleware

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func newCorrelationApp(seen *string) *fiber.App {
	app := fiber.New()
	app.Use(CorrelationID())
	app.Get("/", func(c *fiber.Ctx) error {
		*seen = CorrelationIDFromContext(c.UserContext())
		return c.SendStatus(fiber.StatusNoContent)
	})
	return app
}

func TestCorrelationIDEchoesCallerValue(t *testing.T) {
	var seen string
	app := newCorrelationApp(&seen)

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(CorrelationHeader, "grading-run-42")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	require.Equal(t, "grading-run-42", resp.Header.Get(CorrelationHeader))
	require.Equal(t, "grading-run-42", seen)
}

func TestCorrelationIDFallsBackToRequestID(t *testing.T) {
	var seen string
	app := newCorrelationApp(&seen)

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(fiber.HeaderXRequestID, "req-7")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	require.Equal(t, "req-7", resp.Header.Get(CorrelationHeader))
}

func TestCorrelationIDReplacesUnusableValues(t *testing.T) {
	var seen string
	app := newCorrelationApp(&seen)

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set(CorrelationHeader, strings.Repeat("x", maxCorrelationIDLen+1))
	resp, err := app.Test(req, -1)
	require.NoError(t, err)

	minted := resp.Header.Get(CorrelationHeader)
	require.Len(t, minted, 36)
	require.Equal(t, minted, seen)
}
