package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/require"
)

func newRoleApp(userID, role string, allowed ...string) *fiber.App {
	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		if userID != "" {
			c.Locals(LocalUserID, userID)
		}
		if role != "" {
			c.Locals(LocalUserRole, role)
		}
		return c.Next()
	})
	app.Use(RequireRole(allowed...))
	app.Get("/assignments", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})
	return app
}

func TestRequireRoleAllowsAuthorizedRoles(t *testing.T) {
	app := newRoleApp("teacher-1", "Teacher", "teacher")

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/assignments", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestRequireRoleRejectsUnauthorizedRoles(t *testing.T) {
	app := newRoleApp("student-1", "student", "teacher")

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/assignments", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusForbidden, resp.StatusCode)
}

func TestRequireRoleRejectsAnonymous(t *testing.T) {
	app := newRoleApp("", "", "teacher", "student")

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/assignments", nil))
	require.NoError(t, err)
	require.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}
