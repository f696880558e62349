package handler

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/assignment-portal/internal/middleware"
	"github.com/noah-isme/assignment-portal/internal/models"
	"github.com/noah-isme/assignment-portal/internal/service"
	"github.com/noah-isme/assignment-portal/internal/utils"
)

// FieldError is one failed validation rule, reported in the error details.
type FieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
}

func parseQueryInt(c *fiber.Ctx, key string) (int, error) {
	value := strings.TrimSpace(c.Query(key))
	if value == "" {
		return 0, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

func userIDFromContext(c *fiber.Ctx) string {
	if v, ok := c.Locals(middleware.LocalUserID).(string); ok {
		return strings.TrimSpace(v)
	}
	return ""
}

func actorFromContext(c *fiber.Ctx) service.Actor {
	actor := service.Actor{ID: userIDFromContext(c)}
	if raw, ok := c.Locals(middleware.LocalUserRole).(string); ok {
		if role, valid := models.ParseRole(raw); valid {
			actor.Role = role
		}
	}
	if name, ok := c.Locals(middleware.LocalUserName).(string); ok {
		actor.Name = name
	}
	return actor
}

func requestContext(c *fiber.Ctx) context.Context {
	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}
	return middleware.ContextWithCorrelation(ctx, middleware.GetCorrelationID(c))
}

func requestLogger(base zerolog.Logger, c *fiber.Ctx) *zerolog.Logger {
	logger := base
	if c != nil {
		if correlation := middleware.GetCorrelationID(c); correlation != "" {
			logger = base.With().Str("correlation_id", correlation).Logger()
		}
	}
	return &logger
}

// respondError maps service error kinds onto HTTP statuses.
func respondError(c *fiber.Ctx, logger zerolog.Logger, err error) error {
	var validationErrors validator.ValidationErrors
	switch {
	case errors.As(err, &validationErrors):
		details := make([]FieldError, 0, len(validationErrors))
		for _, fieldErr := range validationErrors {
			details = append(details, FieldError{Field: fieldErr.Field(), Rule: fieldErr.Tag()})
		}
		return utils.Fail(c, fiber.StatusBadRequest, "validation failed", details)
	case errors.Is(err, service.ErrValidation):
		return utils.SendError(c, fiber.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNotFound):
		return utils.SendError(c, fiber.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrInvalidState), errors.Is(err, service.ErrConflict):
		return utils.SendError(c, fiber.StatusConflict, err.Error())
	case errors.Is(err, service.ErrForbidden):
		return utils.SendError(c, fiber.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrUnauthorized):
		return utils.SendError(c, fiber.StatusUnauthorized, err.Error())
	case service.IsStoreFailure(err):
		requestLogger(logger, c).Error().Err(err).Msg("record store unavailable")
		return utils.SendError(c, fiber.StatusServiceUnavailable, "service temporarily unavailable")
	default:
		requestLogger(logger, c).Error().Err(err).Msg("internal server error")
		return utils.SendError(c, fiber.StatusInternalServerError, "internal server error")
	}
}
