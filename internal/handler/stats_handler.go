package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/assignment-portal/internal/middleware"
	"github.com/noah-isme/assignment-portal/internal/models"
	"github.com/noah-isme/assignment-portal/internal/service"
	"github.com/noah-isme/assignment-portal/internal/utils"
)

// StatsHandler serves the dashboard counters.
type StatsHandler struct {
	service service.StatsService
	logger  zerolog.Logger
}

// NewStatsHandler constructs the handler.
func NewStatsHandler(service service.StatsService, logger zerolog.Logger) *StatsHandler {
	return &StatsHandler{
		service: service,
		logger:  logger.With().Str("component", "stats_handler").Logger(),
	}
}

// Register binds the statistics routes.
func (h *StatsHandler) Register(router fiber.Router) {
	studentOnly := middleware.RequireRole(string(models.RoleStudent))

	router.Get("/student", studentOnly, h.student)
	router.Get("/board", studentOnly, h.board)
	router.Get("/teacher", middleware.RequireRole(string(models.RoleTeacher)), h.teacher)
}

func (h *StatsHandler) student(c *fiber.Ctx) error {
	stats, err := h.service.Student(requestContext(c), userIDFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "student statistics retrieved", stats)
}

func (h *StatsHandler) teacher(c *fiber.Ctx) error {
	stats, err := h.service.Teacher(requestContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "teacher statistics retrieved", stats)
}

func (h *StatsHandler) board(c *fiber.Ctx) error {
	board, err := h.service.Board(requestContext(c), userIDFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "assignment board retrieved", board)
}
