package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/assignment-portal/internal/dto"
	"github.com/noah-isme/assignment-portal/internal/middleware"
	"github.com/noah-isme/assignment-portal/internal/models"
	"github.com/noah-isme/assignment-portal/internal/service"
	"github.com/noah-isme/assignment-portal/internal/utils"
)

// SubmissionHandler exposes submission endpoints.
type SubmissionHandler struct {
	service     service.SubmissionService
	submitLimit fiber.Handler
	logger      zerolog.Logger
}

// NewSubmissionHandler constructs the handler. submitLimit may be nil.
func NewSubmissionHandler(service service.SubmissionService, submitLimit fiber.Handler, logger zerolog.Logger) *SubmissionHandler {
	if submitLimit == nil {
		submitLimit = func(c *fiber.Ctx) error { return c.Next() }
	}
	return &SubmissionHandler{
		service:     service,
		submitLimit: submitLimit,
		logger:      logger.With().Str("component", "submission_handler").Logger(),
	}
}

// Register wires the submission endpoints.
func (h *SubmissionHandler) Register(router fiber.Router) {
	router.Get("", h.list)
	router.Get("/:id", h.get)
	router.Post("", middleware.RequireRole(string(models.RoleStudent)), h.submitLimit, h.create)
	router.Patch("/:id/grade", middleware.RequireRole(string(models.RoleTeacher)), h.grade)
}

func (h *SubmissionHandler) list(c *fiber.Ctx) error {
	var filter dto.SubmissionFilter
	if err := c.QueryParser(&filter); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid query parameters")
	}

	submissions, err := h.service.List(requestContext(c), filter, actorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "submissions retrieved", submissions)
}

func (h *SubmissionHandler) get(c *fiber.Ctx) error {
	submission, err := h.service.Get(requestContext(c), c.Params("id"), actorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "submission retrieved", submission)
}

func (h *SubmissionHandler) create(c *fiber.Ctx) error {
	var payload dto.SubmissionCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	file, err := c.FormFile("file")
	if err != nil {
		file = nil
	}

	submission, created, err := h.service.Submit(requestContext(c), payload, file, actorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	if !created {
		return utils.SendSuccess(c, "submission already exists", submission)
	}
	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "submission received", submission)
}

func (h *SubmissionHandler) grade(c *fiber.Ctx) error {
	var payload dto.SubmissionGradeRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	submission, err := h.service.Grade(requestContext(c), c.Params("id"), payload, actorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "submission graded", submission)
}
