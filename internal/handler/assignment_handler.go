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

// AssignmentHandler wires assignment lifecycle routes.
type AssignmentHandler struct {
	assignments service.AssignmentService
	submissions service.SubmissionService
	logger      zerolog.Logger
}

// NewAssignmentHandler constructs the handler.
func NewAssignmentHandler(assignments service.AssignmentService, submissions service.SubmissionService, logger zerolog.Logger) *AssignmentHandler {
	return &AssignmentHandler{
		assignments: assignments,
		submissions: submissions,
		logger:      logger.With().Str("component", "assignment_handler").Logger(),
	}
}

// Register attaches assignment endpoints to the router group.
func (h *AssignmentHandler) Register(router fiber.Router) {
	teacherOnly := middleware.RequireRole(string(models.RoleTeacher))

	router.Get("", h.listActive)
	router.Get("/archived", teacherOnly, h.listArchived)
	router.Delete("/archived", teacherOnly, h.deleteAllArchived)
	router.Post("", teacherOnly, h.create)
	router.Get("/:id", h.get)
	router.Get("/:id/status", h.status)
	router.Post("/:id/archive", teacherOnly, h.archive)
	router.Post("/:id/restore", teacherOnly, h.restore)
	router.Delete("/:id", teacherOnly, h.delete)
}

func (h *AssignmentHandler) listActive(c *fiber.Ctx) error {
	var req dto.AssignmentListRequest
	if err := c.QueryParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid query parameters")
	}

	result, err := h.assignments.ListActive(requestContext(c), req)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.OK(c, result.Items, "assignments retrieved", result.Pagination)
}

func (h *AssignmentHandler) listArchived(c *fiber.Ctx) error {
	var req dto.AssignmentListRequest
	if err := c.QueryParser(&req); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid query parameters")
	}

	result, err := h.assignments.ListArchived(requestContext(c), req)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.OK(c, result.Items, "archived assignments retrieved", result.Pagination)
}

func (h *AssignmentHandler) get(c *fiber.Ctx) error {
	assignment, err := h.assignments.Get(requestContext(c), c.Params("id"))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "assignment retrieved", assignment)
}

func (h *AssignmentHandler) create(c *fiber.Ctx) error {
	var payload dto.AssignmentCreateRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	file, err := c.FormFile("file")
	if err != nil {
		file = nil
	}

	assignment, err := h.assignments.Create(requestContext(c), payload, file, actorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "assignment created", assignment)
}

func (h *AssignmentHandler) archive(c *fiber.Ctx) error {
	assignment, err := h.assignments.Archive(requestContext(c), c.Params("id"), actorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "assignment archived", assignment)
}

func (h *AssignmentHandler) restore(c *fiber.Ctx) error {
	assignment, err := h.assignments.Restore(requestContext(c), c.Params("id"), actorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "assignment restored", assignment)
}

func (h *AssignmentHandler) delete(c *fiber.Ctx) error {
	id := c.Params("id")
	if err := h.assignments.DeletePermanently(requestContext(c), id, actorFromContext(c)); err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "assignment deleted", fiber.Map{"id": id})
}

func (h *AssignmentHandler) deleteAllArchived(c *fiber.Ctx) error {
	result, err := h.assignments.DeleteAllArchived(requestContext(c), actorFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "archived assignments deleted", result)
}

// status derives the caller's standing; teachers may ask on behalf of a student.
func (h *AssignmentHandler) status(c *fiber.Ctx) error {
	actor := actorFromContext(c)
	studentID := actor.ID
	if actor.IsTeacher() {
		studentID = c.Query("student_id")
		if studentID == "" {
			return utils.SendError(c, fiber.StatusBadRequest, "student_id required")
		}
	}

	status, err := h.submissions.Status(requestContext(c), c.Params("id"), studentID)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "assignment status retrieved", status)
}
