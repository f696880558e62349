package handler

import (
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/assignment-portal/internal/dto"
	"github.com/noah-isme/assignment-portal/internal/middleware"
	"github.com/noah-isme/assignment-portal/internal/service"
	"github.com/noah-isme/assignment-portal/internal/utils"
)

// AuthHandler exposes sign-up, sign-in and sign-out.
type AuthHandler struct {
	service     service.AuthService
	signInLimit fiber.Handler
	logger      zerolog.Logger
}

// NewAuthHandler constructs the handler. signInLimit may be nil.
func NewAuthHandler(service service.AuthService, signInLimit fiber.Handler, logger zerolog.Logger) *AuthHandler {
	if signInLimit == nil {
		signInLimit = func(c *fiber.Ctx) error { return c.Next() }
	}
	return &AuthHandler{
		service:     service,
		signInLimit: signInLimit,
		logger:      logger.With().Str("component", "auth_handler").Logger(),
	}
}

// Register binds the auth routes; protect guards the routes needing a token.
func (h *AuthHandler) Register(router fiber.Router, protect fiber.Handler) {
	router.Post("/sign-up", h.signInLimit, h.signUp)
	router.Post("/sign-in", h.signInLimit, h.signIn)
	router.Post("/sign-out", protect, h.signOut)
	router.Get("/me", protect, h.me)
}

func (h *AuthHandler) signUp(c *fiber.Ctx) error {
	var payload dto.SignUpRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.service.SignUp(requestContext(c), payload)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccessWithStatus(c, fiber.StatusCreated, "account created", result)
}

func (h *AuthHandler) signIn(c *fiber.Ctx) error {
	var payload dto.SignInRequest
	if err := c.BodyParser(&payload); err != nil {
		return utils.SendError(c, fiber.StatusBadRequest, "invalid request body")
	}

	result, err := h.service.SignIn(requestContext(c), payload)
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "signed in", result)
}

func (h *AuthHandler) signOut(c *fiber.Ctx) error {
	tokenID, _ := c.Locals(middleware.LocalTokenID).(string)
	if err := h.service.SignOut(requestContext(c), tokenID, middleware.TokenExpiry(c)); err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "signed out", nil)
}

func (h *AuthHandler) me(c *fiber.Ctx) error {
	user, err := h.service.Me(requestContext(c), userIDFromContext(c))
	if err != nil {
		return respondError(c, h.logger, err)
	}

	return utils.SendSuccess(c, "profile retrieved", user)
}
