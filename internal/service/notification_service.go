package service

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/noah-isme/assignment-portal/internal/dto"
	"github.com/noah-isme/assignment-portal/internal/models"
	"github.com/noah-isme/assignment-portal/internal/observability"
	"github.com/noah-isme/assignment-portal/internal/repository"
)

// Notifier stores a notification for a user.
type Notifier interface {
	Notify(ctx context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error)
}

// NotificationService manages the per-user notification list.
type NotificationService interface {
	Notifier
	List(ctx context.Context, userID string, limit, offset int) ([]dto.NotificationResponse, error)
	MarkRead(ctx context.Context, id uint, userID string) (dto.NotificationResponse, error)
	MarkAllRead(ctx context.Context, userID string) (dto.MarkAllReadResponse, error)
}

type notificationService struct {
	repo      repository.NotificationRepository
	validator *validator.Validate
	logger    zerolog.Logger
	tracer    trace.Tracer
	sanitizer *bluemonday.Policy
}

// NewNotificationService constructs a notification service.
func NewNotificationService(repo repository.NotificationRepository, validate *validator.Validate, logger zerolog.Logger) NotificationService {
	return &notificationService{
		repo:      repo,
		validator: validate,
		logger:    logger.With().Str("component", "notification_service").Logger(),
		tracer:    otel.Tracer("github.com/noah-isme/assignment-portal/internal/service/notification"),
		sanitizer: bluemonday.StrictPolicy(),
	}
}

// plainText strips markup from user supplied text. The policy escapes entities
// on output, so they are decoded again to keep the text as typed.
func plainText(policy *bluemonday.Policy, raw string) string {
	return strings.TrimSpace(html.UnescapeString(policy.Sanitize(raw)))
}

func (s *notificationService) Notify(ctx context.Context, payload dto.NotificationCreateRequest) (dto.NotificationResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.NotificationResponse{}, invalidPayload(err)
	}

	title := plainText(s.sanitizer, payload.Title)
	message := plainText(s.sanitizer, payload.Message)
	if title == "" || message == "" {
		return dto.NotificationResponse{}, fmt.Errorf("notification empty after sanitization: %w", ErrValidation)
	}

	spanCtx, span := s.tracer.Start(ctx, "notifications.create", trace.WithAttributes(
		attribute.String("notification.user_id", payload.UserID),
		attribute.String("notification.type", payload.Type),
	))
	defer span.End()

	model := models.Notification{
		UserID:  payload.UserID,
		Title:   title,
		Message: message,
		Type:    payload.Type,
	}

	if err := s.repo.Create(spanCtx, &model); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist_failed")
		return dto.NotificationResponse{}, err
	}

	observability.NotificationsCreated().WithLabelValues(model.Type).Inc()
	return dto.NewNotificationResponse(model), nil
}

func (s *notificationService) List(ctx context.Context, userID string, limit, offset int) ([]dto.NotificationResponse, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("user id is required: %w", ErrValidation)
	}

	notifications, err := s.repo.ListByUser(ctx, userID, limit, offset)
	if err != nil {
		return nil, err
	}

	return dto.NewNotificationResponseSlice(notifications), nil
}

func (s *notificationService) MarkRead(ctx context.Context, id uint, userID string) (dto.NotificationResponse, error) {
	spanCtx, span := s.tracer.Start(ctx, "notifications.mark_read", trace.WithAttributes(
		attribute.String("notification.user_id", userID),
	))
	defer span.End()

	notification, err := s.repo.MarkRead(spanCtx, id, userID)
	if err != nil {
		span.RecordError(err)
		return dto.NotificationResponse{}, notFoundOr(err, ErrNotificationNotFound)
	}

	return dto.NewNotificationResponse(notification), nil
}

func (s *notificationService) MarkAllRead(ctx context.Context, userID string) (dto.MarkAllReadResponse, error) {
	if strings.TrimSpace(userID) == "" {
		return dto.MarkAllReadResponse{}, fmt.Errorf("user id is required: %w", ErrValidation)
	}

	updated, err := s.repo.MarkAllRead(ctx, userID)
	if err != nil {
		return dto.MarkAllReadResponse{}, err
	}

	return dto.MarkAllReadResponse{Updated: updated}, nil
}
