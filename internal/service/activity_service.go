package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"github.com/noah-isme/assignment-portal/internal/dto"
	"github.com/noah-isme/assignment-portal/internal/models"
	"github.com/noah-isme/assignment-portal/internal/repository"
)

// Activity actions written by the lifecycle and submission managers.
const (
	ActionAssignmentCreated  = "assignment.created"
	ActionAssignmentArchived = "assignment.archived"
	ActionAssignmentRestored = "assignment.restored"
	ActionAssignmentDeleted  = "assignment.deleted"
	ActionSubmissionCreated  = "submission.created"
	ActionSubmissionGraded   = "submission.graded"
)

// ActivityEntry captures the details required to persist an audit entry.
type ActivityEntry struct {
	Actor      Actor
	Action     string
	EntityType string
	EntityID   string
	Metadata   map[string]interface{}
}

// ActivityRecorder defines behaviour for recording activity logs.
type ActivityRecorder interface {
	Record(ctx context.Context, entry ActivityEntry) (dto.ActivityResponse, error)
}

// ActivityService exposes methods to query and persist activity logs.
type ActivityService interface {
	ActivityRecorder
	List(ctx context.Context, req dto.ActivityListRequest) (dto.ActivityListResponse, error)
}

type activityService struct {
	repo      repository.ActivityLogRepository
	validator *validator.Validate
	logger    zerolog.Logger
}

// NewActivityService constructs the activity log service.
func NewActivityService(repo repository.ActivityLogRepository, validator *validator.Validate, logger zerolog.Logger) ActivityService {
	return &activityService{
		repo:      repo,
		validator: validator,
		logger:    logger.With().Str("component", "activity_service").Logger(),
	}
}

func (s *activityService) Record(ctx context.Context, entry ActivityEntry) (dto.ActivityResponse, error) {
	action := canonical(entry.Action)
	entityType := canonical(entry.EntityType)
	switch {
	case action == "":
		return dto.ActivityResponse{}, fmt.Errorf("activity action missing: %w", ErrValidation)
	case entityType == "":
		return dto.ActivityResponse{}, fmt.Errorf("activity entity type missing: %w", ErrValidation)
	}

	role := canonical(string(entry.Actor.Role))
	if role == "" {
		role = systemActorRole
	}

	row := models.ActivityLog{
		ActorID:    strings.TrimSpace(entry.Actor.ID),
		ActorRole:  role,
		Action:     action,
		EntityType: entityType,
		EntityID:   entry.EntityID,
		Metadata:   redactMetadata(entry.Metadata),
	}
	if err := s.repo.Create(ctx, &row); err != nil {
		s.logger.Error().Err(err).Str("action", action).Str("entity_id", row.EntityID).Msg("activity not recorded")
		return dto.ActivityResponse{}, err
	}

	return dto.NewActivityResponse(row), nil
}

func (s *activityService) List(ctx context.Context, req dto.ActivityListRequest) (dto.ActivityListResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.ActivityListResponse{}, invalidPayload(err)
	}
	if req.PageSize == 0 {
		req.PageSize = defaultActivityPageSize
	}

	rows, total, err := s.repo.List(ctx, repository.ActivityLogFilter{
		Page:       req.Page,
		PageSize:   req.PageSize,
		ActorID:    strings.TrimSpace(req.ActorID),
		Action:     canonical(req.Action),
		EntityType: canonical(req.EntityType),
		EntityID:   strings.TrimSpace(req.EntityID),
	})
	if err != nil {
		return dto.ActivityListResponse{}, err
	}

	items := make([]dto.ActivityResponse, len(rows))
	for i := range rows {
		items[i] = dto.NewActivityResponse(rows[i])
	}
	return dto.ActivityListResponse{
		Items:      items,
		Pagination: dto.NewPaginationMeta(req.Page, req.PageSize, total),
	}, nil
}

const (
	systemActorRole         = "system"
	defaultActivityPageSize = 20
	redactedValue           = "***"
)

var sensitiveMetadataKeys = []string{"email", "token", "password", "secret"}

// redactMetadata masks values whose key names look like credentials or contact
// details. Nested maps are walked.
func redactMetadata(metadata map[string]interface{}) datatypes.JSONMap {
	out := make(datatypes.JSONMap, len(metadata))
	for key, value := range metadata {
		if sensitiveKey(key) {
			out[key] = redactedValue
			continue
		}
		if nested, ok := value.(map[string]interface{}); ok {
			out[key] = map[string]interface{}(redactMetadata(nested))
			continue
		}
		out[key] = value
	}
	return out
}

func sensitiveKey(key string) bool {
	lower := strings.ToLower(key)
	for _, marker := range sensitiveMetadataKeys {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

func canonical(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
