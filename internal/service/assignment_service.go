package service

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/noah-isme/assignment-portal/internal/dto"
	"github.com/noah-isme/assignment-portal/internal/events"
	"github.com/noah-isme/assignment-portal/internal/models"
	"github.com/noah-isme/assignment-portal/internal/observability"
	"github.com/noah-isme/assignment-portal/internal/repository"
)

const defaultAssignmentPageSize = 20

// AssignmentService manages the assignment lifecycle: active, archived, deleted.
type AssignmentService interface {
	Create(ctx context.Context, payload dto.AssignmentCreateRequest, file *multipart.FileHeader, actor Actor) (dto.AssignmentResponse, error)
	Get(ctx context.Context, id string) (dto.AssignmentResponse, error)
	ListActive(ctx context.Context, req dto.AssignmentListRequest) (dto.AssignmentListResponse, error)
	ListArchived(ctx context.Context, req dto.AssignmentListRequest) (dto.AssignmentListResponse, error)
	Archive(ctx context.Context, id string, actor Actor) (dto.AssignmentResponse, error)
	Restore(ctx context.Context, id string, actor Actor) (dto.AssignmentResponse, error)
	DeletePermanently(ctx context.Context, id string, actor Actor) error
	DeleteAllArchived(ctx context.Context, actor Actor) (dto.BulkDeleteResponse, error)
}

type assignmentService struct {
	repo      repository.AssignmentRepository
	validator *validator.Validate
	effects   sideEffects
	logger    zerolog.Logger
	now       func() time.Time
}

// NewAssignmentService builds a new assignment service.
func NewAssignmentService(repo repository.AssignmentRepository, validate *validator.Validate, collaborators Collaborators, logger zerolog.Logger) AssignmentService {
	scoped := logger.With().Str("component", "assignment_service").Logger()
	return &assignmentService{
		repo:      repo,
		validator: validate,
		effects:   sideEffects{Collaborators: collaborators, logger: scoped},
		logger:    scoped,
		now:       time.Now,
	}
}

func (s *assignmentService) Create(ctx context.Context, payload dto.AssignmentCreateRequest, file *multipart.FileHeader, actor Actor) (dto.AssignmentResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.AssignmentResponse{}, invalidPayload(err)
	}

	if !actor.IsTeacher() {
		return dto.AssignmentResponse{}, fmt.Errorf("only teachers create assignments: %w", ErrForbidden)
	}

	dueDate, err := time.Parse(time.RFC3339, payload.DueDate)
	if err != nil {
		return dto.AssignmentResponse{}, fmt.Errorf("invalid due date: %w", ErrValidation)
	}

	if !dueDate.After(s.now()) {
		return dto.AssignmentResponse{}, ErrDueDateNotFuture
	}

	points := models.DefaultAssignmentPoints
	if payload.Points != nil {
		points = *payload.Points
	}
	if points <= 0 {
		return dto.AssignmentResponse{}, ErrPointsNotPositive
	}

	assignment := models.Assignment{
		Title:        strings.TrimSpace(payload.Title),
		Description:  strings.TrimSpace(payload.Description),
		DueDate:      dueDate.UTC(),
		Points:       points,
		TeacherID:    actor.ID,
		RequiresFile: payload.RequiresFile,
		State:        models.AssignmentStateActive,
	}

	if file != nil {
		url, err := s.uploadInstructions(ctx, file)
		if err != nil {
			return dto.AssignmentResponse{}, err
		}
		assignment.FileURL = url
	}

	if err := s.repo.Create(ctx, &assignment); err != nil {
		s.effects.removeBlob(ctx, assignment.FileURL)
		return dto.AssignmentResponse{}, err
	}

	s.logger.Info().Str("assignment_id", assignment.ID).Str("teacher_id", actor.ID).Msg("assignment created")
	s.afterTransition(ctx, actor, assignment, ActionAssignmentCreated, events.TypeAssignmentCreated, "create")

	return dto.NewAssignmentResponse(assignment), nil
}

func (s *assignmentService) Get(ctx context.Context, id string) (dto.AssignmentResponse, error) {
	assignment, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return dto.AssignmentResponse{}, notFoundOr(err, ErrAssignmentNotFound)
	}

	return dto.NewAssignmentResponse(assignment), nil
}

func (s *assignmentService) ListActive(ctx context.Context, req dto.AssignmentListRequest) (dto.AssignmentListResponse, error) {
	return s.list(ctx, models.AssignmentStateActive, req)
}

func (s *assignmentService) ListArchived(ctx context.Context, req dto.AssignmentListRequest) (dto.AssignmentListResponse, error) {
	return s.list(ctx, models.AssignmentStateArchived, req)
}

func (s *assignmentService) list(ctx context.Context, state models.AssignmentState, req dto.AssignmentListRequest) (dto.AssignmentListResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return dto.AssignmentListResponse{}, invalidPayload(err)
	}

	pageSize := req.PageSize
	if pageSize == 0 {
		pageSize = defaultAssignmentPageSize
	}

	assignments, total, err := s.repo.List(ctx, repository.AssignmentFilter{
		State:     state,
		TeacherID: strings.TrimSpace(req.TeacherID),
		Search:    strings.TrimSpace(req.Search),
		Sort:      req.Sort,
		Page:      req.Page,
		PageSize:  pageSize,
	})
	if err != nil {
		return dto.AssignmentListResponse{}, err
	}

	return dto.AssignmentListResponse{
		Items:      dto.NewAssignmentResponseSlice(assignments),
		Pagination: dto.NewPaginationMeta(req.Page, pageSize, total),
	}, nil
}

func (s *assignmentService) Archive(ctx context.Context, id string, actor Actor) (dto.AssignmentResponse, error) {
	assignment, err := s.repo.Archive(ctx, id, actor.ID, s.now().UTC())
	if err != nil {
		return dto.AssignmentResponse{}, notFoundOr(err, ErrAssignmentNotFound)
	}

	s.logger.Info().Str("assignment_id", id).Msg("assignment archived")
	s.afterTransition(ctx, actor, assignment, ActionAssignmentArchived, events.TypeAssignmentArchived, "archive")

	return dto.NewAssignmentResponse(assignment), nil
}

func (s *assignmentService) Restore(ctx context.Context, id string, actor Actor) (dto.AssignmentResponse, error) {
	assignment, err := s.repo.Restore(ctx, id)
	if err != nil {
		return dto.AssignmentResponse{}, notFoundOr(err, ErrAssignmentNotFound)
	}

	s.logger.Info().Str("assignment_id", id).Msg("assignment restored")
	s.afterTransition(ctx, actor, assignment, ActionAssignmentRestored, events.TypeAssignmentRestored, "restore")

	return dto.NewAssignmentResponse(assignment), nil
}

func (s *assignmentService) DeletePermanently(ctx context.Context, id string, actor Actor) error {
	current, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return notFoundOr(err, ErrAssignmentNotFound)
	}

	if current.IsActive() {
		return ErrAssignmentActive
	}

	removed, err := s.repo.DeleteArchived(ctx, id)
	if err != nil {
		return s.classifyLostDelete(ctx, id, err)
	}

	s.logger.Info().Str("assignment_id", id).Msg("assignment deleted")
	s.effects.removeBlob(ctx, removed.FileURL)
	s.afterTransition(ctx, actor, removed, ActionAssignmentDeleted, events.TypeAssignmentDeleted, "delete")

	return nil
}

// classifyLostDelete explains a delete that matched no archived row: the record
// was restored or removed by another session after it was read.
func (s *assignmentService) classifyLostDelete(ctx context.Context, id string, err error) error {
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}
	latest, getErr := s.repo.GetByID(ctx, id)
	if getErr == nil && latest.IsActive() {
		return ErrAssignmentActive
	}
	return ErrAssignmentNotFound
}

func (s *assignmentService) DeleteAllArchived(ctx context.Context, actor Actor) (dto.BulkDeleteResponse, error) {
	removed, err := s.repo.DeleteAllArchived(ctx)
	if err != nil {
		return dto.BulkDeleteResponse{}, err
	}

	s.logger.Info().Int("count", len(removed)).Msg("archived assignments deleted")
	for _, assignment := range removed {
		s.effects.removeBlob(ctx, assignment.FileURL)
		s.afterTransition(ctx, actor, assignment, ActionAssignmentDeleted, events.TypeAssignmentDeleted, "delete")
	}

	return dto.BulkDeleteResponse{Deleted: len(removed)}, nil
}

func (s *assignmentService) uploadInstructions(ctx context.Context, file *multipart.FileHeader) (string, error) {
	if s.effects.Storage == nil {
		return "", errors.New("file storage not configured")
	}

	staged, err := stageUpload(file, assignmentBlobPrefix(), instructionMimeTypes, s.effects.MaxUploadBytes)
	if err != nil {
		return "", err
	}

	url, err := s.effects.Storage.Upload(ctx, staged.key, staged.reader())
	if err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}

	return url, nil
}

func (s *assignmentService) afterTransition(ctx context.Context, actor Actor, assignment models.Assignment, action, eventType, transition string) {
	observability.LifecycleTransitions().WithLabelValues(transition).Inc()

	s.effects.record(ctx, ActivityEntry{
		Actor:      actor,
		Action:     action,
		EntityType: "assignment",
		EntityID:   assignment.ID,
		Metadata: map[string]interface{}{
			"title": assignment.Title,
			"state": string(assignment.State),
		},
	})
	s.effects.invalidateStats(ctx)
	s.effects.publish(ctx, events.Event{
		Type:         eventType,
		AssignmentID: assignment.ID,
		ActorID:      actor.ID,
		Payload: map[string]interface{}{
			"title": assignment.Title,
			"state": string(assignment.State),
		},
	})
}
