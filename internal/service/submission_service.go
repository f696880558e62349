package service

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/noah-isme/assignment-portal/internal/dto"
	"github.com/noah-isme/assignment-portal/internal/events"
	"github.com/noah-isme/assignment-portal/internal/models"
	"github.com/noah-isme/assignment-portal/internal/observability"
	"github.com/noah-isme/assignment-portal/internal/repository"
)

// SubmissionService orchestrates handing in and grading work.
type SubmissionService interface {
	Submit(ctx context.Context, payload dto.SubmissionCreateRequest, file *multipart.FileHeader, actor Actor) (dto.SubmissionResponse, bool, error)
	Grade(ctx context.Context, id string, payload dto.SubmissionGradeRequest, actor Actor) (dto.SubmissionResponse, error)
	Get(ctx context.Context, id string, actor Actor) (dto.SubmissionResponse, error)
	List(ctx context.Context, filter dto.SubmissionFilter, actor Actor) ([]dto.SubmissionResponse, error)
	Status(ctx context.Context, assignmentID, studentID string) (dto.AssignmentStatusResponse, error)
}

type submissionService struct {
	submissions repository.SubmissionRepository
	assignments repository.AssignmentRepository
	validator   *validator.Validate
	effects     sideEffects
	sanitizer   *bluemonday.Policy
	tracer      trace.Tracer
	logger      zerolog.Logger
	now         func() time.Time
}

// NewSubmissionService constructs a SubmissionService instance.
func NewSubmissionService(subRepo repository.SubmissionRepository, assignmentRepo repository.AssignmentRepository, validate *validator.Validate, collaborators Collaborators, logger zerolog.Logger) SubmissionService {
	scoped := logger.With().Str("component", "submission_service").Logger()
	return &submissionService{
		submissions: subRepo,
		assignments: assignmentRepo,
		validator:   validate,
		effects:     sideEffects{Collaborators: collaborators, logger: scoped},
		sanitizer:   bluemonday.StrictPolicy(),
		tracer:      otel.Tracer("github.com/noah-isme/assignment-portal/internal/service/submission"),
		logger:      scoped,
		now:         time.Now,
	}
}

// Submit hands in work once per (assignment, student). A repeated call returns
// the stored submission with created=false.
func (s *submissionService) Submit(ctx context.Context, payload dto.SubmissionCreateRequest, file *multipart.FileHeader, actor Actor) (dto.SubmissionResponse, bool, error) {
	ctx, span := s.tracer.Start(ctx, "submissions.submit", trace.WithAttributes(
		attribute.String("submission.assignment_id", payload.AssignmentID),
		attribute.String("submission.student_id", actor.ID),
		attribute.Bool("submission.has_file", file != nil),
	))
	defer span.End()

	response, created, err := s.submit(ctx, payload, file, actor)
	switch {
	case err != nil:
		observability.Submissions().WithLabelValues("rejected").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "submit_failed")
	case created:
		observability.Submissions().WithLabelValues("created").Inc()
	default:
		observability.Submissions().WithLabelValues("existing").Inc()
		span.SetAttributes(attribute.Bool("submission.idempotent", true))
	}

	return response, created, err
}

func (s *submissionService) submit(ctx context.Context, payload dto.SubmissionCreateRequest, file *multipart.FileHeader, actor Actor) (dto.SubmissionResponse, bool, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SubmissionResponse{}, false, invalidPayload(err)
	}

	if !actor.IsStudent() {
		return dto.SubmissionResponse{}, false, fmt.Errorf("only students submit work: %w", ErrForbidden)
	}

	assignment, err := s.assignments.GetByID(ctx, payload.AssignmentID)
	if err != nil {
		return dto.SubmissionResponse{}, false, notFoundOr(err, ErrAssignmentNotFound)
	}
	if !assignment.IsActive() {
		return dto.SubmissionResponse{}, false, ErrAssignmentNotFound
	}

	existing, err := s.submissions.GetByAssignmentAndStudent(ctx, assignment.ID, actor.ID)
	if err == nil {
		return dto.NewSubmissionResponse(existing), false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return dto.SubmissionResponse{}, false, err
	}

	now := s.now().UTC()
	if assignment.IsPastDue(now) {
		return dto.SubmissionResponse{}, false, ErrSubmissionClosed
	}

	content := strings.TrimSpace(payload.Content)
	if assignment.RequiresFile && file == nil {
		return dto.SubmissionResponse{}, false, ErrSubmissionFileNeeded
	}
	if content == "" && file == nil {
		return dto.SubmissionResponse{}, false, ErrSubmissionEmpty
	}

	fileURL := ""
	if file != nil {
		fileURL, err = s.uploadWork(ctx, file, actor.ID)
		if err != nil {
			return dto.SubmissionResponse{}, false, err
		}
	}

	submission := models.Submission{
		AssignmentID: assignment.ID,
		StudentID:    actor.ID,
		StudentName:  actor.Name,
		Content:      content,
		FileURL:      fileURL,
		Status:       models.SubmissionStatusSubmitted,
		SubmittedAt:  now,
	}

	if err := s.submissions.Create(ctx, &submission); err != nil {
		s.effects.removeBlob(ctx, fileURL)
		if errors.Is(err, repository.ErrDuplicate) {
			winner, getErr := s.submissions.GetByAssignmentAndStudent(ctx, assignment.ID, actor.ID)
			if getErr != nil {
				return dto.SubmissionResponse{}, false, getErr
			}
			return dto.NewSubmissionResponse(winner), false, nil
		}
		return dto.SubmissionResponse{}, false, err
	}

	submission.Assignment = assignment
	s.logger.Info().Str("submission_id", submission.ID).Str("assignment_id", assignment.ID).Msg("submission created")

	s.effects.record(ctx, ActivityEntry{
		Actor:      actor,
		Action:     ActionSubmissionCreated,
		EntityType: "submission",
		EntityID:   submission.ID,
		Metadata: map[string]interface{}{
			"assignment_id": assignment.ID,
			"has_file":      fileURL != "",
		},
	})
	s.effects.invalidateStats(ctx)
	s.effects.publish(ctx, events.Event{
		Type:         events.TypeSubmissionCreated,
		AssignmentID: assignment.ID,
		SubmissionID: submission.ID,
		ActorID:      actor.ID,
		Payload:      map[string]interface{}{"student_id": actor.ID},
	})
	s.effects.notify(ctx, dto.NotificationCreateRequest{
		UserID:  assignment.TeacherID,
		Title:   "New submission",
		Message: fmt.Sprintf("%s submitted \"%s\"", displayName(actor), assignment.Title),
		Type:    models.NotificationTypeInfo,
	})

	return dto.NewSubmissionResponse(submission), true, nil
}

func (s *submissionService) uploadWork(ctx context.Context, file *multipart.FileHeader, studentID string) (string, error) {
	if s.effects.Storage == nil {
		return "", errors.New("file storage not configured")
	}

	staged, err := stageUpload(file, submissionBlobPrefix(studentID), submissionMimeTypes, s.effects.MaxUploadBytes)
	if err != nil {
		return "", err
	}

	url, err := s.effects.Storage.Upload(ctx, staged.key, staged.reader())
	if err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}

	return url, nil
}

// Grade sets or amends the grade. Every effective change appends a history row;
// repeating the current grade and feedback changes nothing.
func (s *submissionService) Grade(ctx context.Context, id string, payload dto.SubmissionGradeRequest, actor Actor) (dto.SubmissionResponse, error) {
	ctx, span := s.tracer.Start(ctx, "grading.update", trace.WithAttributes(
		attribute.String("grading.submission_id", id),
		attribute.String("grading.actor_id", actor.ID),
	))
	defer span.End()

	response, err := s.grade(ctx, id, payload, actor, span)
	if err != nil {
		observability.Grades().WithLabelValues("rejected").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "grading_failed")
	}
	return response, err
}

func (s *submissionService) grade(ctx context.Context, id string, payload dto.SubmissionGradeRequest, actor Actor, span trace.Span) (dto.SubmissionResponse, error) {
	if err := s.validator.Struct(payload); err != nil {
		return dto.SubmissionResponse{}, invalidPayload(err)
	}

	if !actor.IsTeacher() {
		return dto.SubmissionResponse{}, fmt.Errorf("only teachers grade work: %w", ErrForbidden)
	}

	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		return dto.SubmissionResponse{}, notFoundOr(err, ErrSubmissionNotFound)
	}

	assignment := submission.Assignment
	if assignment.ID == "" {
		assignment, err = s.assignments.GetByID(ctx, submission.AssignmentID)
		if err != nil {
			return dto.SubmissionResponse{}, notFoundOr(err, ErrAssignmentNotFound)
		}
		submission.Assignment = assignment
	}

	grade := *payload.Grade
	if grade < 0 || grade > assignment.Points {
		return dto.SubmissionResponse{}, fmt.Errorf("%w: must be between 0 and %d", ErrGradeOutOfRange, assignment.Points)
	}

	feedback := ""
	if payload.Feedback != nil {
		feedback = plainText(s.sanitizer, *payload.Feedback)
	}

	if submission.Grade != nil && *submission.Grade == grade && derefString(submission.Feedback) == feedback {
		span.SetAttributes(attribute.Bool("grading.idempotent", true))
		observability.Grades().WithLabelValues("unchanged").Inc()
		return dto.NewSubmissionResponse(submission), nil
	}

	gradedAt := s.now().UTC()
	gradedBy := actor.ID
	submission.Grade = &grade
	submission.Feedback = nil
	if feedback != "" {
		submission.Feedback = &feedback
	}
	submission.Status = models.SubmissionStatusGraded
	submission.GradedAt = &gradedAt
	submission.GradedBy = &gradedBy

	if err := s.submissions.Update(ctx, &submission); err != nil {
		return dto.SubmissionResponse{}, err
	}

	history := models.SubmissionGradeHistory{
		SubmissionID: submission.ID,
		Grade:        grade,
		Feedback:     feedback,
		GradedBy:     actor.ID,
		GradedAt:     gradedAt,
	}
	if err := s.submissions.CreateHistory(ctx, &history); err != nil {
		s.logger.Warn().Err(err).Str("submission_id", submission.ID).Msg("failed to persist grading history")
	} else {
		submission.History = append(submission.History, history)
	}

	observability.Grades().WithLabelValues("graded").Inc()
	span.SetAttributes(attribute.Int("grading.grade", grade))
	s.logger.Info().Str("submission_id", submission.ID).Int("grade", grade).Msg("submission graded")

	s.effects.record(ctx, ActivityEntry{
		Actor:      actor,
		Action:     ActionSubmissionGraded,
		EntityType: "submission",
		EntityID:   submission.ID,
		Metadata: map[string]interface{}{
			"assignment_id": submission.AssignmentID,
			"student_id":    submission.StudentID,
			"grade":         grade,
		},
	})
	s.effects.invalidateStats(ctx)
	s.effects.publish(ctx, events.Event{
		Type:         events.TypeSubmissionGraded,
		AssignmentID: submission.AssignmentID,
		SubmissionID: submission.ID,
		ActorID:      actor.ID,
		Payload: map[string]interface{}{
			"student_id": submission.StudentID,
			"grade":      grade,
		},
	})
	s.effects.notify(ctx, dto.NotificationCreateRequest{
		UserID:  submission.StudentID,
		Title:   "Assignment graded",
		Message: fmt.Sprintf("\"%s\" was graded %d/%d", assignment.Title, grade, assignment.Points),
		Type:    models.NotificationTypeSuccess,
	})

	return dto.NewSubmissionResponse(submission), nil
}

func (s *submissionService) Get(ctx context.Context, id string, actor Actor) (dto.SubmissionResponse, error) {
	submission, err := s.submissions.GetByID(ctx, id)
	if err != nil {
		return dto.SubmissionResponse{}, notFoundOr(err, ErrSubmissionNotFound)
	}

	if actor.IsStudent() && submission.StudentID != actor.ID {
		return dto.SubmissionResponse{}, ErrSubmissionNotFound
	}

	return dto.NewSubmissionResponse(submission), nil
}

func (s *submissionService) List(ctx context.Context, filter dto.SubmissionFilter, actor Actor) ([]dto.SubmissionResponse, error) {
	if err := s.validator.Struct(filter); err != nil {
		return nil, invalidPayload(err)
	}

	repoFilter := repository.SubmissionFilter{
		AssignmentID: filter.AssignmentID,
		StudentID:    filter.StudentID,
		Graded:       filter.Graded,
	}
	if actor.IsStudent() {
		own := actor.ID
		repoFilter.StudentID = &own
	}

	submissions, err := s.submissions.List(ctx, repoFilter)
	if err != nil {
		return nil, err
	}

	return dto.NewSubmissionResponseSlice(submissions), nil
}

func (s *submissionService) Status(ctx context.Context, assignmentID, studentID string) (dto.AssignmentStatusResponse, error) {
	assignment, err := s.assignments.GetByID(ctx, assignmentID)
	if err != nil {
		return dto.AssignmentStatusResponse{}, notFoundOr(err, ErrAssignmentNotFound)
	}

	var submission *models.Submission
	existing, err := s.submissions.GetByAssignmentAndStudent(ctx, assignmentID, studentID)
	switch {
	case err == nil:
		submission = &existing
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return dto.AssignmentStatusResponse{}, err
	}

	now := s.now()
	response := dto.AssignmentStatusResponse{
		AssignmentID: assignment.ID,
		StudentID:    studentID,
		Status:       string(models.DeriveStatus(assignment, submission, now)),
		CanSubmit:    assignment.IsActive() && models.CanSubmit(models.RoleStudent, submission != nil, assignment, now),
		DueDate:      assignment.DueDate,
	}
	if submission != nil {
		response.SubmissionID = submission.ID
		response.SubmittedLate = models.IsLateSubmission(assignment, *submission)
	}

	return response, nil
}

func derefString(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func displayName(actor Actor) string {
	if name := strings.TrimSpace(actor.Name); name != "" {
		return name
	}
	return "A student"
}
