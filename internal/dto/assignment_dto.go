package dto

import (
	"time"

	"github.com/noah-isme/assignment-portal/internal/models"
)

// AssignmentCreateRequest describes the payload for creating a new assignment.
type AssignmentCreateRequest struct {
	Title        string `form:"title" json:"title" validate:"required,min=3,max=255"`
	Description  string `form:"description" json:"description" validate:"max=10000"`
	DueDate      string `form:"due_date" json:"due_date" validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
	Points       *int   `form:"points" json:"points"`
	RequiresFile bool   `form:"requires_file" json:"requires_file"`
}

// AssignmentListRequest carries search and pagination options for list views.
type AssignmentListRequest struct {
	Search    string `query:"search" validate:"max=255"`
	TeacherID string `query:"teacher_id" validate:"max=36"`
	Sort      string `query:"sort" validate:"max=32"`
	Page      int    `query:"page" validate:"gte=0"`
	PageSize  int    `query:"page_size" validate:"gte=0,lte=100"`
}

// AssignmentResponse is the serialized representation returned to API clients.
type AssignmentResponse struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	DueDate      time.Time  `json:"due_date"`
	Points       int        `json:"points"`
	TeacherID    string     `json:"teacher_id"`
	FileURL      string     `json:"file_url"`
	RequiresFile bool       `json:"requires_file"`
	State        string     `json:"state"`
	ArchivedAt   *time.Time `json:"archived_at,omitempty"`
	ArchivedBy   *string    `json:"archived_by,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// AssignmentListResponse wraps a page of assignments.
type AssignmentListResponse struct {
	Items      []AssignmentResponse `json:"items"`
	Pagination PaginationMeta       `json:"pagination"`
}

// BulkDeleteResponse reports how many archived assignments were removed.
type BulkDeleteResponse struct {
	Deleted int `json:"deleted"`
}

// AssignmentStatusResponse exposes the derived status of one student on one assignment.
type AssignmentStatusResponse struct {
	AssignmentID  string    `json:"assignment_id"`
	StudentID     string    `json:"student_id"`
	Status        string    `json:"status"`
	CanSubmit     bool      `json:"can_submit"`
	SubmittedLate bool      `json:"submitted_late"`
	SubmissionID  string    `json:"submission_id,omitempty"`
	DueDate       time.Time `json:"due_date"`
}

// NewAssignmentResponse converts a model into a DTO.
func NewAssignmentResponse(model models.Assignment) AssignmentResponse {
	return AssignmentResponse{
		ID:           model.ID,
		Title:        model.Title,
		Description:  model.Description,
		DueDate:      model.DueDate,
		Points:       model.Points,
		TeacherID:    model.TeacherID,
		FileURL:      model.FileURL,
		RequiresFile: model.RequiresFile,
		State:        string(model.State),
		ArchivedAt:   model.ArchivedAt,
		ArchivedBy:   model.ArchivedBy,
		CreatedAt:    model.CreatedAt,
	}
}

// NewAssignmentResponseSlice converts a slice of models into DTOs.
func NewAssignmentResponseSlice(assignments []models.Assignment) []AssignmentResponse {
	responses := make([]AssignmentResponse, 0, len(assignments))
	for _, assignment := range assignments {
		responses = append(responses, NewAssignmentResponse(assignment))
	}

	return responses
}
