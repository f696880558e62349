package dto

import (
	"time"

	"github.com/noah-isme/assignment-portal/internal/models"
)

// SubmissionCreateRequest describes the multipart payload for handing in work.
type SubmissionCreateRequest struct {
	AssignmentID string `form:"assignment_id" json:"assignment_id" validate:"required,max=36"`
	Content      string `form:"content" json:"content" validate:"max=20000"`
}

// SubmissionGradeRequest is used by teachers to grade a submission.
type SubmissionGradeRequest struct {
	Grade    *int    `json:"grade" validate:"required"`
	Feedback *string `json:"feedback" validate:"omitempty,max=5000"`
}

// SubmissionFilter describes query string filters for listing submissions.
type SubmissionFilter struct {
	AssignmentID *string `query:"assignment_id" validate:"omitempty,max=36"`
	StudentID    *string `query:"student_id" validate:"omitempty,max=36"`
	Graded       *bool   `query:"graded"`
}

// SubmissionResponse is returned to API clients when viewing submissions.
type SubmissionResponse struct {
	ID           string                           `json:"id"`
	AssignmentID string                           `json:"assignment_id"`
	StudentID    string                           `json:"student_id"`
	StudentName  string                           `json:"student_name"`
	Content      string                           `json:"content"`
	FileURL      string                           `json:"file_url"`
	Status       string                           `json:"status"`
	Grade        *int                             `json:"grade"`
	Feedback     *string                          `json:"feedback"`
	GradedBy     *string                          `json:"graded_by"`
	GradedAt     *time.Time                       `json:"graded_at"`
	SubmittedAt  time.Time                        `json:"submitted_at"`
	Late         bool                             `json:"late"`
	Assignment   *AssignmentLite                  `json:"assignment,omitempty"`
	History      []SubmissionGradeHistoryResponse `json:"history,omitempty"`
}

// AssignmentLite summarizes an assignment in submission responses.
type AssignmentLite struct {
	ID      string    `json:"id"`
	Title   string    `json:"title"`
	DueDate time.Time `json:"due_date"`
	Points  int       `json:"points"`
	State   string    `json:"state"`
}

// SubmissionGradeHistoryResponse serializes grading history entries.
type SubmissionGradeHistoryResponse struct {
	Grade    int       `json:"grade"`
	Feedback string    `json:"feedback"`
	GradedBy string    `json:"graded_by"`
	GradedAt time.Time `json:"graded_at"`
}

// NewSubmissionResponse converts a Submission model into a DTO.
func NewSubmissionResponse(model models.Submission) SubmissionResponse {
	response := SubmissionResponse{
		ID:           model.ID,
		AssignmentID: model.AssignmentID,
		StudentID:    model.StudentID,
		StudentName:  model.StudentName,
		Content:      model.Content,
		FileURL:      model.FileURL,
		Status:       model.Status,
		Grade:        model.Grade,
		Feedback:     model.Feedback,
		GradedBy:     model.GradedBy,
		GradedAt:     model.GradedAt,
		SubmittedAt:  model.SubmittedAt,
	}

	if model.Assignment.ID != "" {
		response.Late = models.IsLateSubmission(model.Assignment, model)
		response.Assignment = &AssignmentLite{
			ID:      model.Assignment.ID,
			Title:   model.Assignment.Title,
			DueDate: model.Assignment.DueDate,
			Points:  model.Assignment.Points,
			State:   string(model.Assignment.State),
		}
	}

	if len(model.History) > 0 {
		history := make([]SubmissionGradeHistoryResponse, 0, len(model.History))
		for _, entry := range model.History {
			history = append(history, SubmissionGradeHistoryResponse{
				Grade:    entry.Grade,
				Feedback: entry.Feedback,
				GradedBy: entry.GradedBy,
				GradedAt: entry.GradedAt,
			})
		}
		response.History = history
	}

	return response
}

// NewSubmissionResponseSlice converts submission models into DTOs.
func NewSubmissionResponseSlice(items []models.Submission) []SubmissionResponse {
	responses := make([]SubmissionResponse, 0, len(items))
	for _, submission := range items {
		responses = append(responses, NewSubmissionResponse(submission))
	}

	return responses
}
