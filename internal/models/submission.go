package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Submission represents a student's single attempt at an assignment.
type Submission struct {
	ID           string                   `gorm:"type:varchar(36);primaryKey" json:"id"`
	AssignmentID string                   `gorm:"type:varchar(36);not null;uniqueIndex:idx_submission_assignment_student" json:"assignment_id"`
	StudentID    string                   `gorm:"type:varchar(36);not null;uniqueIndex:idx_submission_assignment_student;index" json:"student_id"`
	StudentName  string                   `gorm:"size:255" json:"student_name"`
	Content      string                   `gorm:"type:text" json:"content"`
	FileURL      string                   `gorm:"size:512" json:"file_url"`
	Status       string                   `gorm:"size:32;not null" json:"status"`
	Grade        *int                     `json:"grade"`
	Feedback     *string                  `gorm:"type:text" json:"feedback"`
	GradedBy     *string                  `gorm:"type:varchar(36)" json:"graded_by"`
	GradedAt     *time.Time               `json:"graded_at"`
	SubmittedAt  time.Time                `gorm:"not null;index" json:"submitted_at"`
	CreatedAt    time.Time                `json:"created_at"`
	UpdatedAt    time.Time                `json:"updated_at"`
	Assignment   Assignment               `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"assignment"`
	History      []SubmissionGradeHistory `gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"history"`
}

const (
	// SubmissionStatusSubmitted indicates the submission has been uploaded but not graded.
	SubmissionStatusSubmitted = "submitted"
	// SubmissionStatusGraded indicates the submission has been evaluated.
	SubmissionStatusGraded = "graded"
)

// BeforeCreate assigns an opaque identifier and submission time.
func (s *Submission) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.NewString()
	}
	if s.SubmittedAt.IsZero() {
		s.SubmittedAt = time.Now().UTC()
	}
	if s.Status == "" {
		s.Status = SubmissionStatusSubmitted
	}
	return nil
}

// IsGraded reports whether the submission carries a grade.
func (s Submission) IsGraded() bool {
	return s.Grade != nil
}

// SubmissionGradeHistory stores every grade applied to a submission.
type SubmissionGradeHistory struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	SubmissionID string    `gorm:"type:varchar(36);not null;index" json:"submission_id"`
	Grade        int       `gorm:"not null" json:"grade"`
	Feedback     string    `gorm:"type:text" json:"feedback"`
	GradedBy     string    `gorm:"type:varchar(36);not null" json:"graded_by"`
	GradedAt     time.Time `gorm:"not null" json:"graded_at"`
}
