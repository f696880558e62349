package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AssignmentState is the lifecycle position of an assignment.
type AssignmentState string

const (
	// AssignmentStateActive marks assignments visible to students.
	AssignmentStateActive AssignmentState = "active"
	// AssignmentStateArchived marks assignments removed from the active set but kept with their submissions.
	AssignmentStateArchived AssignmentState = "archived"
	// AssignmentStateDeleted is terminal; records in this state no longer exist in the store.
	AssignmentStateDeleted AssignmentState = "deleted"
)

// DefaultAssignmentPoints is applied when a teacher does not pick a point value.
const DefaultAssignmentPoints = 100

// Assignment represents a task published by a teacher.
type Assignment struct {
	ID           string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	Title        string          `gorm:"size:255;not null" json:"title"`
	Description  string          `gorm:"type:text" json:"description"`
	DueDate      time.Time       `gorm:"not null;index" json:"due_date"`
	Points       int             `gorm:"not null" json:"points"`
	TeacherID    string          `gorm:"type:varchar(36);not null;index" json:"teacher_id"`
	FileURL      string          `gorm:"size:512" json:"file_url"`
	RequiresFile bool            `gorm:"not null;default:false" json:"requires_file"`
	State        AssignmentState `gorm:"size:16;not null;index;default:active" json:"state"`
	ArchivedAt   *time.Time      `json:"archived_at"`
	ArchivedBy   *string         `gorm:"type:varchar(36)" json:"archived_by"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// BeforeCreate assigns an opaque identifier when none was provided.
func (a *Assignment) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.State == "" {
		a.State = AssignmentStateActive
	}
	return nil
}

// IsPastDue returns true when the assignment deadline has already passed.
func (a Assignment) IsPastDue(reference time.Time) bool {
	return reference.After(a.DueDate)
}

// IsActive reports whether the assignment is in the active set.
func (a Assignment) IsActive() bool {
	return a.State == AssignmentStateActive
}

// IsArchived reports whether the assignment is in the archived set.
func (a Assignment) IsArchived() bool {
	return a.State == AssignmentStateArchived
}
