package dto

import "time"

// StudentStatsResponse aggregates a student's progress counters.
type StudentStatsResponse struct {
	TotalAssignments     int     `json:"total_assignments"`
	CompletedAssignments int     `json:"completed_assignments"`
	TotalPoints          int     `json:"total_points"`
	AverageGrade         float64 `json:"average_grade"`
	SubmissionStreak     int     `json:"submission_streak"`
}

// TeacherStatsResponse aggregates platform-wide grading counters.
type TeacherStatsResponse struct {
	TotalAssignments int     `json:"total_assignments"`
	PendingGrading   int     `json:"pending_grading"`
	ActiveStudents   int     `json:"active_students"`
	AverageGrade     float64 `json:"average_grade"`
}

// BoardItem is one active assignment as seen by a student.
type BoardItem struct {
	Assignment AssignmentResponse  `json:"assignment"`
	Status     string              `json:"status"`
	CanSubmit  bool                `json:"can_submit"`
	Submission *SubmissionResponse `json:"submission,omitempty"`
}

// StudentBoardResponse lists active assignments with derived statuses.
type StudentBoardResponse struct {
	Items       []BoardItem `json:"items"`
	GeneratedAt time.Time   `json:"generated_at"`
}
