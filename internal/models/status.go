package models

import "time"

// SubmissionStatus is the derived state of an (assignment, student) pair.
type SubmissionStatus string

const (
	StatusPending   SubmissionStatus = "pending"
	StatusSubmitted SubmissionStatus = "submitted"
	StatusGraded    SubmissionStatus = "graded"
	StatusLate      SubmissionStatus = "late"
)

// DeriveStatus classifies a student's standing on an assignment at the given instant.
// An existing submission always outranks lateness: late only means nothing was
// handed in before the deadline passed.
func DeriveStatus(assignment Assignment, submission *Submission, now time.Time) SubmissionStatus {
	if submission != nil {
		if submission.IsGraded() {
			return StatusGraded
		}
		return StatusSubmitted
	}

	if now.After(assignment.DueDate) {
		return StatusLate
	}

	return StatusPending
}

// CanSubmit reports whether a user may still hand in work for the assignment.
func CanSubmit(role Role, hasSubmission bool, assignment Assignment, now time.Time) bool {
	if role != RoleStudent || hasSubmission {
		return false
	}
	return !now.After(assignment.DueDate)
}

// IsLateSubmission reports whether the work arrived after the deadline.
// It has no effect on DeriveStatus.
func IsLateSubmission(assignment Assignment, submission Submission) bool {
	return submission.SubmittedAt.After(assignment.DueDate)
}
