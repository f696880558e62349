package service

import "github.com/noah-isme/assignment-portal/internal/models"

// Actor is the authenticated caller of a service operation.
type Actor struct {
	ID   string
	Name string
	Role models.Role
}

// IsTeacher reports whether the actor holds the teacher role.
func (a Actor) IsTeacher() bool {
	return a.Role == models.RoleTeacher
}

// IsStudent reports whether the actor holds the student role.
func (a Actor) IsStudent() bool {
	return a.Role == models.RoleStudent
}
