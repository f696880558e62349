package service

import (
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/noah-isme/assignment-portal/internal/repository"
)

// Error kinds returned by the portal services. Use errors.Is to classify.
var (
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("not found")
	ErrInvalidState = errors.New("invalid state")
	ErrConflict     = errors.New("conflict")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

var (
	ErrAssignmentNotFound   = fmt.Errorf("assignment %w", ErrNotFound)
	ErrSubmissionNotFound   = fmt.Errorf("submission %w", ErrNotFound)
	ErrNotificationNotFound = fmt.Errorf("notification %w", ErrNotFound)
	ErrUserNotFound         = fmt.Errorf("user %w", ErrNotFound)

	ErrAssignmentActive = fmt.Errorf("assignment must be archived before deletion: %w", ErrInvalidState)
	ErrSubmissionClosed = fmt.Errorf("submission window has closed: %w", ErrInvalidState)

	ErrDueDateNotFuture     = fmt.Errorf("due date must be in the future: %w", ErrValidation)
	ErrPointsNotPositive    = fmt.Errorf("points must be positive: %w", ErrValidation)
	ErrGradeOutOfRange      = fmt.Errorf("grade out of range: %w", ErrValidation)
	ErrSubmissionFileNeeded = fmt.Errorf("assignment requires a file: %w", ErrValidation)
	ErrSubmissionEmpty      = fmt.Errorf("submission needs content or a file: %w", ErrValidation)
	ErrUploadTooLarge       = fmt.Errorf("file exceeds maximum allowed size: %w", ErrValidation)
	ErrUploadTypeNotAllowed = fmt.Errorf("file type not allowed: %w", ErrValidation)
	ErrUploadScanFailed     = fmt.Errorf("file scanning failed: %w", ErrValidation)

	ErrEmailTaken         = fmt.Errorf("email already registered: %w", ErrConflict)
	ErrInvalidCredentials = fmt.Errorf("invalid email or password: %w", ErrUnauthorized)
	ErrTokenRevoked       = fmt.Errorf("token has been revoked: %w", ErrUnauthorized)
)

// invalidPayload tags validator failures so callers can match ErrValidation while keeping field details.
func invalidPayload(err error) error {
	return fmt.Errorf("%w: %w", ErrValidation, err)
}

// notFoundOr maps a repository miss to the domain error and passes everything else through.
func notFoundOr(err, notFound error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return notFound
	}
	return err
}

// IsStoreFailure reports whether err came from the backing record store.
func IsStoreFailure(err error) bool {
	var storeErr *repository.StoreError
	return errors.As(err, &storeErr)
}
