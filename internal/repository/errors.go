package repository

import (
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// ErrDuplicate indicates a uniqueness constraint rejected the write.
var ErrDuplicate = errors.New("record already exists")

// StoreError wraps a failure of the backing record store (network, timeout, driver).
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("record store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// translate keeps not-found and duplicate errors recognisable and wraps everything else.
func translate(op string, err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return gorm.ErrRecordNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrDuplicate
	default:
		return &StoreError{Op: op, Err: err}
	}
}
