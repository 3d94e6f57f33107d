package service

import (
	"errors"
	"fmt"

	"geofyle/internal/repository"
)

// ErrInvalidInput is the parent of every caller-fixable validation error.
var ErrInvalidInput = errors.New("invalid input")

var (
	ErrInvalidCoordinates = fmt.Errorf("%w: invalid coordinates", ErrInvalidInput)
	ErrInvalidLocation    = fmt.Errorf("%w: invalid requester location", ErrInvalidInput)
	ErrInvalidRadius      = fmt.Errorf("%w: radius must be a positive number", ErrInvalidInput)
	ErrMissingFields      = fmt.Errorf("%w: missing required fields", ErrInvalidInput)
	ErrIDRequired         = fmt.Errorf("%w: id is required", ErrInvalidInput)
)

var (
	ErrNotFound         = errors.New("file not found")
	ErrExpired          = errors.New("file expired")
	ErrOutOfRange       = errors.New("requester is out of range")
	ErrSizeExceeded     = errors.New("file size exceeds the limit")
	ErrStoreFailure     = errors.New("record store failure")
	ErrBlobFailure      = errors.New("blob store failure")
	ErrStoreUnavailable = errors.New("record store unavailable")
	ErrUnauthorized     = errors.New("unauthorized")
)

// storeError maps an adapter error to the service taxonomy.
func storeError(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %w", ErrStoreFailure, err)
}

func blobError(err error) error {
	return fmt.Errorf("%w: %w", ErrBlobFailure, err)
}
