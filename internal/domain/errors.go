package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotConnected     = errors.New("document store not connected")
	ErrProfileNotFound  = errors.New("profile not found")
	ErrInvalidImageName = errors.New("invalid image name")
	ErrImageNotFound    = errors.New("image not found")
	ErrDuplicateImage   = errors.New("image metadata already exists")
)

// ValidationError reports malformed client input.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return e.Field + ": " + e.Msg
}

// ImageProcessingError reports that an uploaded image could not be decoded or resized.
type ImageProcessingError struct {
	Err error
}

func (e *ImageProcessingError) Error() string {
	return fmt.Sprintf("image processing failed: %v", e.Err)
}

func (e *ImageProcessingError) Unwrap() error {
	return e.Err
}

// StoreError wraps any failure talking to the persistent store.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func IsImageProcessing(err error) bool {
	var pe *ImageProcessingError
	return errors.As(err, &pe)
}

// IsRecordError reports a store failure caused by the record itself, such as a
// missing profile or a duplicate key. The store was reachable.
func IsRecordError(err error) bool {
	return errors.Is(err, ErrProfileNotFound) || errors.Is(err, ErrDuplicateImage)
}
