package core

import (
	"errors"
	"fmt"
)

// Domain errors - centralized error definitions
var (
	// Not found errors
	ErrNotFound    = errors.New("resource not found")
	ErrRunNotFound = fmt.Errorf("%w: run", ErrNotFound)

	// Input validation errors. Fatal, raised before any fitting happens.
	ErrInvalidInput  = errors.New("invalid input")
	ErrInvalidDesign = fmt.Errorf("%w: design", ErrInvalidInput)
	ErrInvalidMatrix = fmt.Errorf("%w: count matrix", ErrInvalidInput)

	// Statistical stage errors
	ErrConvergence = errors.New("model fit did not converge")
	ErrEmptyInput  = errors.New("no genes eligible for testing")

	// Search stage errors
	ErrSearchUnavailable = errors.New("similarity search unavailable")
	ErrSearchInFlight    = errors.New("similarity search already in flight")
)

// Error constructors with context
func NewNotFoundError(resource string, id string) error {
	return fmt.Errorf("%w: %s with id %s", ErrNotFound, resource, id)
}

func NewValidationError(field string, reason string) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalidInput, field, reason)
}

func NewDesignError(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidDesign, reason)
}

func NewMatrixError(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidMatrix, reason)
}

func NewConvergenceError(geneID string, iterations int) error {
	return fmt.Errorf("%w for gene %s after %d iterations", ErrConvergence, geneID, iterations)
}

func NewSearchError(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrSearchUnavailable, op, err)
}

// Error checking helpers
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidInput)
}

func IsSearchError(err error) bool {
	return errors.Is(err, ErrSearchUnavailable) ||
		errors.Is(err, ErrSearchInFlight)
}
