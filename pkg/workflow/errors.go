// Package workflow implements the automation engine: execution tracking,
// step dispatch, workflow lifecycle management and analytics.
package workflow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dripline/dripline/pkg/models"
	"github.com/dripline/dripline/pkg/persistence"
)

// Business logic errors. These indicate client errors (4xx responses).
var (
	// Not found (404).
	ErrWorkflowNotFound  = persistence.ErrWorkflowNotFound
	ErrExecutionNotFound = persistence.ErrExecutionNotFound

	// Validation errors (400 Bad Request).
	ErrInvalidRequest = errors.New("invalid request")
	ErrWorkflowNil    = errors.New("workflow cannot be nil")

	// Business logic conflicts (409 Conflict).
	ErrCannotModifyActive = errors.New("cannot modify active workflow")
	ErrWorkflowArchived   = errors.New("workflow is archived")
	ErrCannotDeleteActive = errors.New("cannot delete active workflow")
	ErrAlreadyActive      = errors.New("workflow is already active")
	ErrNotActive          = errors.New("workflow is not active")
)

// NotConfiguredError rejects activation of a workflow with reachable steps
// whose configuration is incomplete.
type NotConfiguredError struct {
	WorkflowID string
	StepIDs    []string
}

func (e *NotConfiguredError) Error() string {
	return fmt.Sprintf("workflow %s has unconfigured steps: %s", e.WorkflowID, strings.Join(e.StepIDs, ", "))
}

// ServiceError wraps service-level errors with operation context.
type ServiceError struct {
	Op      string // Operation name
	Message string // Human-readable message
	Err     error  // Underlying error
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError checks if an error should map to HTTP 400.
func IsValidationError(err error) bool {
	var validationErr *models.ValidationError
	if errors.As(err, &validationErr) {
		return true
	}

	var notConfigured *NotConfiguredError
	if errors.As(err, &notConfigured) {
		return true
	}

	return errors.Is(err, ErrInvalidRequest) || errors.Is(err, ErrWorkflowNil)
}

// IsConflictError checks if an error should map to HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrCannotModifyActive) ||
		errors.Is(err, ErrWorkflowArchived) ||
		errors.Is(err, ErrCannotDeleteActive) ||
		errors.Is(err, ErrAlreadyActive) ||
		errors.Is(err, ErrNotActive)
}

// IsNotFoundError checks if an error should map to HTTP 404.
func IsNotFoundError(err error) bool {
	return errors.Is(err, persistence.ErrWorkflowNotFound) ||
		errors.Is(err, persistence.ErrExecutionNotFound)
}
