// Package apperr holds the error taxonomy shared by services, jobs and handlers.
// Callers match with errors.As; handlers map each type to an HTTP status.
package apperr

import "fmt"

// ValidationError reports a caller-fixable input problem.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ConnectionRequiredError names the platform missing an active connection.
type ConnectionRequiredError struct {
	Platform string
}

func (e *ConnectionRequiredError) Error() string {
	return fmt.Sprintf("no active %s connection", e.Platform)
}

// NotFoundError covers absent or soft-deleted resources.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return e.Resource + " not found"
}

// NotEditableError carries the specific denial reason so the caller can tell a
// closed window from an exhausted budget or a wrong status.
type NotEditableError struct {
	Reason string
}

func (e *NotEditableError) Error() string {
	return "post is not editable: " + e.Reason
}

// ExternalFetchError wraps a failed platform API call.
type ExternalFetchError struct {
	Platform string
	Err      error
}

func (e *ExternalFetchError) Error() string {
	return fmt.Sprintf("%s fetch failed: %v", e.Platform, e.Err)
}

func (e *ExternalFetchError) Unwrap() error { return e.Err }

// PersistenceError wraps a storage layer failure.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
