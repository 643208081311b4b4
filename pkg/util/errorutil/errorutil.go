package errorutil

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
)

// DomainError standardizes application errors.
type DomainError struct {
	Code       string
	Message    string
	HTTPStatus int
	Details    map[string]any
	Err        error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError constructs a DomainError.
func NewDomainError(code, message string, status int, details map[string]any) *DomainError {
	return &DomainError{Code: code, Message: message, HTTPStatus: status, Details: details}
}

func NewValidationError(message string, details map[string]any) error {
	return NewDomainError("VALIDATION_FAILED", message, http.StatusBadRequest, details)
}

func NewNotFound(resource string, details map[string]any) error {
	if details == nil {
		details = map[string]any{}
	}
	return &DomainError{
		Code:       "NOT_FOUND",
		Message:    fmt.Sprintf("%s not found", resource),
		HTTPStatus: http.StatusNotFound,
		Details:    details,
	}
}

func NewConflict(message string, details map[string]any) error {
	return NewDomainError("CONFLICT", message, http.StatusConflict, details)
}

func NewInternalError(err error) error {
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

// NewLockTimeout reports that the open ticket for a contact could not be
// resolved within the bounded wait. Callers must surface it so the
// triggering message can be retried, never dropped.
func NewLockTimeout(key string) error {
	return &DomainError{
		Code:       "LOCK_TIMEOUT",
		Message:    "timed out waiting for ticket ownership",
		HTTPStatus: http.StatusServiceUnavailable,
		Details:    map[string]any{"lock_key": key},
	}
}

// NewTicketNotFound reports a message referencing a nonexistent ticket.
// Fatal for that message only.
func NewTicketNotFound(ticketID string) error {
	return &DomainError{
		Code:       "TICKET_NOT_FOUND",
		Message:    "ticket not found",
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"ticket_id": ticketID},
	}
}

// NewFlowNotFound reports a ticket bound to a flow that no longer exists.
func NewFlowNotFound(flowID string) error {
	return &DomainError{
		Code:       "FLOW_NOT_FOUND",
		Message:    "chat flow not found",
		HTTPStatus: http.StatusNotFound,
		Details:    map[string]any{"flow_id": flowID},
	}
}

// NewInvalidFlowStep reports a ticket pointing at a node the bound flow
// does not contain.
func NewInvalidFlowStep(flowID, nodeID string) error {
	return &DomainError{
		Code:       "INVALID_FLOW_STEP",
		Message:    "flow step not found in definition",
		HTTPStatus: http.StatusUnprocessableEntity,
		Details:    map[string]any{"flow_id": flowID, "node_id": nodeID},
	}
}

// NewMediaProcessing reports a media download/transform failure. Non-fatal:
// the message is persisted without media.
func NewMediaProcessing(err error) error {
	return &DomainError{
		Code:       "MEDIA_PROCESSING",
		Message:    "media processing failed",
		HTTPStatus: http.StatusUnprocessableEntity,
		Err:        err,
	}
}

// HasCode reports whether err is a DomainError carrying the given code.
func HasCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

func IsLockTimeout(err error) bool { return HasCode(err, "LOCK_TIMEOUT") }

func IsTicketNotFound(err error) bool { return HasCode(err, "TICKET_NOT_FOUND") }

func IsFlowNotFound(err error) bool { return HasCode(err, "FLOW_NOT_FOUND") }

func IsInvalidFlowStep(err error) bool { return HasCode(err, "INVALID_FLOW_STEP") }

func IsMediaProcessing(err error) bool { return HasCode(err, "MEDIA_PROCESSING") }

// ToDomainError converts generic errors to DomainError.
func ToDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	if errors.Is(err, sql.ErrNoRows) {
		if de, ok := NewNotFound("resource", nil).(*DomainError); ok {
			return de
		}
	}
	if de, ok := NewInternalError(err).(*DomainError); ok {
		return de
	}
	return &DomainError{
		Code:       "INTERNAL_ERROR",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func MapError(err error) error {
	return ToDomainError(err)
}
