package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/soaringjerry/Footprint/internal/models"
)

type ErrorCode string

const (
	ErrorInvalid      ErrorCode = "invalid"
	ErrorDuplicate    ErrorCode = "duplicate"
	ErrorUnauthorized ErrorCode = "unauthorized"
	ErrorConflict     ErrorCode = "conflict"
	ErrorForbidden    ErrorCode = "forbidden"
	ErrorNotFound     ErrorCode = "not_found"
	ErrorStore        ErrorCode = "store"
	ErrorPartial      ErrorCode = "partial"
	ErrorCancelled    ErrorCode = "cancelled"
)

// ServiceError is the error type returned by every service. Fields names the
// offending inputs of a validation failure; Uploaded and Pending describe a
// partial failure.
type ServiceError struct {
	Code     ErrorCode
	Message  string
	Fields   []string
	Uploaded []models.Category
	Pending  []models.Category
	Err      error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error { return e.Err }

func NewInvalidError(msg string) error { return &ServiceError{Code: ErrorInvalid, Message: msg} }

// NewValidationError reports every missing or malformed field at once.
func NewValidationError(fields ...string) error {
	return &ServiceError{
		Code:    ErrorInvalid,
		Message: "invalid or missing fields: " + strings.Join(fields, ", "),
		Fields:  fields,
	}
}

func NewDuplicateSubmissionError(period string) error {
	return &ServiceError{Code: ErrorDuplicate, Message: fmt.Sprintf("submission for %s already exists", period)}
}

func NewUnauthorizedError(msg string) error {
	return &ServiceError{Code: ErrorUnauthorized, Message: msg}
}
func NewConflictError(msg string) error  { return &ServiceError{Code: ErrorConflict, Message: msg} }
func NewForbiddenError(msg string) error { return &ServiceError{Code: ErrorForbidden, Message: msg} }
func NewNotFoundError(msg string) error  { return &ServiceError{Code: ErrorNotFound, Message: msg} }

func NewStoreError(op string, err error) error {
	return &ServiceError{Code: ErrorStore, Message: op, Err: err}
}

func NewCancelledError(op string, err error) error {
	return &ServiceError{Code: ErrorCancelled, Message: op + " cancelled", Err: err}
}

func NewPartialFailureError(uploaded, pending []models.Category, err error) error {
	return &ServiceError{
		Code:     ErrorPartial,
		Message:  "reading saved but attachments failed to upload",
		Uploaded: uploaded,
		Pending:  pending,
		Err:      err,
	}
}

func AsServiceError(err error) (*ServiceError, bool) {
	var se *ServiceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// HasCode reports whether err is a ServiceError with the given code.
func HasCode(err error, code ErrorCode) bool {
	se, ok := AsServiceError(err)
	return ok && se.Code == code
}

// ErrDuplicateIdentity is returned by an IdentityStore when the email is
// already registered.
var ErrDuplicateIdentity = errors.New("identity already exists for email")

// ErrDuplicateReading is returned by a ReadingStore when a reading for the
// same principal and period already exists.
var ErrDuplicateReading = errors.New("reading already exists for period")

// storeFailure classifies a collaborator error. Caller cancellation becomes
// Cancelled; a per-call timeout is an ordinary StoreError.
func storeFailure(op string, err error) error {
	if errors.Is(err, context.Canceled) {
		return NewCancelledError(op, err)
	}
	return NewStoreError(op, err)
}
