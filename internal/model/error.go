package model

import (
	"errors"
	"fmt"
)

// ErrorResponse represents a standardised error response.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// ErrorKind classifies a domain error independently of its code.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindNotFound
	KindAlreadyExists
	KindInsufficientStock
	KindForbidden
	KindInvalid
	KindStorage
	KindUnavailable
)

func (k ErrorKind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindAlreadyExists:
		return "already_exists"
	case KindInsufficientStock:
		return "insufficient_stock"
	case KindForbidden:
		return "forbidden"
	case KindInvalid:
		return "invalid"
	case KindStorage:
		return "storage"
	case KindUnavailable:
		return "unavailable"
	default:
		return "internal"
	}
}

// Standard error codes for API responses
const (
	ErrCodeInvalidJSON           = "INVALID_JSON"
	ErrCodeMethodNotAllowed      = "METHOD_NOT_ALLOWED"
	ErrCodeValidation            = "VALIDATION_ERROR"
	ErrCodeCategoryNotFound      = "CATEGORY_NOT_FOUND"
	ErrCodeCategoryAlreadyExists = "CATEGORY_ALREADY_EXISTS"
	ErrCodeProductNotFound       = "PRODUCT_NOT_FOUND"
	ErrCodeProductAlreadyExists  = "PRODUCT_ALREADY_EXISTS"
	ErrCodeInsufficientStock     = "INSUFFICIENT_STOCK"
	ErrCodeUnauthorised          = "UNAUTHORIZED"
	ErrCodeForbidden             = "FORBIDDEN"
	ErrCodeDatabaseError         = "DATABASE_ERROR"
	ErrCodeUnavailable           = "SERVICE_UNAVAILABLE"
	ErrCodeAlertFailed           = "ALERT_FAILED"
	ErrCodeInternalError         = "INTERNAL_ERROR"
)

// DomainError is the error type returned across store and service boundaries.
// Kind drives control flow, Code is the stable machine-readable identifier and
// Details carries structured context (never rendered for storage failures).
type DomainError struct {
	Kind    ErrorKind
	Code    string
	Message string
	Details map[string]any
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap exposes the underlying backend error, if any.
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a DomainError of the same kind and, when
// target carries a code, the same code. The kind sentinels below have no code
// and so match every error of their kind.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

// NewDomainError creates a new domain error
func NewDomainError(kind ErrorKind, code, message string) *DomainError {
	return &DomainError{
		Kind:    kind,
		Code:    code,
		Message: message,
	}
}

// WithDetails returns a copy of e carrying the given details.
func (e *DomainError) WithDetails(details map[string]any) *DomainError {
	cp := *e
	cp.Details = details
	return &cp
}

// Kind sentinels, for errors.Is.
var (
	ErrNotFound          = &DomainError{Kind: KindNotFound}
	ErrAlreadyExists     = &DomainError{Kind: KindAlreadyExists}
	ErrInsufficientStock = &DomainError{Kind: KindInsufficientStock}
	ErrInvalid           = &DomainError{Kind: KindInvalid}
	ErrStorage           = &DomainError{Kind: KindStorage}
	ErrUnavailable       = &DomainError{Kind: KindUnavailable}
)

// Common domain errors
var (
	ErrCategoryNotFound      = NewDomainError(KindNotFound, ErrCodeCategoryNotFound, "Category not found")
	ErrCategoryAlreadyExists = NewDomainError(KindAlreadyExists, ErrCodeCategoryAlreadyExists, "Category already exists")
	ErrProductNotFound       = NewDomainError(KindNotFound, ErrCodeProductNotFound, "Product not found")
	ErrProductAlreadyExists  = NewDomainError(KindAlreadyExists, ErrCodeProductAlreadyExists, "Product already exists")
	ErrStockInsufficient     = NewDomainError(KindInsufficientStock, ErrCodeInsufficientStock, "Insufficient stock")
	ErrAccessForbidden       = NewDomainError(KindForbidden, ErrCodeForbidden, "Caller is not allowed to perform this action")
)

// Invalid builds a validation error for the named field.
func Invalid(field, message string) *DomainError {
	return &DomainError{
		Kind:    KindInvalid,
		Code:    ErrCodeValidation,
		Message: message,
		Details: map[string]any{"field": field},
	}
}

// StorageFailure wraps a backend failure. code is the backend's raw error code
// and is kept in Details for operators.
func StorageFailure(message, code string, err error) *DomainError {
	details := map[string]any{}
	if code != "" {
		details["backend_code"] = code
	}
	if err != nil {
		details["error"] = err.Error()
	}
	return &DomainError{
		Kind:    KindStorage,
		Code:    ErrCodeDatabaseError,
		Message: message,
		Details: details,
		Err:     err,
	}
}

// Unavailable wraps a transient backend failure that callers may retry.
func Unavailable(message string, err error) *DomainError {
	details := map[string]any{}
	if err != nil {
		details["error"] = err.Error()
	}
	return &DomainError{
		Kind:    KindUnavailable,
		Code:    ErrCodeUnavailable,
		Message: message,
		Details: details,
		Err:     err,
	}
}

// KindOf returns the kind of err, or KindInternal when err is not a DomainError.
func KindOf(err error) ErrorKind {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}
