package kv

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by Get when no item exists under the key.
var ErrNotFound = errors.New("kv: item not found")

// Cancellation reason codes, named after DynamoDB's.
const (
	ReasonNone                   = "None"
	ReasonConditionalCheckFailed = "ConditionalCheckFailed"
	ReasonTransactionConflict    = "TransactionConflict"
	ReasonValidationError        = "ValidationError"
)

// ConditionFailedError reports a failed precondition on a single-item write.
type ConditionFailedError struct {
	Key Key
}

func (e *ConditionFailedError) Error() string {
	return fmt.Sprintf("kv: condition failed for %s/%s", e.Key.PK, e.Key.SK)
}

// CancelReason explains why one item of a transaction did not commit.
type CancelReason struct {
	Code    string
	Message string
}

// TransactionCanceledError reports a rejected transaction. Reasons has one
// entry per requested item, in order.
type TransactionCanceledError struct {
	Reasons []CancelReason
}

func (e *TransactionCanceledError) Error() string {
	codes := make([]string, len(e.Reasons))
	for i, r := range e.Reasons {
		codes[i] = r.Code
	}
	return fmt.Sprintf("kv: transaction cancelled [%s]", strings.Join(codes, ", "))
}

// ConditionFailedAt reports whether item i was rejected by its precondition.
func (e *TransactionCanceledError) ConditionFailedAt(i int) bool {
	return i >= 0 && i < len(e.Reasons) && e.Reasons[i].Code == ReasonConditionalCheckFailed
}

// HasReason reports whether any item was rejected with code.
func (e *TransactionCanceledError) HasReason(code string) bool {
	for _, r := range e.Reasons {
		if r.Code == code {
			return true
		}
	}
	return false
}

// BackendError wraps any other backend failure, keeping the backend's own
// error code for diagnostics.
type BackendError struct {
	Op        string
	Code      string
	Message   string
	Retryable bool
	Err       error
}

func (e *BackendError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("kv: %s failed (%s): %s", e.Op, e.Code, e.Message)
	}
	return fmt.Sprintf("kv: %s failed: %s", e.Op, e.Message)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// IsConditionFailed reports whether err is a single-item precondition failure.
func IsConditionFailed(err error) bool {
	var cf *ConditionFailedError
	return errors.As(err, &cf)
}

// IsRetryable reports whether err is transient: throttling, conflicts with a
// concurrent transaction, lost connections and deadline expiry.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var be *BackendError
	if errors.As(err, &be) {
		return be.Retryable
	}
	var tc *TransactionCanceledError
	if errors.As(err, &tc) {
		return tc.HasReason(ReasonTransactionConflict) && !tc.HasReason(ReasonConditionalCheckFailed)
	}
	return false
}

// ErrorCode extracts the backend diagnostic code carried by err, if any.
func ErrorCode(err error) string {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Code
	}
	var tc *TransactionCanceledError
	if errors.As(err, &tc) {
		return "TransactionCanceled"
	}
	var cf *ConditionFailedError
	if errors.As(err, &cf) {
		return ReasonConditionalCheckFailed
	}
	return ""
}
