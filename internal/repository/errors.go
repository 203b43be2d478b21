package repository

import (
	"errors"

	"stockwatch/internal/kv"
	"stockwatch/internal/model"
)

// backendFailure converts an unexpected backend error into a domain error:
// Unavailable when retrying may help, StorageError otherwise. The backend's
// code and any cancellation reasons are kept in the details.
func backendFailure(message string, err error) *model.DomainError {
	if kv.IsRetryable(err) {
		return model.Unavailable(message, err)
	}

	de := model.StorageFailure(message, kv.ErrorCode(err), err)

	var tc *kv.TransactionCanceledError
	if errors.As(err, &tc) {
		reasons := make([]string, len(tc.Reasons))
		for i, r := range tc.Reasons {
			reasons[i] = r.Code
		}
		de.Details["cancellation_reasons"] = reasons
	}
	return de
}

// unavailable reports any backend failure of a category write as retryable.
func unavailable(message string, err error) *model.DomainError {
	de := model.Unavailable(message, err)
	if code := kv.ErrorCode(err); code != "" {
		de.Details["backend_code"] = code
	}
	return de
}

func decodeFailure(message string, err error) *model.DomainError {
	return model.StorageFailure(message, "DecodeError", err)
}

// conditionFailed reports whether err says the first item's precondition
// failed, either as a single write or as item 0 of a transaction.
func conditionFailed(err error) bool {
	if kv.IsConditionFailed(err) {
		return true
	}
	var tc *kv.TransactionCanceledError
	return errors.As(err, &tc) && tc.ConditionFailedAt(0)
}
