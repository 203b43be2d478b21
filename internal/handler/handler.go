package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"stockwatch/internal/model"

	"github.com/rs/zerolog"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Log the error but don't expose it to the client
		return
	}
}

// writeError writes an error response with the given status code, code and
// message.
func writeError(w http.ResponseWriter, status int, code, message string, logger zerolog.Logger) {
	logger.Warn().Str("error", code).Str("message", message).Int("status", status).Msg("handler error")
	writeJSON(w, status, model.ErrorResponse{Error: code, Message: message})
}

// writeDomainError renders err with the status for its kind. Storage and
// internal failures are logged in full but reach the client as code and
// message only.
func writeDomainError(w http.ResponseWriter, err error, logger zerolog.Logger) {
	var de *model.DomainError
	if !errors.As(err, &de) {
		logger.Error().Err(err).Msg("unexpected error")
		writeJSON(w, http.StatusInternalServerError, model.ErrorResponse{
			Error:   model.ErrCodeInternalError,
			Message: "Internal server error",
		})
		return
	}

	status := statusForKind(de.Kind)
	resp := model.ErrorResponse{Error: de.Code, Message: de.Message}

	switch de.Kind {
	case model.KindStorage, model.KindUnavailable, model.KindInternal:
		logger.Error().
			Err(de.Err).
			Str("error", de.Code).
			Interface("details", de.Details).
			Int("status", status).
			Msg("request failed")
	default:
		resp.Details = de.Details
		logger.Debug().Str("error", de.Code).Int("status", status).Msg("request rejected")
	}

	writeJSON(w, status, resp)
}

func statusForKind(kind model.ErrorKind) int {
	switch kind {
	case model.KindNotFound:
		return http.StatusNotFound
	case model.KindAlreadyExists:
		return http.StatusConflict
	case model.KindInsufficientStock, model.KindInvalid:
		return http.StatusBadRequest
	case model.KindForbidden:
		return http.StatusForbidden
	case model.KindUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads the request body into dst.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// pathParam returns the path segment after prefix, or "" when there is none
// or it spans more than one segment.
func pathParam(path, prefix string) string {
	if !strings.HasPrefix(path, prefix) {
		return ""
	}
	param := strings.TrimSuffix(path[len(prefix):], "/")
	if strings.Contains(param, "/") {
		return ""
	}
	return param
}
