package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/meishi/backend/internal/apperr"
	"github.com/meishi/backend/internal/logging"
)

// maxJSONBody bounds JSON request bodies.
const maxJSONBody = 64 << 10

type errorResponse struct {
	Success bool        `json:"success"`
	Code    apperr.Code `json:"code"`
	Message string      `json:"message"`
}

func respondJSON(ctx context.Context, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logging.FromContext(ctx).Error("encode response body", "status", status, "error", err)
		return
	}

	logger := logging.FromContext(ctx)
	switch {
	case status >= http.StatusInternalServerError:
		logger.Error("request failed", "status", status, "response", payload)
	case status >= http.StatusBadRequest:
		logger.Warn("request returned client error", "status", status, "response", payload)
	}
}

// respondError writes the error payload for err. Only the caller-safe
// message is sent; the cause goes to the log.
func respondError(ctx context.Context, w http.ResponseWriter, err error) {
	code := apperr.CodeOf(err)
	status := statusFor(code)
	if status >= http.StatusInternalServerError {
		logging.FromContext(ctx).Error("operation failed", "code", code, "error", err)
	}
	respondJSON(ctx, w, status, errorResponse{Code: code, Message: apperr.MessageOf(err)})
}

func statusFor(code apperr.Code) int {
	switch code {
	case apperr.CodeMalformed, apperr.CodeSelfExchange:
		return http.StatusBadRequest
	case apperr.CodeUnauthorized:
		return http.StatusUnauthorized
	case apperr.CodeNotFound:
		return http.StatusNotFound
	case apperr.CodeConflict:
		return http.StatusConflict
	case apperr.CodeExpired:
		return http.StatusGone
	case apperr.CodeRateLimited:
		return http.StatusTooManyRequests
	case apperr.CodeExhausted, apperr.CodeStoreUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON strictly decodes a single JSON object into dst. Unknown fields,
// trailing data and oversized bodies are MALFORMED.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxJSONBody))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		return apperr.Wrap(apperr.CodeMalformed, "invalid request body", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return apperr.Wrap(apperr.CodeMalformed, "invalid request body", fmt.Errorf("trailing data after JSON object"))
	}
	return nil
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	for _, m := range allowed {
		w.Header().Add("Allow", m)
	}
	w.WriteHeader(http.StatusMethodNotAllowed)
}

func unavailable(ctx context.Context, w http.ResponseWriter, what string) {
	logging.FromContext(ctx).Error("handler dependency unavailable", "dependency", what)
	respondJSON(ctx, w, http.StatusInternalServerError, errorResponse{Code: apperr.CodeUnknown, Message: what + " unavailable"})
}
