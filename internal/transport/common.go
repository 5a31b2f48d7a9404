package transport

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/sensorhub/sensorhub/internal/sherrors"
)

const defaultListLimit = 100

// ErrorResponse is the body shape of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// IngestResponse acknowledges a single accepted telemetry point.
type IngestResponse struct {
	Status string `json:"status"`
}

// BatchIngestResponse acknowledges an accepted telemetry batch.
type BatchIngestResponse struct {
	Status string `json:"status"`
	Count  int    `json:"count"`
}

// RegisterFirmwareResponse acknowledges a registered firmware version.
type RegisterFirmwareResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// WriteJSONResponse encodes body into a buffer first to catch encoding errors
// before the status code is committed.
func WriteJSONResponse(w http.ResponseWriter, body any, code int) {
	if body == nil || code == http.StatusNoContent {
		w.WriteHeader(code)
		return
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(buf.Bytes())
}

// SetErrorResponse maps a service error kind onto its HTTP status.
func SetErrorResponse(w http.ResponseWriter, err error) {
	WriteJSONResponse(w, ErrorResponse{Error: err.Error()}, statusFromError(err))
}

// SetParseFailureResponse reports an undecodable request body.
func SetParseFailureResponse(w http.ResponseWriter, err error) {
	WriteJSONResponse(w, ErrorResponse{Error: fmt.Sprintf("decoding request body: %v", err)}, http.StatusBadRequest)
}

// SetValidationFailureResponse reports a well-formed but invalid request body.
func SetValidationFailureResponse(w http.ResponseWriter, errs []error) {
	WriteJSONResponse(w, ErrorResponse{Error: errors.Join(errs...).Error()}, http.StatusBadRequest)
}

func statusFromError(err error) int {
	switch {
	case errors.Is(err, sherrors.ErrResourceNotFound):
		return http.StatusNotFound
	case errors.Is(err, sherrors.ErrInvalid),
		errors.Is(err, sherrors.ErrInvalidTransition),
		errors.Is(err, sherrors.ErrUnknownFirmware):
		return http.StatusBadRequest
	case errors.Is(err, sherrors.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, sherrors.ErrShed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func queryIntParam(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return fallback
	}
	return v
}

func queryTimeParam(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s must be an RFC 3339 timestamp", sherrors.ErrInvalid, name)
	}
	return &t, nil
}
