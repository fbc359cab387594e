package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/hupe1980/metastore"
)

const contentTypeJSON = "application/json"

// Status is the outcome reported in every response body.
type Status string

const (
	// StatusOK is used for health-check responses.
	StatusOK Status = "OK"

	// StatusSuccess indicates an operation completed successfully.
	StatusSuccess Status = "success"

	// StatusError indicates an operation failed.
	StatusError Status = "error"
)

// Response is the envelope of every API response.
type Response struct {
	Status Status `json:"status"`
	Data   any    `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
}

// NewOKResponse returns a health-check response.
func NewOKResponse() Response {
	return Response{Status: StatusOK}
}

// NewSuccessResponse wraps data in a success response.
func NewSuccessResponse(data any) Response {
	return Response{Status: StatusSuccess, Data: data}
}

// NewErrorResponse returns an error response.
func NewErrorResponse(err string) Response {
	return Response{Status: StatusError, Error: err}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("Error encoding response", "error", err)
	}
}

// statusCode maps metastore errors to HTTP status codes.
func statusCode(err error) int {
	switch {
	case errors.Is(err, metastore.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, metastore.ErrAlreadyExists),
		errors.Is(err, metastore.ErrDuplicateSplit),
		errors.Is(err, metastore.ErrIndexNotEmpty),
		errors.Is(err, metastore.ErrConcurrentModification):
		return http.StatusConflict
	case errors.Is(err, metastore.ErrInvalidStateTransition),
		errors.Is(err, metastore.ErrInvalidArgument):
		return http.StatusUnprocessableEntity
	case errors.Is(err, metastore.ErrBackendUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusCode(err), NewErrorResponse(err.Error()))
}
