// Package http provides the HTTP API for planning and scanning metadata tables.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"

	metaerrors "github.com/arkilian/metatables/internal/errors"
)

// Context keys for request metadata.
type contextKey string

const (
	// requestIDKey is the context key for the request ID.
	requestIDKey contextKey = "request_id"
	// correlationIDKey is the context key for the correlation ID.
	correlationIDKey contextKey = "correlation_id"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error     string                 `json:"error"`
	Category  string                 `json:"category,omitempty"`
	Code      string                 `json:"code,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
}

// RequestIDMiddleware adds a unique request_id to each request.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Check if request_id is provided in header, otherwise generate one
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.New().String()
		}

		w.Header().Set("X-Request-ID", requestID)

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// CorrelationIDMiddleware adds a correlation ID for distributed tracing.
func CorrelationIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID := r.Header.Get("X-Correlation-ID")
		if correlationID == "" {
			// Fall back to request_id if available
			if reqID, ok := r.Context().Value(requestIDKey).(string); ok {
				correlationID = reqID
			} else {
				correlationID = uuid.New().String()
			}
		}

		w.Header().Set("X-Correlation-ID", correlationID)

		ctx := context.WithValue(r.Context(), correlationIDKey, correlationID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RecoveryMiddleware recovers from panics and returns a 500 error.
func RecoveryMiddleware(logger log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if p := recover(); p != nil {
					requestID := GetRequestID(r.Context())
					level.Error(logger).Log("msg", "panic in handler", "path", r.URL.Path, "panic", p, "request_id", requestID)
					writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal server error", RequestID: requestID})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// LoggingMiddleware logs one line per request.
func LoggingMiddleware(logger log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			level.Debug(logger).Log("msg", "request", "method", r.Method, "path", r.URL.Path,
				"status", rec.status, "duration", time.Since(start), "request_id", GetRequestID(r.Context()))
		})
	}
}

// ChainMiddleware chains multiple middleware functions together.
func ChainMiddleware(middlewares ...func(http.Handler) http.Handler) func(http.Handler) http.Handler {
	return func(final http.Handler) http.Handler {
		for i := len(middlewares) - 1; i >= 0; i-- {
			final = middlewares[i](final)
		}
		return final
	}
}

// DefaultMiddleware returns the default middleware chain for API handlers.
func DefaultMiddleware(logger log.Logger) func(http.Handler) http.Handler {
	return ChainMiddleware(
		RequestIDMiddleware,
		CorrelationIDMiddleware,
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
	)
}

// statusFor maps an error category to an HTTP status.
func statusFor(err error) int {
	switch metaerrors.GetCategory(err) {
	case metaerrors.ErrCategoryValidation, metaerrors.ErrCategoryExpression:
		return http.StatusBadRequest
	case metaerrors.ErrCategoryCatalog:
		switch metaerrors.GetCode(err) {
		case metaerrors.CodeTableNotFound:
			return http.StatusNotFound
		case metaerrors.CodeTableAlreadyExists, metaerrors.CodeCommitConflict:
			return http.StatusConflict
		}
	case metaerrors.ErrCategoryPlanning:
		if metaerrors.GetCode(err) == metaerrors.CodeUnknownMetadataTable {
			return http.StatusNotFound
		}
	case metaerrors.ErrCategoryMetadata:
		if metaerrors.GetCode(err) == metaerrors.CodeSnapshotNotFound {
			return http.StatusNotFound
		}
	}
	return http.StatusInternalServerError
}

// writeError writes err with the status its category maps to.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	resp := ErrorResponse{
		Error:     err.Error(),
		Category:  string(metaerrors.GetCategory(err)),
		Code:      metaerrors.GetCode(err),
		RequestID: GetRequestID(r.Context()),
	}
	var me *metaerrors.MetaError
	if errors.As(err, &me) {
		resp.Details = me.Details
	}
	writeJSON(w, statusFor(err), resp)
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey).(string); ok {
		return id
	}
	return ""
}

// GetCorrelationID retrieves the correlation ID from the context.
func GetCorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}
