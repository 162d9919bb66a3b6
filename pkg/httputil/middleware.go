package httputil

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/relaypub/relay/pkg/observability"
)

// RequestIDHeader carries the request id on responses and inbound requests.
const RequestIDHeader = "X-Request-ID"

// statusRecorder captures the response status code for logging and metrics.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// RequestLogging returns middleware that assigns a request id, logs each
// request, and records HTTP metrics when a collector is attached.
func RequestLogging(logger *observability.Logger, metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := r.Header.Get(RequestIDHeader)
			if requestID == "" {
				requestID = uuid.NewString()
			}
			w.Header().Set(RequestIDHeader, requestID)

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(rec, r)
			duration := time.Since(start)

			logger.WithFields(map[string]interface{}{
				"request_id": requestID,
				"method":     r.Method,
				"path":       r.URL.Path,
				"status":     rec.status,
				"duration":   duration.String(),
			}).Info("Request handled")

			if metrics != nil {
				metrics.RecordHTTPRequest(r.Method, r.URL.Path, rec.status, duration)
			}
		})
	}
}
