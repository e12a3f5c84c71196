package httpapi

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hsn0918/filingtree/internal/logger"
)

// withLogging attaches a request ID, route, and latency to every request,
// modeled on the teacher's verbose zap-field logging in server/get_context.go
// (spec.md SPEC_FULL.md §9 "Structured per-request logging middleware").
func withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := uuid.NewString()

		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		r.Header.Set("X-Request-Id", requestID)
		rw.Header().Set("X-Request-Id", requestID)

		next.ServeHTTP(rw, r)

		logger.Get().Info("http request",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rw.status),
			zap.Duration("latency", time.Since(start)),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
