package api

import (
	"net/http"
	"time"

	"github.com/muaviaUsmani/hearth/internal/errors"
)

// statusRecorder captures the status code written by a handler
type statusRecorder struct {
	http.ResponseWriter
	status  int
	written bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.written {
		r.status = code
		r.written = true
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if !r.written {
		r.status = http.StatusOK
		r.written = true
	}
	return r.ResponseWriter.Write(b)
}

// recoverMiddleware turns a handler panic into a 500 response
func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				err := errors.RecoverPanic(rec)
				var pe *errors.PanicError
				if errors.As(err, &pe) {
					s.log.ErrorContext(r.Context(), "Handler panicked",
						"method", r.Method,
						"path", r.URL.Path,
						"panic", errors.FormatPanicForLog(pe))
				}
				writeJSON(w, http.StatusInternalServerError, errorBody{Code: codeInternal, Message: internalMessage})
				s.metrics.RecordRequest(http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// logMiddleware logs each request and counts it by status code
func (s *Server) logMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.metrics.RecordRequest(rec.status)
		s.log.DebugContext(r.Context(), "Request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration", time.Since(start))
	})
}

// rateLimitMiddleware rejects requests beyond the token bucket with 429.
// Health checks are never limited.
func (s *Server) rateLimitMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" && !s.limiter.Allow() {
			w.Header().Set("Retry-After", "1")
			writeJSON(w, http.StatusTooManyRequests, errorBody{Error: "Too Many Requests", Message: "Rate limit exceeded."})
			return
		}
		next.ServeHTTP(w, r)
	})
}
