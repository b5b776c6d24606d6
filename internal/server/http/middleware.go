package httpserver

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/helixir/vehicle-tracking-service/internal/observability"
	"github.com/helixir/vehicle-tracking-service/internal/ratelimit"
	"github.com/helixir/vehicle-tracking-service/internal/repository"
)

// requestIDHeader carries the request ID in both directions.
const requestIDHeader = "X-Request-ID"

// caseContextMiddleware validates the caseID path parameter and stores it
// in the request context.
func caseContextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		caseID := chi.URLParam(r, "caseID")
		if err := repository.ValidateCaseID(caseID); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(observability.WithCaseID(r.Context(), caseID)))
	})
}

// requestIDMiddleware ensures every request has a request ID, preferring a
// caller-supplied one.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = middleware.GetReqID(r.Context())
		}
		if requestID == "" {
			requestID = uuid.NewString()
		}

		w.Header().Set(requestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(observability.WithRequestID(r.Context(), requestID)))
	})
}

// rateLimitMiddleware rejects requests beyond the limiter's budget with 429.
// A nil limiter never rejects.
func rateLimitMiddleware(limiter *ratelimit.Limiter, metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !limiter.Allow() {
				metrics.RecordCaseTrigger("rate_limited")
				w.Header().Set("Retry-After", "1")
				writeError(w, http.StatusTooManyRequests, "too many processing requests")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// jsonContentTypeMiddleware sets Content-Type: application/json for all responses.
func jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}
