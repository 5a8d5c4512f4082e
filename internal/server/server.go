package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"waterwise/internal/handlers"
	"waterwise/internal/logger"
	"waterwise/internal/metrics"
)

// Routes holds the handlers mounted by NewRouter.
type Routes struct {
	Submit  http.Handler
	History http.Handler
	Metrics http.Handler
}

// RateLimit bounds POST /submit. A zero RequestsPerSecond disables it.
type RateLimit struct {
	RequestsPerSecond float64
	Burst             int
}

// NewRouter wires the HTTP surface with instrumentation middleware.
func NewRouter(routes Routes, limit RateLimit) *mux.Router {
	router := mux.NewRouter()

	submit := routes.Submit
	if limit.RequestsPerSecond > 0 {
		submit = rateLimit(rate.NewLimiter(rate.Limit(limit.RequestsPerSecond), limit.Burst), submit)
	}
	router.Handle("/submit", instrumentHandler("submit", submit)).Methods(http.MethodPost)

	if routes.History != nil {
		router.Handle("/submissions", instrumentHandler("submissions", routes.History)).Methods(http.MethodGet)
	}
	router.Handle("/health", instrumentHandler("health", http.HandlerFunc(handlers.HealthHandler))).Methods(http.MethodGet)

	metricsHandler := routes.Metrics
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	router.Handle("/metrics", metricsHandler).Methods(http.MethodGet)

	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "method_not_allowed")
	})
	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found", "not_found")
	})

	return router
}

// instrumentHandler wraps an HTTP handler with Prometheus instrumentation
func instrumentHandler(handlerName string, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		startTime := time.Now()

		// Wrap ResponseWriter to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		handler.ServeHTTP(wrapped, r)

		duration := time.Since(startTime).Seconds()
		metrics.HTTPRequestDuration.WithLabelValues(handlerName, r.Method).Observe(duration)
		metrics.HTTPRequestsTotal.WithLabelValues(handlerName, r.Method, strconv.Itoa(wrapped.statusCode)).Inc()
	})
}

func rateLimit(limiter *rate.Limiter, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !limiter.Allow() {
			metrics.SubmissionsTotal.WithLabelValues("rate_limited").Inc()
			logger.Warn("submission rate limited", map[string]interface{}{
				"remote_addr": r.RemoteAddr,
			})
			w.Header().Set("Retry-After", "1")
			writeError(w, http.StatusTooManyRequests, "Too many requests", "rate_limited")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func writeError(w http.ResponseWriter, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message, "code": code})
}
