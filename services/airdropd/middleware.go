package airdropd

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"refdrop/observability"
)

const requestIDHeader = "X-Request-ID"

// requestID propagates a caller supplied request ID or assigns a new one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		r.Header.Set(requestIDHeader, id)
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// observe records request metrics keyed by the matched route pattern and
// logs the outcome.
func observe(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(recorder, r)
			route := r.URL.Path
			if rctx := chi.RouteContext(r.Context()); rctx != nil {
				if pattern := rctx.RoutePattern(); pattern != "" {
					route = pattern
				}
			}
			elapsed := time.Since(start)
			observability.ModuleMetrics().Observe("airdropd", r.Method+" "+route, recorder.status, elapsed)
			logger.Debug("request served",
				slog.String("requestId", r.Header.Get(requestIDHeader)),
				slog.String("route", route),
				slog.Int("status", recorder.status),
				slog.Duration("elapsed", elapsed))
		})
	}
}

// recoverer turns panics into a JSON 500 so the listener survives an
// invariant violation in the engine.
func recoverer(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					logger.Error("handler panic",
						slog.String("requestId", r.Header.Get(requestIDHeader)),
						slog.String("panic", fmt.Sprint(rec)),
						slog.String("stack", string(debug.Stack())))
					writeError(w, http.StatusInternalServerError, "GeneralError", "internal error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
