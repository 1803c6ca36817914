package payoutd

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// AdminServer exposes HTTP endpoints for operator controls.
type AdminServer struct {
	drainer *Drainer
	mux     *http.ServeMux
}

// NewAdminServer constructs a server wrapping the provided drainer. Every
// route except /healthz and /metrics requires auth.
func NewAdminServer(drainer *Drainer, auth *Authenticator) *AdminServer {
	mux := http.NewServeMux()
	server := &AdminServer{drainer: drainer, mux: mux}
	mux.Handle("POST /pause", auth.Middleware(http.HandlerFunc(server.handlePause)))
	mux.Handle("POST /resume", auth.Middleware(http.HandlerFunc(server.handleResume)))
	mux.Handle("POST /drain", auth.Middleware(http.HandlerFunc(server.handleDrain)))
	mux.Handle("GET /status", auth.Middleware(http.HandlerFunc(server.handleStatus)))
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", promhttp.Handler())
	return server
}

// ServeHTTP implements http.Handler.
func (s *AdminServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *AdminServer) handlePause(w http.ResponseWriter, r *http.Request) {
	s.drainer.Pause()
	w.WriteHeader(http.StatusNoContent)
}

func (s *AdminServer) handleResume(w http.ResponseWriter, r *http.Request) {
	s.drainer.Resume()
	w.WriteHeader(http.StatusNoContent)
}

func (s *AdminServer) handleDrain(w http.ResponseWriter, r *http.Request) {
	result, err := s.drainer.Cycle(r.Context())
	if err != nil {
		status := http.StatusBadGateway
		if errors.Is(err, ErrDrainerPaused) {
			status = http.StatusConflict
		}
		writeJSON(w, status, map[string]any{"error": err.Error(), "result": result})
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *AdminServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.drainer.Status(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
