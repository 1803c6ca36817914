package airdropd

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"refdrop/native/airdrop"
	api "refdrop/sdk/airdrop"
)

const maxBodyBytes = 1 << 20

// Server exposes the airdrop engine over HTTP.
type Server struct {
	engine  *airdrop.Engine
	auth    *Authenticator
	limiter *RateLimiter
	logger  *slog.Logger
}

// NewServer wires the engine behind auth and rate limiting. A nil limiter
// disables throttling.
func NewServer(engine *airdrop.Engine, auth *Authenticator, limiter *RateLimiter, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{engine: engine, auth: auth, limiter: limiter, logger: logger}
}

// Handler returns the routed, instrumented HTTP handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP, requestID, recoverer(s.logger), observe(s.logger))

	r.Get("/healthz", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(pr chi.Router) {
		pr.Use(s.auth.Middleware)

		redeem := pr.With()
		if s.limiter != nil {
			redeem = pr.With(s.limiter.Middleware)
		}
		redeem.Post("/v1/redeem", s.handleRedeem)
		pr.Post("/v1/codes", s.handleGenerateCode)
		pr.Get("/v1/code", s.handleGetCode)
		pr.Get("/v1/redeemed", s.handleHasRedeemed)
		pr.Get("/v1/manager", s.handleIsManager)

		pr.Route("/v1/admin", func(ar chi.Router) {
			ar.Post("/codes", s.handleAddCodes)
			ar.Post("/admins", s.handleAddAdmin)
			ar.Post("/managers", s.handleAddManager)
			ar.Post("/kill", s.handleKill)
			ar.Post("/revive", s.handleRevive)
			ar.Get("/airdrop", s.handleGetAirdrop)
			ar.Put("/airdrop", s.handlePutAirdrop)
			ar.Get("/stats", s.handleStats)
		})
	})

	return otelhttp.NewHandler(r, "airdropd")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "killed": s.engine.Killed()})
}

func caller(r *http.Request) airdrop.Principal {
	principal, _ := PrincipalFrom(r.Context())
	return principal
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, airdrop.Kind(airdrop.ErrGeneral), fmt.Sprintf("invalid request: %v", err))
		return false
	}
	return true
}

func (s *Server) handleRedeem(w http.ResponseWriter, r *http.Request) {
	var req api.RedeemRequest
	if !decodeBody(w, r, &req) {
		return
	}
	code := airdrop.Code(strings.TrimSpace(string(req.Code)))
	info, err := s.engine.RedeemCode(r.Context(), caller(r), code)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleGenerateCode(w http.ResponseWriter, r *http.Request) {
	info, err := s.engine.GenerateCode(caller(r))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, info)
}

func (s *Server) handleGetCode(w http.ResponseWriter, r *http.Request) {
	info, err := s.engine.GetCode(caller(r))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleHasRedeemed(w http.ResponseWriter, r *http.Request) {
	redeemed, err := s.engine.HasRedeemed(caller(r))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.RedeemedResponse{Redeemed: redeemed})
}

func (s *Server) handleIsManager(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, api.ManagerResponse{Manager: s.engine.IsManager(caller(r))})
}

func (s *Server) handleAddCodes(w http.ResponseWriter, r *http.Request) {
	var req api.AddCodesRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.engine.AddCodes(caller(r), req.Codes); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.AddCodesResponse{Added: len(req.Codes), Remaining: s.engine.Stats().PoolRemaining})
}

func (s *Server) handleAddAdmin(w http.ResponseWriter, r *http.Request) {
	var req api.PrincipalRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.engine.AddAdmin(caller(r), req.Principal); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleAddManager(w http.ResponseWriter, r *http.Request) {
	var req api.ManagerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.engine.AddManager(caller(r), req.Principal, req.Name); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleKill(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Kill(caller(r)); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.EmergencyStopResponse{Killed: true})
}

func (s *Server) handleRevive(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Revive(caller(r)); err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.EmergencyStopResponse{Killed: false})
}

func (s *Server) handleGetAirdrop(w http.ResponseWriter, r *http.Request) {
	var index uint64
	if raw := strings.TrimSpace(r.URL.Query().Get("index")); raw != "" {
		parsed, err := strconv.ParseUint(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, airdrop.Kind(airdrop.ErrGeneral), "index must be an unsigned integer")
			return
		}
		index = parsed
	}
	cursor, entries, indices, err := s.engine.ExportAirdrop(caller(r), airdrop.Index(index))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, api.ExportResponse{Cursor: cursor, Entries: entries, Indices: indices})
}

func (s *Server) handlePutAirdrop(w http.ResponseWriter, r *http.Request) {
	var req api.AcknowledgeRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := s.engine.PutAirdrop(caller(r), req.Index, req.Entry); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	principal := caller(r)
	if !s.engine.IsAdmin(principal) {
		writeEngineError(w, fmt.Errorf("%w: %s is not an admin", airdrop.ErrUnauthorized, principal))
		return
	}
	writeJSON(w, http.StatusOK, s.engine.Stats())
}
