package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/aretw0/crosschain"
	"github.com/aretw0/crosschain/internal/logging"
	"github.com/aretw0/crosschain/pkg/domain"
	"github.com/aretw0/crosschain/pkg/health"
	"github.com/aretw0/crosschain/pkg/registry"
	"github.com/aretw0/crosschain/pkg/router"
	"github.com/aretw0/crosschain/pkg/state"
	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Mesh is what the HTTP API needs from a crosschain mesh.
type Mesh interface {
	RegisterChain(chainID string, chain domain.Chain, opts ...crosschain.ChainOption) error
	DeregisterChain(chainID string) error
	Route(ctx context.Context, msg domain.Message) domain.RouteResult
	Broadcast(ctx context.Context, msg domain.Message, chainIDs []string) map[string]domain.RouteResult
	Registry() *registry.Registry
	Router() *router.Router
	State() *state.Manager
	Health() *health.Service
}

// Server exposes a Mesh over HTTP.
type Server struct {
	mesh     Mesh
	gatherer prometheus.Gatherer
	logger   *slog.Logger
}

// Option configures the Server.
type Option func(*Server)

// WithGatherer serves the gatherer's metrics on /metrics.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// WithLogger configures a logger for request errors.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// NewHandler creates a new HTTP handler for the mesh.
func NewHandler(mesh Mesh, opts ...Option) http.Handler {
	s := &Server{
		mesh:   mesh,
		logger: logging.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()

	r.Get("/", s.GetRoot)
	r.Get("/health", s.GetHealth)
	r.Get("/health/dashboard", s.GetHealthDashboard)
	r.Get("/health/chains/{chainId}", s.GetChainHealth)

	r.Get("/chains", s.ListChains)
	r.Post("/chains", s.RegisterChain)
	r.Delete("/chains/{chainId}", s.DeregisterChain)
	r.Post("/chains/{chainId}/messages", s.RouteMessage)
	r.Post("/chains/{chainId}/send", s.SendMessage)
	r.Get("/chains/{chainId}/inbox", s.DrainInbox)
	r.Post("/broadcast", s.Broadcast)

	r.Get("/state", s.GetStateSnapshot)
	r.Get("/state/{key}", s.GetStateKey)
	r.Put("/state/{key}", s.SetStateKey)
	r.Delete("/state/{key}", s.DeleteStateKey)

	r.Get("/openapi.yaml", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/yaml")
		w.Write(rawSpec)
	})
	r.Get("/info", s.GetInfo)

	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	return enableCORS(r)
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// -- Helpers --

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "err", err)
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, err error) {
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnknownChain),
		errors.Is(err, domain.ErrUnknownKey),
		errors.Is(err, domain.ErrNoHandler):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrDuplicateChain):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidChain), errors.Is(err, state.ErrNotMap):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrCycleDetected):
		return http.StatusLoopDetected
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

// pathParam binds a simple-style path parameter.
func pathParam(r *http.Request, name string) (string, error) {
	var v string
	err := runtime.BindStyledParameterWithOptions("simple", name, chi.URLParam(r, name), &v,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Explode: false, Required: true})
	if err != nil {
		return "", fmt.Errorf("invalid format for parameter %s: %w", name, err)
	}
	return v, nil
}

func decode(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}

// -- Service --

// GetRoot handles the GET / request.
func (s *Server) GetRoot(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"message": "Crosschain API is running. See /openapi.yaml for the API description.",
	})
}

// GetHealth handles the GET /health request.
func (s *Server) GetHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "operational", "message": "API is healthy"})
}

// GetInfo handles the GET /info request.
func (s *Server) GetInfo(w http.ResponseWriter, r *http.Request) {
	apiVersion := "unknown"
	if swagger, err := GetSwagger(); err == nil && swagger.Info != nil {
		apiVersion = swagger.Info.Version
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"app":         "crosschain-http",
		"version":     strings.TrimSpace(crosschain.Version),
		"api_version": apiVersion,
	})
}

// -- Health --

// GetHealthDashboard handles the GET /health/dashboard request.
func (s *Server) GetHealthDashboard(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.mesh.Health().Dashboard(r.Context()))
}

// GetChainHealth handles the GET /health/chains/{chainId} request.
func (s *Server) GetChainHealth(w http.ResponseWriter, r *http.Request) {
	chainID, err := pathParam(r, "chainId")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	report, err := s.mesh.Health().Check(r.Context(), chainID)
	if err != nil {
		s.writeError(w, http.StatusNotFound, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

// -- Chains --

type chainInfo struct {
	ID       string   `json:"id"`
	Handlers []string `json:"handlers"`
	Healthy  bool     `json:"healthy"`
}

// ListChains handles the GET /chains request.
func (s *Server) ListChains(w http.ResponseWriter, r *http.Request) {
	ids := s.mesh.Registry().List()
	chains := make([]chainInfo, 0, len(ids))
	for _, id := range ids {
		chains = append(chains, chainInfo{
			ID:       id,
			Handlers: s.mesh.Router().Handlers(id),
			Healthy:  s.mesh.Health().Heartbeats().IsAlive(id),
		})
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"chains": chains})
}

type registerChainRequest struct {
	ID           string `json:"id"`
	PingInterval string `json:"ping_interval,omitempty"`
}

// passiveChain stands for a participant living outside the process.
// It only echoes its input; its messages are collected through the inbox.
var passiveChain = domain.ChainFunc(func(ctx context.Context, input any) (any, error) {
	return input, nil
})

// RegisterChain handles the POST /chains request.
func (s *Server) RegisterChain(w http.ResponseWriter, r *http.Request) {
	var body registerChainRequest
	if err := decode(r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}

	var opts []crosschain.ChainOption
	if body.PingInterval != "" {
		d, err := time.ParseDuration(body.PingInterval)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid ping_interval: %w", err))
			return
		}
		opts = append(opts, crosschain.PingEvery(d))
	}

	if err := s.mesh.RegisterChain(body.ID, passiveChain, opts...); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	s.logger.Info("chain registered over http", "chain_id", body.ID)
	s.writeJSON(w, http.StatusCreated, map[string]string{"id": body.ID})
}

// DeregisterChain handles the DELETE /chains/{chainId} request.
func (s *Server) DeregisterChain(w http.ResponseWriter, r *http.Request) {
	chainID, err := pathParam(r, "chainId")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.mesh.DeregisterChain(chainID); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RouteMessage handles the POST /chains/{chainId}/messages request.
// The path chain overrides any destination in the body.
func (s *Server) RouteMessage(w http.ResponseWriter, r *http.Request) {
	chainID, err := pathParam(r, "chainId")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	var msg domain.Message
	if err := decode(r, &msg); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	msg.Destination = chainID

	res := s.mesh.Route(r.Context(), msg)
	status := http.StatusOK
	if !res.Success {
		status = statusFor(res.Err)
	}
	s.writeJSON(w, status, res)
}

// SendMessage handles the POST /chains/{chainId}/send request.
func (s *Server) SendMessage(w http.ResponseWriter, r *http.Request) {
	chainID, err := pathParam(r, "chainId")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	var msg domain.Message
	if err := decode(r, &msg); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	msg.Destination = chainID

	if err := s.mesh.Router().Send(r.Context(), msg); err != nil {
		s.writeError(w, statusFor(err), err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// DrainInbox handles the GET /chains/{chainId}/inbox request.
func (s *Server) DrainInbox(w http.ResponseWriter, r *http.Request) {
	chainID, err := pathParam(r, "chainId")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	var msgType string
	if err := runtime.BindQueryParameter("form", true, true, "type", r.URL.Query(), &msgType); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid format for parameter type: %w", err))
		return
	}
	if !s.mesh.Registry().Contains(chainID) {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("%w: %s", domain.ErrUnknownChain, chainID))
		return
	}

	msgs := s.mesh.Router().MessagesFor(chainID, msgType)
	if msgs == nil {
		msgs = []domain.Message{}
	}
	s.writeJSON(w, http.StatusOK, msgs)
}

type broadcastRequest struct {
	Message domain.Message `json:"message"`
	Targets []string       `json:"targets"`
}

// Broadcast handles the POST /broadcast request.
func (s *Server) Broadcast(w http.ResponseWriter, r *http.Request) {
	var body broadcastRequest
	if err := decode(r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if len(body.Targets) == 0 {
		s.writeError(w, http.StatusBadRequest, errors.New("targets must not be empty"))
		return
	}
	s.writeJSON(w, http.StatusOK, s.mesh.Broadcast(r.Context(), body.Message, body.Targets))
}

// -- State --

// GetStateSnapshot handles the GET /state request.
func (s *Server) GetStateSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.mesh.State().Snapshot(r.Context())
	if err != nil {
		s.logger.Error("state snapshot failed", "err", err)
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

// GetStateKey handles the GET /state/{key} request.
func (s *Server) GetStateKey(w http.ResponseWriter, r *http.Request) {
	key, err := pathParam(r, "key")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	v, ok, err := s.mesh.State().Get(r.Context(), key)
	if err != nil {
		s.logger.Error("state read failed", "key", key, "err", err)
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if !ok {
		s.writeError(w, http.StatusNotFound, fmt.Errorf("%w: %s", domain.ErrUnknownKey, key))
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"key": key, "value": v})
}

type setStateRequest struct {
	Value any `json:"value"`
}

// SetStateKey handles the PUT /state/{key} request.
func (s *Server) SetStateKey(w http.ResponseWriter, r *http.Request) {
	key, err := pathParam(r, "key")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	var body setStateRequest
	if err := decode(r, &body); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if err := s.mesh.State().Set(r.Context(), key, body.Value); err != nil {
		s.logger.Error("state write failed", "key", key, "err", err)
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteStateKey handles the DELETE /state/{key} request.
func (s *Server) DeleteStateKey(w http.ResponseWriter, r *http.Request) {
	key, err := pathParam(r, "key")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := s.mesh.State().Delete(r.Context(), key); err != nil {
		if errors.Is(err, domain.ErrUnknownKey) {
			s.writeError(w, http.StatusNotFound, err)
			return
		}
		s.logger.Error("state delete failed", "key", key, "err", err)
		s.writeError(w, http.StatusInternalServerError, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
