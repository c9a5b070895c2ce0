package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/cartridge/rrc-policy/internal/metrics"
	"github.com/cartridge/rrc-policy/internal/middleware"
	"github.com/cartridge/rrc-policy/internal/obs"
	"github.com/cartridge/rrc-policy/internal/policy"
)

const maxObservationBody = 256 * 1024

// ActionRequest is the body of POST /api/v1/action.
type ActionRequest struct {
	Observation []float64 `json:"observation"`
}

// ActionResponse is returned by POST /api/v1/action.
type ActionResponse struct {
	Action []float64 `json:"action"`
	Step   int64     `json:"step"`
}

// Server wires HTTP handlers to a policy. The policy must be safe for
// concurrent use, e.g. a *policy.Synchronized.
type Server struct {
	policy  policy.Policy
	metrics *metrics.Collector
	logger  zerolog.Logger

	// steps since the last reset
	steps atomic.Int64
}

// NewServer constructs a Server instance.
func NewServer(p policy.Policy, collector *metrics.Collector, logger zerolog.Logger) *Server {
	return &Server{
		policy:  p,
		metrics: collector,
		logger:  logger.With().Str("component", "http").Logger(),
	}
}

// Routes builds the HTTP router for the policy service.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.CorrelationID)
	r.Use(middleware.RequestLogger(s.logger, s.metrics))
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/spec", s.handleSpec)
		r.Post("/reset", s.handleReset)
		r.Post("/action", s.handleAction)
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSpec(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.policy.Info())
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	s.policy.Reset()
	previous := s.steps.Swap(0)
	if s.metrics != nil {
		s.metrics.EpisodeReset("http", int(previous))
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "reset", "previous_steps": previous})
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		s.writeError(w, http.StatusUnsupportedMediaType, "content type must be application/json")
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxObservationBody)
	defer r.Body.Close()
	var payload ActionRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid observation payload")
		return
	}
	if payload.Observation == nil {
		s.writeError(w, http.StatusBadRequest, "observation is required")
		return
	}

	start := time.Now()
	action, err := s.policy.GetAction(payload.Observation)
	if s.metrics != nil {
		s.metrics.Inference("http", len(payload.Observation), time.Since(start), err)
	}
	if err != nil {
		s.respondError(w, r, err)
		return
	}
	step := s.steps.Add(1) - 1
	s.writeJSON(w, http.StatusOK, ActionResponse{Action: action, Step: step})
}

func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, obs.ErrObservationDim), errors.Is(err, obs.ErrObservationValue):
		s.writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error().Err(err).
			Str("correlation_id", middleware.CorrelationIDFrom(r.Context())).
			Msg("Action selection failed")
		s.writeError(w, http.StatusInternalServerError, "action selection failed")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error().Err(err).Msg("failed to encode response")
	}
}
