// Package api provides the HTTP and WebSocket surface of the engine: tick
// ingest, state and pattern queries, manual risk controls and a state
// stream for rendering clients.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/resonance-desktop/fractal-backend/internal/engine"
	"github.com/resonance-desktop/fractal-backend/internal/events"
	"github.com/resonance-desktop/fractal-backend/pkg/types"
)

// Config configures the API server.
type Config struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Server is the HTTP/WebSocket API server.
type Server struct {
	logger     *zap.Logger
	cfg        Config
	engine     *engine.Engine
	router     *mux.Router
	hub        *Hub
	httpServer *http.Server
}

// NewServer creates an API server bound to an engine and subscribes the
// stream hub to pipeline states.
func NewServer(logger *zap.Logger, cfg Config, eng *engine.Engine) *Server {
	s := &Server{
		logger: logger.Named("api"),
		cfg:    cfg,
		engine: eng,
		router: mux.NewRouter(),
		hub:    NewHub(logger),
	}
	s.setupRoutes()

	eng.Bus().Subscribe(events.TopicState, func(payload any) {
		if state, ok := payload.(*types.SystemState); ok {
			s.hub.BroadcastState(state)
		}
	})
	return s
}

// Router exposes the underlying router for extension.
func (s *Server) Router() *mux.Router {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/api/v1/health", s.handleHealth).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/tick", s.handleTick).Methods(http.MethodPost)
	s.router.HandleFunc("/api/v1/state", s.handleState).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/patterns/stats", s.handlePatternStats).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/patterns/export", s.handlePatternExport).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/risk", s.handleRisk).Methods(http.MethodGet)
	s.router.HandleFunc("/api/v1/risk/kill-switch", s.handleKillSwitch).Methods(http.MethodPost)
	s.router.Handle("/metrics", promhttp.HandlerFor(s.engine.MetricsRegistry(), promhttp.HandlerOpts{}))
	s.router.HandleFunc("/ws", s.hub.handleWebSocket)
}

// Start runs the HTTP server until Stop is called.
func (s *Server) Start() error {
	handler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	}).Handler(s.router)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:      handler,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	s.logger.Info("api server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	payload := map[string]any{"status": "ok", "time": time.Now().UnixMilli()}
	if state := s.engine.LastState(); state != nil {
		payload["lastTick"] = state.Timestamp
		payload["health"] = state.Health
	}
	s.writeJSON(w, http.StatusOK, payload)
}

// handleTick ingests one market bundle, runs the pipeline and returns the
// resulting system state.
func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	var bundle types.MarketBundle
	if err := json.NewDecoder(r.Body).Decode(&bundle); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("decode bundle: %v", err))
		return
	}
	if bundle.Timestamp == 0 {
		bundle.Timestamp = time.Now().UnixMilli()
	}

	state := s.engine.ProcessTick(&bundle)
	s.writeJSON(w, http.StatusOK, state)
}

func (s *Server) handleState(w http.ResponseWriter, _ *http.Request) {
	state := s.engine.LastState()
	if state == nil {
		s.writeError(w, http.StatusNotFound, "no tick processed yet")
		return
	}
	s.writeJSON(w, http.StatusOK, state)
}

func (s *Server) handlePatternStats(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.engine.Memory().Stats())
}

func (s *Server) handlePatternExport(w http.ResponseWriter, _ *http.Request) {
	data, err := s.engine.Memory().ExportPatterns()
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/msgpack")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) handleRisk(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"limits":     s.engine.Risk().Limits(),
		"killSwitch": s.engine.Risk().KillSwitch(),
	})
}

// handleKillSwitch trips or clears the kill switch.
func (s *Server) handleKillSwitch(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Active bool   `json:"active"`
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, fmt.Sprintf("decode request: %v", err))
		return
	}

	if req.Active {
		reason := req.Reason
		if reason == "" {
			reason = "manual activation"
		}
		s.engine.Risk().ActivateKillSwitch(reason)
	} else {
		s.engine.Risk().DeactivateKillSwitch()
	}
	s.writeJSON(w, http.StatusOK, s.engine.Risk().KillSwitch())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}
