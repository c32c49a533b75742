package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"zeroone.host/internal/core/domain"
	"zeroone.host/internal/core/services"
)

type Server struct {
	router        *chi.Mux
	agentSvc      *services.AgentService
	healthSvc     *services.HealthService
	hub           *Hub
	enableMetrics bool
}

func NewServer(agentSvc *services.AgentService, healthSvc *services.HealthService, hub *Hub, enableMetrics bool) *Server {
	s := &Server{
		router:        chi.NewRouter(),
		agentSvc:      agentSvc,
		healthSvc:     healthSvc,
		hub:           hub,
		enableMetrics: enableMetrics,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	if s.enableMetrics {
		s.router.Use(MetricsMiddleware)
	}
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-User-ID"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if s.enableMetrics {
		s.router.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			MetricsHandler().ServeHTTP(w, r)
		})
	}

	// Kubernetes probes
	s.router.Get("/health/live", s.handleLiveness)
	s.router.Get("/health/ready", s.handleReadiness)

	s.router.Get("/api/health", s.handleHealth)
	s.router.Get("/api/health/detailed", s.handleDetailedHealth)
	s.router.Get("/api/ws", s.handleWS)

	s.router.Route("/api/agents", func(r chi.Router) {
		r.Use(requireUser)
		r.Post("/", s.handleCreateAgent)
		r.Get("/", s.handleListAgents)
		r.Get("/check-name", s.handleCheckName)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetAgent)
			r.Patch("/", s.handleUpdateAgent)
			r.Delete("/", s.handleDeleteAgent)
			r.Post("/start", s.handleStartAgent)
			r.Post("/stop", s.handleStopAgent)
			r.Post("/restart", s.handleRestartAgent)
			r.Post("/message", s.handleSendMessage)
			r.Get("/logs", s.handleAgentLogs)
			r.Get("/stats", s.handleAgentStats)
			r.Get("/health", s.handleAgentHealth)
			r.Get("/dashboard-token", s.handleDashboardToken)
		})
	})
}

func (s *Server) Run(addr string) error {
	return http.ListenAndServe(addr, s.router)
}

// Handler exposes the router for tests and custom servers.
func (s *Server) Handler() http.Handler {
	return s.router
}

type ctxKey int

const userIDKey ctxKey = 0

// requireUser extracts the caller's identity. Authentication proper happens
// at the edge proxy; this trusts the header it injects.
func requireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID := r.Header.Get("X-User-ID")
		if userID == "" {
			writeError(w, http.StatusUnauthorized, "missing X-User-ID header")
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func userID(r *http.Request) string {
	id, _ := r.Context().Value(userIDKey).(string)
	return id
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeServiceError maps service errors onto HTTP status codes.
func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "agent not found")
	case errors.Is(err, services.ErrValidation),
		errors.Is(err, services.ErrAPIKeyRequired):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, services.ErrNameTaken),
		errors.Is(err, services.ErrQuotaExceeded),
		errors.Is(err, services.ErrWrongState),
		errors.Is(err, services.ErrNoContainer),
		errors.Is(err, services.ErrTokenMissing):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, code := s.healthSvc.SimpleHealthCheck(r.Context())
	w.WriteHeader(code)
	w.Write([]byte(status))
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	status, code := s.healthSvc.SimpleHealthCheck(r.Context())
	w.WriteHeader(code)
	w.Write([]byte(status))
}

func (s *Server) handleDetailedHealth(w http.ResponseWriter, r *http.Request) {
	report := s.healthSvc.CheckHealth(r.Context())

	statusCode := http.StatusOK
	if report.Status == services.HealthStatusUnhealthy {
		statusCode = http.StatusServiceUnavailable
	}

	writeJSON(w, statusCode, report)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	ServeWs(s.hub, w, r)
}

func (s *Server) handleCreateAgent(w http.ResponseWriter, r *http.Request) {
	var in services.CreateAgentInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	agent, err := s.agentSvc.CreateAgent(r.Context(), userID(r), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	// The container deployment continues in the background; clients follow
	// progress over the websocket.
	writeJSON(w, http.StatusAccepted, agent)
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.agentSvc.List(r.Context(), userID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if agents == nil {
		agents = []*domain.Agent{}
	}
	writeJSON(w, http.StatusOK, agents)
}

func (s *Server) handleCheckName(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	available, err := s.agentSvc.CheckName(r.Context(), name)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"available": available})
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	agent, err := s.agentSvc.Get(r.Context(), chi.URLParam(r, "id"), userID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

func (s *Server) handleUpdateAgent(w http.ResponseWriter, r *http.Request) {
	var in services.UpdateAgentInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	agent, err := s.agentSvc.Update(r.Context(), chi.URLParam(r, "id"), userID(r), in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}

func (s *Server) handleDeleteAgent(w http.ResponseWriter, r *http.Request) {
	if err := s.agentSvc.Delete(r.Context(), chi.URLParam(r, "id"), userID(r)); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleStartAgent(w http.ResponseWriter, r *http.Request) {
	if err := s.agentSvc.Start(r.Context(), chi.URLParam(r, "id"), userID(r)); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "starting"})
}

func (s *Server) handleStopAgent(w http.ResponseWriter, r *http.Request) {
	if err := s.agentSvc.Stop(r.Context(), chi.URLParam(r, "id"), userID(r)); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

func (s *Server) handleRestartAgent(w http.ResponseWriter, r *http.Request) {
	if err := s.agentSvc.Restart(r.Context(), chi.URLParam(r, "id"), userID(r)); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "restarting"})
}

type sendMessageRequest struct {
	Message string `json:"message"`
}

func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	out, err := s.agentSvc.SendMessage(r.Context(), chi.URLParam(r, "id"), userID(r), req.Message)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAgentLogs(w http.ResponseWriter, r *http.Request) {
	tail := 100
	if t := r.URL.Query().Get("tail"); t != "" {
		if val, err := strconv.Atoi(t); err == nil {
			tail = val
		}
	}

	lines, err := s.agentSvc.Logs(r.Context(), chi.URLParam(r, "id"), userID(r), tail)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if lines == nil {
		lines = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": lines})
}

func (s *Server) handleAgentStats(w http.ResponseWriter, r *http.Request) {
	snap, err := s.agentSvc.Stats(r.Context(), chi.URLParam(r, "id"), userID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleAgentHealth(w http.ResponseWriter, r *http.Request) {
	healthy, err := s.agentSvc.HealthProbe(r.Context(), chi.URLParam(r, "id"), userID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"healthy": healthy})
}

func (s *Server) handleDashboardToken(w http.ResponseWriter, r *http.Request) {
	token, err := s.agentSvc.DashboardToken(r.Context(), chi.URLParam(r, "id"), userID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}
