package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/wricardo/gridworld-fuzzer/game/engine"
	"github.com/wricardo/gridworld-fuzzer/game/service"
	"github.com/wricardo/gridworld-fuzzer/transport/websocket"
)

// Server represents the REST API server
type Server struct {
	service service.RunService
	hub     *websocket.Hub
	router  *mux.Router
}

// NewServer creates a new API server. hub may be nil, which disables /ws.
func NewServer(runService service.RunService, hub *websocket.Hub) *Server {
	s := &Server{
		service: runService,
		hub:     hub,
		router:  mux.NewRouter(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api").Subrouter()

	// Runs
	api.HandleFunc("/runs", s.handleStartRun).Methods("POST")
	api.HandleFunc("/runs", s.handleListRuns).Methods("GET")
	api.HandleFunc("/runs/{id}", s.handleGetRun).Methods("GET")
	api.HandleFunc("/runs/{id}", s.handleDeleteRun).Methods("DELETE")
	api.HandleFunc("/runs/{id}/cancel", s.handleCancelRun).Methods("POST")
	api.HandleFunc("/runs/{id}/replay", s.handleReplay).Methods("GET")
	api.HandleFunc("/runs/{id}/plot", s.handlePlot).Methods("GET")

	// Configuration
	api.HandleFunc("/configs", s.handleListConfigs).Methods("GET")
	api.HandleFunc("/configs", s.handleCreateConfig).Methods("POST")
	api.HandleFunc("/configs/{name}", s.handleGetConfig).Methods("GET")

	api.HandleFunc("/health", s.handleHealth).Methods("GET")

	// WebSocket
	s.router.HandleFunc("/ws", s.handleWebSocket)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Response helpers
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// statusFor maps service errors to HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrRunNotFound), errors.Is(err, service.ErrConfigNotFound):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrInvalidConfig):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrRunNotFinished), errors.Is(err, service.ErrRunNotRunning):
		return http.StatusConflict
	case errors.Is(err, service.ErrServiceShutdown):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondServiceError(w http.ResponseWriter, err error) {
	respondError(w, statusFor(err), err.Error())
}

// Run Handlers

func (s *Server) handleStartRun(w http.ResponseWriter, r *http.Request) {
	var req service.StartRunRequest

	if r.Body != nil {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			respondError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	// ?async=true takes precedence over the body
	if v := r.URL.Query().Get("async"); v != "" {
		async, err := strconv.ParseBool(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "async must be a boolean")
			return
		}
		req.Async = async
	}

	info, err := s.service.StartRun(r.Context(), &req)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	status := http.StatusCreated
	if req.Async {
		status = http.StatusAccepted
	}

	log.Printf("[RUN] id=%s config=%s status=%s best=%g", info.ID, info.ConfigName, info.Status, info.BestFitness)
	respondJSON(w, status, info)
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.service.ListRuns(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}

	query := r.URL.Query()

	// Filter by status and config
	if status := query.Get("status"); status != "" {
		runs = filterRuns(runs, func(info *service.RunInfo) bool { return string(info.Status) == status })
	}
	if configName := query.Get("config"); configName != "" {
		runs = filterRuns(runs, func(info *service.RunInfo) bool { return info.ConfigName == configName })
	}
	total := len(runs)

	// Newest first unless order=asc
	order := query.Get("order")
	if order == "" {
		order = "desc"
	}
	if order == "desc" {
		for i, j := 0, len(runs)-1; i < j; i, j = i+1, j-1 {
			runs[i], runs[j] = runs[j], runs[i]
		}
	}

	// Apply limit if specified
	if limitStr := query.Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 && l < len(runs) {
			runs = runs[:l]
		}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"count": len(runs),
		"total": total,
		"runs":  runs,
		"order": order,
	})
}

func filterRuns(runs []*service.RunInfo, keep func(*service.RunInfo) bool) []*service.RunInfo {
	out := runs[:0]
	for _, info := range runs {
		if keep(info) {
			out = append(out, info)
		}
	}
	return out
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]

	info, err := s.service.GetRun(r.Context(), runID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	// ?summary=true drops the final population
	if summary, _ := strconv.ParseBool(r.URL.Query().Get("summary")); summary {
		info.Result = nil
	}

	respondJSON(w, http.StatusOK, info)
}

func (s *Server) handleDeleteRun(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]

	if err := s.service.DeleteRun(r.Context(), runID); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message": fmt.Sprintf("Run %s deleted", runID),
	})
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]

	if err := s.service.CancelRun(r.Context(), runID); err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]string{
		"message": fmt.Sprintf("Run %s cancelling", runID),
	})
}

func (s *Server) handleReplay(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]

	replay, err := s.service.Replay(r.Context(), runID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, replay)
}

func (s *Server) handlePlot(w http.ResponseWriter, r *http.Request) {
	runID := mux.Vars(r)["id"]

	// Render into a buffer so errors can still be reported as JSON
	var buf bytes.Buffer
	if err := s.service.WritePlot(r.Context(), runID, &buf); err != nil {
		respondServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes())
}

// Configuration Handlers

func (s *Server) handleListConfigs(w http.ResponseWriter, r *http.Request) {
	configs, err := s.service.ListConfigs(r.Context())
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, configs)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	configName := strings.TrimSuffix(mux.Vars(r)["name"], ".json")

	config, err := s.service.LoadConfig(r.Context(), configName)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, config)
}

func (s *Server) handleCreateConfig(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ConfigID string `json:"config_id"`
		engine.RunConfig
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	configID := req.ConfigID
	if configID == "" {
		configID = req.Name
	}
	if configID == "" {
		respondError(w, http.StatusBadRequest, "Config name is required")
		return
	}

	if err := s.service.SaveConfig(r.Context(), configID, &req.RunConfig); err != nil {
		status := statusFor(err)
		if status == http.StatusInternalServerError {
			respondError(w, status, fmt.Sprintf("Failed to save config: %v", err))
			return
		}
		respondError(w, status, err.Error())
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"message":   "Configuration saved successfully",
		"config_id": configID,
	})
}

// WebSocket Handler

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		http.Error(w, "websocket updates disabled", http.StatusServiceUnavailable)
		return
	}

	// No run parameter subscribes to every run
	runID := r.URL.Query().Get("run")
	if runID != "" {
		if _, err := s.service.GetRun(r.Context(), runID); err != nil {
			http.Error(w, "Invalid run", http.StatusNotFound)
			return
		}
	}

	s.hub.ServeWS(w, r, runID)
}

// Health check
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}
