package realtime

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"termbridge/internal/router"

	"github.com/go-chi/chi/v5"
)

// apiRouter is the request/response administrative surface over the routing
// engine and session manager.
func (s *Server) apiRouter() http.Handler {
	r := chi.NewRouter()

	r.Post("/route/parse", s.handleAPIParse)
	r.Post("/route/execute", s.handleAPIExecute)
	r.Get("/route/processes", s.handleAPIProcesses)
	r.Delete("/route/processes/{terminalId}", s.handleAPIKillProcess)

	r.Get("/history/terminal/{terminalId}", s.handleAPIHistoryTerminal)
	r.Get("/history/tool/{tool}", s.handleAPIHistoryTool)
	r.Get("/history/tools", s.handleAPIHistoryTools)
	r.Get("/history/stats", s.handleAPIStats)

	r.Get("/sessions", s.handleAPISessions)
	r.Delete("/sessions", s.handleAPITerminateAll)

	r.Post("/agents", s.handleAPIAddAgent)
	r.Delete("/agents/{name}", s.handleAPIRemoveAgent)
	r.Get("/agents", s.handleAPIListAgents)

	return r
}

type parseRequest struct {
	Line string `json:"line"`
}

type executeRequest struct {
	Token      string `json:"token"`
	TerminalID string `json:"terminalId"`
	Line       string `json:"line"`
	Cwd        string `json:"cwd,omitempty"`
}

type addAgentRequest struct {
	Name      string   `json:"name"`
	Command   string   `json:"command"`
	Args      []string `json:"args,omitempty"`
	Streaming bool     `json:"streaming"`
	Timeout   string   `json:"timeout,omitempty"`
}

func (s *Server) handleAPIParse(w http.ResponseWriter, r *http.Request) {
	var req parseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	writeJSON(w, http.StatusOK, s.router.Parse(req.Line))
}

func (s *Server) handleAPIExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Token == "" || req.TerminalID == "" || req.Line == "" {
		writeJSONError(w, http.StatusBadRequest, "token, terminalId and line are required")
		return
	}

	result := s.router.Route(r.Context(), req.Token, req.TerminalID, req.Line, req.Cwd)
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAPIProcesses(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{"processes": s.router.ActiveProcesses()})
}

func (s *Server) handleAPIKillProcess(w http.ResponseWriter, r *http.Request) {
	terminalID := chi.URLParam(r, "terminalId")
	if !s.router.KillProcess(terminalID) {
		writeJSONError(w, http.StatusNotFound, "no routed process for terminal "+terminalID)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"killed": true})
}

func (s *Server) handleAPIHistoryTerminal(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeJSONError(w, http.StatusBadRequest, "token query parameter is required")
		return
	}
	entries := s.router.HistoryForTerminal(token, chi.URLParam(r, "terminalId"))
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": entries})
}

func (s *Server) handleAPIHistoryTool(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeJSONError(w, http.StatusBadRequest, "token query parameter is required")
		return
	}
	tool := chi.URLParam(r, "tool")

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil || limit <= 0 {
			writeJSONError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"entries": s.router.RecentForTool(token, tool, limit)})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"entries": s.router.HistoryForTool(token, tool)})
}

func (s *Server) handleAPIHistoryTools(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeJSONError(w, http.StatusBadRequest, "token query parameter is required")
		return
	}
	writeJSON(w, http.StatusOK, map[string][]string{"tools": s.router.HistoryTools(token)})
}

func (s *Server) handleAPIStats(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeJSONError(w, http.StatusBadRequest, "token query parameter is required")
		return
	}
	writeJSON(w, http.StatusOK, s.router.Stats(token))
}

func (s *Server) handleAPISessions(w http.ResponseWriter, r *http.Request) {
	if token := r.URL.Query().Get("token"); token != "" {
		writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": s.mgr.ListByToken(token)})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": s.mgr.ListActive()})
}

// handleAPITerminateAll is the whole-client teardown: every terminal slot
// under the token is killed and removed.
func (s *Server) handleAPITerminateAll(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		writeJSONError(w, http.StatusBadRequest, "token query parameter is required")
		return
	}
	if !s.mgr.TerminateAll(token) {
		writeJSONError(w, http.StatusNotFound, "no sessions for token")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"terminated": true})
}

func (s *Server) handleAPIAddAgent(w http.ResponseWriter, r *http.Request) {
	var req addAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Name == "" {
		writeJSONError(w, http.StatusBadRequest, "name is required")
		return
	}

	cfg := router.AgentToolConfig{
		Command:   req.Command,
		Args:      req.Args,
		Streaming: req.Streaming,
	}
	if req.Timeout != "" {
		d, err := time.ParseDuration(req.Timeout)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "bad timeout: "+err.Error())
			return
		}
		cfg.Timeout = d
	}

	s.router.Agents().Add(req.Name, cfg)
	writeJSON(w, http.StatusCreated, map[string]bool{"added": true})
}

func (s *Server) handleAPIRemoveAgent(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !s.router.Agents().Remove(name) {
		writeJSONError(w, http.StatusNotFound, "no agent tool named "+name)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"removed": true})
}

func (s *Server) handleAPIListAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"agents": s.router.Agents().List()})
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, reason string) {
	writeJSON(w, status, map[string]string{"error": reason})
}
