package gateway

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/soyeahso/actionloop/internal/agent"
	"github.com/soyeahso/actionloop/internal/store"
	"github.com/soyeahso/actionloop/internal/version"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{Error: ErrorShape{Code: code, Message: message}})
}

// handleHealth returns the server health status. Only status is exposed
// publicly; details are served by the authenticated /v1/status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// handleNotFound returns a 404 for unknown routes.
func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "not_found", "no route for "+r.URL.Path)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		Status:   "ok",
		Version:  s.version,
		Commit:   version.Commit,
		UptimeMs: time.Since(s.startedAt).Milliseconds(),
		Clients:  s.clients.Count(),
		Tools:    s.tools.Len(),
		Store:    s.runs != nil,
	})
}

func (s *Server) handleTools(w http.ResponseWriter, r *http.Request) {
	specs := s.tools.List()
	out := make([]ToolInfo, len(specs))
	for i, spec := range specs {
		out[i] = ToolInfo{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  spec.Params.JSONSchema(),
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tools": out})
}

// decodeRunRequest reads and checks a run request body.
func decodeRunRequest(w http.ResponseWriter, r *http.Request) (RunRequest, error) {
	var req RunRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxMessageSize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return RunRequest{}, errors.New("invalid request body: " + err.Error())
	}
	req.Task = strings.TrimSpace(req.Task)
	if req.Task == "" {
		return RunRequest{}, errors.New("task is required")
	}
	return req, nil
}

// handleCreateRun runs a task to completion and returns the run. A run that
// ends in the error state is still a 200; its state and errorKind carry the
// failure.
func (s *Server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "no model provider configured")
		return
	}
	req, err := decodeRunRequest(w, r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), runTimeout)
	defer cancel()

	res, err := s.engine.Run(ctx, req.Task, agent.RunOptions{RunID: req.RunID})
	if err != nil {
		s.log.Debug().Err(err).Str("runId", res.RunID).Str("kind", res.ErrorKind).Msg("run failed")
	}
	writeJSON(w, http.StatusOK, store.RunFromResult(res))
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "run store not configured")
		return
	}
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid_request", "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	runs, err := s.runs.ListRuns(r.Context(), limit)
	if err != nil {
		s.log.Error().Err(err).Msg("list runs")
		writeError(w, http.StatusInternalServerError, "internal", "failed to list runs")
		return
	}
	if runs == nil {
		runs = []store.Run{}
	}
	writeJSON(w, http.StatusOK, RunList{Runs: runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.runs == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "run store not configured")
		return
	}
	id := r.PathValue("id")
	run, err := s.runs.GetRun(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not_found", "run not found: "+id)
		return
	}
	if err != nil {
		s.log.Error().Err(err).Str("runId", id).Msg("get run")
		writeError(w, http.StatusInternalServerError, "internal", "failed to load run")
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func newRunID(req RunRequest) string {
	if req.RunID != "" {
		return req.RunID
	}
	return uuid.New().String()
}
