package gateway

import "net/http"

// registerHTTPRoutes sets up all HTTP routes on the server mux.
func (s *Server) registerHTTPRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("GET /v1/status", s.requireAuth(s.handleStatus))
	mux.HandleFunc("GET /v1/tools", s.requireAuth(s.handleTools))
	mux.HandleFunc("POST /v1/runs", s.requireAuth(s.handleCreateRun))
	mux.HandleFunc("GET /v1/runs", s.requireAuth(s.handleListRuns))
	mux.HandleFunc("GET /v1/runs/{id}", s.requireAuth(s.handleGetRun))
	mux.HandleFunc("GET /v1/ws", s.requireAuth(s.handleWebSocket))

	// Catch-all for unknown routes
	mux.HandleFunc("/", handleNotFound)
}
