package gateway

import (
	jsoniter "github.com/json-iterator/go"

	"github.com/soyeahso/actionloop/internal/store"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Frame types sent by the server on /v1/ws.
const (
	FrameTypeStep   = "step"
	FrameTypeResult = "result"
	FrameTypeError  = "error"
)

// RunRequest starts a run. It is the body of POST /v1/runs and the message a
// websocket client sends.
type RunRequest struct {
	Task  string `json:"task"`
	RunID string `json:"runId,omitempty"`
}

// Frame is the envelope for every server-to-client websocket message.
// Seq increases by one per frame on a connection.
type Frame struct {
	Type   string      `json:"type"`
	Seq    int64       `json:"seq"`
	RunID  string      `json:"runId,omitempty"`
	Step   *store.Step `json:"step,omitempty"`
	Result *store.Run  `json:"result,omitempty"`
	Error  *ErrorShape `json:"error,omitempty"`
}

// ErrorShape is the error body used by HTTP responses and error frames.
type ErrorShape struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ErrorResponse wraps ErrorShape for HTTP error bodies.
type ErrorResponse struct {
	Error ErrorShape `json:"error"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status string `json:"status"`
}

// StatusResponse is returned by the authenticated GET /v1/status.
type StatusResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	Commit   string `json:"commit,omitempty"`
	UptimeMs int64  `json:"uptimeMs"`
	Clients  int    `json:"clients"`
	Tools    int    `json:"tools"`
	Store    bool   `json:"store"`
}

// ToolInfo describes one registered tool for GET /v1/tools.
type ToolInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// RunList is returned by GET /v1/runs.
type RunList struct {
	Runs []store.Run `json:"runs"`
}
