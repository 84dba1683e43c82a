package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/soyeahso/actionloop/internal/agent"
	"github.com/soyeahso/actionloop/internal/memory"
	"github.com/soyeahso/actionloop/internal/store"
)

// handleWebSocket upgrades to a websocket and serves run requests on it.
// Each {"task": ...} message starts a run; the server answers with one step
// frame per step and a final result frame. One run at a time per connection.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(maxMessageSize)

	client := NewClient(conn, s.log.Sub("ws"))
	s.clients.Add(client)
	defer func() {
		s.clients.Remove(client.ConnID)
		client.Close()
	}()

	s.serveConn(r.Context(), client)
}

// serveConn reads requests until the connection closes. Closing the
// connection cancels a run in flight.
func (s *Server) serveConn(ctx context.Context, c *Client) {
	ctx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
	}()

	var busy atomic.Bool
	for {
		req, err := c.ReadRequest()
		if err != nil {
			var bad *badRequestError
			if errors.As(err, &bad) {
				c.SendError("", "invalid_request", bad.Error())
				continue
			}
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.log.Debug().Msg("client closed connection")
			} else {
				c.log.Debug().Err(err).Msg("read error")
			}
			return
		}

		req.Task = strings.TrimSpace(req.Task)
		if req.Task == "" {
			c.SendError(req.RunID, "invalid_request", "task is required")
			continue
		}
		if s.engine == nil {
			c.SendError(req.RunID, "unavailable", "no model provider configured")
			continue
		}
		if !busy.CompareAndSwap(false, true) {
			c.SendError(req.RunID, "busy", "a run is already in progress on this connection")
			continue
		}

		wg.Add(1)
		go func(req RunRequest) {
			defer wg.Done()
			frame := s.streamRun(ctx, c, req)
			busy.Store(false)
			if err := c.Send(frame); err != nil {
				c.log.Debug().Err(err).Msg("send result")
			}
		}(req)
	}
}

// streamRun executes req, sending a step frame per record, and returns the
// result frame. Steps are not repeated in the result.
func (s *Server) streamRun(ctx context.Context, c *Client, req RunRequest) Frame {
	ctx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	runID := newRunID(req)
	res, err := s.engine.Run(ctx, req.Task, agent.RunOptions{
		RunID: runID,
		OnStep: func(rec memory.StepRecord) {
			st := store.StepFromRecord(rec)
			if err := c.Send(Frame{Type: FrameTypeStep, RunID: runID, Step: &st}); err != nil {
				c.log.Debug().Err(err).Int("step", rec.Index).Msg("send step")
			}
		},
	})
	if err != nil {
		c.log.Debug().Err(err).Str("runId", runID).Str("kind", res.ErrorKind).Msg("run failed")
	}

	run := store.RunFromResult(res)
	run.Steps = nil
	return Frame{Type: FrameTypeResult, RunID: runID, Result: &run}
}
