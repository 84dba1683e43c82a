package gateway

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/soyeahso/actionloop/internal/logging"
)

// ErrClientClosed is returned when sending on a closed connection.
var ErrClientClosed = errors.New("client connection closed")

const writeWait = 10 * time.Second

// Client is one websocket connection to /v1/ws.
type Client struct {
	ConnID      string
	Socket      *websocket.Conn
	ConnectedAt time.Time

	seq    atomic.Int64
	mu     sync.Mutex
	closed bool
	log    *logging.Logger
}

// NewClient wraps an upgraded connection.
func NewClient(conn *websocket.Conn, log *logging.Logger) *Client {
	id := uuid.New().String()
	return &Client{
		ConnID:      id,
		Socket:      conn,
		ConnectedAt: time.Now(),
		log:         log.With("connId", id),
	}
}

// Send stamps the next sequence number on frame and writes it. Thread-safe.
func (c *Client) Send(frame Frame) error {
	frame.Seq = c.seq.Add(1)
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	c.Socket.SetWriteDeadline(time.Now().Add(writeWait))
	return c.Socket.WriteMessage(websocket.TextMessage, data)
}

// SendError sends an error frame.
func (c *Client) SendError(runID, code, message string) error {
	return c.Send(Frame{Type: FrameTypeError, RunID: runID, Error: &ErrorShape{Code: code, Message: message}})
}

// ReadRequest reads the next message. A message that is not valid JSON is
// reported as errBadRequest so the caller can keep the connection open.
func (c *Client) ReadRequest() (RunRequest, error) {
	_, msg, err := c.Socket.ReadMessage()
	if err != nil {
		return RunRequest{}, err
	}
	var req RunRequest
	if err := json.Unmarshal(msg, &req); err != nil {
		return RunRequest{}, &badRequestError{err: err}
	}
	return req, nil
}

type badRequestError struct{ err error }

func (e *badRequestError) Error() string { return "invalid request: " + e.err.Error() }
func (e *badRequestError) Unwrap() error { return e.err }

// Close closes the websocket connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.Socket.Close()
}

// ClientRegistry tracks connected websocket clients.
type ClientRegistry struct {
	mu      sync.RWMutex
	clients map[string]*Client // connID → Client
	log     *logging.Logger
}

// NewClientRegistry creates an empty client registry.
func NewClientRegistry(log *logging.Logger) *ClientRegistry {
	return &ClientRegistry{
		clients: make(map[string]*Client),
		log:     log,
	}
}

// Add registers a connected client.
func (r *ClientRegistry) Add(c *Client) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[c.ConnID] = c
	r.log.Info().Str("connId", c.ConnID).Msg("client connected")
}

// Remove unregisters a client by connection ID.
func (r *ClientRegistry) Remove(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, connID)
	r.log.Info().Str("connId", connID).Msg("client disconnected")
}

// Get returns a client by connection ID.
func (r *ClientRegistry) Get(connID string) (*Client, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.clients[connID]
	return c, ok
}

// Count returns the number of connected clients.
func (r *ClientRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// CloseAll closes all connected clients.
func (r *ClientRegistry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.clients {
		c.Close()
		delete(r.clients, id)
	}
}
