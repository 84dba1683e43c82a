// Package gateway serves the run API over HTTP and a websocket step stream.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/soyeahso/actionloop/internal/agent"
	"github.com/soyeahso/actionloop/internal/config"
	"github.com/soyeahso/actionloop/internal/hooks"
	"github.com/soyeahso/actionloop/internal/logging"
	"github.com/soyeahso/actionloop/internal/store"
	"github.com/soyeahso/actionloop/internal/tool"
	"github.com/soyeahso/actionloop/internal/version"
)

// runTimeout bounds a single run started through the gateway.
const runTimeout = 10 * time.Minute

// maxMessageSize bounds websocket and request bodies.
const maxMessageSize = 1 << 20

// Server is the actionloop HTTP + WebSocket gateway.
type Server struct {
	cfg     config.GatewayConfig
	token   string
	log     *logging.Logger
	clients *ClientRegistry
	version string

	engine *agent.Engine
	tools  *tool.Registry
	runs   store.RunStore // nil when runs are not recorded
	hooks  *hooks.Manager

	startedAt   time.Time
	httpServer  *http.Server
	upgrader    websocket.Upgrader
	authLimiter *authRateLimiter
}

// ServerOption configures the gateway server.
type ServerOption func(*Server)

// WithRunStore serves recorded runs from rs.
func WithRunStore(rs store.RunStore) ServerOption {
	return func(s *Server) {
		s.runs = rs
	}
}

// WithHooks sets the hook manager for gateway lifecycle events.
func WithHooks(hm *hooks.Manager) ServerOption {
	return func(s *Server) {
		s.hooks = hm
	}
}

// New creates a gateway server running tasks on engine.
func New(cfg config.GatewayConfig, engine *agent.Engine, tools *tool.Registry, log *logging.Logger, opts ...ServerOption) *Server {
	s := &Server{
		cfg:         cfg,
		token:       ResolveToken(cfg),
		log:         log.Sub("gateway"),
		clients:     NewClientRegistry(log.Sub("clients")),
		version:     version.Version,
		engine:      engine,
		tools:       tools,
		authLimiter: newAuthRateLimiter(),
		startedAt:   time.Now(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkWebSocketOrigin(cfg.AllowedOrigins),
		},
	}

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// checkWebSocketOrigin returns a function that validates WebSocket Origin headers.
// Requests without an Origin header (non-browser clients) are allowed; otherwise
// the Origin must match one of the allowed entries.
func checkWebSocketOrigin(allowed []string) func(*http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

// resolveBindAddr computes the listen address from config.
func resolveBindAddr(cfg config.GatewayConfig) string {
	switch cfg.Bind {
	case "lan":
		return fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	default:
		return fmt.Sprintf("127.0.0.1:%d", cfg.Port)
	}
}

// Handler returns the routed handler wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.registerHTTPRoutes(mux)
	return withMiddleware(mux, s.log, s.cfg.AllowedOrigins)
}

// Start begins listening for HTTP and WebSocket connections.
// It blocks until the context is cancelled or an error occurs.
func (s *Server) Start(ctx context.Context) error {
	addr := resolveBindAddr(s.cfg)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      runTimeout + 30*time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(l net.Listener) context.Context { return ctx },
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	if s.token == "" && s.cfg.Bind == "lan" {
		s.log.Warn().Msg("gateway bound to lan without a token; the run API is unauthenticated")
	}

	s.startedAt = time.Now()

	s.log.Info().
		Str("addr", ln.Addr().String()).
		Str("bind", s.cfg.Bind).
		Bool("auth", s.token != "").
		Int("tools", s.tools.Len()).
		Msg("gateway server starting")

	if s.hooks != nil {
		s.hooks.Emit(ctx, hooks.EventGatewayStart, map[string]any{
			"addr": ln.Addr().String(),
		})
	}

	go func() {
		<-ctx.Done()
		s.log.Info().Msg("shutting down gateway server")
		if s.hooks != nil {
			s.hooks.Emit(context.Background(), hooks.EventGatewayStop, nil)
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.clients.CloseAll()
		s.httpServer.Shutdown(shutdownCtx)
	}()

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the server's listen address, or empty string if not started.
func (s *Server) Addr() string {
	if s.httpServer != nil {
		return s.httpServer.Addr
	}
	return ""
}
