package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/haukened/navgate/internal/navgate/common/log"
)

// HTTPTransport binds a listener and serves a handler until stopped.
type HTTPTransport struct {
	addr   string
	logger log.Logger

	mu       sync.RWMutex
	running  bool
	listener net.Listener
	server   *http.Server
}

// NewHTTPTransport returns a transport that will listen on addr.
func NewHTTPTransport(addr string, logger log.Logger) *HTTPTransport {
	if logger == nil {
		logger = log.GetLogger()
	}
	return &HTTPTransport{addr: addr, logger: logger}
}

// Start binds the listener and serves handler in the background. Request
// contexts derive from ctx.
func (t *HTTPTransport) Start(ctx context.Context, handler http.Handler) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.running {
		return fmt.Errorf("HTTP transport already running")
	}

	ln, err := net.Listen("tcp", t.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", t.addr, err)
	}

	t.listener = ln
	t.server = &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	t.running = true

	t.logger.Info(map[string]any{
		"transport": "http",
		"address":   ln.Addr().String(),
	}, "HTTP transport started")

	go t.serve(t.server, ln)
	return nil
}

func (t *HTTPTransport) serve(srv *http.Server, ln net.Listener) {
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		t.logger.Error(map[string]any{"error": err}, "HTTP transport stopped unexpectedly")
	}
}

// Stop shuts the server down, waiting for in-flight requests until ctx ends.
func (t *HTTPTransport) Stop(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.running {
		return nil
	}
	t.running = false

	err := t.server.Shutdown(ctx)
	if err != nil {
		t.logger.Warn(map[string]any{"error": err}, "Error shutting down HTTP server")
	}
	t.logger.Info(map[string]any{
		"transport": "http",
		"address":   t.listener.Addr().String(),
	}, "HTTP transport stopped")
	return err
}

// Address returns the bound address once started, the configured one before.
func (t *HTTPTransport) Address() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.listener != nil {
		return t.listener.Addr().String()
	}
	return t.addr
}
