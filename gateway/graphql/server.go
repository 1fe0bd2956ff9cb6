package graphql

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/99designs/gqlgen/graphql"
	"github.com/99designs/gqlgen/graphql/playground"
	"github.com/gorilla/websocket"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"golang.org/x/time/rate"

	"github.com/c360/semblog/errors"
	"github.com/c360/semblog/health"
)

const maxRequestBytes = 1 << 20

// ServerOption configures optional Server collaborators
type ServerOption func(*Server)

// WithHealthReporters adds components to the /health aggregate
func WithHealthReporters(reporters ...health.Reporter) ServerOption {
	return func(s *Server) {
		s.reporters = append(s.reporters, reporters...)
	}
}

// WithHandler mounts an extra handler, for example /metrics
func WithHandler(path string, h http.Handler) ServerOption {
	return func(s *Server) {
		s.extra[path] = h
	}
}

// Server manages the HTTP server for the GraphQL endpoint
type Server struct {
	config     Config
	executor   *Executor
	logger     *slog.Logger
	reporters  []health.Reporter
	extra      map[string]http.Handler
	upgrader   websocket.Upgrader
	limiter    *rate.Limiter
	handler    http.Handler
	httpServer *http.Server
	listener   net.Listener

	// Lifecycle
	running  bool
	mu       sync.RWMutex
	stopChan chan struct{}
	stopOnce sync.Once

	connMu sync.Mutex
	conns  map[*wsConnection]struct{}
}

// NewServer creates a new GraphQL HTTP server
func NewServer(config Config, executor *Executor, logger *slog.Logger, opts ...ServerOption) (*Server, error) {
	if err := config.Validate(); err != nil {
		return nil, errors.WrapInvalid(err, "Server", "NewServer", "config validation")
	}

	if executor == nil {
		return nil, errors.WrapFatal(fmt.Errorf("executor is nil"), "Server", "NewServer",
			"executor is required")
	}

	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config:   config,
		executor: executor,
		logger:   logger.With("component", "graphql-server"),
		extra:    make(map[string]http.Handler),
		stopChan: make(chan struct{}),
		conns:    make(map[*wsConnection]struct{}),
		limiter:  rate.NewLimiter(config.Limit(), config.RateBurst),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.upgrader = websocket.Upgrader{
		Subprotocols: []string{wsSubprotocol},
		CheckOrigin:  s.checkOrigin,
	}
	return s, nil
}

// Setup configures the HTTP server and routes
func (s *Server) Setup() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	mux := http.NewServeMux()
	mux.HandleFunc(s.config.Path, s.handleGraphQL)
	mux.HandleFunc("/health", s.handleHealth)
	for path, h := range s.extra {
		mux.Handle(path, h)
	}

	if s.config.EnablePlayground {
		mux.Handle("/", playground.Handler("semblog", s.config.Path))
		s.logger.Info("GraphQL Playground enabled",
			"url", fmt.Sprintf("http://%s/", s.config.BindAddress))
	}

	var handler http.Handler = mux
	if s.config.EnableCORS {
		handler = s.corsMiddleware(handler)
	}
	s.handler = handler

	// No WriteTimeout: subscriptions outlive a request. Queries are bounded
	// by the request context.
	s.httpServer = &http.Server{
		Addr:              s.config.BindAddress,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("Server configured",
		"address", s.config.BindAddress,
		"path", s.config.Path,
		"timeout", s.config.Timeout())

	return nil
}

// Handler returns the routed handler; Setup must have been called
func (s *Server) Handler() http.Handler {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.handler
}

// Start starts the HTTP server and blocks until ctx is cancelled, Stop is
// called or the server fails. The ready channel is closed once the listener
// is bound.
func (s *Server) Start(ctx context.Context, ready chan<- struct{}) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.WrapFatal(errors.ErrAlreadyStarted, "Server", "Start", "server already running")
	}
	if s.httpServer == nil {
		s.mu.Unlock()
		return errors.WrapFatal(errors.ErrNotStarted, "Server", "Start", "Setup must be called first")
	}
	listener, err := net.Listen("tcp", s.config.BindAddress)
	if err != nil {
		s.mu.Unlock()
		return errors.WrapFatal(err, "Server", "Start", "listen")
	}
	s.listener = listener
	s.running = true
	server := s.httpServer
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		defer close(errChan)
		s.logger.Info("Server starting", "address", listener.Addr().String())
		if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
			s.logger.Error("HTTP server error", "error", err)
			errChan <- err
		}
	}()

	if ready != nil {
		close(ready)
	}

	select {
	case <-ctx.Done():
		s.logger.Info("Server context cancelled, shutting down")
		return s.Stop(30 * time.Second)

	case <-s.stopChan:
		s.logger.Info("Server stop requested")
		return nil

	case err, ok := <-errChan:
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
		if !ok {
			return nil
		}
		return errors.WrapFatal(err, "Server", "Start", "HTTP server failed")
	}
}

// Addr returns the bound address once started, the configured one before
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.config.BindAddress
}

// Stop gracefully shuts down the HTTP server and closes open websocket
// connections
func (s *Server) Stop(timeout time.Duration) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	server := s.httpServer
	s.mu.Unlock()

	s.logger.Info("Server stopping")

	s.stopOnce.Do(func() {
		close(s.stopChan)
	})

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// Shutdown does not track hijacked connections
	s.closeConnections()

	if err := server.Shutdown(ctx); err != nil {
		s.logger.Error("Failed to shutdown server gracefully", "error", err)
		return errors.WrapTransient(err, "Server", "Stop", "graceful shutdown failed")
	}

	s.mu.Lock()
	s.running = false
	s.mu.Unlock()

	s.logger.Info("Server stopped")
	return nil
}

// IsRunning returns whether the server is currently running
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Health reports the server itself
func (s *Server) Health() health.Status {
	s.connMu.Lock()
	conns := len(s.conns)
	s.connMu.Unlock()

	status := health.NewHealthy("graphql-server", "Serving")
	if !s.IsRunning() {
		status = health.NewUnhealthy("graphql-server", "Not running")
	}
	return status.WithDetail("websocket_connections", conns)
}

// handleGraphQL serves queries and mutations over POST and GET and upgrades
// websocket requests for subscriptions
func (s *Server) handleGraphQL(w http.ResponseWriter, r *http.Request) {
	if websocket.IsWebSocketUpgrade(r) {
		s.serveWebsocket(w, r)
		return
	}

	if !s.limiter.Allow() {
		w.Header().Set("Retry-After", "1")
		writeErrors(w, http.StatusTooManyRequests, rateLimitedError(""))
		return
	}

	var (
		params *graphql.RawParams
		err    error
	)
	switch r.Method {
	case http.MethodGet:
		params, err = paramsFromQuery(r.URL.Query())
	case http.MethodPost:
		params, err = paramsFromBody(w, r)
	default:
		w.Header().Set("Allow", "GET, POST, OPTIONS")
		writeErrors(w, http.StatusMethodNotAllowed,
			validationError("", "method %s is not allowed", r.Method))
		return
	}
	if err != nil {
		writeErrors(w, http.StatusBadRequest, validationError("", "invalid request: %s", err))
		return
	}

	req, errs := s.executor.Prepare(params)
	if errs != nil {
		writeJSON(w, http.StatusOK, &graphql.Response{Errors: errs})
		return
	}
	if r.Method == http.MethodGet && req.Operation() != ast.Query {
		w.Header().Set("Allow", "POST")
		writeErrors(w, http.StatusMethodNotAllowed,
			validationError(req.Name(), "%s operations are not allowed over GET", req.Operation()))
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.config.Timeout())
	defer cancel()

	start := time.Now()
	resp := s.executor.Execute(ctx, req)
	s.logger.Debug("Operation executed",
		"operation", req.Name(),
		"type", req.Operation(),
		"errors", len(resp.Errors),
		"duration", time.Since(start))

	writeJSON(w, http.StatusOK, resp)
}

// rateLimitedError reports an operation refused by the limiter
func rateLimitedError(operation string) *gqlerror.Error {
	gqlErr := withCode(gqlerror.Errorf("%s", ErrRateLimited), CodeRateLimited, operation)
	gqlErr.Extensions["retryable"] = true
	return gqlErr
}

func paramsFromQuery(values url.Values) (*graphql.RawParams, error) {
	params := &graphql.RawParams{
		Query:         values.Get("query"),
		OperationName: values.Get("operationName"),
	}
	if raw := values.Get("variables"); raw != "" {
		dec := json.NewDecoder(strings.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&params.Variables); err != nil {
			return nil, fmt.Errorf("variables are not a JSON object")
		}
	}
	return params, nil
}

func paramsFromBody(w http.ResponseWriter, r *http.Request) (*graphql.RawParams, error) {
	ct := r.Header.Get("Content-Type")
	if ct != "" && !strings.HasPrefix(ct, "application/json") {
		return nil, fmt.Errorf("unsupported content type %q", ct)
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes))
	dec.UseNumber()
	var params graphql.RawParams
	if err := dec.Decode(&params); err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("empty body")
		}
		return nil, fmt.Errorf("body is not a GraphQL JSON request")
	}
	return &params, nil
}

func writeErrors(w http.ResponseWriter, status int, errs ...*gqlerror.Error) {
	writeJSON(w, status, &graphql.Response{Errors: gqlerror.List(errs)})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// handleHealth reports the aggregated health of the server and its
// collaborators
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	reporters := append([]health.Reporter{s}, s.reporters...)
	status := health.Collect("semblog", reporters...)
	writeJSON(w, status.HTTPStatus(), status)
}

func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.config.CORSOrigins {
		if allowed == "*" || allowed == origin {
			return true
		}
	}
	return false
}

// checkOrigin applies the CORS origin list to websocket upgrades. Without
// CORS only same-host origins are accepted.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	if s.config.EnableCORS {
		return s.originAllowed(origin)
	}
	u, err := url.Parse(origin)
	return err == nil && strings.EqualFold(u.Host, r.Host)
}

// corsMiddleware adds CORS headers to responses
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")

		if s.originAllowed(origin) {
			if origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			} else {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Max-Age", "3600")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) trackConn(c *wsConnection) {
	s.connMu.Lock()
	s.conns[c] = struct{}{}
	s.connMu.Unlock()
}

func (s *Server) untrackConn(c *wsConnection) {
	s.connMu.Lock()
	delete(s.conns, c)
	s.connMu.Unlock()
}

func (s *Server) closeConnections() {
	s.connMu.Lock()
	conns := make([]*wsConnection, 0, len(s.conns))
	for c := range s.conns {
		conns = append(conns, c)
	}
	s.connMu.Unlock()

	for _, c := range conns {
		c.closeWith(websocket.CloseGoingAway, "server shutting down")
	}
}
