// Package natsclient manages the NATS connection used to mirror domain events.
package natsclient

import (
	"context"
	stderrors "errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/c360/semblog/errors"
	"github.com/c360/semblog/health"
)

// ConnectionStatus represents the state of the NATS connection
type ConnectionStatus int32

// Possible connection statuses
const (
	StatusDisconnected ConnectionStatus = iota
	StatusConnecting
	StatusConnected
	StatusReconnecting
	StatusCircuitOpen
	StatusClosed
)

// String returns the string representation of ConnectionStatus
func (s ConnectionStatus) String() string {
	switch s {
	case StatusDisconnected:
		return "disconnected"
	case StatusConnecting:
		return "connecting"
	case StatusConnected:
		return "connected"
	case StatusReconnecting:
		return "reconnecting"
	case StatusCircuitOpen:
		return "circuit_open"
	case StatusClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Error messages
var (
	ErrNotConnected = stderrors.New("not connected to NATS")
	ErrCircuitOpen  = stderrors.New("circuit breaker is open")
	ErrClosed       = stderrors.New("client closed")
	ErrEmptyURL     = stderrors.New("NATS URL is required")
)

// Client owns one NATS connection. After circuitThreshold consecutive failed
// Connect calls the circuit opens and further attempts are refused until the
// backoff has elapsed.
type Client struct {
	url    string
	logger *slog.Logger
	status atomic.Int32

	conn *nats.Conn
	mu   sync.RWMutex

	// Circuit breaker
	failures         atomic.Int32
	circuitThreshold int32
	backoff          time.Duration
	maxBackoff       time.Duration
	openedAt         time.Time

	// Connection options
	maxReconnects int
	reconnectWait time.Duration
	timeout       time.Duration
	drainTimeout  time.Duration
	clientName    string
	username      string
	password      string
	token         string

	onHealthChange func(bool)
}

// NewClient creates a client for url. It does not connect.
func NewClient(url string, opts ...ClientOption) (*Client, error) {
	if url == "" {
		return nil, errors.WrapInvalid(ErrEmptyURL, "Client", "NewClient", "validate url")
	}

	c := &Client{
		url:              url,
		logger:           slog.Default(),
		circuitThreshold: 5,
		backoff:          time.Second,
		maxBackoff:       time.Minute,
		maxReconnects:    -1,
		reconnectWait:    2 * time.Second,
		timeout:          5 * time.Second,
		drainTimeout:     5 * time.Second,
		clientName:       "semblog",
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, errors.WrapInvalid(err, "Client", "NewClient", "apply option")
		}
	}
	c.logger = c.logger.With("component", "natsclient")
	c.setStatus(StatusDisconnected)
	return c, nil
}

// URL returns the server URL
func (c *Client) URL() string {
	return c.url
}

// Status returns the current connection status
func (c *Client) Status() ConnectionStatus {
	return ConnectionStatus(c.status.Load())
}

func (c *Client) setStatus(s ConnectionStatus) {
	c.status.Store(int32(s))
}

// IsHealthy reports whether the client is connected
func (c *Client) IsHealthy() bool {
	return c.Status() == StatusConnected
}

// Failures returns the number of consecutive failed connection attempts
func (c *Client) Failures() int32 {
	return c.failures.Load()
}

// Health reports the connection as a health status. A broken mirror
// connection only degrades the service.
func (c *Client) Health() health.Status {
	status := c.Status()
	var h health.Status
	switch status {
	case StatusConnected:
		h = health.NewHealthy("nats", "Connected")
	case StatusClosed:
		h = health.NewUnhealthy("nats", "Client closed")
	default:
		h = health.NewDegraded("nats", "Not connected")
	}
	return h.WithDetail("status", status.String()).WithDetail("failures", c.Failures())
}

func (c *Client) connectionOptions() []nats.Option {
	opts := []nats.Option{
		nats.Name(c.clientName),
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.Timeout(c.timeout),
		nats.DrainTimeout(c.drainTimeout),
		nats.DisconnectErrHandler(c.handleDisconnect),
		nats.ReconnectHandler(c.handleReconnect),
		nats.ClosedHandler(c.handleClosed),
		nats.ErrorHandler(c.handleError),
	}
	if c.username != "" && c.password != "" {
		opts = append(opts, nats.UserInfo(c.username, c.password))
	}
	if c.token != "" {
		opts = append(opts, nats.Token(c.token))
	}
	return opts
}

// Connect establishes the connection, honouring ctx while dialing
func (c *Client) Connect(ctx context.Context) error {
	switch c.Status() {
	case StatusClosed:
		return ErrClosed
	case StatusConnected:
		return nil
	case StatusCircuitOpen:
		if !c.circuitCooledDown() {
			c.logger.Debug("Circuit breaker is open, skipping connection attempt")
			return ErrCircuitOpen
		}
	}

	c.setStatus(StatusConnecting)
	c.logger.Info("Connecting to NATS", "url", c.url)

	type result struct {
		conn *nats.Conn
		err  error
	}
	done := make(chan result, 1)
	go func() {
		conn, err := nats.Connect(c.url, c.connectionOptions()...)
		done <- result{conn, err}
	}()

	select {
	case res := <-done:
		if res.err != nil {
			return c.connectFailed(errors.WrapTransient(res.err, "Client", "Connect", "establish connection"))
		}
		c.mu.Lock()
		c.conn = res.conn
		c.mu.Unlock()
	case <-ctx.Done():
		// Close a connection that completes after we gave up.
		go func() {
			if res := <-done; res.conn != nil {
				res.conn.Close()
			}
		}()
		return c.connectFailed(errors.WrapTransient(ctx.Err(), "Client", "Connect", "connection cancelled"))
	}

	c.failures.Store(0)
	c.setStatus(StatusConnected)
	c.logger.Info("Connected to NATS", "url", c.url)
	c.notifyHealth(true)
	return nil
}

func (c *Client) connectFailed(err error) error {
	failures := c.failures.Add(1)
	if failures >= c.circuitThreshold {
		c.mu.Lock()
		c.openedAt = time.Now()
		c.mu.Unlock()
		c.setStatus(StatusCircuitOpen)
		c.logger.Warn("Circuit breaker opened", "failures", failures)
		return stderrors.Join(ErrCircuitOpen, err)
	}
	c.setStatus(StatusDisconnected)
	return err
}

// circuitCooledDown reports whether the open circuit may be probed again.
// The wait doubles with every failure past the threshold, up to maxBackoff.
func (c *Client) circuitCooledDown() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	wait := c.backoff
	for i := c.circuitThreshold; i < c.failures.Load() && wait < c.maxBackoff; i++ {
		wait *= 2
	}
	if wait > c.maxBackoff {
		wait = c.maxBackoff
	}
	return time.Since(c.openedAt) >= wait
}

// Publish publishes data on subject
func (c *Client) Publish(_ context.Context, subject string, data []byte) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil || !conn.IsConnected() {
		return ErrNotConnected
	}
	if err := conn.Publish(subject, data); err != nil {
		return errors.WrapTransient(err, "Client", "Publish", "publish to "+subject)
	}
	return nil
}

// Close drains and closes the connection. It is safe to call more than once.
func (c *Client) Close(ctx context.Context) error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if c.Status() == StatusClosed {
		return nil
	}
	c.setStatus(StatusClosed)
	if conn == nil {
		return nil
	}

	drained := make(chan error, 1)
	go func() {
		drained <- conn.Drain()
	}()

	select {
	case err := <-drained:
		if err != nil {
			conn.Close()
			return errors.WrapTransient(err, "Client", "Close", "drain connection")
		}
		return nil
	case <-ctx.Done():
		conn.Close()
		return errors.WrapTransient(ctx.Err(), "Client", "Close", "drain connection")
	}
}

func (c *Client) notifyHealth(healthy bool) {
	if c.onHealthChange != nil {
		go c.onHealthChange(healthy)
	}
}

func (c *Client) handleDisconnect(_ *nats.Conn, err error) {
	if c.Status() == StatusClosed {
		return
	}
	c.setStatus(StatusReconnecting)
	c.logger.Warn("Disconnected from NATS", "error", err)
	c.notifyHealth(false)
}

func (c *Client) handleReconnect(_ *nats.Conn) {
	c.failures.Store(0)
	c.setStatus(StatusConnected)
	c.logger.Info("Reconnected to NATS")
	c.notifyHealth(true)
}

func (c *Client) handleClosed(_ *nats.Conn) {
	if c.Status() != StatusClosed {
		c.setStatus(StatusDisconnected)
		c.notifyHealth(false)
	}
}

func (c *Client) handleError(_ *nats.Conn, _ *nats.Subscription, err error) {
	c.logger.Error("NATS error", "error", err)
}
