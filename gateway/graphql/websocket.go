package graphql

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/99designs/gqlgen/graphql"
	"github.com/gorilla/websocket"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

// graphql-transport-ws protocol
const (
	wsSubprotocol = "graphql-transport-ws"

	msgConnectionInit = "connection_init"
	msgConnectionAck  = "connection_ack"
	msgPing           = "ping"
	msgPong           = "pong"
	msgSubscribe      = "subscribe"
	msgNext           = "next"
	msgError          = "error"
	msgComplete       = "complete"
)

// Close codes defined by graphql-transport-ws
const (
	closeBadRequest         = 4400
	closeUnauthorized       = 4401
	closeSubprotocol        = 4406
	closeInitTimeout        = 4408
	closeSubscriberExists   = 4409
	closeTooManyInitRequest = 4429
)

const wsWriteTimeout = 10 * time.Second

type wsMessage struct {
	ID      string          `json:"id,omitempty"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// wsOperation is one running subscribe request
type wsOperation struct {
	ctx    context.Context
	cancel context.CancelFunc
}

// wsConnection serves one graphql-transport-ws client
type wsConnection struct {
	server *Server
	conn   *websocket.Conn
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	writeMu  sync.Mutex
	closed   atomic.Bool
	acked    atomic.Bool
	initSeen bool

	mu  sync.Mutex
	ops map[string]*wsOperation
	wg  sync.WaitGroup
}

func (s *Server) serveWebsocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error
		s.logger.Debug("Websocket upgrade failed", "error", err)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &wsConnection{
		server: s,
		conn:   conn,
		logger: s.logger.With("remote", r.RemoteAddr),
		ctx:    ctx,
		cancel: cancel,
		ops:    make(map[string]*wsOperation),
	}

	if conn.Subprotocol() != wsSubprotocol {
		c.closeWith(closeSubprotocol, "Subprotocol not acceptable")
		cancel()
		return
	}

	s.trackConn(c)
	defer s.untrackConn(c)
	c.run()
}

func (c *wsConnection) run() {
	defer c.shutdown()

	initTimer := time.AfterFunc(c.server.config.InitTimeout(), func() {
		if !c.acked.Load() {
			c.closeWith(closeInitTimeout, "Connection initialisation timeout")
		}
	})
	defer initTimer.Stop()

	if interval := c.server.config.KeepAlive(); interval > 0 {
		go c.keepAlive(interval)
	}

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if !c.closed.Load() && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				c.logger.Debug("Websocket read failed", "error", err)
			}
			return
		}

		var msg wsMessage
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type == "" {
			c.closeWith(closeBadRequest, "Invalid message received")
			return
		}
		if !c.handle(msg) {
			return
		}
	}
}

// handle processes one client message and reports whether the connection
// stays open
func (c *wsConnection) handle(msg wsMessage) bool {
	switch msg.Type {
	case msgConnectionInit:
		if c.initSeen {
			c.closeWith(closeTooManyInitRequest, "Too many initialisation requests")
			return false
		}
		c.initSeen = true
		c.acked.Store(true)
		c.send(wsMessage{Type: msgConnectionAck})

	case msgPing:
		c.send(wsMessage{Type: msgPong, Payload: msg.Payload})

	case msgPong:

	case msgSubscribe:
		if !c.acked.Load() {
			c.closeWith(closeUnauthorized, "Unauthorized")
			return false
		}
		if msg.ID == "" {
			c.closeWith(closeBadRequest, "Subscribe message requires an id")
			return false
		}

		var params graphql.RawParams
		dec := json.NewDecoder(bytes.NewReader(msg.Payload))
		dec.UseNumber()
		if err := dec.Decode(&params); err != nil {
			c.closeWith(closeBadRequest, "Invalid subscribe payload")
			return false
		}

		if !c.server.limiter.Allow() {
			c.sendErrors(msg.ID, gqlerror.List{rateLimitedError(params.OperationName)})
			return true
		}

		op, ok := c.register(msg.ID)
		if !ok {
			c.closeWith(closeSubscriberExists, "Subscriber for "+msg.ID+" already exists")
			return false
		}
		c.wg.Add(1)
		go c.runOperation(op, msg.ID, &params)

	case msgComplete:
		c.mu.Lock()
		if op, ok := c.ops[msg.ID]; ok {
			delete(c.ops, msg.ID)
			op.cancel()
		}
		c.mu.Unlock()

	default:
		c.closeWith(closeBadRequest, "Unknown message type "+msg.Type)
		return false
	}
	return true
}

func (c *wsConnection) register(id string) (*wsOperation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.ops[id]; exists {
		return nil, false
	}
	ctx, cancel := context.WithCancel(c.ctx)
	op := &wsOperation{ctx: ctx, cancel: cancel}
	c.ops[id] = op
	return op, true
}

// finish removes op unless the id was already completed and reused
func (c *wsConnection) finish(id string, op *wsOperation) {
	c.mu.Lock()
	if c.ops[id] == op {
		delete(c.ops, id)
	}
	c.mu.Unlock()
	op.cancel()
}

func (c *wsConnection) runOperation(op *wsOperation, id string, params *graphql.RawParams) {
	defer c.wg.Done()
	defer c.finish(id, op)

	ctx := op.ctx
	executor := c.server.executor
	req, errs := executor.Prepare(params)
	if errs != nil {
		c.sendErrors(id, errs)
		return
	}

	if req.Operation() != ast.Subscription {
		execCtx, cancel := context.WithTimeout(ctx, c.server.config.Timeout())
		resp := executor.Execute(execCtx, req)
		cancel()
		if ctx.Err() == nil {
			c.sendNext(id, resp)
			c.send(wsMessage{ID: id, Type: msgComplete})
		}
		return
	}

	stream, errs := executor.Subscribe(ctx, req)
	if errs != nil {
		c.sendErrors(id, errs)
		return
	}
	c.logger.Debug("Subscription started", "id", id, "operation", req.Name())

	for resp := range stream {
		c.sendNext(id, resp)
	}

	// A cancelled ctx means the client completed or the connection closed
	if ctx.Err() == nil {
		c.send(wsMessage{ID: id, Type: msgComplete})
	}
	c.logger.Debug("Subscription ended", "id", id)
}

func (c *wsConnection) sendNext(id string, resp *graphql.Response) {
	payload, err := json.Marshal(resp)
	if err != nil {
		c.logger.Error("Failed to encode subscription payload", "id", id, "error", err)
		return
	}
	c.send(wsMessage{ID: id, Type: msgNext, Payload: payload})
}

func (c *wsConnection) sendErrors(id string, errs gqlerror.List) {
	payload, err := json.Marshal(errs)
	if err != nil {
		c.logger.Error("Failed to encode errors", "id", id, "error", err)
		return
	}
	c.send(wsMessage{ID: id, Type: msgError, Payload: payload})
}

func (c *wsConnection) send(msg wsMessage) {
	if c.closed.Load() {
		return
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := c.conn.WriteJSON(msg); err != nil {
		c.logger.Debug("Websocket write failed", "type", msg.Type, "error", err)
	}
}

func (c *wsConnection) keepAlive(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.send(wsMessage{Type: msgPing})
		}
	}
}

// closeWith sends a close frame and closes the socket; the read loop then
// exits and cancels all operations
func (c *wsConnection) closeWith(code int, reason string) {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.writeMu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(wsWriteTimeout))
	c.writeMu.Unlock()
	_ = c.conn.Close()
}

func (c *wsConnection) shutdown() {
	c.closed.Store(true)
	c.cancel()
	_ = c.conn.Close()
	c.wg.Wait()
}
