package graphql

import (
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semblog/pubsub"
	"github.com/c360/semblog/testutil"
)

func dialWS(t *testing.T, ts *httptest.Server, subprotocols ...string) *websocket.Conn {
	t.Helper()

	dialer := websocket.Dialer{
		Subprotocols:     subprotocols,
		HandshakeTimeout: testutil.DefaultTimeout,
	}
	endpoint := "ws" + strings.TrimPrefix(ts.URL, "http") + "/graphql"
	conn, _, err := dialer.Dial(endpoint, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func writeWS(t *testing.T, conn *websocket.Conn, msg string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(msg)))
}

func readWS(t *testing.T, conn *websocket.Conn) wsMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(testutil.DefaultTimeout)))
	var msg wsMessage
	require.NoError(t, conn.ReadJSON(&msg))
	return msg
}

func expectClose(t *testing.T, conn *websocket.Conn, code int) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(testutil.DefaultTimeout)))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var closeErr *websocket.CloseError
		require.True(t, errors.As(err, &closeErr), "expected close frame, got %v", err)
		assert.Equal(t, code, closeErr.Code)
		return
	}
}

func initWS(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	conn := dialWS(t, ts, wsSubprotocol)
	writeWS(t, conn, `{"type":"connection_init"}`)
	require.Equal(t, msgConnectionAck, readWS(t, conn).Type)
	return conn
}

func TestWebsocket_PingPong(t *testing.T) {
	_, _, ts := newTestServer(t, nil)
	conn := initWS(t, ts)

	writeWS(t, conn, `{"type":"ping","payload":{"n":1}}`)
	msg := readWS(t, conn)
	assert.Equal(t, msgPong, msg.Type)
	assert.JSONEq(t, `{"n":1}`, string(msg.Payload))
}

func TestWebsocket_QueryCompletes(t *testing.T) {
	_, _, ts := newTestServer(t, nil)
	conn := initWS(t, ts)

	writeWS(t, conn, `{"id":"q1","type":"subscribe","payload":{"query":"{ post { title } }"}}`)

	next := readWS(t, conn)
	assert.Equal(t, msgNext, next.Type)
	assert.Equal(t, "q1", next.ID)
	assert.JSONEq(t, `{"data":{"post":{"title":"Hello World"}}}`, string(next.Payload))

	done := readWS(t, conn)
	assert.Equal(t, msgComplete, done.Type)
	assert.Equal(t, "q1", done.ID)
}

func TestWebsocket_CommentSubscription(t *testing.T) {
	g, srv, ts := newTestServer(t, nil)
	conn := initWS(t, ts)

	writeWS(t, conn, `{"id":"s1","type":"subscribe","payload":{
		"query":"subscription($p: ID!) { comment(postId: $p) { text author { name } } }",
		"variables":{"p":"p1"}}}`)

	topic := pubsub.CommentsTopic("p1")
	testutil.WaitFor(t, testutil.DefaultTimeout, func() bool {
		return g.broker.SubscriberCount(topic) == 1
	}, "subscription not registered")
	assert.Equal(t, 1, srv.Health().Details["websocket_connections"])

	resp := g.do(`mutation { createComment(text: "Live", author: "u3", post: "p1") { id } }`, nil)
	require.Empty(t, resp.Errors)

	next := readWS(t, conn)
	assert.Equal(t, msgNext, next.Type)
	assert.Equal(t, "s1", next.ID)
	assert.JSONEq(t, `{"data":{"comment":{"text":"Live","author":{"name":"Carla"}}}}`, string(next.Payload))

	writeWS(t, conn, `{"id":"s1","type":"complete"}`)
	testutil.WaitFor(t, testutil.DefaultTimeout, func() bool {
		return g.broker.SubscriberCount(topic) == 0
	}, "subscription not released after complete")

	// the id may be reused once completed
	writeWS(t, conn, `{"id":"s1","type":"subscribe","payload":{"query":"{ me { name } }"}}`)
	assert.Equal(t, msgNext, readWS(t, conn).Type)
	assert.Equal(t, msgComplete, readWS(t, conn).Type)
}

func TestWebsocket_SubscriptionToDraftPost(t *testing.T) {
	_, _, ts := newTestServer(t, nil)
	conn := initWS(t, ts)

	writeWS(t, conn, `{"id":"s1","type":"subscribe","payload":{"query":"subscription { comment(postId: \"p2\") { id } }"}}`)

	msg := readWS(t, conn)
	assert.Equal(t, msgError, msg.Type)
	assert.Equal(t, "s1", msg.ID)

	var errs []map[string]any
	require.NoError(t, json.Unmarshal(msg.Payload, &errs))
	require.Len(t, errs, 1)
	assert.Equal(t, "post not found", errs[0]["message"])
}

func TestWebsocket_ConnectionClosesReleaseSubscriptions(t *testing.T) {
	g, _, ts := newTestServer(t, nil)
	conn := initWS(t, ts)

	writeWS(t, conn, `{"id":"s1","type":"subscribe","payload":{"query":"subscription { post { id } }"}}`)
	testutil.WaitFor(t, testutil.DefaultTimeout, func() bool {
		return g.broker.SubscriberCount(pubsub.PostsTopic()) == 1
	}, "subscription not registered")

	require.NoError(t, conn.Close())
	testutil.WaitFor(t, testutil.DefaultTimeout, func() bool {
		return g.broker.SubscriberCount(pubsub.PostsTopic()) == 0
	}, "subscription not released after disconnect")
}

func TestWebsocket_ProtocolViolations(t *testing.T) {
	tests := []struct {
		name     string
		init     bool
		messages []string
		code     int
	}{
		{
			name:     "subscribe before init",
			messages: []string{`{"id":"1","type":"subscribe","payload":{"query":"{ me { id } }"}}`},
			code:     closeUnauthorized,
		},
		{
			name:     "second init",
			init:     true,
			messages: []string{`{"type":"connection_init"}`},
			code:     closeTooManyInitRequest,
		},
		{
			name: "duplicate subscription id",
			init: true,
			messages: []string{
				`{"id":"1","type":"subscribe","payload":{"query":"subscription { post { id } }"}}`,
				`{"id":"1","type":"subscribe","payload":{"query":"subscription { post { id } }"}}`,
			},
			code: closeSubscriberExists,
		},
		{
			name:     "subscribe without id",
			init:     true,
			messages: []string{`{"type":"subscribe","payload":{"query":"{ me { id } }"}}`},
			code:     closeBadRequest,
		},
		{
			name:     "not json",
			init:     true,
			messages: []string{`hello`},
			code:     closeBadRequest,
		},
		{
			name:     "unknown type",
			init:     true,
			messages: []string{`{"type":"start"}`},
			code:     closeBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, ts := newTestServer(t, nil)

			var conn *websocket.Conn
			if tt.init {
				conn = initWS(t, ts)
			} else {
				conn = dialWS(t, ts, wsSubprotocol)
			}
			for _, m := range tt.messages {
				writeWS(t, conn, m)
			}
			expectClose(t, conn, tt.code)
		})
	}
}

func TestWebsocket_RequiresSubprotocol(t *testing.T) {
	_, _, ts := newTestServer(t, nil)
	conn := dialWS(t, ts)
	expectClose(t, conn, closeSubprotocol)
}

func TestWebsocket_InitTimeout(t *testing.T) {
	_, _, ts := newTestServer(t, func(c *Config) { c.InitTimeoutStr = "50ms" })
	conn := dialWS(t, ts, wsSubprotocol)
	expectClose(t, conn, closeInitTimeout)
}

func TestWebsocket_KeepAlivePings(t *testing.T) {
	_, _, ts := newTestServer(t, func(c *Config) { c.KeepAliveStr = "20ms" })
	conn := initWS(t, ts)

	assert.Equal(t, msgPing, readWS(t, conn).Type)
}

func TestWebsocket_SubscribeRateLimited(t *testing.T) {
	_, _, ts := newTestServer(t, func(c *Config) {
		c.RateLimit = 0.001
		c.RateBurst = 1
	})
	conn := initWS(t, ts)

	writeWS(t, conn, `{"id":"q1","type":"subscribe","payload":{"query":"{ post { title } }"}}`)
	assert.Equal(t, msgNext, readWS(t, conn).Type)
	assert.Equal(t, msgComplete, readWS(t, conn).Type)

	writeWS(t, conn, `{"id":"q2","type":"subscribe","payload":{"query":"{ post { title } }"}}`)
	msg := readWS(t, conn)
	assert.Equal(t, msgError, msg.Type)
	assert.Equal(t, "q2", msg.ID)

	var errs []map[string]any
	require.NoError(t, json.Unmarshal(msg.Payload, &errs))
	require.Len(t, errs, 1)
	ext, ok := errs[0]["extensions"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, CodeRateLimited, ext["code"])

	writeWS(t, conn, `{"type":"ping"}`)
	assert.Equal(t, msgPong, readWS(t, conn).Type)
}
