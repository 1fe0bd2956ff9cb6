package graphql

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360/semblog/testutil"
)

type httpResponse struct {
	Data   json.RawMessage  `json:"data"`
	Errors []map[string]any `json:"errors"`
}

func newTestServer(t *testing.T, mutate func(*Config)) (*testGateway, *Server, *httptest.Server) {
	t.Helper()

	g := newTestGateway(t, testutil.BlogFixture(), 10)

	cfg := DefaultConfig()
	cfg.BindAddress = "127.0.0.1:0"
	cfg.KeepAliveStr = "0s"
	cfg.RateLimit = -1
	if mutate != nil {
		mutate(&cfg)
	}

	srv, err := NewServer(cfg, g.executor, nil, WithHealthReporters(g.broker, g.resolver))
	require.NoError(t, err)
	require.NoError(t, srv.Setup())

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return g, srv, ts
}

func decodeResponse(t *testing.T, resp *http.Response) httpResponse {
	t.Helper()
	defer resp.Body.Close()

	var out httpResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func postJSON(t *testing.T, ts *httptest.Server, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(ts.URL+"/graphql", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	return resp
}

func TestServer_PostQuery(t *testing.T) {
	_, _, ts := newTestServer(t, nil)

	resp := postJSON(t, ts, `{"query":"{ users(query: \"carla\") { name posts { title } } }"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))

	out := decodeResponse(t, resp)
	assert.Empty(t, out.Errors)
	assert.JSONEq(t, `{"users":[{"name":"Carla","posts":[{"title":"Go generics"}]}]}`, string(out.Data))
}

func TestServer_PostMutationWithVariables(t *testing.T) {
	g, _, ts := newTestServer(t, nil)

	resp := postJSON(t, ts, `{
		"query": "mutation Add($name: String!, $email: String!, $age: Int) { createUser(name: $name, email: $email, age: $age) { id age } }",
		"operationName": "Add",
		"variables": {"name": "Dana", "email": "dana@example.com", "age": 40}
	}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	out := decodeResponse(t, resp)
	assert.Empty(t, out.Errors)
	assert.JSONEq(t, `{"createUser":{"id":"id-1","age":40}}`, string(out.Data))
	assert.Len(t, g.store.Snapshot().Users, 4)
}

func TestServer_ResolverErrorsUseOK(t *testing.T) {
	_, _, ts := newTestServer(t, nil)

	resp := postJSON(t, ts,
		`{"query":"mutation { createUser(name: \"A\", email: \"bob@example.com\") { id } }"}`)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	out := decodeResponse(t, resp)
	assert.Equal(t, "null", string(out.Data))
	require.Len(t, out.Errors, 1)
	assert.Equal(t, "email address is taken", out.Errors[0]["message"])
	ext, _ := out.Errors[0]["extensions"].(map[string]any)
	assert.Equal(t, CodeConflict, ext["code"])
}

func TestServer_GetQuery(t *testing.T) {
	_, _, ts := newTestServer(t, nil)

	q := url.Values{}
	q.Set("query", `query($q: String) { posts(query: $q) { id } }`)
	q.Set("variables", `{"q":"generics"}`)

	resp, err := http.Get(ts.URL + "/graphql?" + q.Encode())
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	out := decodeResponse(t, resp)
	assert.Empty(t, out.Errors)
	assert.JSONEq(t, `{"posts":[{"id":"p3"}]}`, string(out.Data))
}

func TestServer_RejectedRequests(t *testing.T) {
	g, _, ts := newTestServer(t, nil)

	t.Run("mutation over GET", func(t *testing.T) {
		q := url.Values{}
		q.Set("query", `mutation { deleteUser(id: "u1") { id } }`)
		resp, err := http.Get(ts.URL + "/graphql?" + q.Encode())
		require.NoError(t, err)
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
		_ = resp.Body.Close()
		assert.Len(t, g.store.Snapshot().Users, 3)
	})

	t.Run("unsupported method", func(t *testing.T) {
		req, err := http.NewRequest(http.MethodPut, ts.URL+"/graphql", strings.NewReader(`{}`))
		require.NoError(t, err)
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
		assert.Equal(t, "GET, POST, OPTIONS", resp.Header.Get("Allow"))
		_ = resp.Body.Close()
	})

	t.Run("malformed body", func(t *testing.T) {
		resp := postJSON(t, ts, `{"query":`)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		out := decodeResponse(t, resp)
		require.Len(t, out.Errors, 1)
		ext, _ := out.Errors[0]["extensions"].(map[string]any)
		assert.Equal(t, CodeValidation, ext["code"])
	})

	t.Run("wrong content type", func(t *testing.T) {
		resp, err := http.Post(ts.URL+"/graphql", "text/plain", strings.NewReader(`{ me { id } }`))
		require.NoError(t, err)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		_ = resp.Body.Close()
	})

	t.Run("invalid query", func(t *testing.T) {
		resp := postJSON(t, ts, `{"query":"{ nope }"}`)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		out := decodeResponse(t, resp)
		assert.NotEmpty(t, out.Errors)
		assert.Contains(t, []string{"", "null"}, string(out.Data))
	})
}

func TestServer_CORS(t *testing.T) {
	_, _, ts := newTestServer(t, func(c *Config) {
		c.CORSOrigins = []string{"http://blog.example.com"}
	})

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/graphql", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://blog.example.com")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()

	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "http://blog.example.com", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "POST")

	req.Header.Set("Origin", "http://evil.example.com")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestServer_Playground(t *testing.T) {
	_, _, ts := newTestServer(t, nil)

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "semblog")
}

func TestServer_PlaygroundDisabled(t *testing.T) {
	_, _, ts := newTestServer(t, func(c *Config) { c.EnablePlayground = false })

	resp, err := http.Get(ts.URL + "/")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_ExtraHandler(t *testing.T) {
	g := newTestGateway(t, testutil.BlogFixture(), 10)
	cfg := DefaultConfig()

	srv, err := NewServer(cfg, g.executor, nil, WithHandler("/metrics",
		http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = io.WriteString(w, "metrics")
		})))
	require.NoError(t, err)
	require.NoError(t, srv.Setup())

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, "metrics", rec.Body.String())
}

func TestServer_NewServerValidation(t *testing.T) {
	g := newTestGateway(t, testutil.BlogFixture(), 10)

	_, err := NewServer(Config{Path: "graphql"}, g.executor, nil)
	assert.Error(t, err)

	_, err = NewServer(DefaultConfig(), nil, nil)
	assert.Error(t, err)
}

func TestServer_LifecycleAndHealth(t *testing.T) {
	_, srv, ts := newTestServer(t, nil)

	// not started yet
	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	ctx, cancel := context.WithCancel(context.Background())
	ready := make(chan struct{})
	done := make(chan error, 1)
	go func() { done <- srv.Start(ctx, ready) }()

	select {
	case <-ready:
	case <-time.After(testutil.DefaultTimeout):
		t.Fatal("server did not start")
	}
	assert.True(t, srv.IsRunning())
	assert.NotEqual(t, "127.0.0.1:0", srv.Addr())

	resp, err = http.Get("http://" + srv.Addr() + "/health")
	require.NoError(t, err)
	var status struct {
		Status      string `json:"status"`
		SubStatuses []struct {
			Component string `json:"component"`
		} `json:"sub_statuses"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&status))
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "healthy", status.Status)
	assert.Len(t, status.SubStatuses, 3)

	err = srv.Start(ctx, nil)
	assert.Error(t, err)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(testutil.DefaultTimeout):
		t.Fatal("server did not stop")
	}
	assert.False(t, srv.IsRunning())
	assert.NoError(t, srv.Stop(time.Second))
}

func TestServer_RateLimited(t *testing.T) {
	_, _, ts := newTestServer(t, func(c *Config) {
		c.RateLimit = 0.001
		c.RateBurst = 1
	})

	first := postJSON(t, ts, `{"query":"{ me { name } }"}`)
	assert.Equal(t, http.StatusOK, first.StatusCode)
	assert.Empty(t, decodeResponse(t, first).Errors)

	second := postJSON(t, ts, `{"query":"{ me { name } }"}`)
	assert.Equal(t, http.StatusTooManyRequests, second.StatusCode)
	assert.Equal(t, "1", second.Header.Get("Retry-After"))

	out := decodeResponse(t, second)
	require.Len(t, out.Errors, 1)
	ext, ok := out.Errors[0]["extensions"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, CodeRateLimited, ext["code"])
	assert.Equal(t, true, ext["retryable"])
	assert.Equal(t, "rate limit exceeded", out.Errors[0]["message"])
}

func TestServer_RateLimitDisabled(t *testing.T) {
	_, _, ts := newTestServer(t, func(c *Config) { c.RateBurst = 1 })

	for i := 0; i < 20; i++ {
		resp := postJSON(t, ts, `{"query":"{ me { name } }"}`)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		_ = resp.Body.Close()
	}
}
