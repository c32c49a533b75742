package zeroclaw

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"zeroone.host/internal/config"
	"zeroone.host/internal/core/ports"
)

func addrOf(t *testing.T, srv *httptest.Server) ports.Address {
	t.Helper()
	host, portStr, err := net.SplitHostPort(srv.Listener.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	return ports.Address{Host: host, Port: port}
}

func newTestClient() *Client {
	c := NewClient()
	c.sleep = func(time.Duration) {}
	return c
}

func TestResolverContainerTopology(t *testing.T) {
	r := NewResolver(config.TopologyContainer)
	addr := r.Resolve("helper-bot", 40123)
	assert.Equal(t, "zeroclaw-helper-bot", addr.Host)
	assert.Equal(t, gatewayPort, addr.Port)
}

func TestResolverHostTopology(t *testing.T) {
	r := NewResolver(config.TopologyHost)
	addr := r.Resolve("helper-bot", 40123)
	assert.Equal(t, "127.0.0.1", addr.Host)
	assert.Equal(t, 40123, addr.Port)
}

func TestCheckHealth(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   bool
	}{
		{"ok", http.StatusOK, true},
		{"no content", http.StatusNoContent, true},
		{"server error", http.StatusInternalServerError, false},
		{"not found", http.StatusNotFound, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/health", r.URL.Path)
				w.WriteHeader(tt.status)
			}))
			defer srv.Close()

			got := newTestClient().CheckHealth(context.Background(), addrOf(t, srv))
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCheckHealthUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := addrOf(t, srv)
	srv.Close()

	assert.False(t, newTestClient().CheckHealth(context.Background(), addr))
}

func TestPairSendsCodeHeader(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/pair", r.URL.Path)
		assert.Equal(t, "483920", r.Header.Get("X-Pairing-Code"))
		w.Write([]byte(`{"token":"tok-abc"}`))
	}))
	defer srv.Close()

	token, err := newTestClient().Pair(context.Background(), addrOf(t, srv), "483920")
	require.NoError(t, err)
	assert.Equal(t, "tok-abc", token)
}

func TestPairRetriesUntilSuccess(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 4 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"token":"tok-late"}`))
	}))
	defer srv.Close()

	c := NewClient()
	var delays []time.Duration
	c.sleep = func(d time.Duration) { delays = append(delays, d) }

	token, err := c.Pair(context.Background(), addrOf(t, srv), "111111")
	require.NoError(t, err)
	assert.Equal(t, "tok-late", token)
	assert.Equal(t, int32(4), calls.Load())
	assert.Equal(t, []time.Duration{1 * time.Second, 2 * time.Second, 3 * time.Second}, delays)
}

func TestPairDelayIsCapped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte("bad code"))
	}))
	defer srv.Close()

	c := NewClient()
	var delays []time.Duration
	c.sleep = func(d time.Duration) { delays = append(delays, d) }

	_, err := c.Pair(context.Background(), addrOf(t, srv), "000000")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 10 attempts")
	assert.Contains(t, err.Error(), "bad code")

	require.Len(t, delays, pairMaxAttempts-1)
	for _, d := range delays {
		assert.LessOrEqual(t, d, pairMaxDelay)
	}
	assert.Equal(t, pairMaxDelay, delays[len(delays)-1])
}

func TestPairMissingToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	_, err := newTestClient().Pair(context.Background(), addrOf(t, srv), "222222")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing token")
}

func TestSendMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/webhook", r.URL.Path)
		assert.Equal(t, "Bearer tok-abc", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		w.Write([]byte(`{"response":"hello there"}`))
	}))
	defer srv.Close()

	out, err := newTestClient().SendMessage(context.Background(), addrOf(t, srv), "tok-abc", "hi")
	require.NoError(t, err)
	assert.Equal(t, "hello there", out["response"])
}

func TestSendMessageSurfacesErrorBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("provider exploded"))
	}))
	defer srv.Close()

	_, err := newTestClient().SendMessage(context.Background(), addrOf(t, srv), "tok", "hi")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "provider exploded")
}
