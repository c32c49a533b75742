package http

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func hubHasClient(h *Hub, c *Client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.clients[c]
	return ok
}

func TestHubUnregisterRemovesClient(t *testing.T) {
	h := NewHub(nil)
	go h.Run()

	client := &Client{hub: h, send: make(chan Message, 1)}
	h.register <- client
	require.Eventually(t, func() bool {
		return hubHasClient(h, client)
	}, time.Second, 5*time.Millisecond)

	// A disconnecting writePump reports itself here; the hub must drop the
	// client and close its channel instead of waiting for a full buffer.
	h.unregister <- client
	require.Eventually(t, func() bool {
		return !hubHasClient(h, client)
	}, time.Second, 5*time.Millisecond)

	_, open := <-client.send
	assert.False(t, open)
}

func TestHubBroadcastReachesClients(t *testing.T) {
	h := NewHub(nil)
	go h.Run()

	client := &Client{hub: h, send: make(chan Message, 1)}
	h.register <- client
	require.Eventually(t, func() bool {
		return hubHasClient(h, client)
	}, time.Second, 5*time.Millisecond)

	h.Broadcast(Message{Type: "agent_event", Payload: "hello"})

	select {
	case msg := <-client.send:
		assert.Equal(t, "agent_event", msg.Type)
	case <-time.After(time.Second):
		t.Fatal("broadcast never reached the client")
	}
}
