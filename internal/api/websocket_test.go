package api

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestWSHubRegisterAndUnregister(t *testing.T) {
	h := newWSHub()
	go h.run()

	client := &wsClient{send: make(chan []byte, 1), hub: h, closeChan: make(chan struct{})}
	h.register <- client
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 1, h.clientCount())

	h.unregister <- client
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, 0, h.clientCount())
}

func TestWSHubBroadcastDropsWhenClientBufferFull(t *testing.T) {
	h := newWSHub()
	go h.run()

	client := &wsClient{send: make(chan []byte), hub: h, closeChan: make(chan struct{})} // unbuffered: any send blocks
	h.register <- client
	time.Sleep(10 * time.Millisecond)

	h.broadcast <- []byte(`{"type":"heartbeat"}`)
	time.Sleep(10 * time.Millisecond)

	// the hub's default case drops and evicts the stalled client rather than blocking
	assert.Equal(t, 0, h.clientCount())
}
