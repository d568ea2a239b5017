package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"kraken-autotrade/internal/events"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// closeInvalidToken is the WS close code returned when the bearer token
// presented on the /ws/events upgrade fails verification (spec.md §6).
const closeInvalidToken = 4001

// wsClient is one connected operator dashboard/tail session.
type wsClient struct {
	conn      *websocket.Conn
	send      chan []byte
	hub       *wsHub
	closeChan chan struct{}
}

// wsHub fans out every events.BotEvent to all connected clients.
type wsHub struct {
	clients    map[*wsClient]bool
	broadcast  chan []byte
	register   chan *wsClient
	unregister chan *wsClient
	mu         sync.RWMutex
}

func newWSHub() *wsHub {
	return &wsHub{
		clients:    make(map[*wsClient]bool),
		broadcast:  make(chan []byte, 4096),
		register:   make(chan *wsClient),
		unregister: make(chan *wsClient),
	}
}

func (h *wsHub) run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(h.clients, client)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// subscribe drains bus.Events() for the process lifetime and fans each
// BotEvent out to connected WS clients. This is the one-way engine→notifier
// channel described in SPEC_FULL.md §10; the hub never writes back to bus.
func (h *wsHub) subscribe(bus *events.Bus) {
	for evt := range bus.Events() {
		data, err := json.Marshal(evt)
		if err != nil {
			continue
		}
		select {
		case h.broadcast <- data:
		default:
		}
	}
}

func (h *wsHub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.closeChan:
			return
		}
	}
}

func (c *wsClient) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
		close(c.closeChan)
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
		// clients never send application messages; this just detects disconnects
	}
}

// handleWebSocket upgrades GET /ws/events after verifying the ?token=
// bearer token, then replays the reverse-chronological event snapshot
// before streaming live BotEvents.
func (s *Server) handleWebSocket(c *gin.Context) {
	token := c.Query("token")
	if err := s.wsAuth.VerifyToken(token); err != nil {
		conn, upErr := upgrader.Upgrade(c.Writer, c.Request, nil)
		if upErr != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		closeMsg := websocket.FormatCloseMessage(closeInvalidToken, "invalid or expired token")
		conn.WriteMessage(websocket.CloseMessage, closeMsg)
		conn.Close()
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", "error", err.Error())
		return
	}

	client := &wsClient{
		conn:      conn,
		send:      make(chan []byte, 256),
		hub:       s.hub,
		closeChan: make(chan struct{}),
	}
	s.sendSnapshot(c.Request.Context(), client)

	client.hub.register <- client

	go client.writePump()
	go client.readPump()
}

// sendSnapshot replays recent events newest-first so a freshly connected
// client can render current state without waiting for the next live event.
func (s *Server) sendSnapshot(ctx context.Context, client *wsClient) {
	recent, err := s.repo.RecentEvents(ctx, 50)
	if err != nil {
		return
	}
	for _, evt := range recent {
		data, err := json.Marshal(evt)
		if err != nil {
			continue
		}
		select {
		case client.send <- data:
		default:
			return
		}
	}
}
