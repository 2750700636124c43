// Package live pushes odds updates to browsers over websockets. Clients subscribe to
// races and receive every message broadcast for those races.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Message types.
const (
	TypeOdds         = "odds"
	TypeMerge        = "merge"
	TypeSubscribed   = "subscribed"
	TypeUnsubscribed = "unsubscribed"
	TypeError        = "error"

	typeSubscribe   = "subscribe"
	typeUnsubscribe = "unsubscribe"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// ErrHubClosed is returned when a client connects after the hub stopped.
var ErrHubClosed = errors.New("hub is closed")

// Message is the envelope for every frame sent to or received from a client.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type clientIn struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type client struct {
	conn  *websocket.Conn
	send  chan Message
	races map[uuid.UUID]bool
}

// Hub tracks connected clients and their race subscriptions.
type Hub struct {
	mu         sync.Mutex
	clients    map[*client]struct{}
	closed     bool
	wg         sync.WaitGroup
	upgrader   websocket.Upgrader
	sendBuffer int
	logger     *slog.Logger
}

// NewHub creates a hub. By default every origin is accepted.
func NewHub(options ...func(*Hub) error) (*Hub, error) {
	hub := &Hub{
		clients:    make(map[*client]struct{}),
		sendBuffer: 16,
		logger:     slog.New(slog.DiscardHandler),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	for _, option := range options {
		if err := option(hub); err != nil {
			return nil, fmt.Errorf("applying option on hub: %w", err)
		}
	}
	return hub, nil
}

// WithLogger sets the logger used for connection events.
func WithLogger(logger *slog.Logger) func(*Hub) error {
	return func(hub *Hub) error {
		if logger != nil {
			hub.logger = logger
		}
		return nil
	}
}

// WithSendBuffer sets how many messages may queue for a client before it is dropped.
func WithSendBuffer(size int) func(*Hub) error {
	return func(hub *Hub) error {
		if size < 1 {
			return fmt.Errorf("invalid send buffer %d", size)
		}
		hub.sendBuffer = size
		return nil
	}
}

// WithAllowedOrigins restricts websocket upgrades to the given Origin header values.
// An empty list accepts every origin.
func WithAllowedOrigins(origins []string) func(*Hub) error {
	return func(hub *Hub) error {
		if len(origins) == 0 {
			return nil
		}
		allowed := slices.Clone(origins)
		hub.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(allowed, origin)
		}
		return nil
	}
}

// Run blocks until ctx is cancelled, then disconnects every client and waits for their
// goroutines to exit.
func (hub *Hub) Run(ctx context.Context) error {
	<-ctx.Done()

	hub.mu.Lock()
	hub.closed = true
	for c := range hub.clients {
		hub.dropLocked(c)
	}
	hub.mu.Unlock()

	hub.wg.Wait()
	return nil
}

// ServeWS upgrades the request and registers the client. A "race" query parameter
// subscribes the client straight away.
func (hub *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	var initial uuid.UUID
	if raw := r.URL.Query().Get("race"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, "invalid race id", http.StatusBadRequest)
			return
		}
		initial = id
	}

	hub.mu.Lock()
	closed := hub.closed
	hub.mu.Unlock()
	if closed {
		http.Error(w, ErrHubClosed.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := hub.upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	c := &client{
		conn:  conn,
		send:  make(chan Message, hub.sendBuffer),
		races: make(map[uuid.UUID]bool),
	}

	hub.mu.Lock()
	if hub.closed {
		hub.mu.Unlock()
		conn.Close()
		return
	}
	hub.clients[c] = struct{}{}
	hub.wg.Add(2)
	hub.mu.Unlock()

	hub.logger.Debug("websocket client connected", "remote", r.RemoteAddr)

	go hub.writePump(c)
	go hub.readPump(c)

	if initial != uuid.Nil {
		hub.subscribe(c, initial)
	}
}

// Broadcast queues msg for every client subscribed to raceID. Clients whose buffer is
// full are disconnected. It returns the number of clients the message was queued for.
func (hub *Hub) Broadcast(raceID uuid.UUID, msg Message) int {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	sent := 0
	for c := range hub.clients {
		if !c.races[raceID] {
			continue
		}
		select {
		case c.send <- msg:
			sent++
		default:
			hub.logger.Warn("dropping slow websocket client", "race", raceID)
			hub.dropLocked(c)
		}
	}
	return sent
}

// Subscribers returns the number of clients subscribed to raceID.
func (hub *Hub) Subscribers(raceID uuid.UUID) int {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	count := 0
	for c := range hub.clients {
		if c.races[raceID] {
			count++
		}
	}
	return count
}

// dropLocked unregisters c and closes its send channel. hub.mu must be held.
func (hub *Hub) dropLocked(c *client) {
	if _, ok := hub.clients[c]; !ok {
		return
	}
	delete(hub.clients, c)
	close(c.send)
}

func (hub *Hub) drop(c *client) {
	hub.mu.Lock()
	hub.dropLocked(c)
	hub.mu.Unlock()
}

// reply queues a message for a single client.
func (hub *Hub) reply(c *client, msg Message) {
	hub.mu.Lock()
	defer hub.mu.Unlock()

	if _, ok := hub.clients[c]; !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
		hub.dropLocked(c)
	}
}

func (hub *Hub) subscribe(c *client, raceID uuid.UUID) {
	hub.mu.Lock()
	if _, ok := hub.clients[c]; ok {
		c.races[raceID] = true
	}
	hub.mu.Unlock()
	hub.reply(c, Message{Type: TypeSubscribed, Data: raceID.String()})
}

func (hub *Hub) unsubscribe(c *client, raceID uuid.UUID) {
	hub.mu.Lock()
	delete(c.races, raceID)
	hub.mu.Unlock()
	hub.reply(c, Message{Type: TypeUnsubscribed, Data: raceID.String()})
}

func (hub *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		hub.wg.Done()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				hub.logger.Debug("websocket write failed", "error", err)
				hub.drop(c)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				hub.drop(c)
				return
			}
		}
	}
}

func (hub *Hub) readPump(c *client) {
	defer func() {
		hub.drop(c)
		hub.wg.Done()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var in clientIn
		if err := c.conn.ReadJSON(&in); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				hub.logger.Debug("websocket read failed", "error", err)
			}
			return
		}

		var raw string
		if err := json.Unmarshal(in.Data, &raw); err != nil {
			hub.reply(c, Message{Type: TypeError, Data: "data must be a race id"})
			continue
		}
		raceID, err := uuid.Parse(raw)
		if err != nil {
			hub.reply(c, Message{Type: TypeError, Data: "invalid race id"})
			continue
		}

		switch in.Type {
		case typeSubscribe:
			hub.subscribe(c, raceID)
		case typeUnsubscribe:
			hub.unsubscribe(c, raceID)
		default:
			hub.reply(c, Message{Type: TypeError, Data: fmt.Sprintf("unknown message type %q", in.Type)})
		}
	}
}
