package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/mqttlink/internal/infrastructure/config"
	"github.com/nerrad567/mqttlink/internal/infrastructure/logging"
	"github.com/nerrad567/mqttlink/internal/link"
)

// WebSocket message types.
const (
	WSTypeSubscribe   = "subscribe"
	WSTypeUnsubscribe = "unsubscribe"
	WSTypePing        = "ping"
	WSTypePong        = "pong"
	WSTypeEvent       = "event"
	WSTypeResponse    = "response"
	WSTypeError       = "error"

	// wsSendBufferSize is the per-client outbound queue. Events for a client
	// whose queue is full are dropped.
	wsSendBufferSize = 256

	defaultWSMaxMessageSize = 8192
	defaultWSPingInterval   = 30 // seconds
	defaultWSPongTimeout    = 10 // seconds
)

// WSMessage is a frame sent to or from a WebSocket client.
type WSMessage struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	EventType string `json:"event_type,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Payload   any    `json:"payload,omitempty"`
}

// WSSubscribePayload is the payload of subscribe and unsubscribe frames.
type WSSubscribePayload struct {
	Kinds []string `json:"kinds"`
}

// wsEvent is the payload of an event frame.
type wsEvent struct {
	Kind     string    `json:"kind"`
	ClientID string    `json:"client_id,omitempty"`
	Detail   string    `json:"detail,omitempty"`
	Error    string    `json:"error,omitempty"`
	Time     time.Time `json:"time"`
}

// Hub fans link events out to WebSocket clients.
//
// *Hub satisfies link.EventSink. RecordEvent never blocks: each client has a
// bounded queue and a slow client loses events rather than stalling the link.
type Hub struct {
	cfg    config.WebSocketConfig
	logger *logging.Logger

	// mu guards clients and closed. Client send channels are only written
	// under the read lock and only closed under the write lock.
	mu      sync.RWMutex
	clients map[*WSClient]struct{}
	closed  bool
}

// WSClient is one connected WebSocket.
type WSClient struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	// kinds filters the events delivered to this client. nil means all.
	mu    sync.RWMutex
	kinds map[link.EventKind]struct{}
}

var _ link.EventSink = (*Hub)(nil)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The API is bound to localhost and carries no credentials.
	CheckOrigin: func(_ *http.Request) bool { return true },
}

// NewHub creates an empty hub. Zero settings in cfg take their defaults.
func NewHub(cfg config.WebSocketConfig, logger *logging.Logger) *Hub {
	if logger == nil {
		logger = logging.Nop()
	}
	if cfg.MaxMessageSize <= 0 {
		cfg.MaxMessageSize = defaultWSMaxMessageSize
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = defaultWSPingInterval
	}
	if cfg.PongTimeout <= 0 {
		cfg.PongTimeout = defaultWSPongTimeout
	}
	return &Hub{
		cfg:     cfg,
		logger:  logger.With("component", "websocket"),
		clients: make(map[*WSClient]struct{}),
	}
}

// Register adds a client. It returns false once the hub is closed.
func (h *Hub) Register(client *WSClient) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.clients[client] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	h.logger.Debug("websocket client connected", "clients", n)
	return true
}

// Unregister removes a client and closes its send channel. Repeated calls
// are no-ops.
func (h *Hub) Unregister(client *WSClient) {
	h.mu.Lock()
	_, existed := h.clients[client]
	delete(h.clients, client)
	if existed {
		close(client.send)
	}
	n := len(h.clients)
	h.mu.Unlock()

	if existed {
		h.logger.Debug("websocket client disconnected", "clients", n)
	}
}

// RecordEvent implements link.EventSink.
func (h *Hub) RecordEvent(ev link.Event) {
	payload := wsEvent{
		Kind:     string(ev.Kind),
		ClientID: ev.ClientID,
		Detail:   ev.Detail,
		Time:     ev.Time.UTC(),
	}
	if ev.Err != nil {
		payload.Error = ev.Err.Error()
	}
	h.Broadcast(ev.Kind, ev.Time, payload)
}

// Broadcast queues an event frame for every client whose filter accepts
// kind.
func (h *Hub) Broadcast(kind link.EventKind, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now()
	}
	data, err := json.Marshal(WSMessage{
		Type:      WSTypeEvent,
		EventType: string(kind),
		Timestamp: at.UTC().Format(time.RFC3339Nano),
		Payload:   payload,
	})
	if err != nil {
		h.logger.Error("failed to marshal event frame", "kind", kind, "error", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	sent, dropped := 0, 0
	for client := range h.clients {
		if !client.accepts(kind) {
			continue
		}
		select {
		case client.send <- data:
			sent++
		default:
			dropped++
		}
	}
	if dropped > 0 {
		h.logger.Warn("websocket clients too slow, event dropped", "kind", kind, "dropped", dropped)
	}
	if sent > 0 {
		h.logger.Debug("event broadcast", "kind", kind, "recipients", sent)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every client and refuses new ones. Each write pump
// sends a close frame and hangs up. Later calls are no-ops.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}

// sendTo queues data for one client unless it has been unregistered.
func (h *Hub) sendTo(client *WSClient, data []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, ok := h.clients[client]; !ok {
		return
	}
	select {
	case client.send <- data:
	default:
	}
}

// parseKinds validates event kind names.
func parseKinds(names []string) ([]link.EventKind, error) {
	kinds := make([]link.EventKind, 0, len(names))
	for _, n := range names {
		k := link.EventKind(n)
		if !k.Valid() {
			return nil, fmt.Errorf("unknown event kind %q", n)
		}
		kinds = append(kinds, k)
	}
	return kinds, nil
}

// handleWebSocket upgrades to a WebSocket that streams link events. Repeated
// kind query parameters set the initial filter; without them every kind is
// delivered.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	var initial []link.EventKind
	if names := r.URL.Query()["kind"]; len(names) > 0 {
		kinds, err := parseKinds(names)
		if err != nil {
			writeBadRequest(w, err.Error())
			return
		}
		initial = kinds
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return
	}

	client := &WSClient{
		hub:  s.hub,
		conn: conn,
		send: make(chan []byte, wsSendBufferSize),
	}
	if initial != nil {
		client.subscribe(initial)
	}

	if !s.hub.Register(client) {
		//nolint:errcheck // best-effort close frame
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

func (h *Hub) keepalive() (pingInterval, pongWait time.Duration) {
	return time.Duration(h.cfg.PingInterval) * time.Second, time.Duration(h.cfg.PongTimeout) * time.Second
}

// readPump handles client frames until the connection fails or closes.
func (c *WSClient) readPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	pingInterval, pongWait := c.hub.keepalive()
	extend := func() error {
		return c.conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	}

	c.conn.SetReadLimit(int64(c.hub.cfg.MaxMessageSize))
	extend() //nolint:errcheck // a failed deadline surfaces as a read error
	c.conn.SetPongHandler(func(string) error { return extend() })

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("websocket read error", "error", err)
			}
			return
		}
		extend() //nolint:errcheck // a failed deadline surfaces as a read error
		c.handleMessage(data)
	}
}

// writePump drains the send queue and pings the client. It returns when the
// hub closes the queue or a write fails.
func (c *WSClient) writePump() {
	pingInterval, pongWait := c.hub.keepalive()
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(pongWait)) //nolint:errcheck // write error caught below
			if !ok {
				//nolint:errcheck // best-effort close frame
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(pongWait)) //nolint:errcheck // ping error caught below
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *WSClient) handleMessage(data []byte) {
	var msg struct {
		Type    string             `json:"type"`
		ID      string             `json:"id"`
		Payload WSSubscribePayload `json:"payload"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("", "invalid JSON message")
		return
	}

	switch msg.Type {
	case WSTypeSubscribe, WSTypeUnsubscribe:
		kinds, err := parseKinds(msg.Payload.Kinds)
		if err != nil {
			c.sendError(msg.ID, err.Error())
			return
		}
		if msg.Type == WSTypeSubscribe {
			c.subscribe(kinds)
		} else {
			c.unsubscribe(kinds)
		}
		c.sendResponse(msg.ID, WSTypeResponse, map[string]any{"kinds": c.filter()})
	case WSTypePing:
		c.sendResponse(msg.ID, WSTypePong, nil)
	default:
		c.sendError(msg.ID, "unknown message type: "+msg.Type)
	}
}

// subscribe narrows an unfiltered client to kinds, or widens an existing
// filter by them. An empty list changes nothing.
func (c *WSClient) subscribe(kinds []link.EventKind) {
	if len(kinds) == 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.kinds == nil {
		c.kinds = make(map[link.EventKind]struct{}, len(kinds))
	}
	for _, k := range kinds {
		c.kinds[k] = struct{}{}
	}
}

// unsubscribe removes kinds from the filter. An unfiltered client starts
// from every kind.
func (c *WSClient) unsubscribe(kinds []link.EventKind) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.kinds == nil {
		c.kinds = make(map[link.EventKind]struct{})
		for _, k := range link.EventKinds() {
			c.kinds[k] = struct{}{}
		}
	}
	for _, k := range kinds {
		delete(c.kinds, k)
	}
}

func (c *WSClient) accepts(kind link.EventKind) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.kinds == nil {
		return true
	}
	_, ok := c.kinds[kind]
	return ok
}

// filter returns the accepted kinds in emission order.
func (c *WSClient) filter() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := []string{}
	for _, k := range link.EventKinds() {
		if _, ok := c.kinds[k]; ok || c.kinds == nil {
			out = append(out, string(k))
		}
	}
	return out
}

func (c *WSClient) sendResponse(id, msgType string, payload any) {
	data, err := json.Marshal(WSMessage{
		Type:      msgType,
		ID:        id,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Payload:   payload,
	})
	if err != nil {
		return
	}
	c.hub.sendTo(c, data)
}

func (c *WSClient) sendError(id, message string) {
	c.sendResponse(id, WSTypeError, map[string]string{"message": message})
}
