// Package websocket pushes notifications and change events to connected
// browsers. Each connection is subscribed to its own tab topic on connect
// and may subscribe to the hub's shared topics (for example "appointments")
// to learn that a list it shows was changed by someone else.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/clinicdesk/clinicdesk/internal/platform/notification"
	"github.com/clinicdesk/clinicdesk/internal/platform/session"
)

// Event types.
const (
	EventNotification = "notification"
	EventChanged      = "changed"
)

// Event is one message delivered to a browser.
type Event struct {
	Type      string          `json:"type"`
	Topic     string          `json:"topic"`
	Resource  string          `json:"resource,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// ClientMessage is an inbound subscribe/unsubscribe request.
type ClientMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// Client is a single WebSocket connection.
type Client struct {
	ID     string
	Topics []string
	Send   chan []byte
}

// NewClient returns a client with a buffered send channel, subscribed to
// its own ID.
func NewClient(id string) *Client {
	if id == "" {
		id = uuid.New().String()
	}
	return &Client{
		ID:     id,
		Topics: []string{id},
		Send:   make(chan []byte, 256),
	}
}

// Hub tracks clients and their topic subscriptions. All operations are
// thread-safe.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{} // topic -> set of clients
	all     map[*Client]struct{}
	shared  map[string]struct{}
	logger  zerolog.Logger
}

// NewHub returns a hub whose clients may subscribe to the shared topics.
func NewHub(logger zerolog.Logger, shared ...string) *Hub {
	set := make(map[string]struct{}, len(shared))
	for _, t := range shared {
		set[t] = struct{}{}
	}
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		all:     make(map[*Client]struct{}),
		shared:  set,
		logger:  logger,
	}
}

// Register adds a client and subscribes it to its initial topics.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.all[client] = struct{}{}
	for _, topic := range client.Topics {
		h.add(topic, client)
	}
}

// Unregister removes a client from every topic and closes its Send channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}
	for _, topic := range client.Topics {
		h.remove(topic, client)
	}
	delete(h.all, client)
	close(client.Send)
}

// Subscribe adds topics to a registered client.
func (h *Hub) Subscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, topic := range topics {
		if _, ok := h.clients[topic][client]; ok {
			continue
		}
		h.add(topic, client)
		client.Topics = append(client.Topics, topic)
	}
}

// Unsubscribe removes topics from a registered client. A client cannot
// leave its own ID topic.
func (h *Hub) Unsubscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	drop := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		if t == client.ID {
			continue
		}
		drop[t] = struct{}{}
		h.remove(t, client)
	}

	remaining := client.Topics[:0]
	for _, t := range client.Topics {
		if _, rm := drop[t]; !rm {
			remaining = append(remaining, t)
		}
	}
	client.Topics = remaining
}

func (h *Hub) add(topic string, client *Client) {
	if h.clients[topic] == nil {
		h.clients[topic] = make(map[*Client]struct{})
	}
	h.clients[topic][client] = struct{}{}
}

func (h *Hub) remove(topic string, client *Client) {
	if subscribers, ok := h.clients[topic]; ok {
		delete(subscribers, client)
		if len(subscribers) == 0 {
			delete(h.clients, topic)
		}
	}
}

// ProcessMessage dispatches an inbound message. Clients may only subscribe
// to shared topics; other tabs' topics are ignored.
func (h *Hub) ProcessMessage(client *Client, msg ClientMessage) {
	switch msg.Action {
	case "subscribe":
		allowed := make([]string, 0, len(msg.Topics))
		for _, t := range msg.Topics {
			if _, ok := h.shared[t]; ok {
				allowed = append(allowed, t)
			} else {
				h.logger.Warn().Str("client_id", client.ID).Str("topic", t).Msg("websocket subscribe refused")
			}
		}
		h.Subscribe(client, allowed)
	case "unsubscribe":
		h.Unsubscribe(client, msg.Topics)
	}
}

// Broadcast sends event to every client subscribed to topic. Slow clients
// whose buffer is full miss the event.
func (h *Hub) Broadcast(topic string, event Event) {
	data, err := json.Marshal(event)
	if err != nil {
		h.logger.Error().Err(err).Str("topic", topic).Msg("failed to marshal websocket event")
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.clients[topic] {
		select {
		case client.Send <- data:
		default:
			h.logger.Warn().Str("client_id", client.ID).Msg("websocket buffer full, event dropped")
		}
	}
}

// PublishNotification implements notification.Publisher. Notifications
// without a topic have no recipient and are dropped.
func (h *Hub) PublishNotification(_ context.Context, n notification.Notification) error {
	if n.Topic == "" {
		return nil
	}
	data, err := json.Marshal(n)
	if err != nil {
		return err
	}
	h.Broadcast(n.Topic, Event{
		Type:      EventNotification,
		Topic:     n.Topic,
		Timestamp: n.CreatedAt,
		Data:      data,
	})
	return nil
}

// PublishChange tells subscribers of resource that its list changed and
// should be refetched.
func (h *Hub) PublishChange(_ context.Context, resource string) error {
	h.Broadcast(resource, Event{
		Type:      EventChanged,
		Topic:     resource,
		Resource:  resource,
		Timestamp: time.Now(),
	})
	return nil
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

// TopicCount returns the number of clients subscribed to topic.
func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}

// ---------------------------------------------------------------------------
// Handler
// ---------------------------------------------------------------------------

// Handler upgrades HTTP connections and pumps messages.
type Handler struct {
	hub      *Hub
	upgrader gorillawebsocket.Upgrader
}

// NewHandler accepts connections from the given origins; an empty list or
// "*" accepts any origin.
func NewHandler(hub *Hub, allowedOrigins []string) *Handler {
	return &Handler{
		hub: hub,
		upgrader: gorillawebsocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || len(set) == 0 {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

func (wsh *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/ws", wsh.HandleConnect)
}

// HandleConnect handles GET /ws?client_id=&access_token=. The connection
// needs a credential, from the session middleware or from access_token
// since browsers cannot set headers on a WebSocket handshake. The client is
// subscribed to its tab topic (client_id, a fresh UUID if absent, bound to
// the credential), which is the topic that tab's notifications go to.
func (wsh *Handler) HandleConnect(c echo.Context) error {
	sess := session.FromContext(c.Request().Context())
	if sess == nil || !sess.Authenticated() {
		sess = session.FromToken(c.QueryParam("access_token"))
	}
	if !sess.Authenticated() {
		return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}

	id := c.QueryParam("client_id")
	if id == "" {
		id = c.Request().Header.Get(notification.ClientIDHeader)
	}
	if id == "" {
		id = uuid.New().String()
	}

	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	client := NewClient(notification.TabTopic(id, sess.Fingerprint()))
	wsh.hub.Register(client)

	wsh.hub.logger.Debug().Str("client_id", client.ID).Msg("websocket client connected")

	go wsh.writePump(client, ws)
	go wsh.readPump(client, ws)
	return nil
}

func (wsh *Handler) readPump(client *Client, ws *gorillawebsocket.Conn) {
	defer func() {
		wsh.hub.Unregister(client)
		ws.Close()
	}()

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			break
		}
		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		wsh.hub.ProcessMessage(client, msg)
	}
}

func (wsh *Handler) writePump(client *Client, ws *gorillawebsocket.Conn) {
	defer ws.Close()

	for message := range client.Send {
		if err := ws.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
			break
		}
	}
}
