// Package websocket pushes board changes to connected operator screens.
// Clients subscribe to day topics ("day:2024-01-15") or to every day with
// "day:*", and receive each domain event published on those topics.
package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	gorillawebsocket "github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/carecenter/carecenter/internal/platform/auth"
	"github.com/carecenter/carecenter/internal/platform/events"
)

// AllDays subscribes a client to every day topic.
const AllDays = "day:*"

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBuffer     = 256
)

// ClientMessage is an inbound subscription change.
type ClientMessage struct {
	Action string   `json:"action"`
	Topics []string `json:"topics"`
}

// Client is one connected screen.
type Client struct {
	ID     string
	UserID string
	Topics []string
	Send   chan []byte
}

func newClient(userID string, topics []string) *Client {
	return &Client{
		ID:     uuid.New().String(),
		UserID: userID,
		Topics: topics,
		Send:   make(chan []byte, sendBuffer),
	}
}

// Hub tracks clients by topic and implements events.Publisher.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{} // topic -> subscribers
	all     map[*Client]struct{}
	logger  zerolog.Logger
}

func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
		all:     make(map[*Client]struct{}),
		logger:  logger.With().Str("component", "websocket").Logger(),
	}
}

// validTopic accepts AllDays and "day:" followed by a calendar date.
func validTopic(topic string) bool {
	if topic == AllDays {
		return true
	}
	d, ok := strings.CutPrefix(topic, "day:")
	if !ok {
		return false
	}
	_, err := time.Parse("2006-01-02", d)
	return err == nil
}

func filterTopics(topics []string) []string {
	out := make([]string, 0, len(topics))
	for _, t := range topics {
		if validTopic(t) {
			out = append(out, t)
		}
	}
	return out
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.all[client] = struct{}{}
	client.Topics = filterTopics(client.Topics)
	for _, topic := range client.Topics {
		h.addLocked(topic, client)
	}
}

// Unregister drops the client from every topic and closes its Send channel.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.all[client]; !ok {
		return
	}
	for _, topic := range client.Topics {
		h.removeLocked(topic, client)
	}
	delete(h.all, client)
	close(client.Send)
}

func (h *Hub) addLocked(topic string, client *Client) {
	if h.clients[topic] == nil {
		h.clients[topic] = make(map[*Client]struct{})
	}
	h.clients[topic][client] = struct{}{}
}

func (h *Hub) removeLocked(topic string, client *Client) {
	if subscribers, ok := h.clients[topic]; ok {
		delete(subscribers, client)
		if len(subscribers) == 0 {
			delete(h.clients, topic)
		}
	}
}

// Subscribe adds topics to a registered client. Malformed topics and
// topics the client already holds are skipped.
func (h *Hub) Subscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, topic := range filterTopics(topics) {
		if _, ok := h.clients[topic][client]; ok {
			continue
		}
		h.addLocked(topic, client)
		client.Topics = append(client.Topics, topic)
	}
}

func (h *Hub) Unsubscribe(client *Client, topics []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	drop := make(map[string]struct{}, len(topics))
	for _, topic := range topics {
		drop[topic] = struct{}{}
		h.removeLocked(topic, client)
	}
	remaining := client.Topics[:0]
	for _, t := range client.Topics {
		if _, ok := drop[t]; !ok {
			remaining = append(remaining, t)
		}
	}
	client.Topics = remaining
}

func (h *Hub) ProcessMessage(client *Client, msg ClientMessage) {
	switch msg.Action {
	case "subscribe":
		h.Subscribe(client, msg.Topics)
	case "unsubscribe":
		h.Unsubscribe(client, msg.Topics)
	default:
		h.logger.Debug().Str("client_id", client.ID).Str("action", msg.Action).Msg("unknown websocket action")
	}
}

// Publish delivers the event to subscribers of its topic and of AllDays.
// A client whose buffer is full misses the event rather than blocking the
// publisher.
func (h *Hub) Publish(_ context.Context, event events.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	seen := make(map[*Client]struct{})
	for _, topic := range []string{event.Topic, AllDays} {
		for client := range h.clients[topic] {
			if _, dup := seen[client]; dup {
				continue
			}
			seen[client] = struct{}{}
			select {
			case client.Send <- data:
			default:
				h.logger.Warn().Str("client_id", client.ID).Str("event", event.Type).Msg("client buffer full, event dropped")
			}
		}
	}
	return nil
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.all)
}

func (h *Hub) TopicCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[topic])
}

// Handler upgrades /ws requests and pumps events to the connection.
type Handler struct {
	hub      *Hub
	upgrader gorillawebsocket.Upgrader
}

// NewHandler builds a handler accepting the given origins. An empty list or
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

func originChecker(allowed []string) func(*http.Request) bool {
	set := make(map[string]struct{}, len(allowed))
	for _, o := range allowed {
		if o == "*" {
			return func(*http.Request) bool { return true }
		}
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		if len(set) == 0 {
			return true
		}
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		_, ok := set[origin]
		return ok
	}
}

func (wsh *Handler) RegisterRoutes(g *echo.Group) {
	g.GET("/ws", wsh.HandleConnect)
}

// HandleConnect upgrades the connection. Initial topics may be passed as a
// comma-separated ?topics= query parameter.
func (wsh *Handler) HandleConnect(c echo.Context) error {
	var topics []string
	if q := c.QueryParam("topics"); q != "" {
		topics = strings.Split(q, ",")
	}

	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}

	client := newClient(auth.UserIDFromContext(c.Request().Context()), topics)
	wsh.hub.Register(client)
	wsh.hub.logger.Debug().Str("client_id", client.ID).Str("user_id", client.UserID).Strs("topics", client.Topics).Msg("websocket connected")

	go wsh.writePump(client, ws)
	go wsh.readPump(client, ws)
	return nil
}

func (wsh *Handler) readPump(client *Client, ws *gorillawebsocket.Conn) {
	defer func() {
		wsh.hub.Unregister(client)
		ws.Close()
	}()

	ws.SetReadLimit(maxMessageSize)
	_ = ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := ws.ReadMessage()
		if err != nil {
			if gorillawebsocket.IsUnexpectedCloseError(err, gorillawebsocket.CloseGoingAway, gorillawebsocket.CloseNormalClosure) {
				wsh.hub.logger.Debug().Err(err).Str("client_id", client.ID).Msg("websocket closed")
			}
			return
		}
		var msg ClientMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		wsh.hub.ProcessMessage(client, msg)
	}
}

func (wsh *Handler) writePump(client *Client, ws *gorillawebsocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		ws.Close()
	}()

	for {
		select {
		case message, ok := <-client.Send:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = ws.WriteMessage(gorillawebsocket.CloseMessage, []byte{})
				return
			}
			if err := ws.WriteMessage(gorillawebsocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := ws.WriteMessage(gorillawebsocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
