// Package dispatch fans approved-notification events out to websocket subscribers of the
// owning organization.
package dispatch

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/civicalert/civicalert/pkg/logger"
	"github.com/civicalert/civicalert/pkg/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4 << 10

	defaultBufferSize = 64
)

// Event types published by the control plane.
const (
	EventNotificationApproved = "notification.approved"
	EventNotificationDenied   = "notification.denied"
	EventNotificationExpired  = "notification.expired"
)

// Event is the JSON payload delivered to subscribers.
type Event struct {
	Type           string    `json:"type"`
	OrganizationID string    `json:"organization_id"`
	NotificationID string    `json:"notification_id"`
	Severity       int       `json:"severity,omitempty"`
	TargetIDs      []string  `json:"target_ids,omitempty"`
	CategoryIDs    []string  `json:"category_ids,omitempty"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Publisher accepts dispatch events.
type Publisher interface {
	Publish(event Event)
}

// Hub tracks websocket subscribers per organization.
type Hub struct {
	mu            sync.RWMutex
	subscriptions map[string]map[*connection]struct{}
	upgrader      websocket.Upgrader
	log           *zap.Logger
}

// NewHub constructs a dispatch hub.
func NewHub() *Hub {
	return &Hub{
		subscriptions: make(map[string]map[*connection]struct{}),
		log:           logger.WithModule("dispatch"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				originHost := hostWithoutPort(origin)
				return originHost == hostWithoutPort(r.Host) || isLoopback(originHost)
			},
		},
	}
}

// Serve upgrades the request and streams the organization's events until the client leaves.
func (h *Hub) Serve(organizationID string, w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", zap.Error(err))
		return
	}

	client := &connection{
		hub:            h,
		socket:         conn,
		organizationID: organizationID,
		send:           make(chan Event, defaultBufferSize),
	}
	h.register(client)

	go client.writeLoop()
	client.readLoop()
}

// Publish delivers event to every subscriber of its organization.
func (h *Hub) Publish(event Event) {
	if event.OrganizationID == "" {
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for client := range h.subscriptions[event.OrganizationID] {
		h.enqueue(client, event)
	}
}

// Subscribers returns the number of connected clients for organizationID.
func (h *Hub) Subscribers(organizationID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscriptions[organizationID])
}

// Total returns the number of connected clients across all organizations.
func (h *Hub) Total() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	total := 0
	for _, clients := range h.subscriptions {
		total += len(clients)
	}
	return total
}

func (h *Hub) register(client *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.subscriptions[client.organizationID] == nil {
		h.subscriptions[client.organizationID] = make(map[*connection]struct{})
	}
	h.subscriptions[client.organizationID][client] = struct{}{}
	metrics.DispatchSubscribers.Inc()
}

func (h *Hub) unregister(client *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	clients := h.subscriptions[client.organizationID]
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.subscriptions, client.organizationID)
	}
	metrics.DispatchSubscribers.Dec()
}

func (h *Hub) enqueue(client *connection, event Event) {
	select {
	case client.send <- event:
	default:
		h.log.Warn("dropping slow subscriber", zap.String("organization_id", client.organizationID))
		go client.close()
	}
}

type connection struct {
	hub            *Hub
	socket         *websocket.Conn
	organizationID string
	send           chan Event
	once           sync.Once
}

// readLoop only services control frames; subscribers never send data.
func (c *connection) readLoop() {
	defer c.close()

	c.socket.SetReadLimit(maxMessageSize)
	_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.socket.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("unexpected close", zap.String("organization_id", c.organizationID), zap.Error(err))
			}
			return
		}
	}
}

func (c *connection) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-c.send:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.socket.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.socket.WriteJSON(event); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.close()
				return
			}
		}
	}
}

func (c *connection) close() {
	c.once.Do(func() {
		c.hub.unregister(c)
		close(c.send)
		_ = c.socket.Close()
	})
}

func hostWithoutPort(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return ""
	}

	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		parsed, err := http.NewRequest(http.MethodGet, host, nil)
		if err == nil {
			return hostWithoutPort(parsed.URL.Host)
		}
	}

	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func isLoopback(host string) bool {
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return strings.EqualFold(host, "localhost")
}
