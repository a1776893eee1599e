package websocket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/grandcat/zeroconf"

	"PosPrint/app/services"
)

// MessageType represents the type of WebSocket message
type MessageType string

const (
	TypeWelcome      MessageType = "welcome"
	TypeHeartbeat    MessageType = "heartbeat"
	TypeJobAvailable MessageType = "job_available"
	TypeSyncStatus   MessageType = "sync_status"
	TypePrintResult  MessageType = "print_result"
	TypeNotification MessageType = "notification"
)

// ClientType represents the type of connected client
type ClientType string

const (
	ClientPOS     ClientType = "pos"
	ClientKitchen ClientType = "kitchen"
	ClientAgent   ClientType = "agent"
)

// Message represents a WebSocket message
type Message struct {
	Type      MessageType     `json:"type"`
	ClientID  string          `json:"client_id,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// Client represents a connected WebSocket client
type Client struct {
	ID          string
	Type        ClientType
	Connection  *websocket.Conn
	Send        chan []byte
	Hub         *Hub
	ConnectedAt time.Time
	RemoteAddr  string
}

type outbound struct {
	data []byte
	to   ClientType // empty: everyone
}

// Hub fans events out to connected UI screens and print agents
type Hub struct {
	clients    map[string]*Client
	broadcast  chan outbound
	register   chan *Client
	unregister chan *Client
	upgrader   websocket.Upgrader
	mu         sync.RWMutex
	logger     *services.LoggerService
	mdns       *zeroconf.Server
	done       chan struct{}
}

// NewHub creates a hub; call Run before serving connections
func NewHub(logger *services.LoggerService) *Hub {
	return &Hub{
		clients:    make(map[string]*Client),
		broadcast:  make(chan outbound, 64),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// UI and agents are on the local network
				return true
			},
		},
	}
}

// Run handles the main hub loop until ctx is done
func (h *Hub) Run(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	defer close(h.done)

	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client.ID] = client
			h.mu.Unlock()
			h.logger.LogDebug("websocket client registered", "id", client.ID, "type", client.Type)
			h.sendWelcome(client)

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client.ID]; ok {
				delete(h.clients, client.ID)
				close(client.Send)
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			for id, client := range h.clients {
				if msg.to != "" && client.Type != msg.to {
					continue
				}
				select {
				case client.Send <- msg.data:
				default:
					// buffer full, drop the client
					delete(h.clients, id)
					close(client.Send)
				}
			}
			h.mu.Unlock()

		case <-ticker.C:
			h.send(TypeHeartbeat, map[string]string{"ping": "pong"}, "")

		case <-ctx.Done():
			h.closeAll()
			return
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, client := range h.clients {
		close(client.Send)
		delete(h.clients, id)
	}
}

// ServeHTTP upgrades the connection. The client type comes from ?type=.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clientType := ClientType(r.URL.Query().Get("type"))
	switch clientType {
	case ClientPOS, ClientKitchen, ClientAgent:
	default:
		clientType = ClientPOS
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.LogWarning("WebSocket upgrade error", err.Error())
		return
	}

	client := &Client{
		ID:          uuid.NewString(),
		Type:        clientType,
		Connection:  conn,
		Send:        make(chan []byte, 256),
		Hub:         h,
		ConnectedAt: time.Now(),
		RemoteAddr:  r.RemoteAddr,
	}
	select {
	case h.register <- client:
	case <-h.done:
		conn.Close()
		return
	}

	go client.writePump()
	go client.readPump()
}

// Notify implements services.Notifier. Job nudges only go to agents;
// everything else goes to UI clients.
func (h *Hub) Notify(event string, data interface{}) {
	switch MessageType(event) {
	case TypeJobAvailable:
		h.send(TypeJobAvailable, data, ClientAgent)
	default:
		h.send(MessageType(event), data, ClientPOS)
		h.send(MessageType(event), data, ClientKitchen)
	}
}

func (h *Hub) send(t MessageType, data interface{}, to ClientType) {
	payload, err := json.Marshal(data)
	if err != nil {
		h.logger.LogError("Error marshaling message data", err, string(t))
		return
	}
	msg, err := json.Marshal(Message{Type: t, Timestamp: time.Now(), Data: payload})
	if err != nil {
		return
	}
	select {
	case h.broadcast <- outbound{data: msg, to: to}:
	default:
		h.logger.LogWarning("WebSocket broadcast queue full, dropping message", string(t))
	}
}

func (h *Hub) sendWelcome(client *Client) {
	data, _ := json.Marshal(map[string]interface{}{
		"client_id": client.ID,
		"type":      client.Type,
	})
	client.sendMessage(Message{Type: TypeWelcome, ClientID: client.ID, Timestamp: time.Now(), Data: data})
}

// ClientCount returns connected clients by type
func (h *Hub) ClientCount() map[ClientType]int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	counts := map[ClientType]int{}
	for _, c := range h.clients {
		counts[c.Type]++
	}
	return counts
}

// Announce advertises the service over mDNS until Shutdown
func (h *Hub) Announce(instance, service string, port int, txt []string) error {
	server, err := zeroconf.Register(instance, service, "local.", port, txt, nil)
	if err != nil {
		return fmt.Errorf("mDNS: failed to register service: %w", err)
	}
	h.mdns = server
	h.logger.LogInfo("mDNS: service announced", fmt.Sprintf("%s on %s.local", instance, service))
	return nil
}

// Shutdown stops the mDNS announcement
func (h *Hub) Shutdown() {
	if h.mdns != nil {
		h.mdns.Shutdown()
		h.mdns = nil
	}
}

// readPump handles reading messages from the client
func (c *Client) readPump() {
	defer func() {
		select {
		case c.Hub.unregister <- c:
		case <-c.Hub.done:
		}
		c.Connection.Close()
	}()

	c.Connection.SetReadLimit(64 * 1024)
	c.Connection.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.Connection.SetPongHandler(func(string) error {
		c.Connection.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, data, err := c.Connection.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.Hub.logger.LogWarning("WebSocket error", err.Error())
			}
			return
		}

		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}
		if msg.Type == TypeHeartbeat {
			c.sendMessage(Message{
				Type:      TypeHeartbeat,
				Timestamp: time.Now(),
				Data:      json.RawMessage(`{"status":"alive"}`),
			})
		}
	}
}

// writePump handles writing messages to the client
func (c *Client) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.Connection.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Connection.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.Connection.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.Connection.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.Connection.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.Connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// sendMessage queues a message for this client only
func (c *Client) sendMessage(message Message) (err error) {
	data, err := json.Marshal(message)
	if err != nil {
		return err
	}
	defer func() {
		// Send is closed once the hub dropped the client
		if recover() != nil {
			err = fmt.Errorf("client %s is gone", c.ID)
		}
	}()
	select {
	case c.Send <- data:
		return nil
	default:
		return fmt.Errorf("client send channel is full")
	}
}
