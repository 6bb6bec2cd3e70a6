package sse

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
)

// Event types pushed to clients.
const (
	EventEmailReceived    = "email_received"
	EventDraftGenerated   = "draft_generated"
	EventWorkflowDetected = "workflow_detected"
	EventProcessingStatus = "processing_status"
	EventLearningUpdated  = "learning_updated"
)

// Event is an ephemeral message pushed to a user's live connections. It only
// exists in transit; the manager never queues events for offline users.
type Event struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
	UserID    string      `json:"userId,omitempty"`
}

// Client is one live connection belonging to a user.
type Client struct {
	UserID string
	events chan Event
	once   sync.Once
}

// Events returns the client's receive channel.
func (c *Client) Events() <-chan Event {
	return c.events
}

func (c *Client) close() {
	c.once.Do(func() { close(c.events) })
}

// Manager fans events out to every live connection of a user. Connections
// open and close on client-driven timing concurrently with publishes, so the
// registry is guarded by a lock. Constructed once at startup and passed by
// reference to handlers.
type Manager struct {
	mu      sync.RWMutex
	clients map[string]map[*Client]struct{}
}

func NewManager() *Manager {
	return &Manager{
		clients: make(map[string]map[*Client]struct{}),
	}
}

// Subscribe registers a new connection for userID. The client immediately
// receives a synthetic "connected" status event so the frontend can tell
// "connected, nothing new yet" apart from "never connected".
func (m *Manager) Subscribe(userID string) (*Client, error) {
	if userID == "" {
		return nil, fmt.Errorf("user identity required")
	}

	client := &Client{
		UserID: userID,
		events: make(chan Event, 16),
	}

	m.mu.Lock()
	set, ok := m.clients[userID]
	if !ok {
		set = make(map[*Client]struct{})
		m.clients[userID] = set
	}
	set[client] = struct{}{}
	m.mu.Unlock()

	client.events <- Event{
		Type:      EventProcessingStatus,
		Data:      map[string]interface{}{"status": "connected"},
		Timestamp: time.Now(),
		UserID:    userID,
	}

	return client, nil
}

// Unsubscribe removes a connection. The user's set is deleted once empty so
// the map does not grow with disconnected users.
func (m *Manager) Unsubscribe(client *Client) {
	if client == nil {
		return
	}

	m.mu.Lock()
	if set, ok := m.clients[client.UserID]; ok {
		delete(set, client)
		if len(set) == 0 {
			delete(m.clients, client.UserID)
		}
	}
	m.mu.Unlock()

	client.close()
}

// SendToUser delivers an event to every live connection of userID. Sending
// to a user with no connections is a no-op; the event is not retained. A
// full (slow) connection is skipped so it cannot block delivery to others.
func (m *Manager) SendToUser(userID string, eventType string, data interface{}) {
	event := Event{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now(),
		UserID:    userID,
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for client := range m.clients[userID] {
		select {
		case client.events <- event:
		default:
			log.Printf("[SSE] Dropping %s event for slow client (user %s)", eventType, userID)
		}
	}
}

// Broadcast delivers an event to every connected client of every user.
func (m *Manager) Broadcast(eventType string, data interface{}) {
	event := Event{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now(),
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, set := range m.clients {
		for client := range set {
			select {
			case client.events <- event:
			default:
			}
		}
	}
}

// ConnectionCount returns the number of live connections for a user.
func (m *Manager) ConnectionCount(userID string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.clients[userID])
}

// ServeHTTP streams events to one connection over Server-Sent Events.
func (m *Manager) ServeHTTP(c *gin.Context, userID string) {
	client, err := m.Subscribe(userID)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}
	defer m.Unsubscribe(client)

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming unsupported"})
		return
	}

	log.Printf("[SSE] Client connected (user %s)", userID)
	defer log.Printf("[SSE] Client disconnected (user %s)", userID)

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case event, ok := <-client.Events():
			if !ok {
				return
			}
			data, err := json.Marshal(event)
			if err != nil {
				log.Printf("[SSE] Failed to serialize event: %v", err)
				continue
			}
			fmt.Fprintf(c.Writer, "event: %s\ndata: %s\n\n", event.Type, data)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprint(c.Writer, ": heartbeat\n\n")
			flusher.Flush()
		case <-c.Request.Context().Done():
			return
		}
	}
}
