package ws

import (
	"encoding/json"
	"log"
	"sync"

	"github.com/gorilla/websocket"
)

type Hub struct {
	// one owner can hold several connections (multiple tabs, reconnects)
	clients map[string]map[*Client]struct{}
	mu      sync.RWMutex
}

type Client struct {
	OwnerID string
	Conn    *websocket.Conn
	mu      sync.Mutex // write lock, websocket writes are not concurrency-safe
}

type Message struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]map[*Client]struct{}),
	}
}

func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[client.OwnerID] == nil {
		h.clients[client.OwnerID] = make(map[*Client]struct{})
	}
	h.clients[client.OwnerID][client] = struct{}{}

	total := 0
	for _, conns := range h.clients {
		total += len(conns)
	}
	log.Printf("Owner %s connected, owner_conns: %d, total: %d", client.OwnerID, len(h.clients[client.OwnerID]), total)
}

func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conns, ok := h.clients[client.OwnerID]; ok {
		delete(conns, client)
		if len(conns) == 0 {
			delete(h.clients, client.OwnerID)
		}
	}
	log.Printf("Owner %s disconnected", client.OwnerID)
}

// SendToOwner delivers a message to every connection of one owner.
func (h *Hub) SendToOwner(ownerID string, msg *Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	h.mu.RLock()
	conns, ok := h.clients[ownerID]
	if !ok {
		h.mu.RUnlock()
		return nil
	}
	// copy the set so the lock is not held across writes
	clients := make([]*Client, 0, len(conns))
	for c := range conns {
		clients = append(clients, c)
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.mu.Lock()
		err := c.Conn.WriteMessage(websocket.TextMessage, data)
		c.mu.Unlock()
		if err != nil {
			log.Printf("SendToOwner write error for owner %s: %v", ownerID, err)
		}
	}
	return nil
}

// IsOnline reports whether the owner has at least one live connection.
func (h *Hub) IsOnline(ownerID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	conns, ok := h.clients[ownerID]
	return ok && len(conns) > 0
}

// ConnectionCount returns the number of live connections across owners.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	total := 0
	for _, conns := range h.clients {
		total += len(conns)
	}
	return total
}
