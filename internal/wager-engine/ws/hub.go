package ws

import (
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/radieske/round-wager-engine/internal/wager-engine/pubsub"
)

// client serializa as escritas: a conexão aceita um único writer por vez
type client struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *client) write(messageType int, b []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn.WriteMessage(messageType, b)
}

// Hub gerencia conexões WebSocket e assinaturas por sala
// subs: mapeia roomID para o conjunto de clientes inscritos
type Hub struct {
	upgrader websocket.Upgrader
	mu       sync.RWMutex
	subs     map[string]map[*client]struct{}
}

// NewHub cria uma instância de Hub com política customizada de origem (CORS)
func NewHub(allowOrigin func(r *http.Request) bool) *Hub {
	return &Hub{
		upgrader: websocket.Upgrader{CheckOrigin: allowOrigin},
		subs:     make(map[string]map[*client]struct{}),
	}
}

// HandleWS gerencia o ciclo de vida de uma conexão WebSocket
// Cada cliente pode acompanhar várias salas
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()
	c := &client{conn: conn}

	for {
		var msg ClientMsg
		if err := conn.ReadJSON(&msg); err != nil {
			break
		}
		switch msg.Type {
		case "subscribe":
			if msg.RoomID == "" {
				continue
			}
			h.mu.Lock()
			if _, ok := h.subs[msg.RoomID]; !ok {
				h.subs[msg.RoomID] = make(map[*client]struct{})
			}
			h.subs[msg.RoomID][c] = struct{}{}
			h.mu.Unlock()
			_ = c.write(websocket.TextMessage, []byte(`{"type":"subscribed","roomId":`+quote(msg.RoomID)+`}`))
		case "unsubscribe":
			h.remove(msg.RoomID, c)
		case "ping":
			_ = c.write(websocket.TextMessage, []byte(`{"type":"pong"}`))
		}
	}

	// Remove a conexão de todas as assinaturas ao desconectar
	h.mu.Lock()
	for room, set := range h.subs {
		delete(set, c)
		if len(set) == 0 {
			delete(h.subs, room)
		}
	}
	h.mu.Unlock()
}

func (h *Hub) remove(roomID string, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if m, ok := h.subs[roomID]; ok {
		delete(m, c)
		if len(m) == 0 {
			delete(h.subs, roomID)
		}
	}
}

// Subscribers retorna quantos clientes acompanham a sala
func (h *Hub) Subscribers(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[roomID])
}

// Broadcast envia a atualização para todos os clientes inscritos na sala
func (h *Hub) Broadcast(update pubsub.WSUpdate) {
	h.mu.RLock()
	conns := make([]*client, 0, len(h.subs[update.RoomID]))
	for c := range h.subs[update.RoomID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()
	if len(conns) == 0 {
		return
	}

	b, _ := json.Marshal(update)
	for _, c := range conns {
		_ = c.write(websocket.TextMessage, b)
	}
}

func quote(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}
