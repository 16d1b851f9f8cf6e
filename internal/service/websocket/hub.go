package websocket

import (
	"context"
	"sync"
	"time"

	"relaywatch/internal/logger"

	"github.com/gorilla/websocket"
)

const writeWait = 2 * time.Second

// conn is the part of *websocket.Conn the hub writes to.
type conn interface {
	SetWriteDeadline(t time.Time) error
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// viewer owns one connection. Only its writer goroutine writes to conn; send
// holds at most one pending frame so a slow viewer skips frames instead of
// delaying the others.
type viewer struct {
	conn conn
	send chan []byte
}

func (v *viewer) writePump(logger *logger.Logger) {
	defer v.conn.Close()

	for message := range v.send {
		v.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := v.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			logger.Warning("Dropping viewer after failed send: %v", err)
			return
		}
	}
}

// HubService fans frames out to every connected viewer.
type HubService struct {
	clients    map[conn]*viewer
	broadcast  chan []byte
	register   chan conn
	unregister chan conn
	done       chan struct{}
	mutex      sync.RWMutex
	logger     *logger.Logger
}

func NewHubService(logger *logger.Logger) *HubService {
	return &HubService{
		clients:    make(map[conn]*viewer),
		broadcast:  make(chan []byte, 1),
		register:   make(chan conn),
		unregister: make(chan conn),
		done:       make(chan struct{}),
		logger:     logger,
	}
}

// Run serves registrations and broadcasts until ctx is cancelled, then
// closes every viewer connection.
func (h *HubService) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mutex.Lock()
			for client, v := range h.clients {
				close(v.send)
				delete(h.clients, client)
			}
			h.mutex.Unlock()
			return

		case client := <-h.register:
			v := &viewer{conn: client, send: make(chan []byte, 1)}
			go v.writePump(h.logger)

			h.mutex.Lock()
			h.clients[client] = v
			total := len(h.clients)
			h.mutex.Unlock()
			h.logger.Info("Viewer connected. Total: %d", total)

		case client := <-h.unregister:
			h.mutex.Lock()
			if v, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(v.send)
			}
			total := len(h.clients)
			h.mutex.Unlock()
			h.logger.Info("Viewer disconnected. Total: %d", total)

		case message := <-h.broadcast:
			h.mutex.RLock()
			for _, v := range h.clients {
				select {
				case v.send <- message:
				default:
					// still writing the previous frame
				}
			}
			h.mutex.RUnlock()
		}
	}
}

// Register adds a viewer. After Run has returned the connection is closed.
func (h *HubService) Register(client *websocket.Conn) {
	h.join(client)
}

func (h *HubService) Unregister(client *websocket.Conn) {
	h.leave(client)
}

func (h *HubService) join(client conn) {
	select {
	case h.register <- client:
	case <-h.done:
		client.Close()
	}
}

func (h *HubService) leave(client conn) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Broadcast queues message for all viewers. If the previous message has not
// been handed out yet the new one is dropped.
func (h *HubService) Broadcast(message []byte) bool {
	select {
	case h.broadcast <- message:
		return true
	default:
		return false
	}
}

func (h *HubService) GetClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}
