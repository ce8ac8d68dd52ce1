package api

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/rawblock/threatscore/internal/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // allow all for the SOC dashboard, which may be on another origin
	},
}

// Hub maintains the set of subscribed decision-stream clients and
// broadcasts each non-ALLOW decision to all of them.
type Hub struct {
	clients   map[*websocket.Conn]bool
	broadcast chan []byte
	mutex     sync.Mutex
	log       *logging.Logger
}

// NewHub builds an empty Hub. Call Run in its own goroutine to start
// draining broadcasts.
func NewHub(log *logging.Logger) *Hub {
	return &Hub{
		broadcast: make(chan []byte, 256),
		clients:   make(map[*websocket.Conn]bool),
		log:       log,
	}
}

// Run drains the broadcast channel and fans each message out to every
// connected client, dropping any client whose write fails or stalls past
// the write deadline.
func (h *Hub) Run() {
	for message := range h.broadcast {
		h.mutex.Lock()
		for client := range h.clients {
			_ = client.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
				if h.log != nil {
					h.log.Warn("websocket write failed, dropping client", "error", err.Error())
				}
				client.Close()
				delete(h.clients, client)
			}
		}
		h.mutex.Unlock()
	}
}

// Subscribe upgrades an incoming GET /stream request to a websocket and
// registers it for broadcasts.
func (h *Hub) Subscribe(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		if h.log != nil {
			h.log.Warn("websocket upgrade failed", "error", err.Error())
		}
		return
	}

	h.mutex.Lock()
	h.clients[conn] = true
	clientCount := len(h.clients)
	h.mutex.Unlock()
	if h.log != nil {
		h.log.Info("decision-stream client connected", "clients", clientCount)
	}

	go func() {
		defer func() {
			h.mutex.Lock()
			delete(h.clients, conn)
			remaining := len(h.clients)
			h.mutex.Unlock()
			conn.Close()
			if h.log != nil {
				h.log.Info("decision-stream client disconnected", "clients", remaining)
			}
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
	}()
}

// Broadcast pushes data to every subscribed client.
func (h *Hub) Broadcast(data []byte) {
	h.broadcast <- data
}
