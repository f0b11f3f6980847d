package notifications

import (
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Hub fans lifecycle events out to connected WebSocket clients. Each
// connection is associated with an account so events can be addressed
// to the parties they concern.
type Hub struct {
	connections map[string]*Connection
	mu          sync.RWMutex
	broadcast   chan Message
	register    chan *Connection
	unregister  chan *Connection
	stop        chan struct{}
	upgrader    websocket.Upgrader
	logger      *zap.Logger
}

// Connection represents a single WebSocket client.
type Connection struct {
	ID           string
	AccountID    string
	Conn         *websocket.Conn
	Send         chan Message
	LastActivity time.Time
	mu           sync.Mutex
}

// NewHub creates a hub and starts its dispatch loop.
func NewHub(logger *zap.Logger) *Hub {
	h := &Hub{
		connections: make(map[string]*Connection),
		broadcast:   make(chan Message, 256),
		register:    make(chan *Connection),
		unregister:  make(chan *Connection),
		stop:        make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// In production, implement proper origin checking
				return true
			},
		},
		logger: logger,
	}

	go h.run()

	return h
}

// HandleConnection upgrades an HTTP request to a WebSocket connection
// and registers it under the account given in the account_id query
// parameter.
func (h *Hub) HandleConnection(w http.ResponseWriter, r *http.Request) (*Connection, error) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to upgrade connection: %w", err)
	}

	accountID := r.URL.Query().Get("account_id")
	if accountID == "" {
		accountID = r.Header.Get("X-Account-ID")
	}

	connection := &Connection{
		ID:           uuid.New().String(),
		AccountID:    accountID,
		Conn:         conn,
		Send:         make(chan Message, 256),
		LastActivity: time.Now(),
	}

	h.register <- connection

	go h.readPump(connection)
	go h.writePump(connection)

	return connection, nil
}

// readPump drains client frames so pongs and close frames are
// processed. Clients are not expected to send application messages.
func (h *Hub) readPump(conn *Connection) {
	defer func() {
		h.unregister <- conn
		conn.Conn.Close()
	}()

	conn.Conn.SetReadLimit(512)
	conn.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.Conn.SetPongHandler(func(string) error {
		conn.Conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		if _, _, err := conn.Conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket read error", zap.Error(err))
			}
			break
		}

		conn.mu.Lock()
		conn.LastActivity = time.Now()
		conn.mu.Unlock()
	}
}

// writePump pumps hub messages to the WebSocket connection.
func (h *Hub) writePump(conn *Connection) {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		conn.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-conn.Send:
			conn.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				conn.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := conn.Conn.WriteJSON(message); err != nil {
				return
			}

		case <-ticker.C:
			conn.Conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := conn.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.connections[conn.ID] = conn
			h.mu.Unlock()
			h.logger.Debug("websocket connected",
				zap.String("connection_id", conn.ID),
				zap.String("account_id", conn.AccountID))

		case conn := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.connections[conn.ID]; ok {
				delete(h.connections, conn.ID)
				close(conn.Send)
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.RLock()
			for _, conn := range h.connections {
				select {
				case conn.Send <- message:
				default:
					// Buffer full, skip
				}
			}
			h.mu.RUnlock()

		case <-h.stop:
			h.mu.Lock()
			for id, conn := range h.connections {
				close(conn.Send)
				delete(h.connections, id)
			}
			h.mu.Unlock()
			return
		}
	}
}

// SendToAccount delivers a message to every connection held by an
// account. It is best effort; a disconnected account is not an error.
func (h *Hub) SendToAccount(accountID string, message Message) {
	message.Target = accountID
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, conn := range h.connections {
		if conn.AccountID != accountID {
			continue
		}
		select {
		case conn.Send <- message:
		default:
			// Buffer full, skip
		}
	}
}

// Broadcast delivers a message to every connected client.
func (h *Hub) Broadcast(message Message) {
	message.Target = "all"
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now()
	}

	select {
	case h.broadcast <- message:
	default:
		h.logger.Warn("broadcast channel full, dropping message",
			zap.String("type", string(message.Type)))
	}
}

// ConnectionCount returns the number of active connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// Close shuts down the hub and closes all connections.
func (h *Hub) Close() {
	close(h.stop)

	h.mu.Lock()
	for id, conn := range h.connections {
		conn.Conn.Close()
		delete(h.connections, id)
	}
	h.mu.Unlock()
}
