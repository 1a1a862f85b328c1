package realtime

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMsgSize = 4 * 1024
	sendBuffer = 64
)

// Event is pushed to every console subscribed to Room.
type Event struct {
	Type    string      `json:"type"`
	Room    string      `json:"room"`
	Payload interface{} `json:"payload,omitempty"`
}

type connection struct {
	userID  int64
	conn    *websocket.Conn
	send    chan []byte
	rooms   map[string]bool
	canJoin func(room string) bool
}

// Hub fans booking action state out to connected front-desk consoles. A staff
// member may have several consoles open.
type Hub struct {
	mu          sync.RWMutex
	connections map[*connection]struct{}
	logger      *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		connections: make(map[*connection]struct{}),
		logger:      logger.Named("realtime"),
	}
}

func (h *Hub) register(c *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connections[c] = struct{}{}
}

func (h *Hub) unregister(c *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.connections[c]; ok {
		delete(h.connections, c)
		close(c.send)
	}
}

// Publish never blocks; slow consoles miss events and catch up through the
// actions endpoint.
func (h *Hub) Publish(room, event string, payload interface{}) {
	data, err := json.Marshal(Event{Type: event, Room: room, Payload: payload})
	if err != nil {
		h.logger.Error("marshal event failed", zap.String("room", room), zap.Error(err))
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.connections {
		if !c.rooms[room] {
			continue
		}
		select {
		case c.send <- data:
		default:
			h.logger.Debug("console too slow, event dropped", zap.Int64("user_id", c.userID), zap.String("room", room))
		}
	}
}

// Connections returns the number of open consoles.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections)
}

// Subscribers returns the number of consoles subscribed to room.
func (h *Hub) Subscribers(room string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for c := range h.connections {
		if c.rooms[room] {
			n++
		}
	}
	return n
}

// ServeWS runs the connection until the console disconnects. canJoin gates
// every room, both the initial ones and later subscribe messages.
func (h *Hub) ServeWS(conn *websocket.Conn, userID int64, rooms []string, canJoin func(room string) bool) {
	c := &connection{
		userID:  userID,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		rooms:   make(map[string]bool),
		canJoin: canJoin,
	}
	for _, r := range rooms {
		if c.canJoin(r) {
			c.rooms[r] = true
		}
	}

	h.register(c)
	go h.writePump(c)
	h.readPump(c)
}

func (h *Hub) readPump(c *connection) {
	defer func() {
		h.unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMsgSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Warn("websocket read failed", zap.Int64("user_id", c.userID), zap.Error(err))
			}
			return
		}

		var in struct {
			Type string `json:"type"`
			Room string `json:"room"`
		}
		if err := json.Unmarshal(msg, &in); err != nil || in.Room == "" {
			continue
		}

		switch in.Type {
		case "subscribe":
			if !c.canJoin(in.Room) {
				h.deny(c, in.Room)
				continue
			}
			h.mu.Lock()
			c.rooms[in.Room] = true
			h.mu.Unlock()
		case "unsubscribe":
			h.mu.Lock()
			delete(c.rooms, in.Room)
			h.mu.Unlock()
		}
	}
}

// deny tells the console its subscription was refused. Only readPump calls
// it, so c.send is still open.
func (h *Hub) deny(c *connection, room string) {
	data, err := json.Marshal(Event{Type: "subscribe_denied", Room: room})
	if err != nil {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (h *Hub) writePump(c *connection) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
