package coordinator

import (
	"context"
	"errors"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vthunder/diner/internal/messages"
	"github.com/vthunder/diner/internal/types"
)

const (
	pingInterval = 54 * time.Second
	readTimeout  = 60 * time.Second
	writeTimeout = 10 * time.Second
	sendBuffer   = 64
)

var ErrSendBufferFull = errors.New("send buffer full")

// Hub accepts browsing contexts over WebSocket and registers each one with
// the coordinator. Query parameters: contextId (optional) and url.
type Hub struct {
	coord    *Coordinator
	upgrader websocket.Upgrader
	auth     func(*http.Request) error
}

// NewHub creates a hub. auth may be nil.
func NewHub(coord *Coordinator, auth func(*http.Request) error) *Hub {
	return &Hub{
		coord: coord,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // extension pages have chrome-extension:// origins
			},
		},
		auth: auth,
	}
}

// wsConn is one connected context
type wsConn struct {
	id      types.ContextID
	conn    *websocket.Conn
	send    chan []byte
	writeMu sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
}

// Send queues an outbound message. It never blocks.
func (c *wsConn) Send(id string, msg messages.Message) error {
	data, err := messages.Encode(id, c.id, msg)
	if err != nil {
		return err
	}
	return c.enqueue(data)
}

func (c *wsConn) enqueue(data []byte) error {
	select {
	case <-c.ctx.Done():
		return ErrContextClosed
	default:
	}
	select {
	case c.send <- data:
		return nil
	case <-c.ctx.Done():
		return ErrContextClosed
	default:
		return ErrSendBufferFull
	}
}

// HandleWebSocket upgrades the request and runs the connection
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	if h.auth != nil {
		if err := h.auth(r); err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	id := types.ContextID(r.URL.Query().Get("contextId"))
	if id == "" {
		id = types.ContextID(uuid.NewString())
	}
	url := r.URL.Query().Get("url")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[hub] Upgrade failed for %s: %v", r.RemoteAddr, err)
		return
	}

	// The request context ends when the handler returns
	ctx, cancel := context.WithCancel(context.Background())
	c := &wsConn{
		id:     id,
		conn:   conn,
		send:   make(chan []byte, sendBuffer),
		ctx:    ctx,
		cancel: cancel,
	}
	h.coord.Register(id, url, c)

	go c.writePump()
	go h.readPump(c)
}

func (h *Hub) readPump(c *wsConn) {
	defer func() {
		c.cancel()
		h.coord.Unregister(c.id, c)
		c.writeMu.Lock()
		c.conn.Close()
		c.writeMu.Unlock()
	}()

	c.conn.SetReadDeadline(time.Now().Add(readTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(readTimeout))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[hub] Read error from %s: %v", c.id, err)
			}
			return
		}
		if reply := h.coord.Handle(c.ctx, c.id, data); reply != nil {
			if err := c.enqueue(reply); err != nil {
				log.Printf("[hub] Reply to %s dropped: %v", c.id, err)
			}
		}
	}
}

func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.cancel()
	}()

	for {
		select {
		case data := <-c.send:
			c.writeMu.Lock()
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := c.conn.WriteMessage(websocket.TextMessage, data)
			c.writeMu.Unlock()
			if err != nil {
				return
			}

		case <-ticker.C:
			c.writeMu.Lock()
			c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			err := c.conn.WriteMessage(websocket.PingMessage, nil)
			c.writeMu.Unlock()
			if err != nil {
				return
			}

		case <-c.ctx.Done():
			c.writeMu.Lock()
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			c.writeMu.Unlock()
			return
		}
	}
}
