package ws

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
	sendBufferSize = 256
)

// ConnInfo carries per-connection metadata for lifecycle events.
type ConnInfo struct {
	ConnID      string
	DeviceID    string
	IP          string
	RequestID   string
	TraceID     string
	ConnectedAt time.Time
}

// Client is one live websocket session belonging to exactly one user.
// Outbound frames go through the buffered send channel so broadcasters
// never block on a slow peer.
type Client struct {
	UserID   string
	Username string
	Info     ConnInfo

	conn      *websocket.Conn
	send      chan []byte
	closeOnce sync.Once
	closed    chan struct{}
}

// NewClient wraps an upgraded connection.
func NewClient(conn *websocket.Conn, userID, username string, info ConnInfo) *Client {
	if info.ConnID == "" {
		info.ConnID = uuid.NewString()
	}
	if info.ConnectedAt.IsZero() {
		info.ConnectedAt = time.Now()
	}
	return &Client{
		UserID:   userID,
		Username: username,
		Info:     info,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		closed:   make(chan struct{}),
	}
}

// Send encodes and enqueues one event for this connection. A full buffer
// marks the connection stale and drops it instead of blocking the caller.
func (c *Client) Send(event string, payload any) bool {
	frame, err := EncodeFrame(event, payload)
	if err != nil {
		return false
	}
	return c.enqueue(frame)
}

func (c *Client) enqueue(frame []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}

	select {
	case c.send <- frame:
		return true
	default:
		c.shutdown()
		return false
	}
}

// shutdown closes the transport exactly once; the pumps observe the closed
// channel and unwind.
func (c *Client) shutdown() {
	c.closeOnce.Do(func() {
		close(c.closed)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}

// writePump drains the send channel onto the wire and keeps the connection
// alive with periodic pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.shutdown()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.closed:
			return
		}
	}
}
