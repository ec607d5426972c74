package ws

import (
	"time"

	"github.com/gorilla/websocket"
)

const (
	// writeWait bounds a single frame write to the peer.
	writeWait = 10 * time.Second

	// pongWait is how long the peer has to answer a ping.
	pongWait = 60 * time.Second

	// pingPeriod must stay under pongWait.
	pingPeriod = (pongWait * 9) / 10

	maxMessageSize = 64 * 1024

	sendBufferSize = 256
)

// Client is one authenticated connection. A user may hold many.
type Client struct {
	id          string
	userID      string
	displayName string

	conn *websocket.Conn
	send chan []byte

	// done is closed by the hub on detach. The send channel itself is never
	// closed, so a broadcast racing a detach cannot panic on enqueue.
	done chan struct{}

	// joined rooms, owned by the hub and guarded by its mutex.
	joined map[string]struct{}
}

func newClient(conn *websocket.Conn, connID string, identity identity) *Client {
	return &Client{
		id:          connID,
		userID:      identity.userID,
		displayName: identity.displayName,
		conn:        conn,
		send:        make(chan []byte, sendBufferSize),
		done:        make(chan struct{}),
		joined:      make(map[string]struct{}),
	}
}

// enqueue hands a frame to the write pump without ever blocking the caller.
// False means the buffer is full and the hub should evict this connection.
// Frames for an already-detached client are dropped silently.
func (c *Client) enqueue(payload []byte) bool {
	select {
	case <-c.done:
		return true
	default:
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// readPump delivers inbound frames to onFrame in receipt order, one at a
// time, which is the per-connection ordering guarantee.
func (c *Client) readPump(onFrame func(*Client, []byte), onClose func(*Client)) {
	defer func() {
		onClose(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		onFrame(c, payload)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case payload := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
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

type identity struct {
	userID      string
	displayName string
}
