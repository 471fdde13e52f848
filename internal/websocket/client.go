package websocket

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = time.Minute
	pingPeriod = pongWait * 9 / 10
	closeWait  = 2 * time.Second

	maxMessageSize = 256 << 10
	outboxSize     = 256
)

// Client is one socket attached to a room. Everything written to the peer goes
// through the outbox so a slow reader never blocks the relay.
type Client struct {
	conn         *websocket.Conn
	roomID       string
	connectionID string
	identity     string

	outbox  chan []byte
	limiter *rate.Limiter

	closeOnce sync.Once
	closed    chan struct{}
	reason    string
}

func newClient(conn *websocket.Conn, roomID, connectionID, identity string) *Client {
	conn.SetReadLimit(maxMessageSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	return &Client{
		conn:         conn,
		roomID:       roomID,
		connectionID: connectionID,
		identity:     identity,
		outbox:       make(chan []byte, outboxSize),
		limiter:      rate.NewLimiter(5, 10),
		closed:       make(chan struct{}),
	}
}

func (c *Client) RoomID() string       { return c.roomID }
func (c *Client) ConnectionID() string { return c.connectionID }

// enqueue hands data to the write pump. It reports false when the client is
// closed or its outbox is full; a full outbox closes the client.
func (c *Client) enqueue(data []byte) bool {
	select {
	case <-c.closed:
		return false
	default:
	}
	select {
	case c.outbox <- data:
		return true
	default:
		c.Close("slow_consumer")
		return false
	}
}

// Close stops the write pump, which sends a close frame with reason and then
// closes the socket. Safe to call more than once.
func (c *Client) Close(reason string) {
	c.closeOnce.Do(func() {
		c.reason = reason
		close(c.closed)
	})
}

// writePump owns every write to the socket.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.SetWriteDeadline(time.Now().Add(closeWait))
		_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, c.reason))
		c.conn.Close()
	}()

	for {
		select {
		case data := <-c.outbox:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.Close("write_failed")
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close("ping_failed")
				return
			}
		case <-c.closed:
			c.flush()
			return
		}
	}
}

// flush writes whatever is already queued so the last events before a close
// (a kick notice, a room teardown error) still reach the peer.
func (c *Client) flush() {
	for {
		select {
		case data := <-c.outbox:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		default:
			return
		}
	}
}
