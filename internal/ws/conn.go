package ws

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/converse/chat-server-go/internal/config"
)

// Conn wraps a websocket and coordinates outbound writes via a buffered
// channel. The user identity is attached once at activation and never
// reassigned for the connection's lifetime.
type Conn struct {
	ID     string
	UserID string

	ws     *websocket.Conn
	send   chan []byte
	once   sync.Once
	closed chan struct{}
}

func NewConn(userID string, ws *websocket.Conn) *Conn {
	return &Conn{
		ID:     uuid.NewString(),
		UserID: userID,
		ws:     ws,
		send:   make(chan []byte, config.WSSendBufferSize),
		closed: make(chan struct{}),
	}
}

// Start launches the write loop. It must be called exactly once.
func (c *Conn) Start() {
	go c.writeLoop()
}

// Send enqueues payload for delivery. A slow client whose buffer fills is
// closed to keep backpressure bounded.
func (c *Conn) Send(payload []byte) error {
	select {
	case <-c.closed:
		return errors.New("connection closed")
	case c.send <- payload:
		return nil
	default:
		c.Close(websocket.CloseGoingAway, "send buffer full")
		return errors.New("connection buffer exceeded")
	}
}

// Close terminates the connection and stops the write loop. Safe to call
// more than once.
func (c *Conn) Close(code int, reason string) {
	c.once.Do(func() {
		close(c.closed)
		_ = c.ws.SetWriteDeadline(time.Now().Add(config.WSWriteWait))
		_ = c.ws.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), time.Now().Add(config.WSWriteWait))
		_ = c.ws.Close()
	})
}

// Closed reports whether the connection has been shut down.
func (c *Conn) Closed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}

func (c *Conn) writeLoop() {
	ticker := time.NewTicker(config.WSPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case msg := <-c.send:
			if err := c.writeMessage(msg); err != nil {
				return
			}
		case <-ticker.C:
			if err := c.writePing(); err != nil {
				return
			}
		}
	}
}

func (c *Conn) writeMessage(payload []byte) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(config.WSWriteWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

func (c *Conn) writePing() error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(config.WSWriteWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.PingMessage, nil)
}
