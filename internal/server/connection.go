package server

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gorilla/websocket"
)

const (
	// Deadline for one write to the subscriber
	writeWait = 10 * time.Second

	// Subscriber must answer a ping within this window
	pongWait = 60 * time.Second

	// Ping interval, shorter than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Largest frame accepted from a subscriber
	maxMessageSize = 8192

	// Queued messages before a slow subscriber is dropped
	sendBuffer = 64
)

// ErrConnectionClosed is returned when sending to a closed subscriber.
var ErrConnectionClosed = errors.New("server: connection closed")

// Connection is one websocket subscriber to a game's states. States are
// delivered in increasing state_index order; an older state queued after a
// newer one is dropped.
type Connection struct {
	conn   *websocket.Conn
	gameID string
	logger *log.Logger

	send      chan *Message
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	mu       sync.Mutex
	newest   int
	hasState bool
}

// NewConnection wraps conn as a subscriber to gameID.
func NewConnection(conn *websocket.Conn, gameID string, logger *log.Logger) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	return &Connection{
		conn:   conn,
		gameID: gameID,
		logger: logger.WithPrefix("conn").With("game", gameID),
		send:   make(chan *Message, sendBuffer),
		ctx:    ctx,
		cancel: cancel,
	}
}

// GameID returns the game this connection watches.
func (c *Connection) GameID() string { return c.gameID }

// Done is closed once the connection is closed.
func (c *Connection) Done() <-chan struct{} { return c.ctx.Done() }

// Start runs the read and write pumps.
func (c *Connection) Start() {
	go c.writePump()
	go c.readPump()
}

// Close stops both pumps and closes the socket. It is safe to call twice.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		err = c.conn.Close()
	})
	return err
}

// SendState queues a state message unless a state at or past index was
// already queued. It never blocks: a subscriber that falls a full buffer
// behind is disconnected.
func (c *Connection) SendState(index int, msg *Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	// Already sent something newer
	if c.hasState && index <= c.newest {
		return nil
	}
	if err := c.enqueue(msg); err != nil {
		return err
	}
	c.newest, c.hasState = index, true
	return nil
}

// SendMessage queues any other message without blocking.
func (c *Connection) SendMessage(msg *Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.enqueue(msg)
}

func (c *Connection) enqueue(msg *Message) error {
	if c.ctx.Err() != nil {
		return ErrConnectionClosed
	}
	select {
	case c.send <- msg:
		return nil
	default:
		// Buffer full, the subscriber resyncs over HTTP after reconnecting
		c.logger.Warn("Subscriber fell behind, disconnecting")
		_ = c.Close()
		return ErrConnectionClosed
	}
}

// readPump only services control frames; the feed is one-way and anything
// the client sends is discarded.
func (c *Connection) readPump() {
	defer func() { _ = c.Close() }() // Ignore close errors during cleanup

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	// Each pong extends the read deadline
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.NextReader(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Warn("Subscriber read failed", "error", err)
			}
			return
		}
	}
}

// writePump serialises messages and keeps the socket alive with pings.
func (c *Connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Close() // Ignore close errors during cleanup
	}()

	for {
		select {
		case msg := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(msg); err != nil {
				c.logger.Debug("Write failed", "error", err)
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-c.ctx.Done():
			// Best effort close frame, the socket may already be gone
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		}
	}
}
