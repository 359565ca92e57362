package ws

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/karaokehub/karaokehub/auth"
	"github.com/karaokehub/karaokehub/types"
)

const sendChannelSize = 1000

// Client is a middleman between one websocket connection and the room hub.
type Client struct {
	hub *Hub

	// The websocket connection.
	conn *websocket.Conn

	// Buffered channel of outbound messages.
	Send chan []byte

	claims *auth.SessionClaims

	// snapshot versions the client reported as cached on connect
	libraryVersion int64
	starVersion    int64

	// isPlayer marks the room's player connection; the first connection
	// reporting a player status claims the role. Only the run loop
	// touches it.
	isPlayer bool

	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(hub *Hub, conn *websocket.Conn, claims *auth.SessionClaims, libraryVersion, starVersion int64) *Client {
	return &Client{
		hub:            hub,
		conn:           conn,
		Send:           make(chan []byte, sendChannelSize),
		claims:         claims,
		libraryVersion: libraryVersion,
		starVersion:    starVersion,
		done:           make(chan struct{}),
	}
}

// enqueue hands a message to the write loop without ever blocking the
// caller; a client that cannot keep up loses messages rather than stalling
// the room.
func (c *Client) enqueue(data []byte) {
	select {
	case c.Send <- data:
	case <-c.done:
	default:
		c.hub.logger.Warn("send buffer full, dropping message", "user", c.claims.UserId)
	}
}

func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.conn != nil {
			c.conn.Close()
		}
	})
}

// ReadLoop pumps messages from the websocket connection to the hub.
//
// The application runs ReadLoop in a per-connection goroutine and ensures
// that there is at most one reader on a connection by executing all reads
// from this goroutine.
func (c *Client) ReadLoop() {
	defer func() {
		// the hub may already be stopped; never block on a dead loop
		select {
		case c.hub.Unregister <- c:
		case <-c.hub.done:
		}
	}()
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Debug("connection closed unexpectedly", "user", c.claims.UserId, "error", err)
			}
			return
		}
		var msg types.WireMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			c.hub.logger.Warn("could not unmarshal inbound message", "user", c.claims.UserId, "error", err)
			continue
		}
		select {
		case c.hub.Actions <- inboundAction{client: c, msg: msg}:
		case <-c.done:
			return
		}
	}
}

// WriteLoop pumps messages from the hub to the websocket connection.
//
// A goroutine running WriteLoop is started for each connection and is the
// only writer on the connection.
func (c *Client) WriteLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message := <-c.Send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}
