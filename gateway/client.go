package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// client is one websocket connection. Frames are queued on send and written
// by writeLoop, so the order in which Dispatch enqueues is the order the
// peer observes.
type client struct {
	id   string
	conn *websocket.Conn
	gw   *Gateway

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func newClient(id string, conn *websocket.Conn, gw *Gateway) *client {
	return &client{
		id:   id,
		conn: conn,
		gw:   gw,
		send: make(chan []byte, gw.cfg.SendBuffer),
		done: make(chan struct{}),
	}
}

// enqueue queues frame without blocking. A full queue means the peer cannot
// keep up; the connection is closed and its disconnect turns into a leave.
func (c *client) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- frame:
		return true
	default:
		c.gw.metrics.SlowConsumer()
		c.gw.logger.Warn("send queue full, closing connection", "conn", c.id)
		c.close()
		return false
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

// readLoop handles inbound frames until the connection fails or closes.
func (c *client) readLoop() {
	cfg := c.gw.cfg
	c.conn.SetReadLimit(cfg.MaxMessageBytes)
	c.conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.gw.logger.Warn("read error", "conn", c.id, "error", err)
			}
			return
		}
		c.conn.SetReadDeadline(time.Now().Add(cfg.ReadTimeout))
		c.gw.handle(c, msg)
	}
}

// writeLoop drains the send queue and keeps the connection alive with pings.
func (c *client) writeLoop() {
	cfg := c.gw.cfg
	ticker := time.NewTicker(cfg.PingInterval)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(cfg.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.gw.logger.Debug("write error", "conn", c.id, "error", err)
				return
			}

		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(cfg.WriteTimeout)); err != nil {
				return
			}

		case <-c.done:
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(cfg.WriteTimeout))
			return
		}
	}
}
