package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"room-sync/internal/logging"
	"room-sync/internal/models"
	"room-sync/internal/services"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 1 << 20
	sendBufferSize = 64
)

var ErrSendBufferFull = errors.New("send buffer full")

// Client is one connected device: the transport half of a session. Inbound
// frames are decoded once here and dispatched to the coordinator; outbound
// messages go through a buffered channel drained by the write pump.
type Client struct {
	id        string
	svc       *services.SyncService
	log       *logging.Logger
	conn      *websocket.Conn
	heartbeat time.Duration

	send     chan []byte
	sendMu   sync.Mutex
	closed   bool
	lastSeen atomic.Int64

	roomMu sync.Mutex
	room   string
}

func newClient(id string, svc *services.SyncService, log *logging.Logger, conn *websocket.Conn, heartbeat time.Duration) *Client {
	c := &Client{
		id:        id,
		svc:       svc,
		log:       log,
		conn:      conn,
		heartbeat: heartbeat,
		send:      make(chan []byte, sendBufferSize),
	}
	c.lastSeen.Store(time.Now().UnixMilli())
	return c
}

func (c *Client) ID() string { return c.id }

func (c *Client) Room() string {
	c.roomMu.Lock()
	defer c.roomMu.Unlock()
	return c.room
}

func (c *Client) SetRoom(code string) {
	c.roomMu.Lock()
	defer c.roomMu.Unlock()
	c.room = code
}

func (c *Client) LastSeen() int64 { return c.lastSeen.Load() }

// Send queues one message for delivery. A closed client or a full buffer is
// an error the caller may ignore: delivery is best effort and the next sync
// covers the gap.
func (c *Client) Send(msg any) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return errors.New("session closed")
	}
	select {
	case c.send <- b:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// close marks the client dead and closes the send channel so the write
// pump flushes whatever is queued and exits. Idempotent.
func (c *Client) close() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// pongWait allows two missed heartbeat probes before the read deadline
// fires and the connection is treated as dead.
func (c *Client) pongWait() time.Duration {
	return 2*c.heartbeat + c.heartbeat/2
}

func (c *Client) readPump(hub *Hub) {
	defer func() {
		hub.drop(c)
		_ = c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.pongWait()))
	c.conn.SetPongHandler(func(string) error {
		c.lastSeen.Store(time.Now().UnixMilli())
		return c.conn.SetReadDeadline(time.Now().Add(c.pongWait()))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.log.Debugf("session %s read error: %v", c.id, err)
			}
			return
		}
		c.lastSeen.Store(time.Now().UnixMilli())
		c.dispatch(data)
	}
}

// dispatch decodes one frame and hands it to the coordinator. Malformed
// frames are logged and dropped; they never take the session down.
func (c *Client) dispatch(data []byte) {
	msg, err := models.DecodeInbound(data)
	if err != nil {
		c.log.Warnf("session %s sent bad message: %v", c.id, err)
		return
	}
	switch m := msg.(type) {
	case models.JoinRoom:
		c.svc.HandleJoin(c, m.Room, m.DeviceMeta)
	case models.Update:
		c.svc.HandleUpdate(c, m.Collections)
	case models.Delete:
		c.svc.HandleDelete(c, m.EntityType, m.ID, m.Timestamp)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.heartbeat)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case b, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
