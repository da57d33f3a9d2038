// Package client is a Go client for the room-sync wire protocol. The
// server's own end-to-end tests drive it; embedding applications can use it
// to take part in a room like any other device.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"room-sync/internal/models"
)

var ErrClosed = fmt.Errorf("client closed")

// Message is one decoded server notice. Exactly one payload field is set,
// according to Type.
type Message struct {
	Type        string
	Sync        *models.Sync
	MemberCount int
	ItemDeleted *models.ItemDeleted
	Reason      string
}

type Client struct {
	conn *websocket.Conn
}

// Dial connects to a room-sync server. url is the ws:// or wss:// endpoint.
func Dial(ctx context.Context, url string) (*Client, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &Client{conn: conn}, nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// Join enters a room by code. The server answers with a full sync snapshot.
func (c *Client) Join(roomCode, deviceMeta string) error {
	return c.conn.WriteJSON(map[string]any{
		"type":       models.TypeJoinRoom,
		"room":       roomCode,
		"deviceMeta": deviceMeta,
	})
}

// Push sends local collections for merging. Only non-nil collections are
// considered by the server.
func (c *Client) Push(collections models.Collections) error {
	return c.conn.WriteJSON(map[string]any{
		"type":        models.TypeUpdate,
		"collections": collections,
	})
}

// Delete asks the room to tombstone one record. A zero timestamp lets the
// server stamp the deletion.
func (c *Client) Delete(et models.EntityType, id string, timestamp int64) error {
	return c.conn.WriteJSON(map[string]any{
		"type":       models.TypeDelete,
		"entityType": et,
		"id":         id,
		"timestamp":  timestamp,
	})
}

// SendRaw writes an arbitrary text frame. Tests use it to poke the server
// with frames the typed senders cannot produce.
func (c *Client) SendRaw(data []byte) error {
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Next blocks for the next server message, up to timeout.
func (c *Client) Next(timeout time.Duration) (Message, error) {
	if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return Message{}, err
	}
	_, data, err := c.conn.ReadMessage()
	if err != nil {
		return Message{}, err
	}
	return decode(data)
}

// NextOfType reads messages until one of the wanted type arrives, up to
// timeout overall. Other messages are discarded.
func (c *Client) NextOfType(wanted string, timeout time.Duration) (Message, error) {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return Message{}, fmt.Errorf("no %s message within %s", wanted, timeout)
		}
		msg, err := c.Next(remaining)
		if err != nil {
			return Message{}, err
		}
		if msg.Type == wanted {
			return msg, nil
		}
	}
}

func decode(data []byte) (Message, error) {
	var env struct {
		Type        string             `json:"type"`
		Data        models.Collections `json:"data"`
		MemberCount int                `json:"memberCount"`
		Timestamp   int64              `json:"timestamp"`
		EntityType  models.EntityType  `json:"entityType"`
		ID          string             `json:"id"`
		Reason      string             `json:"reason"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return Message{}, fmt.Errorf("decode server message: %w", err)
	}
	msg := Message{Type: env.Type}
	switch env.Type {
	case models.TypeSync:
		msg.Sync = &models.Sync{Type: env.Type, Data: env.Data, MemberCount: env.MemberCount, Timestamp: env.Timestamp}
		msg.MemberCount = env.MemberCount
	case models.TypeMemberJoined, models.TypeMemberLeft:
		msg.MemberCount = env.MemberCount
	case models.TypeItemDeleted:
		msg.ItemDeleted = &models.ItemDeleted{Type: env.Type, EntityType: env.EntityType, ID: env.ID}
	case models.TypeServerShutdown:
		msg.Reason = env.Reason
	default:
		return Message{}, fmt.Errorf("unknown server message type %q", env.Type)
	}
	return msg, nil
}
