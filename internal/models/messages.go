package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrMissingField       = errors.New("missing required field")
)

const (
	TypeJoinRoom       = "join-room"
	TypeUpdate         = "update"
	TypeDelete         = "delete"
	TypeSync           = "sync"
	TypeMemberJoined   = "member-joined"
	TypeMemberLeft     = "member-left"
	TypeItemDeleted    = "item-deleted"
	TypeServerShutdown = "server-shutdown"
)

// Inbound message variants. Exactly one is produced per decoded frame.

type JoinRoom struct {
	Room       string `json:"room"`
	DeviceMeta string `json:"deviceMeta,omitempty"`
}

type Update struct {
	Collections Collections `json:"collections"`
}

type Delete struct {
	EntityType EntityType `json:"entityType"`
	ID         string     `json:"id"`
	Timestamp  int64      `json:"timestamp,omitempty"`
}

type inboundEnvelope struct {
	Type        string       `json:"type"`
	Room        string       `json:"room"`
	DeviceMeta  string       `json:"deviceMeta"`
	Collections *Collections `json:"collections"`
	EntityType  EntityType   `json:"entityType"`
	ID          string       `json:"id"`
	Timestamp   int64        `json:"timestamp"`
}

// DecodeInbound validates a raw frame once at the transport boundary and
// returns one of JoinRoom, Update or Delete.
func DecodeInbound(data []byte) (any, error) {
	var env inboundEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode message: %w", err)
	}
	switch env.Type {
	case TypeJoinRoom:
		room := strings.TrimSpace(env.Room)
		if room == "" {
			return nil, fmt.Errorf("%w: join-room.room", ErrMissingField)
		}
		return JoinRoom{Room: room, DeviceMeta: strings.TrimSpace(env.DeviceMeta)}, nil
	case TypeUpdate:
		if env.Collections == nil {
			return nil, fmt.Errorf("%w: update.collections", ErrMissingField)
		}
		return Update{Collections: *env.Collections}, nil
	case TypeDelete:
		if !env.EntityType.Valid() {
			return nil, fmt.Errorf("%w: delete.entityType %q", ErrMissingField, env.EntityType)
		}
		if strings.TrimSpace(env.ID) == "" {
			return nil, fmt.Errorf("%w: delete.id", ErrMissingField)
		}
		return Delete{EntityType: env.EntityType, ID: env.ID, Timestamp: env.Timestamp}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMessageType, env.Type)
	}
}

// Outbound messages carry their own type discriminator so they can be
// handed straight to json.Marshal.

type Sync struct {
	Type        string      `json:"type"`
	Data        Collections `json:"data"`
	MemberCount int         `json:"memberCount"`
	Timestamp   int64       `json:"timestamp"`
}

func NewSync(data Collections, memberCount int, timestamp int64) Sync {
	return Sync{Type: TypeSync, Data: data, MemberCount: memberCount, Timestamp: timestamp}
}

type MemberJoined struct {
	Type        string `json:"type"`
	MemberCount int    `json:"memberCount"`
}

func NewMemberJoined(memberCount int) MemberJoined {
	return MemberJoined{Type: TypeMemberJoined, MemberCount: memberCount}
}

type MemberLeft struct {
	Type        string `json:"type"`
	MemberCount int    `json:"memberCount"`
}

func NewMemberLeft(memberCount int) MemberLeft {
	return MemberLeft{Type: TypeMemberLeft, MemberCount: memberCount}
}

type ItemDeleted struct {
	Type       string     `json:"type"`
	EntityType EntityType `json:"entityType"`
	ID         string     `json:"id"`
}

func NewItemDeleted(entityType EntityType, id string) ItemDeleted {
	return ItemDeleted{Type: TypeItemDeleted, EntityType: entityType, ID: id}
}

type ServerShutdown struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

func NewServerShutdown(reason string) ServerShutdown {
	return ServerShutdown{Type: TypeServerShutdown, Reason: reason}
}
