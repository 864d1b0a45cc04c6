package buffer

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Operations a client may queue while offline. Reads are never queued.
const (
	OperationCreateRoom = "room.create"
	OperationUpdateRoom = "room.update"
	OperationDeleteRoom = "room.delete"
	OperationBook       = "booking.book"
	OperationFree       = "booking.free"

	// OperationUnreadable marks a stored row that failed to decode. No
	// handler exists for it, so replay drops it.
	OperationUnreadable = "unreadable"
)

const unreadablePrefix = "unreadable:"

// LocalRefPrefix marks a room id that points at a room created by a queued
// action and not yet known to the server.
const LocalRefPrefix = "local:"

// Action is a pending mutating call held until it can be replayed.
type Action struct {
	ID         string          `json:"id"`
	Operation  string          `json:"operation"`
	RoomID     string          `json:"room_id,omitempty"`
	LocalRef   string          `json:"local_ref,omitempty"`
	Payload    json.RawMessage `json:"payload"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	Attempts   int             `json:"attempts"`

	bucketKey []byte
}

// TargetsLocalRef reports whether the action's room is a queued placeholder.
func (a *Action) TargetsLocalRef() (string, bool) {
	if a == nil || !strings.HasPrefix(a.RoomID, LocalRefPrefix) {
		return "", false
	}
	return strings.TrimPrefix(a.RoomID, LocalRefPrefix), true
}

func (a *Action) normalize() {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.EnqueuedAt.IsZero() {
		a.EnqueuedAt = time.Now()
	}
	if len(a.Payload) == 0 {
		a.Payload = json.RawMessage("{}")
	}
}

// RefBinding records what became of a placeholder once its create was replayed.
type RefBinding struct {
	RoomID  string `json:"room_id,omitempty"`
	Dropped bool   `json:"dropped,omitempty"`
}
