// Package notify delivers best-effort room events. Polling stays the source of
// truth; nothing here may fail or roll back a room mutation.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/park285/battlehub/internal/domain"
)

type EventType string

const (
	EventRoomCreated    EventType = "room.created"
	EventPlayerJoined   EventType = "room.joined"
	EventRoomStarted    EventType = "room.started"
	EventScoreSubmitted EventType = "room.score"
	EventPlayerLeft     EventType = "room.left"
	EventRoomDeleted    EventType = "room.deleted"
)

// Event is the payload broadcast to a room's listeners after a mutation.
type Event struct {
	ID     string       `json:"id"`
	Type   EventType    `json:"type"`
	RoomID string       `json:"roomId"`
	Room   *domain.Room `json:"room,omitempty"`
	At     time.Time    `json:"at"`
}

func NewEvent(t EventType, roomID string, r *domain.Room) Event {
	return Event{
		ID:     uuid.NewString(),
		Type:   t,
		RoomID: roomID,
		Room:   r.Clone(),
		At:     time.Now().UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

type PublisherFunc func(ctx context.Context, ev Event) error

func (f PublisherFunc) Publish(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Multi publishes to every member and joins their errors.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
