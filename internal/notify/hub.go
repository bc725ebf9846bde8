package notify

import (
	"context"
	"strings"
	"sync"
)

// Hub fans events out to in-process subscribers of a room (WebSocket listeners).
// Slow subscribers lose events rather than block the publisher.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[uint64]*Subscription
	nextID uint64
}

type Subscription struct {
	C <-chan Event

	ch     chan Event
	id     uint64
	roomID string
	hub    *Hub
	once   sync.Once
}

func NewHub() *Hub {
	return &Hub{rooms: make(map[string]map[uint64]*Subscription)}
}

func (h *Hub) Subscribe(roomID string, buffer int) *Subscription {
	if buffer <= 0 {
		buffer = 16
	}
	roomID = strings.TrimSpace(roomID)
	ch := make(chan Event, buffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	h.nextID++
	s := &Subscription{C: ch, ch: ch, id: h.nextID, roomID: roomID, hub: h}
	subs := h.rooms[roomID]
	if subs == nil {
		subs = make(map[uint64]*Subscription)
		h.rooms[roomID] = subs
	}
	subs[s.id] = s
	return s
}

// Close unsubscribes and closes C. Safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		h := s.hub
		h.mu.Lock()
		if subs := h.rooms[s.roomID]; subs != nil {
			delete(subs, s.id)
			if len(subs) == 0 {
				delete(h.rooms, s.roomID)
			}
		}
		h.mu.Unlock()
		close(s.ch)
	})
}

func (h *Hub) Publish(_ context.Context, ev Event) error {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.rooms[strings.TrimSpace(ev.RoomID)] {
		select {
		case s.ch <- ev:
		default:
		}
	}
	return nil
}

func (h *Hub) Subscribers(roomID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[strings.TrimSpace(roomID)])
}
