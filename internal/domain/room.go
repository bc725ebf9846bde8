package domain

import (
	"encoding/json"
	"time"
)

// Challenge is the day-indexed target a room plays against.
type Challenge struct {
	Day   int    `json:"day"`
	Month int    `json:"month,omitempty"`
	Image string `json:"image"`
}

type Player struct {
	ID       string    `json:"id"`
	Username string    `json:"username"`
	JoinedAt time.Time `json:"joinedAt"`
	Score    *float64  `json:"score"`
}

// Room is the persisted state of a multiplayer session.
// Stored as one JSON document by the memory and Redis backends.
type Room struct {
	RoomID    string     `json:"roomId"`
	OwnerID   string     `json:"ownerId"`
	Players   []Player   `json:"players"`
	Started   bool       `json:"started"`
	Challenge *Challenge `json:"challenge"`
	CreatedAt time.Time  `json:"createdAt"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
	UpdatedAt time.Time  `json:"updatedAt"`
}

// MarshalJSON adds the derived completed flag to the wire shape.
func (r Room) MarshalJSON() ([]byte, error) {
	type alias Room
	players := r.Players
	if players == nil {
		players = []Player{}
	}
	a := alias(r)
	a.Players = players
	return json.Marshal(struct {
		alias
		Completed bool `json:"completed"`
	}{a, r.Completed()})
}

func (r *Room) PlayerIndex(id string) int {
	for i := range r.Players {
		if r.Players[i].ID == id {
			return i
		}
	}
	return -1
}

func (r *Room) HasPlayer(id string) bool { return r.PlayerIndex(id) >= 0 }

// Completed reports whether the room started and every player has a score.
func (r *Room) Completed() bool {
	if !r.Started || len(r.Players) == 0 {
		return false
	}
	for _, p := range r.Players {
		if p.Score == nil {
			return false
		}
	}
	return true
}

// Clone returns a deep copy so callers never share roster or pointer fields.
func (r *Room) Clone() *Room {
	if r == nil {
		return nil
	}
	c := *r
	c.Players = make([]Player, len(r.Players))
	for i, p := range r.Players {
		if p.Score != nil {
			s := *p.Score
			p.Score = &s
		}
		c.Players[i] = p
	}
	if r.Challenge != nil {
		ch := *r.Challenge
		c.Challenge = &ch
	}
	if r.StartedAt != nil {
		t := *r.StartedAt
		c.StartedAt = &t
	}
	return &c
}

// SoloScore is one entry of a user's single-player history.
type SoloScore struct {
	Day   int       `json:"day"`
	Score float64   `json:"score"`
	Date  time.Time `json:"date"`
}
