package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/park285/battlehub/internal/domain"
	"github.com/park285/battlehub/internal/room"
)

// flexInt accepts 7 as well as "7", matching what browser forms tend to send.
type flexInt struct {
	set   bool
	value int
	bad   bool
}

func (f *flexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	f.set = true
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			f.bad = true
			return nil
		}
		n = json.Number(strings.TrimSpace(s))
	}
	v, err := strconv.Atoi(n.String())
	if err != nil {
		f.bad = true
		return nil
	}
	f.value = v
	return nil
}

func (f flexInt) get(field string) (int, error) {
	if !f.set {
		return 0, room.InvalidInput(field, "required")
	}
	if f.bad {
		return 0, room.InvalidInput(field, "must be an integer")
	}
	return f.value, nil
}

type joinRequest struct {
	RoomID string `json:"roomId"`
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	caller := callerFrom(r)
	res, err := s.rooms.JoinOrCreate(r.Context(), req.RoomID, caller)
	if err != nil {
		s.writeRoomError(w, r, req.RoomID, err)
		return
	}
	key := "room.joined"
	if res.Created {
		key = "room.created"
	}
	writeJSON(w, http.StatusOK, envelope{
		"success": true,
		"message": s.msgs.Text(key, map[string]any{"RoomID": res.Room.RoomID}, ""),
		"room":    res.Room,
		"isHost":  res.IsHost,
		"userId":  caller.ID,
	})
}

func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	rm, err := s.rooms.Get(r.Context(), roomID)
	if err != nil {
		s.writeRoomError(w, r, roomID, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"success": true, "room": rm})
}

type selectRequest struct {
	RoomID string  `json:"roomId"`
	Day    flexInt `json:"day"`
	Month  flexInt `json:"month"`
	Image  string  `json:"image"`
}

func (s *Server) handleSelectChallenge(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	ch, err := challengeFrom(req.Day, req.Month, req.Image)
	if err != nil {
		s.writeRoomError(w, r, req.RoomID, err)
		return
	}
	rm, err := s.rooms.SelectChallenge(r.Context(), req.RoomID, callerFrom(r), ch)
	if err != nil {
		s.writeRoomError(w, r, req.RoomID, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		"success": true,
		"message": s.msgs.Text("room.challenge_selected", map[string]any{"Day": ch.Day}, ""),
		"room":    rm,
	})
}

type challengeBody struct {
	Day   flexInt `json:"day"`
	Month flexInt `json:"month"`
	Image string  `json:"image"`
}

type startRequest struct {
	RoomID    string         `json:"roomId"`
	Challenge *challengeBody `json:"challenge"`
	Day       flexInt        `json:"day"`
	Month     flexInt        `json:"month"`
	Image     string         `json:"image"`
}

// challenge returns the challenge carried by the request, either nested or
// flattened, or nil when none was supplied.
func (req startRequest) challenge() (*domain.Challenge, error) {
	var (
		day, month flexInt
		image      string
	)
	switch {
	case req.Challenge != nil:
		day, month, image = req.Challenge.Day, req.Challenge.Month, req.Challenge.Image
	case req.Day.set || strings.TrimSpace(req.Image) != "":
		day, month, image = req.Day, req.Month, req.Image
	default:
		return nil, nil
	}
	ch, err := challengeFrom(day, month, image)
	if err != nil {
		return nil, err
	}
	return &ch, nil
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	ch, err := req.challenge()
	if err != nil {
		s.writeRoomError(w, r, req.RoomID, err)
		return
	}
	rm, err := s.rooms.Start(r.Context(), req.RoomID, callerFrom(r), ch)
	if err != nil {
		s.writeRoomError(w, r, req.RoomID, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		"success": true,
		"message": s.msgs.Text("room.started", nil, ""),
		"room":    rm,
	})
}

type scoreRequest struct {
	Score json.RawMessage `json:"score"`
}

func (s *Server) handleSubmitScore(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	var req scoreRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	score, err := room.ParseScore(req.Score)
	if err != nil {
		s.writeRoomError(w, r, roomID, err)
		return
	}
	rm, err := s.rooms.SubmitScore(r.Context(), roomID, callerFrom(r), score)
	if err != nil {
		s.writeRoomError(w, r, roomID, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		"success": true,
		"message": s.msgs.Text("room.score_submitted", nil, ""),
		"room":    rm,
	})
}

func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "roomId")
	res, err := s.rooms.Leave(r.Context(), roomID, callerFrom(r))
	if err != nil {
		s.writeRoomError(w, r, roomID, err)
		return
	}
	var rm *domain.Room
	if !res.Deleted {
		rm = res.Room
	}
	writeJSON(w, http.StatusOK, envelope{
		"success": true,
		"message": s.msgs.Text("room.left", map[string]any{"RoomID": roomID}, ""),
		"room":    rm,
		"deleted": res.Deleted,
	})
}

func challengeFrom(day, month flexInt, image string) (domain.Challenge, error) {
	d, err := day.get("day")
	if err != nil {
		return domain.Challenge{}, err
	}
	var m int
	if month.set {
		if m, err = month.get("month"); err != nil {
			return domain.Challenge{}, err
		}
	}
	return domain.Challenge{Day: d, Month: m, Image: image}, nil
}
