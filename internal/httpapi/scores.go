package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/park285/battlehub/internal/auth"
	"github.com/park285/battlehub/internal/room"
)

type saveScoreRequest struct {
	Day   flexInt         `json:"day"`
	Score json.RawMessage `json:"score"`
}

func (s *Server) handleSaveScore(w http.ResponseWriter, r *http.Request) {
	var req saveScoreRequest
	if err := decodeBody(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	day, err := req.Day.get("day")
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	score, err := room.ParseScore(req.Score)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	id, _ := auth.FromContext(r.Context())
	entry, err := s.scores.Save(r.Context(), id.ID, day, score)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{
		"success": true,
		"message": s.msgs.Text("score.saved", map[string]any{"Day": entry.Day}, "Score saved."),
		"score":   entry,
	})
}

func (s *Server) handleGetScores(w http.ResponseWriter, r *http.Request) {
	id, _ := auth.FromContext(r.Context())
	list, err := s.scores.List(r.Context(), id.ID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{"success": true, "scores": list})
}
