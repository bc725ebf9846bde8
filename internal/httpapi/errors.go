package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/park285/battlehub/internal/obslog"
	"github.com/park285/battlehub/internal/room"
	"go.uber.org/zap"
)

type envelope map[string]any

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		obslog.L().Warn("http_write_error", zap.Error(err))
	}
}

// statusFor maps room error kinds to HTTP statuses. Unknown errors are 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, room.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, room.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, room.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, room.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, room.ErrInvalidState):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) messageFor(err error, roomID string) string {
	switch statusFor(err) {
	case http.StatusBadRequest:
		field := room.InvalidField(err)
		if field == "" {
			field = "request"
		}
		return s.msgs.Text("room.invalid_input", map[string]any{"Field": field}, "Invalid request.")
	case http.StatusUnauthorized:
		return s.msgs.Text("auth.unauthorized", nil, "Authentication required.")
	case http.StatusForbidden:
		return s.msgs.Text("room.forbidden", nil, "Forbidden.")
	case http.StatusNotFound:
		return s.msgs.Text("room.not_found", map[string]any{"RoomID": roomID}, "Room not found.")
	case http.StatusConflict:
		reason := strings.TrimPrefix(err.Error(), room.ErrInvalidState.Error()+": ")
		return s.msgs.Text("room.invalid_state", map[string]any{"Reason": reason}, "Invalid room state.")
	default:
		return s.msgs.Text("server.error", nil, "Internal server error.")
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	s.writeRoomError(w, r, "", err)
}

// writeRoomError logs server-side failures and writes the error envelope.
// Internal details never reach the client.
func (s *Server) writeRoomError(w http.ResponseWriter, r *http.Request, roomID string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		obslog.L().Error("http_internal_error",
			zap.String("request_id", requestIDFrom(r.Context())),
			zap.String("path", r.URL.Path),
			zap.String("room_id", roomID),
			zap.Error(err))
	}
	writeJSON(w, status, envelope{"success": false, "message": s.messageFor(err, roomID)})
}

// decodeBody reads a JSON object into dst. An empty body leaves dst untouched.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 64<<10)
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return room.InvalidInput("body", "malformed json")
	}
	return nil
}
