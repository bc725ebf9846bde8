package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/park285/battlehub/internal/obslog"
	"github.com/park285/battlehub/internal/room"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

const eventsBuffer = 32

// handleEvents streams room events over a WebSocket until the client goes away.
// Clients still poll GET /room/{roomId}; a missed event only delays the update.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	roomID := strings.TrimSpace(chi.URLParam(r, "roomId"))
	if roomID == "" {
		s.writeError(w, r, room.InvalidInput("roomId", "required"))
		return
	}
	if s.hub == nil {
		s.writeRoomError(w, r, roomID, errors.New("events hub not configured"))
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns:  s.originPatterns(),
		CompressionMode: websocket.CompressionNoContextTakeover,
	})
	if err != nil {
		obslog.L().Warn("events_accept_error", zap.String("room_id", roomID), zap.Error(err))
		return
	}
	defer conn.CloseNow()

	sub := s.hub.Subscribe(roomID, eventsBuffer)
	defer sub.Close()
	obslog.L().Debug("events_subscribe", zap.String("room_id", roomID), zap.Int("subscribers", s.hub.Subscribers(roomID)))

	// inbound frames are ignored; CloseRead cancels ctx when the peer closes
	ctx := conn.CloseRead(r.Context())
	ping := time.NewTicker(s.pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.C:
			if !ok {
				return
			}
			wctx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(wctx, conn, ev)
			cancel()
			if err != nil {
				obslog.L().Debug("events_write_error", zap.String("room_id", roomID), zap.Error(err))
				return
			}
		case <-ping.C:
			pctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// originPatterns converts CORS origins to the host patterns websocket.Accept expects.
func (s *Server) originPatterns() []string {
	out := make([]string, 0, len(s.origins))
	for _, o := range s.origins {
		o = strings.TrimSpace(o)
		o = strings.TrimPrefix(o, "https://")
		o = strings.TrimPrefix(o, "http://")
		if o != "" {
			out = append(out, o)
		}
	}
	return out
}
