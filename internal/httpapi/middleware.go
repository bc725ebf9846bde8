package httpapi

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/park285/battlehub/internal/auth"
	"github.com/park285/battlehub/internal/obslog"
	"github.com/park285/battlehub/internal/room"
	"go.uber.org/zap"
)

const requestIDHeader = "X-Request-Id"

type requestIDKey struct{}

// requestID reuses an inbound X-Request-Id or mints a new one.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" || len(id) > 64 {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
	})
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		fields := []zap.Field{
			zap.String("request_id", requestIDFrom(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("elapsed", time.Since(start)),
		}
		if id, ok := auth.FromContext(r.Context()); ok {
			fields = append(fields, zap.String("user_id", id.ID))
		}
		if status >= 500 {
			obslog.L().Warn("http_request", fields...)
			return
		}
		obslog.L().Info("http_request", fields...)
	})
}

// requireAuth resolves the caller and rejects the request with 401 otherwise.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.auth == nil {
			s.writeError(w, r, room.ErrUnauthorized)
			return
		}
		id, err := s.auth.Resolve(r)
		if err != nil || strings.TrimSpace(id.ID) == "" {
			obslog.L().Debug("auth_reject", zap.String("request_id", requestIDFrom(r.Context())), zap.Error(err))
			s.writeError(w, r, room.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
	})
}

func callerFrom(r *http.Request) room.Caller {
	id, _ := auth.FromContext(r.Context())
	return room.Caller{ID: id.ID, Username: id.Username}
}
