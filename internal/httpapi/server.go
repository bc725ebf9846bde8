// Package httpapi exposes rooms and solo scores as JSON over HTTP.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/park285/battlehub/internal/auth"
	"github.com/park285/battlehub/internal/msgcat"
	"github.com/park285/battlehub/internal/notify"
	"github.com/park285/battlehub/internal/room"
	"github.com/park285/battlehub/internal/scores"
)

type Deps struct {
	Rooms    *room.Manager
	Scores   *scores.Service
	Auth     auth.Resolver
	Hub      *notify.Hub
	Messages *msgcat.Catalog

	CORSOrigins []string
	// Health, when set, is checked by /healthz.
	Health func(r *http.Request) error
}

type Server struct {
	rooms   *room.Manager
	scores  *scores.Service
	auth    auth.Resolver
	hub     *notify.Hub
	msgs    *msgcat.Catalog
	origins []string
	health  func(r *http.Request) error

	pingInterval time.Duration
}

func New(d Deps) *Server {
	msgs := d.Messages
	if msgs == nil {
		msgs = msgcat.MustDefault()
	}
	origins := d.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &Server{
		rooms:        d.Rooms,
		scores:       d.Scores,
		auth:         d.Auth,
		hub:          d.Hub,
		msgs:         msgs,
		origins:      origins,
		health:       d.Health,
		pingInterval: 30 * time.Second,
	}
}

func (s *Server) Handler() http.Handler {
	mux := chi.NewRouter()

	mux.Use(middleware.Recoverer)
	mux.Use(requestID)
	mux.Use(accessLog)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins:   s.origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", requestIDHeader},
		ExposedHeaders:   []string{requestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	mux.Get("/healthz", s.handleHealth)

	mux.Route("/room", func(r chi.Router) {
		r.With(s.requireAuth).Post("/join", s.handleJoin)
		r.Get("/{roomId}", s.handleGetRoom)
		r.Get("/{roomId}/events", s.handleEvents)
		r.With(s.requireAuth).Post("/{roomId}/score", s.handleSubmitScore)
		r.With(s.requireAuth).Post("/{roomId}/leave", s.handleLeave)
	})

	mux.Route("/challenge", func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Post("/select", s.handleSelectChallenge)
		r.Post("/start", s.handleStart)
	})

	mux.Route("/score", func(r chi.Router) {
		r.Use(s.requireAuth)
		r.Post("/save", s.handleSaveScore)
		r.Get("/get", s.handleGetScores)
	})

	mux.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, envelope{"success": false, "message": "not found"})
	})
	mux.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, envelope{"success": false, "message": "method not allowed"})
	})
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r); err != nil {
			s.writeError(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, envelope{"success": true})
}
