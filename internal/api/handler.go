// Package api provides HTTP handlers for the pairroom REST surface.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ashureev/pairroom/internal/domain"
	"github.com/ashureev/pairroom/internal/identity"
	"github.com/ashureev/pairroom/internal/questions"
	"github.com/ashureev/pairroom/internal/room"
	"github.com/ashureev/pairroom/internal/store"
	"github.com/go-chi/chi/v5"
)

const maxBodyBytes = 64 << 10

// Options tunes room creation.
type Options struct {
	RoomTTL         time.Duration
	DefaultCapacity int
	MaxCapacity     int
	Now             func() time.Time
}

// Handler provides common handler utilities.
type Handler struct {
	repo      store.Repository
	registry  *room.Registry
	questions *questions.Catalog
	opts      Options
	newCode   func() (string, error)
}

// NewHandler creates a new Handler with common dependencies.
func NewHandler(repo store.Repository, registry *room.Registry, catalog *questions.Catalog, opts Options) *Handler {
	if opts.RoomTTL <= 0 {
		opts.RoomTTL = DefaultRoomTTL
	}
	if opts.DefaultCapacity <= 0 {
		opts.DefaultCapacity = domain.DefaultMaxUsers
	}
	if opts.MaxCapacity < opts.DefaultCapacity {
		opts.MaxCapacity = max(opts.DefaultCapacity, maxRoomCapacity)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Handler{
		repo:      repo,
		registry:  registry,
		questions: catalog,
		opts:      opts,
		newCode:   GenerateRoomCode,
	}
}

// RegisterRoutes registers all /api routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Post("/users", h.CreateUser)
		r.Get("/questions", h.ListQuestions)
		r.Get("/questions/random", h.RandomQuestion)

		r.Route("/rooms", func(r chi.Router) {
			r.With(identity.Require).Post("/", h.CreateRoom)
			r.Get("/{code}", h.GetRoom)
			r.With(identity.Require).Post("/{code}/join", h.JoinRoom)
			r.Get("/{code}/sessions", h.ListSessions)
		})
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// decodeBody reads an optional JSON body into v. An empty body leaves v untouched.
func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}
