// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/ashureev/pairroom/internal/domain"
)

// ErrConflict is returned when a unique key (room code, user email) is taken.
var ErrConflict = errors.New("store: unique constraint violated")

// ErrNotFound is returned by updates that match no record. Lookups return
// (nil, nil) instead.
var ErrNotFound = errors.New("store: record not found")

// Repository defines the interface for persisting users, rooms and completed
// interview sessions.
type Repository interface {
	// FindRoom retrieves a room by its join code.
	FindRoom(ctx context.Context, roomCode string) (*domain.Room, error)

	// FindUser retrieves a user by ID.
	FindUser(ctx context.Context, userID string) (*domain.User, error)

	// FindUserByEmail retrieves a user by email address.
	FindUserByEmail(ctx context.Context, email string) (*domain.User, error)

	// CreateUser inserts a user. Returns ErrConflict if the email is taken.
	CreateUser(ctx context.Context, user *domain.User) error

	// CreateRoom inserts a room. Returns ErrConflict if the code is taken.
	CreateRoom(ctx context.Context, room *domain.Room) error

	// UpdateRoomActive sets the active flag of the room with the given ID.
	UpdateRoomActive(ctx context.Context, roomID string, active bool) error

	// FindExpiredActiveRooms returns active rooms whose expiry is before now.
	FindExpiredActiveRooms(ctx context.Context, now time.Time) ([]*domain.Room, error)

	// CreateInterviewSession persists a session-end snapshot.
	CreateInterviewSession(ctx context.Context, session *domain.InterviewSession) error

	// ListInterviewSessions returns the snapshots recorded for a room, newest first.
	ListInterviewSessions(ctx context.Context, roomID string) ([]*domain.InterviewSession, error)

	// Ping verifies database connectivity and returns an error if the database is unreachable.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
