// Package sweeper deactivates rooms whose validity window has passed and
// tears down their live sessions.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/ashureev/pairroom/internal/domain"
	"github.com/ashureev/pairroom/internal/shared"
)

// DefaultInterval is how often expired rooms are swept.
const DefaultInterval = time.Hour

// Repository is the storage the sweeper needs.
type Repository interface {
	FindExpiredActiveRooms(ctx context.Context, now time.Time) ([]*domain.Room, error)
	UpdateRoomActive(ctx context.Context, roomID string, active bool) error
}

// Expirer tears down the live session of an expired room, if any.
type Expirer interface {
	ExpireRoom(roomCode string) bool
}

// Sweeper periodically expires rooms.
type Sweeper struct {
	repo    Repository
	expirer Expirer
	retry   shared.RetryPolicy
	now     func() time.Time
}

// New creates a Sweeper.
func New(repo Repository, expirer Expirer, retry shared.RetryPolicy) *Sweeper {
	if retry.MaxRetries <= 0 {
		retry = shared.DefaultRetryPolicy
	}
	return &Sweeper{repo: repo, expirer: expirer, retry: retry, now: time.Now}
}

// Start runs a background goroutine that sweeps every interval until ctx ends.
func (s *Sweeper) Start(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		slog.Info("Expiry sweeper started", "interval", interval)

		for {
			select {
			case <-ticker.C:
				s.Sweep(ctx)
			case <-ctx.Done():
				slog.Info("Expiry sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// Sweep runs one pass and returns the number of rooms deactivated. A room that
// fails to update is skipped and picked up again on the next pass.
func (s *Sweeper) Sweep(ctx context.Context) int {
	rooms, err := s.repo.FindExpiredActiveRooms(ctx, s.now())
	if err != nil {
		slog.Error("Expiry sweeper failed to list expired rooms", "error", err)
		return 0
	}
	if len(rooms) == 0 {
		return 0
	}

	slog.Info("Expiry sweeper found expired rooms", "count", len(rooms))

	expired := 0
	for _, room := range rooms {
		if ctx.Err() != nil {
			break
		}

		err := shared.RetryOnConflict(ctx, s.retry, "deactivate room", func(ctx context.Context) error {
			return s.repo.UpdateRoomActive(ctx, room.ID, false)
		})
		if err != nil {
			slog.Error("Expiry sweeper failed to deactivate room",
				"error", err,
				"room_id", room.ID,
				"room_code", room.RoomCode)
			continue
		}

		expired++
		if s.expirer != nil && s.expirer.ExpireRoom(room.RoomCode) {
			slog.Info("Expiry sweeper closed live session", "room_code", room.RoomCode)
		}
	}

	slog.Info("Expiry sweeper cleanup completed", "expired", expired, "found", len(rooms))
	return expired
}
