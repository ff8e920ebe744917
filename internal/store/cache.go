package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/pairroom/internal/domain"
	"github.com/redis/go-redis/v9"
)

// DefaultCacheTTL bounds how long room and user metadata stay cached.
const DefaultCacheTTL = 10 * time.Minute

// CachedRepository fronts a Repository with a Redis read-through cache for
// room and user lookups, which every join performs. Cache errors are logged
// and never fail the call.
type CachedRepository struct {
	Repository
	client *redis.Client
	ttl    time.Duration
}

// NewCachedRepository wraps repo with a Redis cache.
func NewCachedRepository(repo Repository, client *redis.Client, ttl time.Duration) *CachedRepository {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedRepository{Repository: repo, client: client, ttl: ttl}
}

func roomKey(code string) string     { return fmt.Sprintf("room:%s", code) }
func roomIDKey(roomID string) string { return fmt.Sprintf("room:id:%s", roomID) }
func userKey(userID string) string   { return fmt.Sprintf("user:%s", userID) }

// getJSON loads key into v. It reports false on a miss or a cache error.
func (c *CachedRepository) getJSON(ctx context.Context, key string, v interface{}) bool {
	data, err := c.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false
	}
	if err != nil {
		slog.Warn("Cache read failed", "key", key, "error", err)
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		slog.Warn("Cache entry corrupt", "key", key, "error", err)
		return false
	}
	return true
}

func (c *CachedRepository) setJSON(ctx context.Context, key string, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		slog.Warn("Cache write failed", "key", key, "error", err)
	}
}

// FindRoom serves the room from cache, falling back to the repository.
func (c *CachedRepository) FindRoom(ctx context.Context, roomCode string) (*domain.Room, error) {
	var cached domain.Room
	if c.getJSON(ctx, roomKey(roomCode), &cached) {
		return &cached, nil
	}

	room, err := c.Repository.FindRoom(ctx, roomCode)
	if err != nil || room == nil {
		return room, err
	}
	c.cacheRoom(ctx, room)
	return room, nil
}

func (c *CachedRepository) cacheRoom(ctx context.Context, room *domain.Room) {
	c.setJSON(ctx, roomKey(room.RoomCode), room)
	if err := c.client.Set(ctx, roomIDKey(room.ID), room.RoomCode, c.ttl).Err(); err != nil {
		slog.Warn("Cache write failed", "key", roomIDKey(room.ID), "error", err)
	}
}

// CreateRoom inserts the room and primes the cache.
func (c *CachedRepository) CreateRoom(ctx context.Context, room *domain.Room) error {
	if err := c.Repository.CreateRoom(ctx, room); err != nil {
		return err
	}
	c.cacheRoom(ctx, room)
	return nil
}

// UpdateRoomActive updates the repository and evicts the cached room.
func (c *CachedRepository) UpdateRoomActive(ctx context.Context, roomID string, active bool) error {
	if err := c.Repository.UpdateRoomActive(ctx, roomID, active); err != nil {
		return err
	}
	c.evictRoom(ctx, roomID)
	return nil
}

func (c *CachedRepository) evictRoom(ctx context.Context, roomID string) {
	code, err := c.client.Get(ctx, roomIDKey(roomID)).Result()
	if errors.Is(err, redis.Nil) {
		return
	}
	if err != nil {
		slog.Warn("Cache read failed", "key", roomIDKey(roomID), "error", err)
		return
	}
	if err := c.client.Del(ctx, roomKey(code), roomIDKey(roomID)).Err(); err != nil {
		slog.Warn("Cache eviction failed", "room_code", code, "error", err)
	}
}

// FindUser serves the user from cache, falling back to the repository.
func (c *CachedRepository) FindUser(ctx context.Context, userID string) (*domain.User, error) {
	var cached domain.User
	if c.getJSON(ctx, userKey(userID), &cached) {
		return &cached, nil
	}

	user, err := c.Repository.FindUser(ctx, userID)
	if err != nil || user == nil {
		return user, err
	}
	c.setJSON(ctx, userKey(userID), user)
	return user, nil
}

// Ping checks both the repository and Redis.
func (c *CachedRepository) Ping(ctx context.Context) error {
	if err := c.Repository.Ping(ctx); err != nil {
		return err
	}
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	return nil
}

// Close closes the Redis client and the repository.
func (c *CachedRepository) Close() error {
	redisErr := c.client.Close()
	if err := c.Repository.Close(); err != nil {
		return err
	}
	if redisErr != nil {
		return fmt.Errorf("close redis: %w", redisErr)
	}
	return nil
}
