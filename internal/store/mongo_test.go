package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/ashureev/pairroom/internal/domain"
	"github.com/google/uuid"
)

// Runs against a real server only when MONGO_TEST_URI is set.
func TestMongo_RoundTrip(t *testing.T) {
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	dbName := "pairroom_test_" + uuid.NewString()[:8]
	s, err := NewMongo(ctx, uri, dbName)
	if err != nil {
		t.Fatalf("NewMongo failed: %v", err)
	}
	t.Cleanup(func() {
		_ = s.client.Database(dbName).Drop(context.Background())
		_ = s.Close()
	})

	user := &domain.User{ID: "u1", Name: "Ada", Email: "ada@example.com", CreatedAt: time.Now().UTC().Truncate(time.Millisecond)}
	if err := s.CreateUser(ctx, user); err != nil {
		t.Fatalf("CreateUser failed: %v", err)
	}
	if err := s.CreateUser(ctx, &domain.User{ID: "u2", Email: "ada@example.com"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if got, err := s.FindUser(ctx, "u1"); err != nil || got == nil || got.Name != "Ada" {
		t.Fatalf("FindUser: %+v, %v", got, err)
	}

	now := time.Now().UTC()
	expired := testRoom("OLD333", now.Add(-time.Hour))
	if err := s.CreateRoom(ctx, expired); err != nil {
		t.Fatalf("CreateRoom failed: %v", err)
	}
	rooms, err := s.FindExpiredActiveRooms(ctx, now)
	if err != nil || len(rooms) != 1 {
		t.Fatalf("FindExpiredActiveRooms: %+v, %v", rooms, err)
	}
	if err := s.UpdateRoomActive(ctx, expired.ID, false); err != nil {
		t.Fatalf("UpdateRoomActive failed: %v", err)
	}
	if got, _ := s.FindRoom(ctx, "OLD333"); got == nil || got.IsActive {
		t.Fatalf("expected inactive room, got %+v", got)
	}

	session := &domain.InterviewSession{
		ID: "s1", RoomID: expired.ID, UserID: "u1", Code: "x",
		Language: domain.LanguageJava, Question: []byte(`{"id":"q1","title":"T"}`),
		DurationSeconds: 30, CompletedAt: now,
	}
	if err := s.CreateInterviewSession(ctx, session); err != nil {
		t.Fatalf("CreateInterviewSession failed: %v", err)
	}
	list, err := s.ListInterviewSessions(ctx, expired.ID)
	if err != nil || len(list) != 1 || list[0].DurationSeconds != 30 || len(list[0].Question) == 0 {
		t.Fatalf("ListInterviewSessions: %+v, %v", list, err)
	}
}
