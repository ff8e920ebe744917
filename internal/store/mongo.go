package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/pairroom/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore implements Repository using MongoDB.
type MongoStore struct {
	client   *mongo.Client
	users    *mongo.Collection
	rooms    *mongo.Collection
	sessions *mongo.Collection
}

// NewMongo connects to uri and prepares the collections and indexes of database.
func NewMongo(ctx context.Context, uri, database string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(database)
	store := &MongoStore{
		client:   client,
		users:    db.Collection("users"),
		rooms:    db.Collection("rooms"),
		sessions: db.Collection("interview_sessions"),
	}
	if err := store.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ensure indexes: %w", err)
	}
	return store, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	if _, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("users.email: %w", err)
	}
	if _, err := s.rooms.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "roomCode", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "isActive", Value: 1}, {Key: "expiresAt", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("rooms: %w", err)
	}
	if _, err := s.sessions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "roomId", Value: 1}, {Key: "completedAt", Value: -1}},
	}); err != nil {
		return fmt.Errorf("interview_sessions.roomId: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *MongoStore) findUser(ctx context.Context, filter bson.M) (*domain.User, error) {
	var user domain.User
	err := s.users.FindOne(ctx, filter).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &user, nil
}

// FindUser retrieves a user by ID.
func (s *MongoStore) FindUser(ctx context.Context, userID string) (*domain.User, error) {
	return s.findUser(ctx, bson.M{"_id": userID})
}

// FindUserByEmail retrieves a user by email address.
func (s *MongoStore) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.findUser(ctx, bson.M{"email": email})
}

// CreateUser inserts a user.
func (s *MongoStore) CreateUser(ctx context.Context, user *domain.User) error {
	if _, err := s.users.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("create user %s: %w", user.Email, ErrConflict)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// FindRoom retrieves a room by its join code.
func (s *MongoStore) FindRoom(ctx context.Context, roomCode string) (*domain.Room, error) {
	var room domain.Room
	err := s.rooms.FindOne(ctx, bson.M{"roomCode": roomCode}).Decode(&room)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find room: %w", err)
	}
	return &room, nil
}

// CreateRoom inserts a room.
func (s *MongoStore) CreateRoom(ctx context.Context, room *domain.Room) error {
	doc := *room
	doc.MaxUsers = room.Capacity()
	if _, err := s.rooms.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("create room %s: %w", room.RoomCode, ErrConflict)
		}
		return fmt.Errorf("create room: %w", err)
	}
	return nil
}

// UpdateRoomActive sets the active flag of a room.
func (s *MongoStore) UpdateRoomActive(ctx context.Context, roomID string, active bool) error {
	res, err := s.rooms.UpdateOne(ctx,
		bson.M{"_id": roomID},
		bson.M{"$set": bson.M{"isActive": active}},
	)
	if err != nil {
		return fmt.Errorf("update room active: %w", err)
	}
	if res.MatchedCount == 0 {
		slog.Warn("UpdateRoomActive matched 0 documents", "room_id", roomID)
		return fmt.Errorf("room %s: %w", roomID, ErrNotFound)
	}
	return nil
}

// FindExpiredActiveRooms returns active rooms whose expiry is before now.
func (s *MongoStore) FindExpiredActiveRooms(ctx context.Context, now time.Time) ([]*domain.Room, error) {
	cur, err := s.rooms.Find(ctx, bson.M{
		"isActive":  true,
		"expiresAt": bson.M{"$lt": now},
	})
	if err != nil {
		return nil, fmt.Errorf("query expired rooms: %w", err)
	}
	var rooms []*domain.Room
	if err := cur.All(ctx, &rooms); err != nil {
		return nil, fmt.Errorf("decode expired rooms: %w", err)
	}
	return rooms, nil
}

// sessionDoc stores the question as an embedded document instead of raw JSON
// bytes so it stays queryable.
type sessionDoc struct {
	ID              string           `bson:"_id"`
	RoomID          string           `bson:"roomId"`
	UserID          string           `bson:"userId"`
	Code            string           `bson:"code"`
	Language        domain.Language  `bson:"language"`
	Question        *domain.Question `bson:"question,omitempty"`
	Feedback        string           `bson:"feedback,omitempty"`
	DurationSeconds int              `bson:"duration"`
	CompletedAt     time.Time        `bson:"completedAt"`
}

// CreateInterviewSession persists a session-end snapshot.
func (s *MongoStore) CreateInterviewSession(ctx context.Context, session *domain.InterviewSession) error {
	doc := sessionDoc{
		ID:              session.ID,
		RoomID:          session.RoomID,
		UserID:          session.UserID,
		Code:            session.Code,
		Language:        session.Language,
		Feedback:        session.Feedback,
		DurationSeconds: session.DurationSeconds,
		CompletedAt:     session.CompletedAt,
	}
	if len(session.Question) > 0 {
		var q domain.Question
		if err := json.Unmarshal(session.Question, &q); err != nil {
			return fmt.Errorf("decode session question: %w", err)
		}
		doc.Question = &q
	}

	if _, err := s.sessions.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("create interview session: %w", err)
	}
	return nil
}

// ListInterviewSessions returns the snapshots recorded for a room, newest first.
func (s *MongoStore) ListInterviewSessions(ctx context.Context, roomID string) ([]*domain.InterviewSession, error) {
	cur, err := s.sessions.Find(ctx,
		bson.M{"roomId": roomID},
		options.Find().SetSort(bson.D{{Key: "completedAt", Value: -1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("query interview sessions: %w", err)
	}
	var docs []sessionDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode interview sessions: %w", err)
	}

	sessions := make([]*domain.InterviewSession, 0, len(docs))
	for _, doc := range docs {
		session := &domain.InterviewSession{
			ID:              doc.ID,
			RoomID:          doc.RoomID,
			UserID:          doc.UserID,
			Code:            doc.Code,
			Language:        doc.Language,
			Feedback:        doc.Feedback,
			DurationSeconds: doc.DurationSeconds,
			CompletedAt:     doc.CompletedAt,
		}
		if doc.Question != nil {
			raw, err := json.Marshal(doc.Question)
			if err != nil {
				return nil, fmt.Errorf("encode session question: %w", err)
			}
			session.Question = raw
		}
		sessions = append(sessions, session)
	}
	return sessions, nil
}

// Close disconnects the client.
func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnect mongo: %w", err)
	}
	return nil
}
