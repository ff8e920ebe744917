package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ashureev/pairroom/internal/domain"
	"github.com/ashureev/pairroom/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		email TEXT NOT NULL UNIQUE,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS rooms (
		id TEXT PRIMARY KEY,
		room_code TEXT NOT NULL UNIQUE,
		title TEXT,
		host_id TEXT NOT NULL REFERENCES users(id),
		is_active INTEGER NOT NULL DEFAULT 1,
		max_users INTEGER NOT NULL DEFAULT 2,
		created_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_rooms_expiry ON rooms(expires_at) WHERE is_active = 1;

	CREATE TABLE IF NOT EXISTS interview_sessions (
		id TEXT PRIMARY KEY,
		room_id TEXT NOT NULL REFERENCES rooms(id),
		user_id TEXT NOT NULL,
		code TEXT NOT NULL,
		language TEXT NOT NULL,
		question_json TEXT,
		feedback TEXT,
		duration INTEGER NOT NULL,
		completed_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_interview_sessions_room ON interview_sessions(room_id, completed_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

const userColumns = `id, name, email, created_at`

func scanUser(row rowScanner) (*domain.User, error) {
	var user domain.User
	var createdAt int64
	if err := row.Scan(&user.ID, &user.Name, &user.Email, &createdAt); err != nil {
		return nil, err
	}
	user.CreatedAt = time.Unix(createdAt, 0)
	return &user, nil
}

// FindUser retrieves a user by ID.
func (s *SQLiteStore) FindUser(ctx context.Context, userID string) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, userID)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}
	return user, nil
}

// FindUserByEmail retrieves a user by email address.
func (s *SQLiteStore) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan user row: %w", err)
	}
	return user, nil
}

// CreateUser inserts a user.
func (s *SQLiteStore) CreateUser(ctx context.Context, user *domain.User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?)`,
		user.ID, user.Name, user.Email, user.CreatedAt.Unix(),
	)
	if shared.IsSQLiteUniqueError(err) {
		return fmt.Errorf("create user %s: %w", user.Email, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

const roomColumns = `id, room_code, title, host_id, is_active, max_users, created_at, expires_at`

func scanRoom(row rowScanner) (*domain.Room, error) {
	var room domain.Room
	var title sql.NullString
	var createdAt, expiresAt int64
	if err := row.Scan(
		&room.ID, &room.RoomCode, &title, &room.HostID,
		&room.IsActive, &room.MaxUsers, &createdAt, &expiresAt,
	); err != nil {
		return nil, err
	}
	room.Title = title.String
	room.CreatedAt = time.Unix(createdAt, 0)
	room.ExpiresAt = time.Unix(expiresAt, 0)
	return &room, nil
}

// FindRoom retrieves a room by its join code.
func (s *SQLiteStore) FindRoom(ctx context.Context, roomCode string) (*domain.Room, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+roomColumns+` FROM rooms WHERE room_code = ?`, roomCode)
	room, err := scanRoom(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan room row: %w", err)
	}
	return room, nil
}

// CreateRoom inserts a room.
func (s *SQLiteStore) CreateRoom(ctx context.Context, room *domain.Room) error {
	var title interface{}
	if room.Title != "" {
		title = room.Title
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rooms (`+roomColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		room.ID, room.RoomCode, title, room.HostID,
		room.IsActive, room.Capacity(), room.CreatedAt.Unix(), room.ExpiresAt.Unix(),
	)
	if shared.IsSQLiteUniqueError(err) {
		return fmt.Errorf("create room %s: %w", room.RoomCode, ErrConflict)
	}
	if err != nil {
		return fmt.Errorf("create room: %w", err)
	}
	return nil
}

// UpdateRoomActive sets the active flag of a room.
func (s *SQLiteStore) UpdateRoomActive(ctx context.Context, roomID string, active bool) error {
	result, err := s.db.ExecContext(ctx, `UPDATE rooms SET is_active = ? WHERE id = ?`, active, roomID)
	if err != nil {
		return fmt.Errorf("update room active: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("UpdateRoomActive affected 0 rows", "room_id", roomID)
		return fmt.Errorf("room %s: %w", roomID, ErrNotFound)
	}
	return nil
}

// FindExpiredActiveRooms returns active rooms whose expiry is before now.
func (s *SQLiteStore) FindExpiredActiveRooms(ctx context.Context, now time.Time) ([]*domain.Room, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+roomColumns+` FROM rooms WHERE is_active = 1 AND expires_at < ?`,
		now.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("query expired rooms: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close expired rooms rows", "error", closeErr)
		}
	}()

	var rooms []*domain.Room
	for rows.Next() {
		room, err := scanRoom(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expired room row: %w", err)
		}
		rooms = append(rooms, room)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired rooms: %w", err)
	}
	return rooms, nil
}

// CreateInterviewSession persists a session-end snapshot.
func (s *SQLiteStore) CreateInterviewSession(ctx context.Context, session *domain.InterviewSession) error {
	var question, feedback interface{}
	if len(session.Question) > 0 {
		question = string(session.Question)
	}
	if session.Feedback != "" {
		feedback = session.Feedback
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO interview_sessions (
			id, room_id, user_id, code, language, question_json, feedback, duration, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		session.ID, session.RoomID, session.UserID, session.Code, string(session.Language),
		question, feedback, session.DurationSeconds, session.CompletedAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("create interview session: %w", err)
	}
	return nil
}

// ListInterviewSessions returns the snapshots recorded for a room, newest first.
func (s *SQLiteStore) ListInterviewSessions(ctx context.Context, roomID string) ([]*domain.InterviewSession, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, room_id, user_id, code, language, question_json, feedback, duration, completed_at
		FROM interview_sessions WHERE room_id = ? ORDER BY completed_at DESC, id`,
		roomID,
	)
	if err != nil {
		return nil, fmt.Errorf("query interview sessions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close interview sessions rows", "error", closeErr)
		}
	}()

	var sessions []*domain.InterviewSession
	for rows.Next() {
		var session domain.InterviewSession
		var language string
		var question, feedback sql.NullString
		var completedAt int64
		if err := rows.Scan(
			&session.ID, &session.RoomID, &session.UserID, &session.Code, &language,
			&question, &feedback, &session.DurationSeconds, &completedAt,
		); err != nil {
			return nil, fmt.Errorf("scan interview session row: %w", err)
		}
		session.Language = domain.Language(language)
		if question.Valid {
			session.Question = []byte(question.String)
		}
		session.Feedback = feedback.String
		session.CompletedAt = time.Unix(completedAt, 0)
		sessions = append(sessions, &session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate interview sessions: %w", err)
	}
	return sessions, nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}
