package domain

import (
	"time"
)

// DefaultMaxUsers is the participant capacity of a room unless configured otherwise.
const DefaultMaxUsers = 2

// Room is the durable record describing an interview room.
type Room struct {
	ID        string    `json:"id" bson:"_id"`
	RoomCode  string    `json:"roomCode" bson:"roomCode"`
	Title     string    `json:"title,omitempty" bson:"title,omitempty"`
	HostID    string    `json:"hostId" bson:"hostId"`
	IsActive  bool      `json:"isActive" bson:"isActive"`
	MaxUsers  int       `json:"maxUsers" bson:"maxUsers"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	ExpiresAt time.Time `json:"expiresAt" bson:"expiresAt"`
}

// IsExpired reports whether the room's validity window has passed at now.
func (r *Room) IsExpired(now time.Time) bool {
	return !r.ExpiresAt.IsZero() && now.After(r.ExpiresAt)
}

// Capacity returns MaxUsers, falling back to DefaultMaxUsers for unset rooms.
func (r *Room) Capacity() int {
	if r.MaxUsers <= 0 {
		return DefaultMaxUsers
	}
	return r.MaxUsers
}

// Role is a participant's role within a room.
type Role string

const (
	RoleInterviewer Role = "interviewer"
	RoleInterviewee Role = "interviewee"
)

// RoleFor derives the role of userID in room. The host is the interviewer.
func RoleFor(room *Room, userID string) Role {
	if room != nil && room.HostID == userID {
		return RoleInterviewer
	}
	return RoleInterviewee
}

// Participant is one live connection's identity within a room session.
type Participant struct {
	ConnectionID string    `json:"connectionId"`
	UserID       string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	Role         Role      `json:"role"`
	JoinedAt     time.Time `json:"joinedAt"`
}

// IsInterviewer reports whether the participant hosts the room.
func (p Participant) IsInterviewer() bool {
	return p.Role == RoleInterviewer
}
