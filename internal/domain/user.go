// Package domain contains core domain types for the pairroom server.
package domain

import (
	"time"
)

// User is a registered person who can host or join interview rooms.
type User struct {
	ID        string    `json:"id" bson:"_id"`
	Name      string    `json:"name" bson:"name"`
	Email     string    `json:"email" bson:"email"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

// DisplayName returns the name shown to other participants.
func (u *User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return "Anonymous"
}
