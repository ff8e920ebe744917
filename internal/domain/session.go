package domain

import (
	"encoding/json"
	"time"
)

// CursorPosition is an advisory caret location in the shared editor.
type CursorPosition struct {
	Line   int `json:"line"`
	Column int `json:"column"`
}

// CodeState is the shared code buffer of a room.
type CodeState struct {
	Code     string   `json:"code"`
	Language Language `json:"language"`
}

// CodePatch is a partial update to CodeState. Nil fields are left unchanged.
type CodePatch struct {
	Code           *string         `json:"code,omitempty"`
	Language       *Language       `json:"language,omitempty"`
	CursorPosition *CursorPosition `json:"cursorPosition,omitempty"`
}

// MessageType distinguishes participant chat from server notices.
type MessageType string

const (
	MessageTypeMessage MessageType = "message"
	MessageTypeSystem  MessageType = "system"
)

// ChatMessage is one entry of a room's chat transcript.
type ChatMessage struct {
	ID        string      `json:"id"`
	UserID    string      `json:"userId"`
	UserName  string      `json:"userName"`
	Message   string      `json:"message"`
	Timestamp time.Time   `json:"timestamp"`
	Type      MessageType `json:"type"`
}

// TimerState is the countdown shared by a room. Durations are in seconds.
type TimerState struct {
	Duration  int        `json:"duration"`
	Remaining int        `json:"remaining"`
	IsRunning bool       `json:"isRunning"`
	StartedAt *time.Time `json:"startedAt,omitempty"`
}

// Elapsed returns the seconds consumed so far.
func (t TimerState) Elapsed() int {
	return t.Duration - t.Remaining
}

// InterviewSession is the record persisted when a room's session ends.
type InterviewSession struct {
	ID              string          `json:"id" bson:"_id"`
	RoomID          string          `json:"roomId" bson:"roomId"`
	UserID          string          `json:"userId" bson:"userId"`
	Code            string          `json:"code" bson:"code"`
	Language        Language        `json:"language" bson:"language"`
	Question        json.RawMessage `json:"question,omitempty" bson:"question,omitempty"`
	Feedback        string          `json:"feedback,omitempty" bson:"feedback,omitempty"`
	DurationSeconds int             `json:"duration" bson:"duration"`
	CompletedAt     time.Time       `json:"completedAt" bson:"completedAt"`
}
