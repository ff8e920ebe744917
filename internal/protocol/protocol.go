// Package protocol defines the JSON frames exchanged with room clients.
package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/ashureev/pairroom/internal/domain"
)

// Inbound event names.
const (
	EventJoinRoom         = "join-room"
	EventLeaveRoom        = "leave-room"
	EventCodeChange       = "code-change"
	EventCursorChange     = "cursor-change"
	EventQuestionSelected = "question-selected"
	EventChatMessage      = "chat-message"
	EventTimerStart       = "timer-start"
	EventTimerPause       = "timer-pause"
	EventTimerResume      = "timer-resume"
	EventTimerReset       = "timer-reset"
	EventSessionEnd       = "session-end"
	EventPing             = "ping"
)

// Outbound event names. Some inbound names are echoed back unchanged.
const (
	EventRoomState     = "room-state"
	EventUserJoined    = "user-joined"
	EventUserLeft      = "user-left"
	EventError         = "error"
	EventTimerUpdate   = "timer-update"
	EventTimerFinished = "timer-finished"
	EventSessionEnded  = "session-ended"
	EventRoomExpired   = "room-expired"
	EventPong          = "pong"
)

// Envelope is a single frame on the wire.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Encode marshals payload into an envelope frame.
func Encode(event string, payload interface{}) ([]byte, error) {
	env := Envelope{Type: event}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encode %s payload: %w", event, err)
		}
		env.Payload = raw
	}
	return json.Marshal(env)
}

// Decode parses a frame. The payload is left raw for the router.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	if env.Type == "" {
		return Envelope{}, fmt.Errorf("decode envelope: missing type")
	}
	return env, nil
}

// DecodePayload unmarshals the envelope payload into v.
func (e Envelope) DecodePayload(v interface{}) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("%s: missing payload", e.Type)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("%s: %w", e.Type, err)
	}
	return nil
}

// JoinRoom is the join-room payload.
type JoinRoom struct {
	RoomCode string `json:"roomCode"`
	UserID   string `json:"userId"`
}

// LeaveRoom is the leave-room payload.
type LeaveRoom struct {
	RoomCode string `json:"roomCode"`
}

// CodeChange is the inbound code-change payload.
type CodeChange struct {
	RoomCode  string           `json:"roomCode"`
	CodeState domain.CodePatch `json:"codeState"`
}

// CursorChange is the cursor-change payload in both directions.
type CursorChange struct {
	RoomCode string                `json:"roomCode,omitempty"`
	UserID   string                `json:"userId"`
	Position domain.CursorPosition `json:"position"`
}

// SelectQuestion is the inbound question-selected payload.
type SelectQuestion struct {
	RoomCode string          `json:"roomCode"`
	Question domain.Question `json:"question"`
}

// ChatText carries the text of an inbound chat message. Clients may send the
// message either as a bare string or as an object with a message field.
type ChatText string

// UnmarshalJSON accepts "text" or {"message": "text"}.
func (c *ChatText) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*c = ChatText(s)
		return nil
	}
	var obj struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return fmt.Errorf("chat message: %w", err)
	}
	*c = ChatText(obj.Message)
	return nil
}

// SendChat is the inbound chat-message payload.
type SendChat struct {
	RoomCode string   `json:"roomCode"`
	Message  ChatText `json:"message"`
}

// TimerStart is the timer-start payload. Duration is in seconds.
type TimerStart struct {
	RoomCode string `json:"roomCode"`
	Duration *int   `json:"duration,omitempty"`
}

// SessionEnd is the session-end payload.
type SessionEnd struct {
	RoomCode string `json:"roomCode"`
	Feedback string `json:"feedback,omitempty"`
}

// RoomState is sent to a joining connection only.
type RoomState struct {
	Room            *domain.Room         `json:"room"`
	ConnectionID    string               `json:"connectionId"`
	Participants    []domain.Participant `json:"participants"`
	CodeState       domain.CodeState     `json:"codeState"`
	CurrentQuestion *domain.Question     `json:"currentQuestion"`
	ChatMessages    []domain.ChatMessage `json:"chatMessages"`
	TimerState      domain.TimerState    `json:"timerState"`
}

// UserJoined announces a new participant.
type UserJoined struct {
	User         domain.Participant   `json:"user"`
	Participants []domain.Participant `json:"participants"`
}

// UserLeft announces a departed participant.
type UserLeft struct {
	UserID       string               `json:"userId"`
	Participants []domain.Participant `json:"participants"`
}

// QuestionSelected carries the new question and the reset buffer.
type QuestionSelected struct {
	Question  domain.Question  `json:"question"`
	CodeState domain.CodeState `json:"codeState"`
}

// SessionEnded is the final snapshot broadcast before teardown.
type SessionEnded struct {
	Feedback     string          `json:"feedback,omitempty"`
	CodeSnapshot string          `json:"codeSnapshot"`
	Language     domain.Language `json:"language"`
	Duration     int             `json:"duration"`
}

// RoomExpired tells a room it has been closed by the expiry sweep.
type RoomExpired struct {
	RoomCode string `json:"roomCode"`
}

// Error is sent to the originating connection only.
type Error struct {
	Message string `json:"message"`
}
