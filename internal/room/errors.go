package room

import "errors"

var (
	ErrSessionClosed       = errors.New("room session is closed")
	ErrRoomFull            = errors.New("room is full")
	ErrNotParticipant      = errors.New("connection is not a participant of this room")
	ErrAlreadyJoined       = errors.New("connection already joined this room")
	ErrUnsupportedLanguage = errors.New("unsupported language")
	ErrInvalidCursor       = errors.New("cursor position must be non-negative")
	ErrInvalidDuration     = errors.New("timer duration out of range")
	ErrTimerFinished       = errors.New("timer has finished")
	ErrEmptyMessage        = errors.New("chat message is empty")
	ErrMessageTooLong      = errors.New("chat message is too long")
)
