package router

import (
	"errors"

	"github.com/ashureev/pairroom/internal/room"
)

// Client-facing error messages.
const (
	msgRoomNotFound    = "Room not found or inactive"
	msgRoomExpired     = "Room has expired"
	msgUserNotFound    = "User not found"
	msgRoomFull        = "Room is full"
	msgJoinFailed      = "Failed to join room"
	msgEndFailed       = "Failed to end session"
	msgInvalidPayload  = "Invalid payload"
	msgUnknownEvent    = "Unknown event"
	msgInterviewerOnly = "Only the interviewer can do that"
	msgUnsupportedLang = "Unsupported language"
	msgInvalidCursor   = "Invalid cursor position"
	msgInvalidDuration = "Invalid timer duration"
	msgTimerFinished   = "Timer has finished"
	msgEmptyMessage    = "Message cannot be empty"
	msgMessageTooLong  = "Message is too long"
	msgIgnored         = ""
)

// clientMessage maps a session error to the message sent back to the sender.
// An empty result means the error is swallowed: the connection is not (or no
// longer) part of a live session.
func clientMessage(err error) string {
	switch {
	case errors.Is(err, room.ErrNotParticipant), errors.Is(err, room.ErrSessionClosed):
		return msgIgnored
	case errors.Is(err, room.ErrRoomFull):
		return msgRoomFull
	case errors.Is(err, room.ErrUnsupportedLanguage):
		return msgUnsupportedLang
	case errors.Is(err, room.ErrInvalidCursor):
		return msgInvalidCursor
	case errors.Is(err, room.ErrInvalidDuration):
		return msgInvalidDuration
	case errors.Is(err, room.ErrTimerFinished):
		return msgTimerFinished
	case errors.Is(err, room.ErrEmptyMessage):
		return msgEmptyMessage
	case errors.Is(err, room.ErrMessageTooLong):
		return msgMessageTooLong
	default:
		return msgInvalidPayload
	}
}
