// Package room holds the in-memory coordination state of live interview rooms:
// per-room sessions, their countdown timers, and the registry that owns them.
package room

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/ashureev/pairroom/internal/domain"
	"github.com/google/uuid"
)

const (
	DefaultChatMaxLength  = 500
	DefaultChatMaxHistory = 1000
)

// Limits bounds the per-session chat transcript.
type Limits struct {
	ChatMaxLength  int
	ChatMaxHistory int
}

func (l Limits) withDefaults() Limits {
	if l.ChatMaxLength <= 0 {
		l.ChatMaxLength = DefaultChatMaxLength
	}
	if l.ChatMaxHistory <= 0 {
		l.ChatMaxHistory = DefaultChatMaxHistory
	}
	return l
}

// Snapshot is the full state of a session, sent to a joining connection.
type Snapshot struct {
	RoomCode        string               `json:"roomCode"`
	Participants    []domain.Participant `json:"participants"`
	CodeState       domain.CodeState     `json:"codeState"`
	CurrentQuestion *domain.Question     `json:"currentQuestion"`
	ChatMessages    []domain.ChatMessage `json:"chatMessages"`
	TimerState      domain.TimerState    `json:"timerState"`
}

// LeaveResult describes a completed Leave.
type LeaveResult struct {
	Participant  domain.Participant
	Participants []domain.Participant
	Emptied      bool
}

// CodeChange is the outcome of ApplyCodeChange.
type CodeChange struct {
	By        domain.Participant
	CodeState domain.CodeState
	Cursor    *domain.CursorPosition
}

// QuestionChange is the outcome of SelectQuestion.
type QuestionChange struct {
	By        domain.Participant
	Question  domain.Question
	CodeState domain.CodeState
}

// Session is the authoritative live state of one room. All mutation happens
// under mu; the optional emit callbacks run inside the same critical section so
// broadcasts leave in the order mutations were applied.
type Session struct {
	roomCode  string
	limits    Limits
	timer     *Timer
	release   func(*Session)
	now       func() time.Time
	createdAt time.Time

	mu           sync.Mutex
	closed       bool
	participants []domain.Participant
	codeState    domain.CodeState
	question     *domain.Question
	chat         *transcript
}

func newSession(roomCode string, limits Limits, timer *Timer, release func(*Session), now func() time.Time) *Session {
	limits = limits.withDefaults()
	return &Session{
		roomCode:  roomCode,
		limits:    limits,
		timer:     timer,
		release:   release,
		now:       now,
		createdAt: now(),
		codeState: domain.CodeState{Language: domain.DefaultLanguage},
		chat:      newTranscript(limits.ChatMaxHistory),
	}
}

// RoomCode returns the code of the room this session coordinates.
func (s *Session) RoomCode() string {
	return s.roomCode
}

// CreatedAt returns when the session was created.
func (s *Session) CreatedAt() time.Time {
	return s.createdAt
}

// Closed reports whether the session has been torn down.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Snapshot returns a deep-enough copy of the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		RoomCode:     s.roomCode,
		Participants: s.participantsLocked(),
		CodeState:    s.codeState,
		ChatMessages: s.chat.Messages(),
		TimerState:   s.timer.State(),
	}
	if s.question != nil {
		q := *s.question
		snap.CurrentQuestion = &q
	}
	return snap
}

func (s *Session) participantsLocked() []domain.Participant {
	return append([]domain.Participant(nil), s.participants...)
}

// Participants returns the participants in join order.
func (s *Session) Participants() []domain.Participant {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.participantsLocked()
}

// ParticipantCount returns the number of joined connections.
func (s *Session) ParticipantCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.participants)
}

// Participant looks up the participant bound to connID.
func (s *Session) Participant(connID string) (domain.Participant, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := s.indexLocked(connID)
	if i < 0 {
		return domain.Participant{}, false
	}
	return s.participants[i], true
}

// HasParticipant reports whether connID is joined to this session.
func (s *Session) HasParticipant(connID string) bool {
	_, ok := s.Participant(connID)
	return ok
}

func (s *Session) indexLocked(connID string) int {
	for i, p := range s.participants {
		if p.ConnectionID == connID {
			return i
		}
	}
	return -1
}

func (s *Session) distinctUsersLocked() int {
	seen := make(map[string]struct{}, len(s.participants))
	for _, p := range s.participants {
		seen[p.UserID] = struct{}{}
	}
	return len(seen)
}

func (s *Session) hasUserLocked(userID string) bool {
	for _, p := range s.participants {
		if p.UserID == userID {
			return true
		}
	}
	return false
}

// Join adds p to the session and returns the state a late joiner needs.
// Capacity counts distinct users, so a user reconnecting on a new connection is
// never rejected as full. emit runs under the session lock after a successful
// join.
func (s *Session) Join(p domain.Participant, capacity int, emit func(Snapshot)) (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return Snapshot{}, ErrSessionClosed
	}
	if s.indexLocked(p.ConnectionID) >= 0 {
		return s.snapshotLocked(), ErrAlreadyJoined
	}
	if capacity > 0 && !s.hasUserLocked(p.UserID) && s.distinctUsersLocked() >= capacity {
		return Snapshot{}, ErrRoomFull
	}

	if p.JoinedAt.IsZero() {
		p.JoinedAt = s.now()
	}
	s.participants = append(s.participants, p)
	slog.Info("Participant joined room",
		"room_code", s.roomCode,
		"conn_id", p.ConnectionID,
		"user_id", p.UserID,
		"role", p.Role,
		"participants", len(s.participants))

	snap := s.snapshotLocked()
	if emit != nil {
		emit(snap)
	}
	return snap, nil
}

// Leave removes connID. When that empties the session it is torn down inside
// the same critical section and the registry entry is released afterwards.
// emit runs under the session lock before teardown.
func (s *Session) Leave(connID string, emit func(LeaveResult)) (LeaveResult, bool) {
	s.mu.Lock()
	i := s.indexLocked(connID)
	if i < 0 {
		s.mu.Unlock()
		return LeaveResult{}, false
	}

	p := s.participants[i]
	s.participants = append(s.participants[:i], s.participants[i+1:]...)
	res := LeaveResult{
		Participant:  p,
		Participants: s.participantsLocked(),
		Emptied:      len(s.participants) == 0,
	}
	if emit != nil {
		emit(res)
	}
	if res.Emptied {
		s.teardownLocked()
	}
	s.mu.Unlock()

	slog.Info("Participant left room",
		"room_code", s.roomCode,
		"conn_id", connID,
		"user_id", p.UserID,
		"participants", len(res.Participants))

	if res.Emptied {
		slog.Info("Room session cleaned up - no participants", "room_code", s.roomCode)
		if s.release != nil {
			s.release(s)
		}
	}
	return res, true
}

// Close tears the session down: marks it closed, cancels the timer and waits
// for its tick goroutine. Reports false when the session was already closed.
func (s *Session) Close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.teardownLocked()
	return true
}

func (s *Session) teardownLocked() {
	if s.closed {
		return
	}
	s.closed = true
	s.timer.Stop()
	s.participants = nil
}

// memberLocked returns the participant for connID or the error explaining why the
// connection may not mutate this session. Caller must hold mu.
func (s *Session) memberLocked(connID string) (domain.Participant, error) {
	if s.closed {
		return domain.Participant{}, ErrSessionClosed
	}
	i := s.indexLocked(connID)
	if i < 0 {
		return domain.Participant{}, ErrNotParticipant
	}
	return s.participants[i], nil
}

// ApplyCodeChange merges patch into the shared code state, last write wins.
// Switching language replaces the buffer with the current question's starter
// code for that language. The patch cursor is handed back for relay and never
// stored.
func (s *Session) ApplyCodeChange(connID string, patch domain.CodePatch, emit func(CodeChange)) (CodeChange, error) {
	if patch.Language != nil && !patch.Language.Valid() {
		return CodeChange{}, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, *patch.Language)
	}
	if c := patch.CursorPosition; c != nil && (c.Line < 0 || c.Column < 0) {
		return CodeChange{}, ErrInvalidCursor
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.memberLocked(connID)
	if err != nil {
		return CodeChange{}, err
	}

	switch {
	case patch.Language != nil && *patch.Language != s.codeState.Language:
		s.codeState.Language = *patch.Language
		s.codeState.Code = s.question.StarterFor(*patch.Language)
	case patch.Code != nil:
		s.codeState.Code = *patch.Code
	}

	change := CodeChange{By: p, CodeState: s.codeState, Cursor: patch.CursorPosition}
	if emit != nil {
		emit(change)
	}
	return change, nil
}

// SelectQuestion makes q the current question and resets the buffer to its
// starter code for the current language.
func (s *Session) SelectQuestion(connID string, q domain.Question, emit func(QuestionChange)) (QuestionChange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.memberLocked(connID)
	if err != nil {
		return QuestionChange{}, err
	}

	s.question = &q
	s.codeState.Code = q.StarterFor(s.codeState.Language)

	change := QuestionChange{By: p, Question: q, CodeState: s.codeState}
	if emit != nil {
		emit(change)
	}
	return change, nil
}

// CurrentQuestion returns the selected question, if any.
func (s *Session) CurrentQuestion() *domain.Question {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.question == nil {
		return nil
	}
	q := *s.question
	return &q
}

// CodeState returns the shared code buffer.
func (s *Session) CodeState() domain.CodeState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.codeState
}

// AppendChat records a message from connID. Author fields and the timestamp
// come from the server, not the client.
func (s *Session) AppendChat(connID, text string, emit func(domain.ChatMessage)) (domain.ChatMessage, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.ChatMessage{}, ErrEmptyMessage
	}
	if n := utf8.RuneCountInString(text); n > s.limits.ChatMaxLength {
		return domain.ChatMessage{}, fmt.Errorf("%w: %d > %d characters", ErrMessageTooLong, n, s.limits.ChatMaxLength)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p, err := s.memberLocked(connID)
	if err != nil {
		return domain.ChatMessage{}, err
	}

	msg := domain.ChatMessage{
		ID:        uuid.NewString(),
		UserID:    p.UserID,
		UserName:  p.Name,
		Message:   text,
		Timestamp: s.now(),
		Type:      domain.MessageTypeMessage,
	}
	s.chat.Append(msg)

	if emit != nil {
		emit(msg)
	}
	return msg, nil
}

// ChatMessages returns the transcript in receipt order.
func (s *Session) ChatMessages() []domain.ChatMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.chat.Messages()
}

// TimerState returns the session's countdown state.
func (s *Session) TimerState() domain.TimerState {
	return s.timer.State()
}

// StartTimer starts or restarts the countdown, optionally with a new duration.
func (s *Session) StartTimer(connID string, duration *int, emit func(domain.TimerState)) (domain.TimerState, error) {
	return s.timerOp(connID, emit, func() (domain.TimerState, error) {
		return s.timer.Start(duration)
	})
}

// PauseTimer stops the countdown, keeping the remaining time.
func (s *Session) PauseTimer(connID string, emit func(domain.TimerState)) (domain.TimerState, error) {
	return s.timerOp(connID, emit, func() (domain.TimerState, error) {
		return s.timer.Pause(), nil
	})
}

// ResumeTimer continues a paused countdown.
func (s *Session) ResumeTimer(connID string, emit func(domain.TimerState)) (domain.TimerState, error) {
	return s.timerOp(connID, emit, s.timer.Resume)
}

// ResetTimer restores the full duration and stops the countdown.
func (s *Session) ResetTimer(connID string, emit func(domain.TimerState)) (domain.TimerState, error) {
	return s.timerOp(connID, emit, func() (domain.TimerState, error) {
		return s.timer.Reset(), nil
	})
}

func (s *Session) timerOp(connID string, emit func(domain.TimerState), op func() (domain.TimerState, error)) (domain.TimerState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.memberLocked(connID); err != nil {
		return domain.TimerState{}, err
	}
	state, err := op()
	if err != nil {
		return state, err
	}
	if emit != nil {
		emit(state)
	}
	return state, nil
}
