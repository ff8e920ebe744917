// Package router turns inbound client events into room session mutations and
// fans the results out to room subscribers.
package router

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/ashureev/pairroom/internal/domain"
	"github.com/ashureev/pairroom/internal/protocol"
	"github.com/ashureev/pairroom/internal/room"
	"github.com/ashureev/pairroom/internal/shared"
	"github.com/google/uuid"
)

// Publisher delivers outbound events. Implementations must not block and must
// not call back into the router or a session.
type Publisher interface {
	// Publish sends event to every subscriber of roomCode except excludeConnID.
	Publish(roomCode, event string, payload interface{}, excludeConnID string)
	// Send delivers event to a single connection.
	Send(connID, event string, payload interface{})
	Subscribe(roomCode, connID string)
	Unsubscribe(roomCode, connID string)
	// CloseRoom drops every subscription of roomCode.
	CloseRoom(roomCode string)
}

// Storage is the durable room metadata the router validates against.
type Storage interface {
	FindRoom(ctx context.Context, roomCode string) (*domain.Room, error)
	FindUser(ctx context.Context, userID string) (*domain.User, error)
	CreateInterviewSession(ctx context.Context, session *domain.InterviewSession) error
	UpdateRoomActive(ctx context.Context, roomID string, active bool) error
	FindExpiredActiveRooms(ctx context.Context, now time.Time) ([]*domain.Room, error)
}

// QuestionLookup resolves catalog questions by ID.
type QuestionLookup interface {
	Get(id string) (*domain.Question, bool)
}

// Options configures a Router.
type Options struct {
	// InterviewerControls restricts question selection, timer controls and
	// session end to the room host.
	InterviewerControls bool
	Retry               shared.RetryPolicy
	Questions           QuestionLookup
	Now                 func() time.Time
}

// Router dispatches client events for every live room.
type Router struct {
	registry *room.Registry
	pub      Publisher
	store    Storage
	opts     Options

	// ending prevents concurrent session-end handling for the same room.
	ending sync.Map
}

// New creates a Router. The caller should register it as the registry's timer
// listener.
func New(registry *room.Registry, pub Publisher, store Storage, opts Options) *Router {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Retry.MaxRetries <= 0 {
		opts.Retry = shared.DefaultRetryPolicy
	}
	return &Router{
		registry: registry,
		pub:      pub,
		store:    store,
		opts:     opts,
	}
}

// Dispatch handles one inbound envelope from connID.
func (r *Router) Dispatch(ctx context.Context, connID string, env protocol.Envelope) {
	switch env.Type {
	case protocol.EventJoinRoom:
		r.handleJoin(ctx, connID, env)
	case protocol.EventLeaveRoom:
		r.handleLeave(connID, env)
	case protocol.EventCodeChange:
		r.handleCodeChange(connID, env)
	case protocol.EventCursorChange:
		r.handleCursorChange(connID, env)
	case protocol.EventQuestionSelected:
		r.handleSelectQuestion(connID, env)
	case protocol.EventChatMessage:
		r.handleChat(connID, env)
	case protocol.EventTimerStart, protocol.EventTimerPause, protocol.EventTimerResume, protocol.EventTimerReset:
		r.handleTimer(connID, env)
	case protocol.EventSessionEnd:
		r.handleSessionEnd(ctx, connID, env)
	case protocol.EventPing:
		r.pub.Send(connID, protocol.EventPong, nil)
	default:
		slog.Debug("Unknown event", "conn_id", connID, "type", env.Type)
		r.sendError(connID, msgUnknownEvent)
	}
}

// Disconnect removes connID from every session it joined.
func (r *Router) Disconnect(connID string) {
	for _, s := range r.registry.SessionsFor(connID) {
		r.leave(s, connID)
	}
}

func (r *Router) sendError(connID, message string) {
	r.pub.Send(connID, protocol.EventError, protocol.Error{Message: message})
}

// decode unmarshals the payload into v and reports a payload error to the
// sender on failure.
func (r *Router) decode(connID string, env protocol.Envelope, v interface{}) bool {
	if err := env.DecodePayload(v); err != nil {
		slog.Debug("Invalid payload", "conn_id", connID, "type", env.Type, "error", err)
		r.sendError(connID, msgInvalidPayload)
		return false
	}
	return true
}

// reportSessionError sends the client-facing message for err, if any.
func (r *Router) reportSessionError(connID, roomCode string, err error) {
	msg := clientMessage(err)
	if msg == "" {
		slog.Debug("Ignoring event for room the connection is not in",
			"conn_id", connID, "room_code", roomCode, "error", err)
		return
	}
	r.sendError(connID, msg)
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (r *Router) handleJoin(ctx context.Context, connID string, env protocol.Envelope) {
	var req protocol.JoinRoom
	if !r.decode(connID, env, &req) {
		return
	}
	code := normalizeCode(req.RoomCode)
	if code == "" || req.UserID == "" {
		r.sendError(connID, msgInvalidPayload)
		return
	}

	rec, err := r.store.FindRoom(ctx, code)
	if err != nil {
		slog.Error("Join room lookup failed", "room_code", code, "conn_id", connID, "error", err)
		r.sendError(connID, msgJoinFailed)
		return
	}
	if rec == nil || !rec.IsActive {
		r.sendError(connID, msgRoomNotFound)
		return
	}
	if rec.IsExpired(r.opts.Now()) {
		r.sendError(connID, msgRoomExpired)
		return
	}

	user, err := r.store.FindUser(ctx, req.UserID)
	if err != nil {
		slog.Error("Join user lookup failed", "user_id", req.UserID, "conn_id", connID, "error", err)
		r.sendError(connID, msgJoinFailed)
		return
	}
	if user == nil {
		r.sendError(connID, msgUserNotFound)
		return
	}

	p := domain.Participant{
		ConnectionID: connID,
		UserID:       user.ID,
		Name:         user.DisplayName(),
		Email:        user.Email,
		Role:         domain.RoleFor(rec, user.ID),
	}

	emit := func(snap room.Snapshot) {
		r.pub.Subscribe(code, connID)
		r.pub.Send(connID, protocol.EventRoomState, roomState(rec, connID, snap))
		joined := p
		for _, sp := range snap.Participants {
			if sp.ConnectionID == connID {
				joined = sp
			}
		}
		r.pub.Publish(code, protocol.EventUserJoined, protocol.UserJoined{
			User:         joined,
			Participants: snap.Participants,
		}, "")
	}

	// A session torn down between GetOrCreate and Join is replaced on the next
	// GetOrCreate, so the retry lands in a fresh session.
	const maxJoinAttempts = 3
	for attempt := 0; attempt < maxJoinAttempts; attempt++ {
		s, _ := r.registry.GetOrCreate(code)
		snap, err := s.Join(p, rec.Capacity(), emit)
		switch {
		case err == nil:
			return
		case errors.Is(err, room.ErrSessionClosed):
			continue
		case errors.Is(err, room.ErrAlreadyJoined):
			r.pub.Send(connID, protocol.EventRoomState, roomState(rec, connID, snap))
			return
		default:
			r.reportSessionError(connID, code, err)
			return
		}
	}

	slog.Error("Join kept racing session teardown", "room_code", code, "conn_id", connID)
	r.sendError(connID, msgJoinFailed)
}

func roomState(rec *domain.Room, connID string, snap room.Snapshot) protocol.RoomState {
	return protocol.RoomState{
		Room:            rec,
		ConnectionID:    connID,
		Participants:    snap.Participants,
		CodeState:       snap.CodeState,
		CurrentQuestion: snap.CurrentQuestion,
		ChatMessages:    snap.ChatMessages,
		TimerState:      snap.TimerState,
	}
}

func (r *Router) handleLeave(connID string, env protocol.Envelope) {
	var req protocol.LeaveRoom
	if !r.decode(connID, env, &req) {
		return
	}
	code := normalizeCode(req.RoomCode)
	s := r.registry.Get(code)
	if s == nil {
		r.pub.Unsubscribe(code, connID)
		return
	}
	r.leave(s, connID)
}

func (r *Router) leave(s *room.Session, connID string) {
	code := s.RoomCode()
	_, ok := s.Leave(connID, func(res room.LeaveResult) {
		r.pub.Unsubscribe(code, connID)
		if !res.Emptied {
			r.pub.Publish(code, protocol.EventUserLeft, protocol.UserLeft{
				UserID:       res.Participant.UserID,
				Participants: res.Participants,
			}, "")
		}
	})
	if !ok {
		r.pub.Unsubscribe(code, connID)
	}
}

// session returns the live session for roomCode. Mutations for rooms without
// a live session are dropped silently.
func (r *Router) session(connID, roomCode string) *room.Session {
	s := r.registry.Get(normalizeCode(roomCode))
	if s == nil {
		slog.Debug("Event for room without live session", "conn_id", connID, "room_code", roomCode)
	}
	return s
}

// authorize enforces interviewer-only controls. It returns false, after
// notifying the sender when appropriate, if connID may not proceed.
func (r *Router) authorize(s *room.Session, connID string) bool {
	p, ok := s.Participant(connID)
	if !ok {
		return false
	}
	if r.opts.InterviewerControls && !p.IsInterviewer() {
		r.sendError(connID, msgInterviewerOnly)
		return false
	}
	return true
}

func (r *Router) handleCodeChange(connID string, env protocol.Envelope) {
	var req protocol.CodeChange
	if !r.decode(connID, env, &req) {
		return
	}
	s := r.session(connID, req.RoomCode)
	if s == nil {
		return
	}

	code := s.RoomCode()
	_, err := s.ApplyCodeChange(connID, req.CodeState, func(c room.CodeChange) {
		r.pub.Publish(code, protocol.EventCodeChange, c.CodeState, connID)
		if c.Cursor != nil {
			r.pub.Publish(code, protocol.EventCursorChange, protocol.CursorChange{
				UserID:   c.By.UserID,
				Position: *c.Cursor,
			}, connID)
		}
	})
	if err != nil {
		r.reportSessionError(connID, code, err)
	}
}

func (r *Router) handleCursorChange(connID string, env protocol.Envelope) {
	var req protocol.CursorChange
	if !r.decode(connID, env, &req) {
		return
	}
	s := r.session(connID, req.RoomCode)
	if s == nil {
		return
	}
	p, ok := s.Participant(connID)
	if !ok {
		return
	}
	if req.Position.Line < 0 || req.Position.Column < 0 {
		r.sendError(connID, msgInvalidCursor)
		return
	}

	// The author is taken from the connection, not the payload.
	r.pub.Publish(s.RoomCode(), protocol.EventCursorChange, protocol.CursorChange{
		UserID:   p.UserID,
		Position: req.Position,
	}, connID)
}

func (r *Router) handleSelectQuestion(connID string, env protocol.Envelope) {
	var req protocol.SelectQuestion
	if !r.decode(connID, env, &req) {
		return
	}
	s := r.session(connID, req.RoomCode)
	if s == nil || !r.authorize(s, connID) {
		return
	}

	q := req.Question
	if r.opts.Questions != nil && q.ID != "" {
		if canonical, ok := r.opts.Questions.Get(q.ID); ok {
			q = *canonical
		}
	}
	if q.ID == "" && q.Title == "" {
		r.sendError(connID, msgInvalidPayload)
		return
	}

	code := s.RoomCode()
	_, err := s.SelectQuestion(connID, q, func(c room.QuestionChange) {
		r.pub.Publish(code, protocol.EventQuestionSelected, protocol.QuestionSelected{
			Question:  c.Question,
			CodeState: c.CodeState,
		}, "")
	})
	if err != nil {
		r.reportSessionError(connID, code, err)
	}
}

func (r *Router) handleChat(connID string, env protocol.Envelope) {
	var req protocol.SendChat
	if !r.decode(connID, env, &req) {
		return
	}
	s := r.session(connID, req.RoomCode)
	if s == nil {
		return
	}

	code := s.RoomCode()
	_, err := s.AppendChat(connID, string(req.Message), func(msg domain.ChatMessage) {
		r.pub.Publish(code, protocol.EventChatMessage, msg, connID)
	})
	if err != nil {
		r.reportSessionError(connID, code, err)
	}
}

func (r *Router) handleTimer(connID string, env protocol.Envelope) {
	var req protocol.TimerStart
	if !r.decode(connID, env, &req) {
		return
	}
	s := r.session(connID, req.RoomCode)
	if s == nil || !r.authorize(s, connID) {
		return
	}

	code := s.RoomCode()
	event := env.Type
	emit := func(state domain.TimerState) {
		r.pub.Publish(code, event, state, connID)
	}

	var err error
	switch event {
	case protocol.EventTimerStart:
		_, err = s.StartTimer(connID, req.Duration, emit)
	case protocol.EventTimerPause:
		_, err = s.PauseTimer(connID, emit)
	case protocol.EventTimerResume:
		_, err = s.ResumeTimer(connID, emit)
	case protocol.EventTimerReset:
		_, err = s.ResetTimer(connID, emit)
	}
	if err != nil {
		r.reportSessionError(connID, code, err)
	}
}

func (r *Router) handleSessionEnd(ctx context.Context, connID string, env protocol.Envelope) {
	var req protocol.SessionEnd
	if !r.decode(connID, env, &req) {
		return
	}
	s := r.session(connID, req.RoomCode)
	if s == nil || !r.authorize(s, connID) {
		return
	}
	code := s.RoomCode()

	lock, _ := r.ending.LoadOrStore(code, &sync.Mutex{})
	mu := lock.(*sync.Mutex)
	if !mu.TryLock() {
		slog.Warn("Session end already in progress", "room_code", code, "conn_id", connID)
		return
	}
	defer func() {
		mu.Unlock()
		r.ending.Delete(code)
	}()

	snap := s.Snapshot()
	elapsed := snap.TimerState.Elapsed()

	if err := r.persistSessionEnd(ctx, code, snap, req.Feedback, elapsed); err != nil {
		slog.Error("Failed to end session", "room_code", code, "conn_id", connID, "error", err)
		r.sendError(connID, msgEndFailed)
		return
	}

	r.pub.Publish(code, protocol.EventSessionEnded, protocol.SessionEnded{
		Feedback:     req.Feedback,
		CodeSnapshot: snap.CodeState.Code,
		Language:     snap.CodeState.Language,
		Duration:     elapsed,
	}, "")

	r.registry.Remove(code)
	r.pub.CloseRoom(code)
	slog.Info("Interview session ended", "room_code", code, "duration_seconds", elapsed)
}

func (r *Router) persistSessionEnd(ctx context.Context, code string, snap room.Snapshot, feedback string, elapsed int) error {
	rec, err := r.store.FindRoom(ctx, code)
	if err != nil {
		return err
	}
	if rec == nil {
		return nil
	}

	record := &domain.InterviewSession{
		ID:              uuid.NewString(),
		RoomID:          rec.ID,
		UserID:          rec.HostID,
		Code:            snap.CodeState.Code,
		Language:        snap.CodeState.Language,
		Feedback:        feedback,
		DurationSeconds: elapsed,
		CompletedAt:     r.opts.Now(),
	}
	if snap.CurrentQuestion != nil {
		raw, err := json.Marshal(snap.CurrentQuestion)
		if err != nil {
			return err
		}
		record.Question = raw
	}

	if err := shared.RetryOnConflict(ctx, r.opts.Retry, "create interview session", func(ctx context.Context) error {
		return r.store.CreateInterviewSession(ctx, record)
	}); err != nil {
		return err
	}
	return shared.RetryOnConflict(ctx, r.opts.Retry, "deactivate room", func(ctx context.Context) error {
		return r.store.UpdateRoomActive(ctx, rec.ID, false)
	})
}

// ExpireRoom notifies and tears down the live session of an expired room.
// Reports whether a live session existed.
func (r *Router) ExpireRoom(roomCode string) bool {
	if r.registry.Get(roomCode) == nil {
		return false
	}
	r.pub.Publish(roomCode, protocol.EventRoomExpired, protocol.RoomExpired{RoomCode: roomCode}, "")
	r.registry.Remove(roomCode)
	r.pub.CloseRoom(roomCode)
	slog.Info("Expired room session torn down", "room_code", roomCode)
	return true
}

// OnTimerTick broadcasts a countdown tick to the whole room.
func (r *Router) OnTimerTick(roomCode string, state domain.TimerState) {
	r.pub.Publish(roomCode, protocol.EventTimerUpdate, state, "")
}

// OnTimerFinished broadcasts the end of the countdown to the whole room.
func (r *Router) OnTimerFinished(roomCode string, state domain.TimerState) {
	r.pub.Publish(roomCode, protocol.EventTimerFinished, state, "")
}
