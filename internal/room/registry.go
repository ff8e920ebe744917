package room

import (
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/pairroom/internal/domain"
)

// RegistryOptions configures sessions created by a Registry.
type RegistryOptions struct {
	Timer  TimerConfig
	Limits Limits
	Now    func() time.Time
}

// Registry maps room codes to live sessions. It guarantees at most one open
// session per code: GetOrCreate is atomic and replaces sessions that were torn
// down but not yet released.
type Registry struct {
	opts RegistryOptions

	mu       sync.Mutex
	sessions map[string]*Session

	lmu      sync.RWMutex
	listener TimerListener
}

// NewRegistry returns an empty registry.
func NewRegistry(opts RegistryOptions) *Registry {
	opts.Timer = opts.Timer.withDefaults()
	opts.Limits = opts.Limits.withDefaults()
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Registry{
		opts:     opts,
		sessions: make(map[string]*Session),
	}
}

// SetTimerListener sets the sink for timer events of every session.
func (r *Registry) SetTimerListener(l TimerListener) {
	r.lmu.Lock()
	defer r.lmu.Unlock()
	r.listener = l
}

// OnTimerTick forwards to the current listener.
func (r *Registry) OnTimerTick(roomCode string, state domain.TimerState) {
	r.lmu.RLock()
	l := r.listener
	r.lmu.RUnlock()
	if l != nil {
		l.OnTimerTick(roomCode, state)
	}
}

// OnTimerFinished forwards to the current listener.
func (r *Registry) OnTimerFinished(roomCode string, state domain.TimerState) {
	r.lmu.RLock()
	l := r.listener
	r.lmu.RUnlock()
	if l != nil {
		l.OnTimerFinished(roomCode, state)
	}
}

// GetOrCreate returns the open session for roomCode, creating it if needed.
// The bool reports whether a new session was created.
func (r *Registry) GetOrCreate(roomCode string) (*Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.sessions[roomCode]; ok && !s.Closed() {
		return s, false
	}

	timer := NewTimer(roomCode, r.opts.Timer, r)
	s := newSession(roomCode, r.opts.Limits, timer, r.release, r.opts.Now)
	r.sessions[roomCode] = s
	slog.Info("Room session created", "room_code", roomCode)
	return s, true
}

// Get returns the open session for roomCode, or nil.
func (r *Registry) Get(roomCode string) *Session {
	r.mu.Lock()
	s := r.sessions[roomCode]
	r.mu.Unlock()
	if s == nil || s.Closed() {
		return nil
	}
	return s
}

// Remove tears down and forgets the session for roomCode. Safe to call when
// the room has no session.
func (r *Registry) Remove(roomCode string) bool {
	r.mu.Lock()
	s, ok := r.sessions[roomCode]
	if ok {
		delete(r.sessions, roomCode)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	closed := s.Close()
	if closed {
		slog.Info("Room session removed", "room_code", roomCode)
	}
	return closed
}

// release drops s from the map unless it has already been replaced.
func (r *Registry) release(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if cur, ok := r.sessions[s.roomCode]; ok && cur == s {
		delete(r.sessions, s.roomCode)
	}
}

// Sessions returns a point-in-time copy of the open sessions.
func (r *Registry) Sessions() []*Session {
	r.mu.Lock()
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.mu.Unlock()

	open := all[:0]
	for _, s := range all {
		if !s.Closed() {
			open = append(open, s)
		}
	}
	return open
}

// ForEach calls fn for each open session without holding the registry lock.
func (r *Registry) ForEach(fn func(*Session)) {
	for _, s := range r.Sessions() {
		fn(s)
	}
}

// SessionsFor returns the sessions connID has joined.
func (r *Registry) SessionsFor(connID string) []*Session {
	var joined []*Session
	r.ForEach(func(s *Session) {
		if s.HasParticipant(connID) {
			joined = append(joined, s)
		}
	})
	return joined
}

// Len returns the number of open sessions.
func (r *Registry) Len() int {
	return len(r.Sessions())
}

// Shutdown tears down every session, cancelling all timers.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	all := r.sessions
	r.sessions = make(map[string]*Session)
	r.mu.Unlock()

	for _, s := range all {
		s.Close()
	}
	slog.Info("Room registry shut down", "sessions", len(all))
}
