package room

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ashureev/pairroom/internal/domain"
)

const (
	DefaultTimerSeconds = 1800
	MaxTimerSeconds     = 4 * 60 * 60
	DefaultTickInterval = time.Second
)

// TimerConfig controls the countdown of every session in a registry.
type TimerConfig struct {
	DefaultSeconds int
	MaxSeconds     int
	TickInterval   time.Duration
}

func (c TimerConfig) withDefaults() TimerConfig {
	if c.DefaultSeconds <= 0 {
		c.DefaultSeconds = DefaultTimerSeconds
	}
	if c.MaxSeconds <= 0 {
		c.MaxSeconds = MaxTimerSeconds
	}
	if c.DefaultSeconds > c.MaxSeconds {
		c.DefaultSeconds = c.MaxSeconds
	}
	if c.TickInterval <= 0 {
		c.TickInterval = DefaultTickInterval
	}
	return c
}

// TimerListener receives server-generated timer events.
// Implementations must not block and must not call back into the session.
type TimerListener interface {
	OnTimerTick(roomCode string, state domain.TimerState)
	OnTimerFinished(roomCode string, state domain.TimerState)
}

// Timer is the countdown owned by one session.
//
// Control operations (Start, Pause, Resume, Reset, Stop) are serialized by ctl.
// The tick goroutine only takes mu, so a control operation can cancel it and
// wait for it to exit without deadlocking. At most one tick goroutine is live.
type Timer struct {
	roomCode string
	cfg      TimerConfig
	listener TimerListener
	now      func() time.Time

	ctl sync.Mutex

	mu     sync.Mutex
	state  domain.TimerState
	cancel context.CancelFunc
	done   chan struct{}
}

// NewTimer returns an idle timer for roomCode.
func NewTimer(roomCode string, cfg TimerConfig, listener TimerListener) *Timer {
	cfg = cfg.withDefaults()
	return &Timer{
		roomCode: roomCode,
		cfg:      cfg,
		listener: listener,
		now:      time.Now,
		state: domain.TimerState{
			Duration:  cfg.DefaultSeconds,
			Remaining: cfg.DefaultSeconds,
		},
	}
}

// State returns a copy of the current timer state.
func (t *Timer) State() domain.TimerState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Start (re)starts the countdown. A non-nil duration resets both Duration and
// Remaining. Starting a finished timer without a duration restarts it from the
// full Duration.
func (t *Timer) Start(duration *int) (domain.TimerState, error) {
	if duration != nil && (*duration <= 0 || *duration > t.cfg.MaxSeconds) {
		return t.State(), fmt.Errorf("%w: %d (max %d)", ErrInvalidDuration, *duration, t.cfg.MaxSeconds)
	}

	t.ctl.Lock()
	defer t.ctl.Unlock()

	t.halt()

	t.mu.Lock()
	defer t.mu.Unlock()
	if duration != nil {
		t.state.Duration = *duration
		t.state.Remaining = *duration
	} else if t.state.Remaining == 0 {
		t.state.Remaining = t.state.Duration
	}
	t.runLocked()
	return t.state, nil
}

// Resume continues a paused countdown without touching Duration or Remaining.
func (t *Timer) Resume() (domain.TimerState, error) {
	t.ctl.Lock()
	defer t.ctl.Unlock()

	if t.State().Remaining == 0 {
		return t.State(), ErrTimerFinished
	}

	t.halt()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.runLocked()
	return t.state, nil
}

// Pause stops ticking and keeps Remaining.
func (t *Timer) Pause() domain.TimerState {
	t.ctl.Lock()
	defer t.ctl.Unlock()

	t.halt()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.IsRunning = false
	t.state.StartedAt = nil
	return t.state
}

// Reset stops ticking and restores Remaining to Duration.
func (t *Timer) Reset() domain.TimerState {
	t.ctl.Lock()
	defer t.ctl.Unlock()

	t.halt()

	t.mu.Lock()
	defer t.mu.Unlock()
	t.state.Remaining = t.state.Duration
	t.state.IsRunning = false
	t.state.StartedAt = nil
	return t.state
}

// Stop cancels the tick goroutine and waits for it to exit. Safe to call
// repeatedly; used by session teardown.
func (t *Timer) Stop() {
	t.ctl.Lock()
	defer t.ctl.Unlock()

	t.halt()

	t.mu.Lock()
	t.state.IsRunning = false
	t.state.StartedAt = nil
	t.mu.Unlock()
}

// halt cancels the live tick goroutine, if any, and blocks until it returns.
// Caller must hold ctl and must not hold mu.
func (t *Timer) halt() {
	t.mu.Lock()
	cancel, done := t.cancel, t.done
	t.cancel, t.done = nil, nil
	t.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// runLocked marks the timer running and spawns a fresh tick goroutine.
// Caller must hold ctl and mu, and must have halted any previous goroutine.
func (t *Timer) runLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	t.cancel, t.done = cancel, done

	now := t.now()
	t.state.IsRunning = true
	t.state.StartedAt = &now

	go t.tick(ctx, cancel, done)
}

func (t *Timer) tick(ctx context.Context, cancel context.CancelFunc, done chan struct{}) {
	defer close(done)
	defer cancel()

	ticker := time.NewTicker(t.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		t.mu.Lock()
		if ctx.Err() != nil {
			t.mu.Unlock()
			return
		}
		if t.state.Remaining > 0 {
			t.state.Remaining--
		}
		finished := t.state.Remaining == 0
		if finished {
			t.state.IsRunning = false
			t.state.StartedAt = nil
		}
		state := t.state
		t.mu.Unlock()

		t.notify("timer-update", func(l TimerListener) { l.OnTimerTick(t.roomCode, state) })
		if finished {
			t.notify("timer-finished", func(l TimerListener) { l.OnTimerFinished(t.roomCode, state) })
			return
		}
	}
}

// notify calls the listener, recovering panics so the countdown keeps advancing.
func (t *Timer) notify(event string, fn func(TimerListener)) {
	if t.listener == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Timer listener panicked", "room_code", t.roomCode, "event", event, "panic", r)
		}
	}()
	fn(t.listener)
}
