package room

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ashureev/pairroom/internal/domain"
)

type recordingListener struct {
	mu       sync.Mutex
	ticks    []domain.TimerState
	finished []domain.TimerState
	done     chan struct{}
	once     sync.Once
}

func newRecordingListener() *recordingListener {
	return &recordingListener{done: make(chan struct{})}
}

func (l *recordingListener) OnTimerTick(_ string, st domain.TimerState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ticks = append(l.ticks, st)
}

func (l *recordingListener) OnTimerFinished(_ string, st domain.TimerState) {
	l.mu.Lock()
	l.finished = append(l.finished, st)
	l.mu.Unlock()
	l.once.Do(func() { close(l.done) })
}

func (l *recordingListener) tickCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.ticks)
}

func (l *recordingListener) finishedCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.finished)
}

func (l *recordingListener) waitFinished(t *testing.T, timeout time.Duration) {
	t.Helper()
	select {
	case <-l.done:
	case <-time.After(timeout):
		t.Fatal("timed out waiting for timer-finished")
	}
}

func fastTimer(l TimerListener) *Timer {
	return NewTimer("ABC123", TimerConfig{DefaultSeconds: 1800, TickInterval: 2 * time.Millisecond}, l)
}

func intPtr(n int) *int { return &n }

func TestTimer_RunsToCompletionOnce(t *testing.T) {
	t.Parallel()

	l := newRecordingListener()
	timer := fastTimer(l)

	st, err := timer.Start(intPtr(60))
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if !st.IsRunning || st.Remaining != 60 || st.Duration != 60 || st.StartedAt == nil {
		t.Fatalf("unexpected state after start: %+v", st)
	}

	l.waitFinished(t, 5*time.Second)
	// Give a stray second goroutine a chance to misbehave.
	time.Sleep(20 * time.Millisecond)

	if got := l.finishedCount(); got != 1 {
		t.Fatalf("expected exactly one timer-finished, got %d", got)
	}
	if got := l.tickCount(); got != 60 {
		t.Fatalf("expected 60 ticks, got %d", got)
	}

	l.mu.Lock()
	prev := 60
	for i, tick := range l.ticks {
		if tick.Remaining != prev-1 {
			t.Fatalf("tick %d: remaining %d, expected %d", i, tick.Remaining, prev-1)
		}
		if tick.Remaining < 0 {
			t.Fatalf("tick %d: negative remaining", i)
		}
		prev = tick.Remaining
	}
	l.mu.Unlock()

	final := timer.State()
	if final.Remaining != 0 || final.IsRunning || final.StartedAt != nil {
		t.Fatalf("unexpected final state: %+v", final)
	}
}

func TestTimer_DoubleStartDoesNotDoubleRate(t *testing.T) {
	t.Parallel()

	l := newRecordingListener()
	timer := NewTimer("ABC123", TimerConfig{TickInterval: 10 * time.Millisecond}, l)

	if _, err := timer.Start(intPtr(1000)); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if _, err := timer.Start(nil); err != nil {
		t.Fatalf("second Start failed: %v", err)
	}

	time.Sleep(55 * time.Millisecond)
	timer.Stop()

	// One goroutine yields about five ticks here; two would yield about ten.
	if got := l.tickCount(); got > 7 {
		t.Fatalf("expected at most 7 ticks from a single tick process, got %d", got)
	}
	if st := timer.State(); st.Remaining < 1000-7 {
		t.Fatalf("remaining decreased too fast: %d", st.Remaining)
	}
}

func TestTimer_PauseResumeReset(t *testing.T) {
	t.Parallel()

	l := newRecordingListener()
	timer := NewTimer("ABC123", TimerConfig{TickInterval: 5 * time.Millisecond}, l)

	if _, err := timer.Start(intPtr(100)); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	time.Sleep(30 * time.Millisecond)

	paused := timer.Pause()
	if paused.IsRunning || paused.StartedAt != nil {
		t.Fatalf("expected paused state, got %+v", paused)
	}
	if paused.Remaining >= 100 || paused.Remaining <= 0 {
		t.Fatalf("expected partial countdown, got remaining %d", paused.Remaining)
	}

	ticks := l.tickCount()
	time.Sleep(20 * time.Millisecond)
	if l.tickCount() != ticks {
		t.Fatal("timer ticked while paused")
	}
	if timer.State().Remaining != paused.Remaining {
		t.Fatal("remaining changed while paused")
	}

	resumed, err := timer.Resume()
	if err != nil {
		t.Fatalf("Resume failed: %v", err)
	}
	if !resumed.IsRunning || resumed.Duration != 100 || resumed.Remaining != paused.Remaining {
		t.Fatalf("unexpected resumed state: %+v", resumed)
	}

	reset := timer.Reset()
	if reset.IsRunning || reset.Remaining != 100 || reset.StartedAt != nil {
		t.Fatalf("unexpected reset state: %+v", reset)
	}
}

func TestTimer_ResumeAfterFinish(t *testing.T) {
	t.Parallel()

	l := newRecordingListener()
	timer := fastTimer(l)
	if _, err := timer.Start(intPtr(2)); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	l.waitFinished(t, 2*time.Second)

	st, err := timer.Resume()
	if !errors.Is(err, ErrTimerFinished) {
		t.Fatalf("expected ErrTimerFinished, got %v", err)
	}
	if st.IsRunning {
		t.Fatal("finished timer must not run after resume")
	}

	restarted, err := timer.Start(nil)
	if err != nil {
		t.Fatalf("Start after finish failed: %v", err)
	}
	if restarted.Remaining != 2 || !restarted.IsRunning {
		t.Fatalf("expected restart from full duration, got %+v", restarted)
	}
	timer.Stop()
}

func TestTimer_RejectsInvalidDuration(t *testing.T) {
	t.Parallel()

	timer := NewTimer("ABC123", TimerConfig{MaxSeconds: 3600}, nil)
	for _, d := range []int{0, -5, 3601} {
		if _, err := timer.Start(intPtr(d)); !errors.Is(err, ErrInvalidDuration) {
			t.Errorf("duration %d: expected ErrInvalidDuration, got %v", d, err)
		}
	}
	if st := timer.State(); st.IsRunning || st.Duration != DefaultTimerSeconds {
		t.Fatalf("invalid start must not change state: %+v", st)
	}
}

type panickingListener struct {
	mu    sync.Mutex
	calls int
}

func (p *panickingListener) OnTimerTick(string, domain.TimerState) {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	panic("broadcast failed")
}

func (p *panickingListener) OnTimerFinished(string, domain.TimerState) {}

func TestTimer_ListenerFailureKeepsCountingDown(t *testing.T) {
	t.Parallel()

	l := &panickingListener{}
	timer := fastTimer(l)
	if _, err := timer.Start(intPtr(5)); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for timer.State().Remaining > 0 {
		if time.Now().After(deadline) {
			t.Fatalf("countdown stalled at %d", timer.State().Remaining)
		}
		time.Sleep(time.Millisecond)
	}
	for {
		l.mu.Lock()
		calls := l.calls
		l.mu.Unlock()
		if calls == 5 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("expected 5 tick notifications, got %d", calls)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestTimer_StopIsSynchronousAndIdempotent(t *testing.T) {
	t.Parallel()

	l := newRecordingListener()
	timer := fastTimer(l)
	if _, err := timer.Start(intPtr(1000)); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	time.Sleep(10 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		defer close(done)
		timer.Stop()
		timer.Stop()
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop deadlocked")
	}

	ticks := l.tickCount()
	time.Sleep(20 * time.Millisecond)
	if l.tickCount() != ticks {
		t.Fatal("tick process outlived Stop")
	}
}
