// Package dwell awards a one-time bonus once a visitor has stayed on a card
// long enough.
package dwell

import (
	"context"
	"sync"
	"time"
)

// State is the monitor's position in its two-state machine.
type State int

const (
	// StateIdle means the threshold has not been reached yet.
	StateIdle State = iota
	// StateBonusAwarded is terminal for the session.
	StateBonusAwarded
)

func (s State) String() string {
	if s == StateBonusAwarded {
		return "bonus_awarded"
	}
	return "idle"
}

// Config holds the monitor's timing parameters.
type Config struct {
	// Threshold is the continuous presence needed for the bonus.
	Threshold time.Duration
	// Interval is the tick granularity.
	Interval time.Duration
	// MaxStep caps how much a single tick may contribute, so time spent
	// suspended is not counted as presence. Zero disables the cap.
	MaxStep time.Duration
}

// DefaultConfig returns a 30 second threshold checked every second.
func DefaultConfig() Config {
	return Config{
		Threshold: 30 * time.Second,
		Interval:  time.Second,
		MaxStep:   2 * time.Second,
	}
}

// Monitor tracks dwell time and calls onBonus exactly once.
type Monitor struct {
	cfg     Config
	onBonus func()

	mu      sync.Mutex
	elapsed time.Duration
	state   State
	started bool

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewMonitor creates an idle monitor. onBonus runs on the ticking goroutine
// (or the caller of Advance) without any monitor lock held.
func NewMonitor(cfg Config, onBonus func()) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Second
	}
	return &Monitor{
		cfg:     cfg,
		onBonus: onBonus,
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
}

// Advance adds step to the accumulated presence and reports whether this
// call crossed the threshold. Once the bonus is awarded every call is a
// no-op.
func (m *Monitor) Advance(step time.Duration) bool {
	m.mu.Lock()
	if m.state == StateBonusAwarded {
		m.mu.Unlock()
		return false
	}
	if step < 0 {
		step = 0
	}
	if m.cfg.MaxStep > 0 && step > m.cfg.MaxStep {
		step = m.cfg.MaxStep
	}
	m.elapsed += step

	fired := m.elapsed >= m.cfg.Threshold
	if fired {
		m.state = StateBonusAwarded
	}
	m.mu.Unlock()

	if fired && m.onBonus != nil {
		m.onBonus()
	}
	return fired
}

// Start begins ticking in a new goroutine. It returns immediately; calling
// it more than once has no effect. The goroutine exits when the bonus is
// awarded, Stop is called, or ctx is done.
func (m *Monitor) Start(ctx context.Context) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	go m.run(ctx)
}

func (m *Monitor) run(ctx context.Context) {
	defer close(m.done)

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	// time.Now carries a monotonic reading, so wall clock jumps do not
	// distort the step.
	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stop:
			return
		case <-ticker.C:
			now := time.Now()
			step := now.Sub(last)
			last = now
			if m.Advance(step) {
				return
			}
		}
	}
}

// Stop cancels the ticker and waits for the goroutine to exit. It is safe
// to call multiple times and before Start.
func (m *Monitor) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })

	m.mu.Lock()
	started := m.started
	m.mu.Unlock()

	if started {
		<-m.done
	}
}

// State returns the current state.
func (m *Monitor) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Elapsed returns the presence accumulated so far.
func (m *Monitor) Elapsed() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.elapsed
}
