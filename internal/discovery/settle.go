package discovery

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// DefaultSettleWindow is the quiet period after the last appearance before a
// scan is considered settled
const DefaultSettleWindow = 500 * time.Millisecond

// SettleState is the state of a Settler
type SettleState int

const (
	// SettleArmed means no appearance has been observed yet
	SettleArmed SettleState = iota
	// SettleRunning means the quiet timer is running
	SettleRunning
	// SettleFired means the quiet period elapsed with no new appearance
	SettleFired
)

// String returns the state name
func (s SettleState) String() string {
	switch s {
	case SettleArmed:
		return "armed"
	case SettleRunning:
		return "running"
	case SettleFired:
		return "fired"
	default:
		return "unknown"
	}
}

// Settler detects that a scan has likely completed: it signals once a quiet
// window has passed since the last observed appearance. Every Observe restarts
// the window, so a late appearance un-settles a fired Settler.
type Settler struct {
	mu      sync.Mutex
	clock   clock.Clock
	window  time.Duration
	timer   *clock.Timer
	gen     uint64
	state   SettleState
	stopped bool
	settled chan struct{}
}

// NewSettler creates a settler. A nil clock uses the wall clock.
func NewSettler(window time.Duration, clk clock.Clock) *Settler {
	if window <= 0 {
		window = DefaultSettleWindow
	}
	if clk == nil {
		clk = clock.New()
	}
	return &Settler{
		clock:   clk,
		window:  window,
		settled: make(chan struct{}, 1),
	}
}

// Observe records an appearance and restarts the quiet window
func (s *Settler) Observe() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.gen++
	gen := s.gen
	s.state = SettleRunning
	s.timer = s.clock.AfterFunc(s.window, func() { s.fire(gen) })
}

// fire settles unless a newer Observe superseded the timer that called it
func (s *Settler) fire(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped || gen != s.gen {
		return
	}
	s.state = SettleFired
	select {
	case s.settled <- struct{}{}:
	default:
	}
}

// Settled receives one value each time a quiet window elapses. Signals that
// nobody receives coalesce.
func (s *Settler) Settled() <-chan struct{} {
	return s.settled
}

// IsSettled reports whether the last quiet window elapsed with no appearance since
func (s *Settler) IsSettled() bool {
	return s.State() == SettleFired
}

// State returns the current state
func (s *Settler) State() SettleState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Stop cancels the pending timer. Further Observe calls are ignored.
func (s *Settler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	if s.timer != nil {
		s.timer.Stop()
	}
}
