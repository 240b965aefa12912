package discovery

import (
	"context"
	"sync"
)

// Subscription is a live feed of confirmed groups. The Groups channel is
// closed when the subscription ends; Err then tells why.
type Subscription struct {
	out  chan Group
	wake chan struct{}
	quit chan struct{}

	mu       sync.Mutex
	queue    []Group
	err      error
	ended    bool
	quitOnce sync.Once

	hub         *hub
	stopWatcher func() bool
}

func newSubscription(h *hub) *Subscription {
	return &Subscription{
		out:  make(chan Group),
		wake: make(chan struct{}, 1),
		quit: make(chan struct{}),
		hub:  h,
	}
}

// Groups delivers each group whose leader has been probed, starting with the
// groups known when the subscription was made
func (s *Subscription) Groups() <-chan Group {
	return s.out
}

// Err returns why the subscription ended: a *ProbeError, the context error,
// ErrSessionClosed, or nil after Close
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close unsubscribes. The session keeps running.
func (s *Subscription) Close() {
	s.stop(nil)
}

func (s *Subscription) push(g Group) {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.queue = append(s.queue, g.Clone())
	s.mu.Unlock()
	s.signal()
}

// finish ends the subscription after the queued groups are delivered
func (s *Subscription) finish(err error) {
	if !s.end(err) {
		return
	}
	s.signal()
}

// stop ends the subscription immediately, dropping queued groups
func (s *Subscription) stop(err error) {
	s.end(err)
	s.quitOnce.Do(func() { close(s.quit) })
}

// end records the terminal error once and detaches from the hub
func (s *Subscription) end(err error) bool {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return false
	}
	s.ended = true
	s.err = err
	stopWatcher := s.stopWatcher
	s.mu.Unlock()

	if stopWatcher != nil {
		stopWatcher()
	}
	s.hub.remove(s)
	return true
}

func (s *Subscription) signal() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// run pumps the queue into out so publishers never block on slow readers
func (s *Subscription) run() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			g := s.queue[0]
			s.queue = s.queue[1:]
			s.mu.Unlock()

			select {
			case s.out <- g:
			case <-s.quit:
				return
			}
			continue
		}
		ended := s.ended
		s.mu.Unlock()

		if ended {
			return
		}
		select {
		case <-s.wake:
		case <-s.quit:
			return
		}
	}
}

// hub fans group events out to subscriptions
type hub struct {
	mu     sync.Mutex
	subs   map[*Subscription]struct{}
	closed bool
}

func newHub() *hub {
	return &hub{subs: make(map[*Subscription]struct{})}
}

// subscribe registers a subscription and queues the replay groups before any
// later publish
func (h *hub) subscribe(ctx context.Context, replay func() []Group) *Subscription {
	sub := newSubscription(h)
	go sub.run()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		sub.stop(ErrSessionClosed)
		return sub
	}
	h.subs[sub] = struct{}{}
	for _, g := range replay() {
		sub.push(g)
	}
	h.mu.Unlock()

	stopWatcher := context.AfterFunc(ctx, func() { sub.stop(ctx.Err()) })
	sub.mu.Lock()
	if sub.ended {
		sub.mu.Unlock()
		stopWatcher()
		return sub
	}
	sub.stopWatcher = stopWatcher
	sub.mu.Unlock()
	return sub
}

func (h *hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs, sub)
}

func (h *hub) snapshot() []*Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := make([]*Subscription, 0, len(h.subs))
	for sub := range h.subs {
		subs = append(subs, sub)
	}
	return subs
}

// update runs apply and publishes the group it returns, both under the lock
// subscribe replays under. A subscription therefore sees the change either
// in its replay or as a publish, never both.
func (h *hub) update(apply func() (Group, bool)) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if g, ok := apply(); ok {
		h.pushLocked(g)
	}
}

func (h *hub) pushLocked(g Group) {
	for sub := range h.subs {
		sub.push(g)
	}
}

// fail terminates every active subscription with err
func (h *hub) fail(err error) {
	for _, sub := range h.snapshot() {
		sub.finish(err)
	}
}

func (h *hub) close() {
	h.mu.Lock()
	h.closed = true
	h.mu.Unlock()

	for _, sub := range h.snapshot() {
		sub.stop(ErrSessionClosed)
	}
}

// len returns the number of active subscriptions
func (h *hub) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
