package discovery

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/muurk/dosctl/internal/dos"
	"github.com/muurk/dosctl/internal/logging"
)

// Retry defaults for group queries
const (
	DefaultAttempts        = 5
	DefaultInitialInterval = 500 * time.Millisecond
	DefaultMaxInterval     = 30 * time.Second
)

// RetryPolicy bounds how long Session.Groups waits for discovery
type RetryPolicy struct {
	// Attempts is the total number of attempts, including the first
	Attempts int

	// InitialInterval is the wait before the second attempt
	InitialInterval time.Duration

	// MaxInterval caps the wait between attempts
	MaxInterval time.Duration
}

// DefaultRetryPolicy returns the policy used when none is configured
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Attempts:        DefaultAttempts,
		InitialInterval: DefaultInitialInterval,
		MaxInterval:     DefaultMaxInterval,
	}
}

// Options configures a Session. Zero values select production defaults.
type Options struct {
	// Source delivers announcements (default: zeroconf browse of ServiceType)
	Source Source

	// Filters select candidate appearances (default: port 80 and DefaultFamilies)
	Filters []Filter

	// Prober fetches device information (default: HTTPProber on port 80)
	Prober Prober

	// Registry stores probed devices (default: a new empty registry)
	Registry *Registry

	// SettleWindow is the quiet period that settles a scan
	SettleWindow time.Duration

	// Retry bounds Groups
	Retry RetryPolicy

	// Clock drives the settle timer and retry waits (default: wall clock)
	Clock clock.Clock

	// OnRetry is called before each retry wait
	OnRetry func(err error, wait time.Duration)
}

func (o Options) withDefaults() Options {
	if o.Source == nil {
		o.Source = NewZeroconfSource(ServiceType, ServiceDomain)
	}
	if o.Filters == nil {
		o.Filters = []Filter{PortFilter(dos.DefaultPort), FamilyFilter(DefaultFamilies)}
	}
	if o.Prober == nil {
		o.Prober = NewHTTPProber(dos.DefaultPort, dos.DefaultTimeout)
	}
	if o.Registry == nil {
		o.Registry = NewRegistry()
	}
	if o.SettleWindow <= 0 {
		o.SettleWindow = DefaultSettleWindow
	}
	defaults := DefaultRetryPolicy()
	if o.Retry.Attempts <= 0 {
		o.Retry.Attempts = defaults.Attempts
	}
	if o.Retry.InitialInterval <= 0 {
		o.Retry.InitialInterval = defaults.InitialInterval
	}
	if o.Retry.MaxInterval <= 0 {
		o.Retry.MaxInterval = defaults.MaxInterval
	}
	if o.Clock == nil {
		o.Clock = clock.New()
	}
	return o
}

// Session runs one discovery: it watches announcements, probes candidates
// into its registry and answers group queries
type Session struct {
	opts     Options
	registry *Registry
	settler  *Settler
	watcher  *Watcher
	hub      *hub
	logger   *zap.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	started bool
	closed  bool

	wg sync.WaitGroup
}

// NewSession creates a session; call Start to begin discovery
func NewSession(opts Options) *Session {
	opts = opts.withDefaults()
	return &Session{
		opts:     opts,
		registry: opts.Registry,
		settler:  NewSettler(opts.SettleWindow, opts.Clock),
		watcher:  NewWatcher(opts.Source, opts.Filters...),
		hub:      newHub(),
		logger:   logging.Named("discovery"),
	}
}

// Start begins browsing. Discovery runs until Close or until ctx is cancelled.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	if s.started {
		return ErrAlreadyStarted
	}

	sctx, cancel := context.WithCancel(ctx)
	events, err := s.watcher.Watch(sctx)
	if err != nil {
		cancel()
		return err
	}

	s.ctx, s.cancel = sctx, cancel
	s.started = true

	s.wg.Add(1)
	go s.loop(sctx, events)
	return nil
}

// Close stops browsing, the settle timer and every subscription, and waits for
// in-flight probes. Their results are discarded.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.settler.Stop()
	s.hub.close()
	s.wg.Wait()
	return nil
}

func (s *Session) loop(ctx context.Context, events <-chan Announcement) {
	defer s.wg.Done()

	for a := range events {
		switch a.Kind {
		case Up:
			s.settler.Observe()
			s.wg.Add(1)
			go s.probe(ctx, a)
		case Down:
			removed := s.registry.UnregisterFunc(func(d Device) bool { return d.Hostname == a.Name })
			s.logger.Debug("Service withdrawn", zap.String("name", a.Name), zap.Int("removed", removed))
		}
	}
}

func (s *Session) probe(ctx context.Context, a Announcement) {
	defer s.wg.Done()

	address := a.Address()
	info, err := s.opts.Prober.Probe(ctx, address)
	if ctx.Err() != nil {
		return
	}
	logging.LogProbe(address, info.DeviceID, err)
	if err != nil {
		s.hub.fail(asProbeError(address, err))
		return
	}

	device := Device{
		ID:           DeviceID(info.DeviceID),
		Hostname:     a.Name,
		Address:      address,
		Port:         a.Port,
		Info:         info,
		DiscoveredAt: s.opts.Clock.Now(),
	}

	s.hub.update(func() (Group, bool) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return Group{}, false
		}
		s.registry.Register(device)
		if !device.IsLeader() {
			return Group{}, false
		}
		return s.registry.Group(device.GroupID())
	})
}

// Registry returns the session's registry
func (s *Session) Registry() *Registry {
	return s.registry
}

// Devices returns every probed device without waiting for readiness
func (s *Session) Devices() []Device {
	return s.registry.Devices()
}

// Ready reports whether a group query would succeed now: the scan has
// settled and at least one group is known
func (s *Session) Ready() bool {
	_, err := s.tryGroups()
	return err == nil
}

func (s *Session) tryGroups() ([]Group, error) {
	if !s.settler.IsSettled() {
		return nil, ErrNotReady
	}
	groups := s.registry.Groups()
	if len(groups) == 0 {
		return nil, ErrNotReady
	}
	return groups, nil
}

// Groups returns the discovered groups, retrying with exponential backoff
// until the session is ready. Exhausting the attempts returns an error
// matching ErrDiscoveryExhausted. Waits end early when ctx is cancelled or
// the session is closed.
func (s *Session) Groups(ctx context.Context) ([]Group, error) {
	s.mu.Lock()
	sctx, started, closed := s.ctx, s.started, s.closed
	s.mu.Unlock()

	if closed {
		return nil, ErrSessionClosed
	}
	if !started {
		return nil, ErrNotStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(sctx, cancel)
	defer stop()

	attempts := 0
	operation := func() ([]Group, error) {
		attempts++
		return s.tryGroups()
	}
	notify := func(err error, wait time.Duration) {
		s.logger.Debug("Discovery not ready, retrying", zap.Int("attempt", attempts), zap.Duration("wait", wait))
		if s.opts.OnRetry != nil {
			s.opts.OnRetry(err, wait)
		}
	}

	groups, err := backoff.RetryNotifyWithTimerAndData(operation, s.newBackOff(ctx), notify, &clockTimer{clock: s.opts.Clock})
	if err == nil {
		return groups, nil
	}
	if errors.Is(err, ErrNotReady) {
		return nil, fmt.Errorf("%w (%d attempts)", ErrDiscoveryExhausted, attempts)
	}
	if sctx.Err() != nil && ctx.Err() != nil {
		s.mu.Lock()
		closed = s.closed
		s.mu.Unlock()
		if closed {
			return nil, ErrSessionClosed
		}
	}
	return nil, err
}

func (s *Session) newBackOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.opts.Retry.InitialInterval
	b.MaxInterval = s.opts.Retry.MaxInterval
	b.MaxElapsedTime = 0
	b.Clock = s.opts.Clock
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(s.opts.Retry.Attempts-1)), ctx)
}

// Subscribe returns a live feed of groups. It may be called before Start.
// A probe failure ends every active subscription with a *ProbeError; discovery
// itself continues.
func (s *Session) Subscribe(ctx context.Context) *Subscription {
	return s.hub.subscribe(ctx, s.registry.Groups)
}

// DiscoverGroups runs a session just long enough to answer one group query
func DiscoverGroups(ctx context.Context, opts Options) ([]Group, error) {
	session := NewSession(opts)
	if err := session.Start(ctx); err != nil {
		return nil, err
	}
	defer session.Close()
	return session.Groups(ctx)
}

// clockTimer runs backoff waits on a clock.Clock
type clockTimer struct {
	clock clock.Clock
	timer *clock.Timer
}

func (t *clockTimer) Start(duration time.Duration) {
	if t.timer == nil {
		t.timer = t.clock.Timer(duration)
	} else {
		t.timer.Reset(duration)
	}
}

func (t *clockTimer) Stop() {
	if t.timer != nil {
		t.timer.Stop()
	}
}

func (t *clockTimer) C() <-chan time.Time {
	return t.timer.C
}
