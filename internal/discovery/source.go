package discovery

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/muurk/dosctl/internal/logging"
)

const (
	// ServiceType is the mDNS service type DOS devices advertise
	ServiceType = "_http._tcp"

	// ServiceDomain is the mDNS domain (typically "local.")
	ServiceDomain = "local."
)

// Browse round defaults. An instance that stops answering is reported Down
// after DefaultMissedRounds rounds of DefaultRefreshInterval.
const (
	DefaultRefreshInterval = 10 * time.Second
	DefaultMissedRounds    = 2
)

// Source delivers raw announcements. Browse starts delivery into out and
// returns; delivery stops when ctx is cancelled. A non-nil error means
// browsing could not be started.
type Source interface {
	Browse(ctx context.Context, out chan<- Announcement) error
}

// ZeroconfSource browses mDNS with grandcat/zeroconf.
//
// A zeroconf resolver reports each instance once and never reports goodbye
// packets, so the source browses in rounds with a fresh resolver each time.
// An instance is Up when first seen or when its record changes, and Down once
// it has been absent for MissedRounds rounds or outlived its record TTL.
type ZeroconfSource struct {
	// Service is the service type to browse
	Service string

	// Domain is the mDNS domain
	Domain string

	// Refresh is the length of one browse round
	Refresh time.Duration

	// MissedRounds is how many consecutive rounds an instance may go unseen
	// before it is reported Down
	MissedRounds int

	// Clock times the rounds (default: wall clock)
	Clock clock.Clock
}

// NewZeroconfSource creates a source for the given service type and domain;
// empty values fall back to ServiceType and ServiceDomain
func NewZeroconfSource(service, domain string) *ZeroconfSource {
	if service == "" {
		service = ServiceType
	}
	if domain == "" {
		domain = ServiceDomain
	}
	return &ZeroconfSource{
		Service:      service,
		Domain:       domain,
		Refresh:      DefaultRefreshInterval,
		MissedRounds: DefaultMissedRounds,
		Clock:        clock.New(),
	}
}

func (s ZeroconfSource) withDefaults() ZeroconfSource {
	if s.Service == "" {
		s.Service = ServiceType
	}
	if s.Domain == "" {
		s.Domain = ServiceDomain
	}
	if s.Refresh <= 0 {
		s.Refresh = DefaultRefreshInterval
	}
	if s.MissedRounds <= 0 {
		s.MissedRounds = DefaultMissedRounds
	}
	if s.Clock == nil {
		s.Clock = clock.New()
	}
	return s
}

// Browse implements Source
func (s *ZeroconfSource) Browse(ctx context.Context, out chan<- Announcement) error {
	resolver, err := zeroconf.NewResolver(nil)
	if err != nil {
		return fmt.Errorf("failed to create mDNS resolver: %w", err)
	}

	b := &browser{
		src:     s.withDefaults(),
		out:     out,
		tracker: newInstanceTracker(),
		logger:  logging.Named("mdns"),
	}
	b.tracker.missedRounds = b.src.MissedRounds

	// The first round runs on the caller's resolver so a browse failure is
	// returned rather than logged
	entries, stop, err := b.start(ctx, resolver)
	if err != nil {
		return err
	}
	go b.run(ctx, entries, stop)
	return nil
}

type browser struct {
	src     ZeroconfSource
	out     chan<- Announcement
	tracker *instanceTracker
	logger  *zap.Logger
}

// start begins one browse round. stop ends it and waits for the resolver to
// release its entries channel.
func (b *browser) start(ctx context.Context, resolver *zeroconf.Resolver) (<-chan *zeroconf.ServiceEntry, func(), error) {
	rctx, cancel := context.WithCancel(ctx)
	entries := make(chan *zeroconf.ServiceEntry)

	// The resolver closes entries once rctx is done, but blocks until each
	// entry it sends is consumed
	stop := func() {
		cancel()
		for range entries {
		}
	}

	if err := resolver.Browse(rctx, b.src.Service, b.src.Domain, entries); err != nil {
		stop()
		return nil, nil, fmt.Errorf("failed to browse for mDNS services: %w", err)
	}
	return entries, stop, nil
}

func (b *browser) run(ctx context.Context, entries <-chan *zeroconf.ServiceEntry, stop func()) {
	for {
		b.round(ctx, entries)
		stop()
		if ctx.Err() != nil {
			return
		}

		for _, a := range b.tracker.endRound(b.src.Clock.Now()) {
			b.logger.Debug("Instance stopped answering", zap.String("name", a.Name))
			if !b.send(ctx, a) {
				return
			}
		}

		entries, stop = b.next(ctx)
		if entries == nil {
			return
		}
	}
}

// next opens the following round, waiting a round length between attempts
// while the resolver cannot be created
func (b *browser) next(ctx context.Context) (<-chan *zeroconf.ServiceEntry, func()) {
	for {
		resolver, err := zeroconf.NewResolver(nil)
		if err == nil {
			var entries <-chan *zeroconf.ServiceEntry
			var stop func()
			if entries, stop, err = b.start(ctx, resolver); err == nil {
				return entries, stop
			}
		}
		b.logger.Warn("mDNS browse round failed", zap.Error(err))

		timer := b.src.Clock.Timer(b.src.Refresh)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return nil, nil
		}
	}
}

// round forwards news from entries until the round length has elapsed
func (b *browser) round(ctx context.Context, entries <-chan *zeroconf.ServiceEntry) {
	timer := b.src.Clock.Timer(b.src.Refresh)
	defer timer.Stop()

	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return
			}
			a, ok := fromServiceEntry(entry)
			if !ok {
				continue
			}
			ttl := time.Duration(entry.TTL) * time.Second
			if b.tracker.observe(a, ttl, b.src.Clock.Now()) && !b.send(ctx, a) {
				return
			}
		case <-timer.C:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (b *browser) send(ctx context.Context, a Announcement) bool {
	select {
	case b.out <- a:
		return true
	case <-ctx.Done():
		return false
	}
}

// instanceTracker remembers which instances answered recent browse rounds
type instanceTracker struct {
	missedRounds int
	round        int
	known        map[string]*trackedInstance
}

type trackedInstance struct {
	record    Announcement
	lastRound int
	expires   time.Time
}

func newInstanceTracker() *instanceTracker {
	return &instanceTracker{
		missedRounds: DefaultMissedRounds,
		known:        make(map[string]*trackedInstance),
	}
}

// observe records a in the current round and reports whether it is news: an
// instance not currently known or one whose record changed
func (t *instanceTracker) observe(a Announcement, ttl time.Duration, now time.Time) bool {
	var expires time.Time
	if ttl > 0 {
		expires = now.Add(ttl)
	}

	inst, ok := t.known[a.Name]
	if !ok {
		t.known[a.Name] = &trackedInstance{record: a, lastRound: t.round, expires: expires}
		return true
	}

	changed := !sameRecord(inst.record, a)
	inst.record = a
	inst.lastRound = t.round
	inst.expires = expires
	return changed
}

// endRound closes the current round and returns a Down announcement, sorted
// by name, for every instance that missed too many rounds or outlived its TTL
func (t *instanceTracker) endRound(now time.Time) []Announcement {
	var gone []Announcement
	for name, inst := range t.known {
		expired := !inst.expires.IsZero() && now.After(inst.expires)
		if t.round-inst.lastRound >= t.missedRounds || expired {
			gone = append(gone, Announcement{Kind: Down, Name: name})
			delete(t.known, name)
		}
	}
	t.round++

	sort.Slice(gone, func(i, j int) bool { return gone[i].Name < gone[j].Name })
	return gone
}

func sameRecord(a, b Announcement) bool {
	return a.Host == b.Host && a.IP == b.IP && a.Port == b.Port && slices.Equal(a.Text, b.Text)
}

// fromServiceEntry converts a zeroconf entry. Entries without an instance name
// are malformed and dropped.
func fromServiceEntry(entry *zeroconf.ServiceEntry) (Announcement, bool) {
	if entry == nil || entry.Instance == "" {
		return Announcement{}, false
	}

	a := Announcement{
		Kind: Up,
		Name: entry.Instance,
		Host: entry.HostName,
		Port: entry.Port,
		Text: entry.Text,
	}

	for _, addr := range entry.AddrIPv4 {
		a.IP = addr.String()
		break
	}
	if a.IP == "" && len(entry.AddrIPv6) > 0 {
		a.IP = entry.AddrIPv6[0].String()
	}

	return a, true
}
