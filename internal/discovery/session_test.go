package discovery

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/muurk/dosctl/internal/dos"
)

func startSession(t *testing.T, opts Options) *Session {
	t.Helper()
	s := NewSession(opts)
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSession_LeaderAndMemberFilteredScan(t *testing.T) {
	network := newFakeNetwork(t)
	network.addDevice("10.0.0.1", deviceInfo("A", "g1", true))
	network.addDevice("10.0.0.2", deviceInfo("B", "g1", false))
	network.addDevice("10.0.0.3", deviceInfo("C", "g1", false))

	source := newChanSource()
	s := startSession(t, fastOptions(source, network))

	source.up("Phantom A", "Phantom-A.local.", "10.0.0.1", 80)
	source.up("Phantom B", "Phantom-B.local.", "10.0.0.2", 80)
	source.up("Phantom C", "Phantom-C.local.", "10.0.0.3", 8080)
	waitFor(t, "two probes", func() bool { return len(s.Devices()) == 2 })

	groups, err := s.Groups(context.Background())
	if err != nil {
		t.Fatalf("Groups() error = %v", err)
	}
	if len(groups) != 1 {
		t.Fatalf("Groups() = %v, want exactly one group", groupIDs(groups))
	}
	g := groups[0]
	if g.ID != "g1" || g.Leader.ID != "A" {
		t.Errorf("group = %s led by %s, want g1 led by A", g.ID, g.Leader.ID)
	}
	if fmt.Sprint(memberIDs(g)) != "[A B]" {
		t.Errorf("members = %v, want [A B]", memberIDs(g))
	}
	if n := network.probeCount("10.0.0.3"); n != 0 {
		t.Errorf("filtered host probed %d times, want 0", n)
	}
	if g.Leader.Hostname != "Phantom A" || g.Leader.Address != "10.0.0.1" || g.Leader.Port != 80 {
		t.Errorf("leader record = %+v", g.Leader)
	}
}

func TestSession_FamilyFilter(t *testing.T) {
	network := newFakeNetwork(t)
	network.addDevice("10.0.0.1", deviceInfo("A", "g1", true))
	network.addDevice("10.0.0.9", deviceInfo("P", "g9", true))

	source := newChanSource()
	s := startSession(t, fastOptions(source, network))

	source.up("Printer", "HP-LaserJet.local.", "10.0.0.9", 80)
	source.up("Arch", "Arch-0001.local.", "10.0.0.1", 80)

	groups, err := s.Groups(context.Background())
	if err != nil {
		t.Fatalf("Groups() error = %v", err)
	}
	if fmt.Sprint(groupIDs(groups)) != "[g1]" {
		t.Errorf("Groups() = %v, want [g1]", groupIDs(groups))
	}
	if network.probeCount("10.0.0.9") != 0 {
		t.Error("non-DOS host was probed")
	}
}

func TestSession_TwoLeadersExcludesGroup(t *testing.T) {
	network := newFakeNetwork(t)
	network.addDevice("10.0.0.1", deviceInfo("A", "g1", true))
	network.addDevice("10.0.0.4", deviceInfo("D", "g2", true))
	network.addDevice("10.0.0.5", deviceInfo("E", "g2", true))

	source := newChanSource()
	s := startSession(t, fastOptions(source, network))

	source.up("Phantom A", "Phantom-A.local.", "10.0.0.1", 80)
	source.up("Phantom D", "Phantom-D.local.", "10.0.0.4", 80)
	source.up("Phantom E", "Phantom-E.local.", "10.0.0.5", 80)

	waitFor(t, "three devices", func() bool { return len(s.Devices()) == 3 })

	groups, err := s.Groups(context.Background())
	if err != nil {
		t.Fatalf("Groups() error = %v", err)
	}
	if fmt.Sprint(groupIDs(groups)) != "[g1]" {
		t.Errorf("Groups() = %v, want [g1] (g2 has two leaders)", groupIDs(groups))
	}
}

func TestSession_ProbeFailureIsAbsorbed(t *testing.T) {
	network := newFakeNetwork(t)
	network.addDevice("10.0.0.1", deviceInfo("A", "g1", true))
	network.addHandler("10.0.0.6", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	source := newChanSource()
	s := startSession(t, fastOptions(source, network))

	source.up("Phantom F", "Phantom-F.local.", "10.0.0.6", 80)
	source.up("Phantom A", "Phantom-A.local.", "10.0.0.1", 80)

	groups, err := s.Groups(context.Background())
	if err != nil {
		t.Fatalf("Groups() error = %v", err)
	}
	waitFor(t, "failed probe", func() bool { return network.probeCount("10.0.0.6") == 1 })

	for _, g := range groups {
		for _, m := range g.Members {
			if m.Address == "10.0.0.6" {
				t.Errorf("failed host appeared in group %s", g.ID)
			}
		}
	}
	for _, d := range s.Devices() {
		if d.Address == "10.0.0.6" {
			t.Error("failed host was registered")
		}
	}
}

func TestSession_ExhaustsWithoutDevices(t *testing.T) {
	source := newChanSource()
	opts := fastOptions(source, newFakeNetwork(t))
	opts.Retry = RetryPolicy{Attempts: 3, InitialInterval: time.Millisecond, MaxInterval: 2 * time.Millisecond}

	var retries int32
	opts.OnRetry = func(err error, wait time.Duration) {
		if !errors.Is(err, ErrNotReady) {
			t.Errorf("retry error = %v, want ErrNotReady", err)
		}
		atomic.AddInt32(&retries, 1)
	}
	s := startSession(t, opts)

	_, err := s.Groups(context.Background())
	if !errors.Is(err, ErrDiscoveryExhausted) {
		t.Fatalf("Groups() error = %v, want ErrDiscoveryExhausted", err)
	}
	if got := atomic.LoadInt32(&retries); got != 2 {
		t.Errorf("retries = %d, want 2 (3 attempts)", got)
	}
}

func TestSession_SettledButEmptyIsNotReady(t *testing.T) {
	network := newFakeNetwork(t)
	source := newChanSource()
	opts := fastOptions(source, network)
	opts.Retry = RetryPolicy{Attempts: 3, InitialInterval: 20 * time.Millisecond, MaxInterval: 20 * time.Millisecond}
	s := startSession(t, opts)

	// An appearance that never yields a device still settles the scan
	source.up("Phantom X", "Phantom-X.local.", "10.0.0.99", 80)
	waitFor(t, "settle", func() bool { return s.settler.IsSettled() })

	if s.Ready() {
		t.Error("Ready() = true with an empty registry")
	}
	if _, err := s.Groups(context.Background()); !errors.Is(err, ErrDiscoveryExhausted) {
		t.Errorf("Groups() error = %v, want ErrDiscoveryExhausted", err)
	}
}

func TestSession_RetryWaitsOnSessionClock(t *testing.T) {
	network := newFakeNetwork(t)
	network.addDevice("10.0.0.1", deviceInfo("A", "g1", true))

	mock := clock.NewMock()
	source := newChanSource()
	waits := make(chan time.Duration, 16)
	opts := fastOptions(source, network)
	opts.Clock = mock
	opts.SettleWindow = 500 * time.Millisecond
	opts.Retry = RetryPolicy{Attempts: 5, InitialInterval: 500 * time.Millisecond, MaxInterval: 30 * time.Second}
	opts.OnRetry = func(err error, wait time.Duration) { waits <- wait }
	s := startSession(t, opts)

	type result struct {
		groups []Group
		err    error
	}
	done := make(chan result, 1)
	go func() {
		groups, err := s.Groups(context.Background())
		done <- result{groups, err}
	}()

	// First attempt fails: nothing announced yet
	<-waits

	source.up("Phantom A", "Phantom-A.local.", "10.0.0.1", 80)
	waitFor(t, "probe", func() bool { return len(s.Devices()) == 1 })

	// Fire the settle window and keep pushing the backoff timer until done
	for {
		mock.Add(time.Second)
		select {
		case r := <-done:
			if r.err != nil {
				t.Fatalf("Groups() error = %v", r.err)
			}
			if len(r.groups) != 1 {
				t.Errorf("Groups() = %v, want one group", groupIDs(r.groups))
			}
			return
		case <-waits:
		case <-time.After(2 * time.Second):
			t.Fatal("Groups() did not complete")
		}
	}
}

func TestSession_DownRemovesDevice(t *testing.T) {
	network := newFakeNetwork(t)
	network.addDevice("10.0.0.1", deviceInfo("A", "g1", true))
	network.addDevice("10.0.0.2", deviceInfo("B", "g1", false))

	source := newChanSource()
	s := startSession(t, fastOptions(source, network))

	source.up("Phantom A", "Phantom-A.local.", "10.0.0.1", 80)
	source.up("Phantom B", "Phantom-B.local.", "10.0.0.2", 80)
	waitFor(t, "two devices", func() bool { return len(s.Devices()) == 2 })

	source.down("Phantom B")
	waitFor(t, "removal", func() bool { return len(s.Devices()) == 1 })

	// Withdrawing an unknown service is a no-op
	source.down("Phantom Z")
	groups, err := s.Groups(context.Background())
	if err != nil {
		t.Fatalf("Groups() error = %v", err)
	}
	if fmt.Sprint(memberIDs(groups[0])) != "[A]" {
		t.Errorf("members = %v, want [A]", memberIDs(groups[0]))
	}
}

func TestSession_ReannouncementRefreshesMetadata(t *testing.T) {
	var name atomic.Value
	name.Store("Living Room")

	network := newFakeNetwork(t)
	network.addHandler("10.0.0.1", func(w http.ResponseWriter, r *http.Request) {
		info := deviceInfo("A", "g1", true)
		info.DeviceName = name.Load().(string)
		writeJSON(w, info)
	})

	source := newChanSource()
	s := startSession(t, fastOptions(source, network))

	source.up("Phantom A", "Phantom-A.local.", "10.0.0.1", 80)
	waitFor(t, "first probe", func() bool { return len(s.Devices()) == 1 })

	name.Store("Kitchen")
	source.up("Phantom A", "Phantom-A.local.", "10.0.0.1", 80)
	waitFor(t, "refresh", func() bool {
		d, ok := s.Registry().Device("A")
		return ok && d.Info.DeviceName == "Kitchen"
	})
}

func TestSession_Lifecycle(t *testing.T) {
	source := newChanSource()
	s := NewSession(fastOptions(source, newFakeNetwork(t)))

	if _, err := s.Groups(context.Background()); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Groups() before Start error = %v, want ErrNotStarted", err)
	}
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := s.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start() error = %v, want ErrAlreadyStarted", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
	if _, err := s.Groups(context.Background()); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Groups() after Close error = %v, want ErrSessionClosed", err)
	}
	if err := s.Start(context.Background()); !errors.Is(err, ErrSessionClosed) {
		t.Errorf("Start() after Close error = %v, want ErrSessionClosed", err)
	}
}

func TestSession_StartPropagatesSourceError(t *testing.T) {
	source := newChanSource()
	source.err = errors.New("no multicast interface")

	s := NewSession(fastOptions(source, newFakeNetwork(t)))
	err := s.Start(context.Background())
	if err == nil || !errors.Is(err, source.err) {
		t.Fatalf("Start() error = %v, want wrapped source error", err)
	}
}

func TestSession_CloseCancelsPendingGroups(t *testing.T) {
	source := newChanSource()
	opts := fastOptions(source, newFakeNetwork(t))
	opts.Retry = RetryPolicy{Attempts: 10, InitialInterval: time.Hour, MaxInterval: time.Hour}
	s := NewSession(opts)
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := s.Groups(context.Background())
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	s.Close()

	select {
	case err := <-done:
		if !errors.Is(err, ErrSessionClosed) {
			t.Errorf("Groups() error = %v, want ErrSessionClosed", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Close() did not cancel the pending retry wait")
	}
}

func TestSession_CallerContextCancelsGroups(t *testing.T) {
	source := newChanSource()
	opts := fastOptions(source, newFakeNetwork(t))
	opts.Retry = RetryPolicy{Attempts: 10, InitialInterval: time.Hour, MaxInterval: time.Hour}
	s := startSession(t, opts)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.Groups(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Groups() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestSession_ResultsAfterCloseAreDiscarded(t *testing.T) {
	release := make(chan struct{})
	prober := ProberFunc(func(ctx context.Context, address string) (dos.DeviceInformation, error) {
		<-release
		return deviceInfo("A", "g1", true), nil
	})

	source := newChanSource()
	s := NewSession(fastOptions(source, prober))
	if err := s.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	source.up("Phantom A", "Phantom-A.local.", "10.0.0.1", 80)
	time.Sleep(20 * time.Millisecond)

	closed := make(chan struct{})
	go func() {
		s.Close()
		close(closed)
	}()
	time.Sleep(10 * time.Millisecond)
	close(release)

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close() did not return")
	}
	if n := s.Registry().Len(); n != 0 {
		t.Errorf("registry has %d devices after Close, want 0", n)
	}
}

func TestDiscoverGroups(t *testing.T) {
	network := newFakeNetwork(t)
	network.addDevice("10.0.0.1", deviceInfo("A", "g1", true))

	source := newChanSource()
	source.up("Dialog A", "Dialog-A.local.", "10.0.0.1", 80)

	groups, err := DiscoverGroups(context.Background(), fastOptions(source, network))
	if err != nil {
		t.Fatalf("DiscoverGroups() error = %v", err)
	}
	if len(groups) != 1 || groups[0].Leader.ID != "A" {
		t.Errorf("DiscoverGroups() = %v", groups)
	}
}

func TestOptionsDefaults(t *testing.T) {
	opts := Options{}.withDefaults()

	if opts.Retry != DefaultRetryPolicy() {
		t.Errorf("Retry = %+v, want %+v", opts.Retry, DefaultRetryPolicy())
	}
	if opts.SettleWindow != DefaultSettleWindow {
		t.Errorf("SettleWindow = %v", opts.SettleWindow)
	}
	if _, ok := opts.Source.(*ZeroconfSource); !ok {
		t.Errorf("Source = %T, want *ZeroconfSource", opts.Source)
	}
	if _, ok := opts.Prober.(*HTTPProber); !ok {
		t.Errorf("Prober = %T, want *HTTPProber", opts.Prober)
	}
	if len(opts.Filters) != 2 {
		t.Errorf("Filters = %d, want port and family filters", len(opts.Filters))
	}
}
