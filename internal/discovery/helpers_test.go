package discovery

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/muurk/dosctl/internal/dos"
)

// chanSource is an in-memory announcement source
type chanSource struct {
	events chan Announcement
	err    error
}

func newChanSource() *chanSource {
	return &chanSource{events: make(chan Announcement, 32)}
}

func (c *chanSource) Browse(ctx context.Context, out chan<- Announcement) error {
	if c.err != nil {
		return c.err
	}
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case a := <-c.events:
				select {
				case out <- a:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return nil
}

func (c *chanSource) up(name, host, ip string, port int) {
	c.events <- Announcement{Kind: Up, Name: name, Host: host, IP: ip, Port: port}
}

func (c *chanSource) down(name string) {
	c.events <- Announcement{Kind: Down, Name: name}
}

func deviceInfo(id, group string, leader bool) dos.DeviceInformation {
	return dos.DeviceInformation{
		AvailableFeatures: []string{"nightMode"},
		DeviceID:          id,
		DeviceName:        "Speaker " + id,
		FirmwareFamily:    "DOS2",
		GroupID:           group,
		InstallationID:    "inst-1",
		IPControlVersion:  "1",
		IsSystemLeader:    leader,
		Model:             "Phantom I",
		ModelFamily:       "phantom_i",
		PowerRating:       "108dB",
		Release:           dos.Release{BuildType: "release", CanonicalVersion: "2.16.1", Version: "2.16.1"},
		Role:              "Mono",
		Serial:            "S-" + id,
		SetupState:        "finished",
		SystemID:          "sys-" + group,
	}
}

func testDevice(id, group string, leader bool) Device {
	return Device{
		ID:       DeviceID(id),
		Hostname: "Phantom " + id,
		Address:  "10.0.0." + id,
		Port:     80,
		Info:     deviceInfo(id, group, leader),
	}
}

// fakeNetwork serves device information documents over httptest servers, one
// per address, and probes them through the real dos client
type fakeNetwork struct {
	mu      sync.Mutex
	servers map[string]*httptest.Server
	probed  map[string]int
}

func newFakeNetwork(t *testing.T) *fakeNetwork {
	t.Helper()
	n := &fakeNetwork{servers: make(map[string]*httptest.Server), probed: make(map[string]int)}
	t.Cleanup(func() {
		for _, srv := range n.servers {
			srv.Close()
		}
	})
	return n
}

func (n *fakeNetwork) addDevice(address string, info dos.DeviceInformation) {
	n.addHandler(address, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(info)
	})
}

func (n *fakeNetwork) addHandler(address string, handler http.HandlerFunc) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.servers[address] = httptest.NewServer(handler)
}

func (n *fakeNetwork) probeCount(address string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.probed[address]
}

func (n *fakeNetwork) Probe(ctx context.Context, address string) (dos.DeviceInformation, error) {
	n.mu.Lock()
	n.probed[address]++
	srv, ok := n.servers[address]
	n.mu.Unlock()

	if !ok {
		return dos.DeviceInformation{}, &ProbeError{Address: address, Err: fmt.Errorf("no route to host")}
	}
	info, err := dos.NewClientWithURL(srv.URL).DeviceInfo(ctx)
	if err != nil {
		return dos.DeviceInformation{}, &ProbeError{Address: address, Err: err}
	}
	return info, nil
}

// fastOptions returns options tuned for tests on the wall clock
func fastOptions(source Source, prober Prober) Options {
	return Options{
		Source:       source,
		Prober:       prober,
		SettleWindow: 30 * time.Millisecond,
		Retry: RetryPolicy{
			Attempts:        40,
			InitialInterval: 5 * time.Millisecond,
			MaxInterval:     20 * time.Millisecond,
		},
	}
}

// waitFor polls cond until it holds or the deadline passes
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}
