// Package discovery finds DOS devices on the local network and assembles them
// into groups.
//
// Devices advertise an "_http._tcp" mDNS service. A Session browses those
// announcements, keeps the ones that look like DOS products (port 80, host
// name starting with Phantom, Arch or Dialog), probes each candidate's device
// information over HTTP and stores the result in a Registry keyed by device
// identity. Groups are derived from the registry on every query: devices are
// clustered by groupId and a cluster becomes a Group only when exactly one of
// its devices is the system leader.
//
// # Readiness
//
// mDNS gives no "scan complete" event. A Settler declares a scan settled once
// no new candidate has appeared for a quiet window (500ms by default).
// Session.Groups retries with exponential backoff until the scan has settled
// and at least one group is known, then returns a snapshot.
//
// # Departures
//
// The mDNS resolver never reports goodbye packets, so ZeroconfSource browses
// in rounds and reports a device gone once it has missed two rounds (20s by
// default) or outlived its record TTL. Its registry entry is removed then.
//
// # Usage Example
//
//	session := discovery.NewSession(discovery.Options{})
//	if err := session.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer session.Close()
//
//	groups, err := session.Groups(ctx)
//	if errors.Is(err, discovery.ErrDiscoveryExhausted) {
//	    log.Fatal("no devices found")
//	}
//	for _, g := range groups {
//	    fmt.Printf("%s: %d speakers, leader %s\n", g.Name(), len(g.Members), g.Leader.Address)
//	}
//
// Session.Subscribe offers a push alternative that emits a group as soon as
// its leader has been probed.
//
// # Network Requirements
//
// - Requires multicast support on the network interface
// - Devices must be on the same local network segment
// - Firewall must allow mDNS (UDP port 5353)
//
// # Thread Safety
//
// Session, Registry and Settler are safe for concurrent use.
package discovery
