package discovery

import (
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/muurk/dosctl/internal/dos"
)

// DeviceID is the stable identity a device reports about itself
type DeviceID string

// Device is a probed DOS device
type Device struct {
	// ID is the deviceId from the device information document
	ID DeviceID

	// Hostname is the advertised service instance name
	Hostname string

	// Address is the IP (or host name) the device was probed at
	Address string

	// Port is the HTTP port (typically 80)
	Port int

	// Info is the device information document
	Info dos.DeviceInformation

	// DiscoveredAt is when the probe succeeded
	DiscoveredAt time.Time
}

// Clone returns a deep copy
func (d Device) Clone() Device {
	d.Info = d.Info.Clone()
	return d
}

// IsLeader reports whether the device leads its group
func (d Device) IsLeader() bool {
	return d.Info.IsSystemLeader
}

// GroupID returns the group the device belongs to
func (d Device) GroupID() string {
	return d.Info.GroupID
}

// String returns a human-readable string representation of the device
func (d Device) String() string {
	return fmt.Sprintf("%s %s (%s) at %s", d.Info.Model, d.Info.DeviceName, d.ID, net.JoinHostPort(d.Address, strconv.Itoa(d.Port)))
}

// BaseURL returns the HTTP base URL for the device
func (d Device) BaseURL() string {
	return "http://" + net.JoinHostPort(d.Address, strconv.Itoa(d.Port))
}

// Client returns a DOS client addressing the device
func (d Device) Client() *dos.Client {
	return dos.NewClient(d.Address, d.Port)
}

// Group is a set of devices sharing a groupId, with exactly one leader.
// Members includes the leader.
type Group struct {
	ID      string
	Leader  Device
	Members []Device
}

// Clone returns a deep copy
func (g Group) Clone() Group {
	g.Leader = g.Leader.Clone()
	members := make([]Device, len(g.Members))
	for i, m := range g.Members {
		members[i] = m.Clone()
	}
	g.Members = members
	return g
}

// Name returns the leader's device name, which apps show as the system name
func (g Group) Name() string {
	return g.Leader.Info.DeviceName
}

// String returns a human-readable summary
func (g Group) String() string {
	return fmt.Sprintf("group %s led by %s (%d members)", g.ID, g.Leader.ID, len(g.Members))
}
