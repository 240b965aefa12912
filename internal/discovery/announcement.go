package discovery

import (
	"strings"
)

// AnnouncementKind tells whether a service appeared or went away
type AnnouncementKind int

const (
	// Up means a service was advertised (or re-advertised)
	Up AnnouncementKind = iota
	// Down means a service withdrew its advertisement
	Down
)

// String returns the lowercase event name
func (k AnnouncementKind) String() string {
	if k == Down {
		return "down"
	}
	return "up"
}

// Announcement is one service advertisement event. Down events only carry Name.
type Announcement struct {
	Kind AnnouncementKind

	// Name is the service instance name (e.g., "Phantom I Living Room")
	Name string

	// Host is the advertised host name (e.g., "Phantom-I-0001.local.")
	Host string

	// IP is the first advertised address, IPv4 preferred. Empty if none.
	IP string

	// Port is the advertised service port
	Port int

	// Text holds the raw TXT records ("key=value")
	Text []string
}

// Address returns what a client should dial: the IP when known, otherwise the
// host name without its trailing dot.
func (a Announcement) Address() string {
	if a.IP != "" {
		return a.IP
	}
	return strings.TrimSuffix(a.Host, ".")
}

// TXT parses the TXT records into a map. Keys without a value map to "".
func (a Announcement) TXT() map[string]string {
	metadata := make(map[string]string, len(a.Text))
	for _, txt := range a.Text {
		parts := strings.SplitN(txt, "=", 2)
		if len(parts) == 2 {
			metadata[parts[0]] = parts[1]
		} else {
			metadata[parts[0]] = ""
		}
	}
	return metadata
}

// Filter decides whether an appearance is a candidate device. Filters are
// never applied to Down events.
type Filter func(Announcement) bool

// PortFilter keeps announcements on the given port
func PortFilter(port int) Filter {
	return func(a Announcement) bool {
		return a.Port == port
	}
}

// FamilyFilter keeps announcements whose host name starts with one of the
// given product family prefixes (e.g., "Phantom")
func FamilyFilter(prefixes []string) Filter {
	allowed := append([]string(nil), prefixes...)
	return func(a Announcement) bool {
		for _, prefix := range allowed {
			if strings.HasPrefix(a.Host, prefix) {
				return true
			}
		}
		return false
	}
}

// accept runs every filter; an empty filter list accepts everything
func accept(a Announcement, filters []Filter) bool {
	for _, f := range filters {
		if !f(a) {
			return false
		}
	}
	return true
}
