// Package mockdevice emulates a DOS speaker for development and tests.
//
// A Device serves the IP control API under /ipcontrol/v1 from in-memory
// state: device information, volume, night mode, sources and the playback
// state of the current source. Commands that need a playing source answer
// with a {"error": {...}} document while none is selected, the way real
// devices do.
//
// Tests can inject failures per path with FailPath and count requests with
// Requests.
//
// # Usage Example
//
//	dev := mockdevice.New(mockdevice.NewInfo("dev-1", "Living Room", "group-1", true))
//	srv := httptest.NewServer(dev)
//	defer srv.Close()
//	client := dos.NewClientWithURL(srv.URL)
//
// Advertise publishes the device over mDNS under a Phantom host name so that
// a discovery session on the same network finds it.
package mockdevice
