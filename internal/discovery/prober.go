package discovery

import (
	"context"
	"errors"
	"time"

	"github.com/muurk/dosctl/internal/dos"
)

// Prober fetches the device information of a candidate host
type Prober interface {
	Probe(ctx context.Context, address string) (dos.DeviceInformation, error)
}

// ProberFunc adapts a function to Prober
type ProberFunc func(ctx context.Context, address string) (dos.DeviceInformation, error)

// Probe implements Prober
func (f ProberFunc) Probe(ctx context.Context, address string) (dos.DeviceInformation, error) {
	return f(ctx, address)
}

// HTTPProber probes over the DOS HTTP API with a single request per call
type HTTPProber struct {
	// Port is the HTTP port to probe
	Port int

	// Timeout bounds each probe request
	Timeout time.Duration
}

// NewHTTPProber creates a prober; zero values use the dos package defaults
func NewHTTPProber(port int, timeout time.Duration) *HTTPProber {
	if port == 0 {
		port = dos.DefaultPort
	}
	if timeout <= 0 {
		timeout = dos.DefaultTimeout
	}
	return &HTTPProber{Port: port, Timeout: timeout}
}

// Probe implements Prober. Failures are returned as *ProbeError.
func (p *HTTPProber) Probe(ctx context.Context, address string) (dos.DeviceInformation, error) {
	client := dos.NewClient(address, p.Port)
	client.SetTimeout(p.Timeout)

	info, err := client.DeviceInfo(ctx)
	if err != nil {
		return dos.DeviceInformation{}, &ProbeError{Address: address, Err: err}
	}
	return info, nil
}

// asProbeError makes sure a prober failure surfaces as *ProbeError
func asProbeError(address string, err error) *ProbeError {
	var probeErr *ProbeError
	if errors.As(err, &probeErr) {
		return probeErr
	}
	return &ProbeError{Address: address, Err: err}
}
