package mockdevice

import (
	"fmt"
	"net"
	"strings"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/muurk/dosctl/internal/discovery"
	"github.com/muurk/dosctl/internal/logging"
)

// AdvertiseConfig describes the mDNS record of a mock device
type AdvertiseConfig struct {
	// Instance is the service instance name (e.g., "Phantom I Mock")
	Instance string

	// Host is the advertised host name. It must start with a product family
	// prefix for discovery to pick the device up (default "Phantom-Mock").
	Host string

	// Port is the HTTP port the device serves on
	Port int

	// IPs are the advertised addresses (default: local non-loopback IPv4)
	IPs []string

	// Text holds extra TXT records
	Text []string
}

// Advertise registers the device over mDNS and returns a function that
// withdraws the record
func Advertise(cfg AdvertiseConfig) (func(), error) {
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("invalid port %d", cfg.Port)
	}
	if cfg.Instance == "" {
		cfg.Instance = "Phantom I Mock"
	}
	if cfg.Host == "" {
		cfg.Host = "Phantom-Mock"
	}
	if len(cfg.IPs) == 0 {
		ips, err := localIPv4()
		if err != nil {
			return nil, err
		}
		cfg.IPs = ips
	}
	if cfg.Text == nil {
		cfg.Text = []string{"path=/ipcontrol/v1"}
	}

	server, err := zeroconf.RegisterProxy(
		cfg.Instance,
		discovery.ServiceType,
		discovery.ServiceDomain,
		cfg.Port,
		cfg.Host,
		cfg.IPs,
		cfg.Text,
		nil,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register mDNS service: %w", err)
	}

	logging.Info("Advertising mock device",
		zap.String("instance", cfg.Instance),
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("ips", strings.Join(cfg.IPs, ",")),
	)

	return server.Shutdown, nil
}

// localIPv4 lists the IPv4 addresses of the interfaces that are up
func localIPv4() ([]string, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, fmt.Errorf("failed to list interface addresses: %w", err)
	}

	var ips []string
	for _, addr := range addrs {
		ipNet, ok := addr.(*net.IPNet)
		if !ok || ipNet.IP.IsLoopback() {
			continue
		}
		if ip4 := ipNet.IP.To4(); ip4 != nil {
			ips = append(ips, ip4.String())
		}
	}
	if len(ips) == 0 {
		return nil, fmt.Errorf("no non-loopback IPv4 address to advertise")
	}
	return ips, nil
}
