package discovery

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Service is a configuration service found on the network
type Service struct {
	// Instance is the advertised instance name (e.g., "hubcfg on nas")
	Instance string

	// Hostname is the mDNS hostname (e.g., "nas.local.")
	Hostname string

	// IP is the preferred address, IPv4 when available
	IP string

	// Port is the HTTP port of the service
	Port int

	// Metadata contains the TXT record data ("path=/api", "version=0.3.0")
	Metadata map[string]string

	// DiscoveredAt is when the service was seen
	DiscoveredAt time.Time
}

// String returns a human-readable description of the service
func (s *Service) String() string {
	return fmt.Sprintf("%s (%s) at %s", s.Instance, s.Hostname, net.JoinHostPort(s.IP, strconv.Itoa(s.Port)))
}

// BaseURL returns the HTTP base URL clients connect to
func (s *Service) BaseURL() string {
	return "http://" + net.JoinHostPort(s.IP, strconv.Itoa(s.Port))
}

// GetMetadata retrieves a TXT value by key, or returns empty string if not found
func (s *Service) GetMetadata(key string) string {
	if s.Metadata == nil {
		return ""
	}
	return s.Metadata[key]
}

// Version is the server version advertised in the TXT record
func (s *Service) Version() string {
	return s.GetMetadata(TXTVersion)
}
